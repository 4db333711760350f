package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := MIN_UTXO_VIOLATION.New("output below minimum").
		WithMetadata(MinUTXOMetadata{TxFile: "matx/matx5.raw", MinLovelace: 1500000})

	require.Equal(t, "MIN_UTXO_VIOLATION (4): output below minimum", err.Error())
	require.Equal(t, uint16(4), err.Code())
	require.Equal(t, "MIN_UTXO_VIOLATION", err.CodeName())
	require.Equal(t, "matx/matx5.raw", err.Metadata()["tx_file"])
	require.Contains(t, err.Metadata(), "min_lovelace")
}

func TestMatch(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		err := MIN_UTXO_VIOLATION.New("too low").
			WithMetadata(MinUTXOMetadata{MinLovelace: 1500000})

		md, ok := MIN_UTXO_VIOLATION.Match(err)
		require.True(t, ok)
		require.Equal(t, uint64(1500000), md.MinLovelace)

		_, ok = BUILD_REJECTED.Match(err)
		require.False(t, ok)
	})

	t.Run("wrapped", func(t *testing.T) {
		inner := SUBMIT_REJECTED.New("bad inputs").WithMetadata(TxFileMetadata{TxFile: "tx.signed"})
		err := fmt.Errorf("mint 3: %w", inner)

		md, ok := SUBMIT_REJECTED.Match(err)
		require.True(t, ok)
		require.Equal(t, "tx.signed", md.TxFile)
		require.True(t, SUBMIT_REJECTED.Is(err))
		require.False(t, SIGNING_FAILED.Is(err))
	})

	t.Run("same metadata type different code", func(t *testing.T) {
		err := SIGNING_FAILED.New("missing key")
		_, ok := SUBMIT_REJECTED.Match(err)
		require.False(t, ok)
		_, ok = SIGNING_FAILED.Match(err)
		require.True(t, ok)
	})

	t.Run("plain error", func(t *testing.T) {
		_, ok := CHAIN_QUERY_FAILED.Match(fmt.Errorf("boom"))
		require.False(t, ok)
		require.False(t, CHAIN_QUERY_FAILED.Is(nil))
	})
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := CHAIN_QUERY_FAILED.Wrap(cause)
	require.ErrorIs(t, err, cause)
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("refund: %w", INSUFFICIENT_FUNDS_FOR_REFUND.New("fee too high").
		WithMetadata(InsufficientFundsMetadata{Gross: 100, Fee: 200}))

	typed, ok := As(err)
	require.True(t, ok)
	require.Equal(t, "INSUFFICIENT_FUNDS_FOR_REFUND", typed.CodeName())
	require.Equal(t, "200", typed.Metadata()["fee"])

	_, ok = As(fmt.Errorf("plain"))
	require.False(t, ok)
}
