package application

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/pkg/errors"
)

var (
	hashA = strings.Repeat("a", 64)
	hashB = strings.Repeat("b", 64)
)

func utxo(hash string, index int, address string, lovelace uint64) domain.UnspentOutput {
	return domain.UnspentOutput{
		Outpoint: domain.Outpoint{TxHash: hash, OutputIndex: index},
		Address:  address,
		Lovelace: lovelace,
	}
}

func TestDetectorPoll(t *testing.T) {
	ctx := context.Background()

	t.Run("same snapshot yields successive outputs", func(t *testing.T) {
		ledger := &mockLedger{}
		ledger.On("ListUnspentOutputs", mock.Anything, testTreasury).Return(
			[]domain.UnspentOutput{
				utxo(hashA, 0, "addrX", 100000000),
				utxo(hashA, 1, "addrY", 100000000),
			}, nil,
		)
		detector := newEventDetector(ledger, testTreasury, testFee)

		watermark := domain.NewWatermark()
		payment, err := detector.poll(ctx, watermark)
		require.NoError(t, err)
		require.NotNil(t, payment)
		require.Equal(t, hashA, payment.TxHash)
		require.Equal(t, 0, payment.OutputIndex)

		watermark = watermark.Advance(payment.OutputIndex)
		payment, err = detector.poll(ctx, watermark)
		require.NoError(t, err)
		require.NotNil(t, payment)
		require.Equal(t, hashA, payment.TxHash)
		require.Equal(t, 1, payment.OutputIndex)

		watermark = watermark.Advance(payment.OutputIndex)
		payment, err = detector.poll(ctx, watermark)
		require.NoError(t, err)
		require.Nil(t, payment)
	})

	t.Run("only exact amounts qualify", func(t *testing.T) {
		fixtures := []struct {
			name    string
			outputs []domain.UnspentOutput
			index   int
			found   bool
		}{
			{
				name:    "empty",
				outputs: []domain.UnspentOutput{},
			},
			{
				name: "one lovelace short",
				outputs: []domain.UnspentOutput{
					utxo(hashA, 0, "addrX", testFee-1),
				},
			},
			{
				name: "one lovelace over",
				outputs: []domain.UnspentOutput{
					utxo(hashA, 0, "addrX", testFee+1),
				},
			},
			{
				name: "skips non matching amounts",
				outputs: []domain.UnspentOutput{
					utxo(hashA, 0, "addrX", 5000000),
					utxo(hashA, 1, "addrX", 200000000),
					utxo(hashB, 2, "addrY", testFee),
				},
				index: 2,
				found: true,
			},
			{
				name: "first match in ledger order wins",
				outputs: []domain.UnspentOutput{
					utxo(hashB, 3, "addrY", testFee),
					utxo(hashA, 1, "addrX", testFee),
				},
				index: 3,
				found: true,
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				ledger := &mockLedger{}
				ledger.On("ListUnspentOutputs", mock.Anything, testTreasury).
					Return(f.outputs, nil)
				detector := newEventDetector(ledger, testTreasury, testFee)

				payment, err := detector.poll(ctx, domain.NewWatermark())
				require.NoError(t, err)
				if !f.found {
					require.Nil(t, payment)
					return
				}
				require.NotNil(t, payment)
				require.Equal(t, f.index, payment.OutputIndex)
				require.Equal(t, testFee, payment.Lovelace)
			})
		}
	})

	t.Run("watermark is monotonic across polls", func(t *testing.T) {
		outputs := []domain.UnspentOutput{
			utxo(hashA, 4, "addrX", testFee),
			utxo(hashA, 0, "addrX", testFee),
			utxo(hashA, 2, "addrX", 1),
			utxo(hashA, 7, "addrX", testFee),
			utxo(hashA, 5, "addrX", testFee),
		}
		ledger := &mockLedger{}
		ledger.On("ListUnspentOutputs", mock.Anything, testTreasury).Return(outputs, nil)
		detector := newEventDetector(ledger, testTreasury, testFee)

		watermark := domain.NewWatermark()
		returned := make([]int, 0)
		for {
			payment, err := detector.poll(ctx, watermark)
			require.NoError(t, err)
			if payment == nil {
				break
			}
			for _, prev := range returned {
				require.Greater(t, payment.OutputIndex, prev)
			}
			returned = append(returned, payment.OutputIndex)
			watermark = watermark.Advance(payment.OutputIndex)
		}
		require.Equal(t, []int{4, 7}, returned)
	})

	t.Run("query failure is no event", func(t *testing.T) {
		queryErr := errors.CHAIN_QUERY_FAILED.New("node unreachable")
		ledger := &mockLedger{}
		ledger.On("ListUnspentOutputs", mock.Anything, testTreasury).Return(nil, queryErr)
		detector := newEventDetector(ledger, testTreasury, testFee)

		payment, err := detector.poll(ctx, domain.NewWatermark())
		require.Nil(t, payment)
		require.True(t, errors.CHAIN_QUERY_FAILED.Is(err))
	})

	t.Run("malformed listing is no event", func(t *testing.T) {
		malformed := errors.MALFORMED_LEDGER_RESPONSE.New("unexpected row").
			WithMetadata(errors.MalformedResponseMetadata{Query: "utxo", Line: "garbage"})
		ledger := &mockLedger{}
		ledger.On("ListUnspentOutputs", mock.Anything, testTreasury).Return(nil, malformed)
		detector := newEventDetector(ledger, testTreasury, testFee)

		payment, err := detector.poll(ctx, domain.NewWatermark())
		require.Nil(t, payment)
		require.True(t, errors.MALFORMED_LEDGER_RESPONSE.Is(err))
	})
}
