package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tokenfund/mintd/internal/core/domain"
)

var hashA = strings.Repeat("a", 64)

func TestWatermark(t *testing.T) {
	w := domain.NewWatermark()
	require.Equal(t, -1, w.LastSeenOutputIndex)

	out0 := domain.UnspentOutput{Outpoint: domain.Outpoint{TxHash: hashA, OutputIndex: 0}}
	out1 := domain.UnspentOutput{Outpoint: domain.Outpoint{TxHash: hashA, OutputIndex: 1}}
	require.True(t, w.Admits(out0))

	w = w.Advance(0)
	require.False(t, w.Admits(out0))
	require.True(t, w.Admits(out1))

	// Never moves backwards.
	w = w.Advance(3).Advance(1)
	require.Equal(t, 3, w.LastSeenOutputIndex)
}

func TestOutpoint(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var o domain.Outpoint
		require.NoError(t, o.FromString(hashA+"#2"))
		require.Equal(t, hashA, o.TxHash)
		require.Equal(t, 2, o.OutputIndex)
		require.Equal(t, hashA+"#2", o.String())
		require.Equal(t, hashA+"_2", o.FileKey())
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []string{
			"",
			hashA,
			hashA + "#",
			hashA + "#-1",
			"abc#0",
			strings.Repeat("z", 64) + "#0",
		}
		for _, f := range fixtures {
			var o domain.Outpoint
			require.Error(t, o.FromString(f), f)
		}
	})
}

func TestNewRefundRequest(t *testing.T) {
	source := domain.UnspentOutput{
		Outpoint: domain.Outpoint{TxHash: hashA, OutputIndex: 4},
		Lovelace: 100000000,
	}

	t.Run("valid", func(t *testing.T) {
		req, err := domain.NewRefundRequest(source, "addr_payer", 174785)
		require.NoError(t, err)
		require.Equal(t, uint64(100000000), req.GrossAmount)
		require.Equal(t, uint64(174785), req.MinerFee)
		require.Equal(t, uint64(99825215), req.NetAmount)
	})

	t.Run("fee equals gross", func(t *testing.T) {
		req, err := domain.NewRefundRequest(source, "addr_payer", 100000000)
		require.NoError(t, err)
		require.Zero(t, req.NetAmount)
	})

	t.Run("fee exceeds gross", func(t *testing.T) {
		req, err := domain.NewRefundRequest(source, "addr_payer", 100000001)
		require.Error(t, err)
		require.Nil(t, req)
	})
}

func TestTransactionFiles(t *testing.T) {
	tx := domain.NewMintTransaction("matx", 5)
	require.Equal(t, "matx/matx5.raw", tx.RawFile)
	require.Equal(t, "matx/matx5.signed", tx.SignedFile)

	op := domain.Outpoint{TxHash: hashA, OutputIndex: 1}
	refund := domain.NewRefundTransaction("refund", op)
	require.Equal(t, "refund/"+hashA+"_1.raw", refund.RawFile)
	require.Equal(t, "refund/"+hashA+"_1.signed", refund.SignedFile)
	require.Equal(t, "refund/"+hashA+"_1.draft", domain.RefundDraftFile("refund", op))
}

func TestAttemptLifecycle(t *testing.T) {
	source := domain.UnspentOutput{
		Outpoint: domain.Outpoint{TxHash: hashA, OutputIndex: 0},
		Lovelace: 100000000,
	}
	attempt := domain.NewMintAttempt(7, source)
	require.NotEmpty(t, attempt.ID)
	require.Equal(t, domain.AttemptPending, attempt.Status)
	require.Equal(t, domain.StageResolving, attempt.Stage)

	attempt.MoveTo(domain.StageSigning)
	attempt.Fail(domain.ErrNotFound)
	require.True(t, attempt.IsFailed())
	require.Equal(t, domain.StageSigning, attempt.Stage)
	require.Equal(t, domain.ErrNotFound.Error(), attempt.Reason)

	other := domain.NewRefundAttempt(source)
	require.NotEqual(t, attempt.ID, other.ID)
	other.Succeed()
	require.Equal(t, domain.AttemptSubmitted, other.Status)
}

func TestAssetUnit(t *testing.T) {
	a := domain.Asset{PolicyID: "abcd", AssetName: "546f6b656e", Quantity: 1}
	require.Equal(t, "abcd.546f6b656e", a.Unit())
}

func TestEvents(t *testing.T) {
	source := domain.Outpoint{TxHash: hashA, OutputIndex: 3}
	fixtures := []struct {
		event    domain.Event
		expected domain.EventType
	}{
		{domain.PaymentDetected{Phase: domain.PhaseMint}, domain.EventPaymentDetected},
		{domain.TokenMinted{TokenID: 1, Source: source}, domain.EventTokenMinted},
		{domain.RefundSubmitted{Source: source}, domain.EventRefundSubmitted},
		{
			domain.AttemptFailedEvent{Kind: domain.AttemptMint, Source: source},
			domain.EventAttemptFailed,
		},
	}
	for _, f := range fixtures {
		t.Run(string(f.expected), func(t *testing.T) {
			require.Equal(t, f.expected, f.event.GetType())
		})
	}

	// The failed status and the failure event are distinct identifiers.
	attempt := domain.NewMintAttempt(1, domain.UnspentOutput{Outpoint: source})
	attempt.Fail(nil)
	require.Equal(t, domain.AttemptFailed, attempt.Status)
}
