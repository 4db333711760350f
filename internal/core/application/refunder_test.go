package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/pkg/errors"
)

func refundCheckpoint(clock *fakeClock, window time.Duration, watermark int) *domain.Checkpoint {
	checkpoint := domain.NewCheckpoint(1)
	checkpoint.Watermark = checkpoint.Watermark.Advance(watermark)
	checkpoint.StartRefund(clock.Now().Add(window))
	return checkpoint
}

func TestRefunderRun(t *testing.T) {
	t.Run("refunds late payments until the deadline", func(t *testing.T) {
		ledger := newFakeLedger(
			utxo(hashA, 2, "addrX", testFee),
			utxo(hashB, 3, "addrY", testFee),
			utxo(hashB, 4, "addrY", 3000000),
			utxo(hashC, 5, "addrZ", testFee),
		)
		clock := newFakeClock()
		repo := newFakeRepoManager()
		o := newTestOrchestrator(ledger, anyMetadata(), payerResolver(), repo, clock)

		checkpoint := refundCheckpoint(clock, 62*time.Second, 2)
		deadline := checkpoint.Deadline()
		watermark, err := newRefunder(o).run(context.Background(), checkpoint)
		require.NoError(t, err)
		require.Equal(t, 5, watermark.LastSeenOutputIndex)
		// The last idle sleep is cut short at the deadline.
		require.True(t, deadline.Equal(clock.Now()))

		require.Equal(t, []string{
			"refund/" + hashB + "_3.signed",
			"refund/" + hashC + "_5.signed",
		}, ledger.submits)

		// Draft and final build per refund.
		require.Len(t, ledger.raws, 4)
		draft, final := ledger.raws[0], ledger.raws[1]
		require.Equal(t, uint64(0), draft.Fee)
		require.Equal(t, uint64(0), draft.TTL)
		require.Len(t, draft.Outputs, 2)
		require.Equal(t, testFee, draft.Outputs[0].Lovelace)
		require.Equal(t, []ports.TxOutput{{Address: "addr_payer", Lovelace: 99825215}}, final.Outputs)
		require.Equal(t, uint64(174785), final.Fee)
		require.Greater(t, final.TTL, uint64(10000))

		attempts, err := repo.Attempts().List(context.Background(), domain.AttemptRefund)
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		for _, a := range attempts {
			require.Equal(t, domain.AttemptSubmitted, a.Status)
			require.Equal(t, uint64(174785), a.Fee)
		}
		require.Equal(t, int64(2), o.counters.refunded.Load())
		require.Equal(t, stateDone, o.currentState())
	})

	t.Run("fee above payment is refused", func(t *testing.T) {
		ledger := newFakeLedger(utxo(hashA, 0, "addrX", testFee))
		ledger.fee = testFee + 1
		clock := newFakeClock()
		repo := newFakeRepoManager()
		o := newTestOrchestrator(ledger, anyMetadata(), payerResolver(), repo, clock)

		_, err := newRefunder(o).run(context.Background(), refundCheckpoint(clock, time.Minute, -1))
		require.NoError(t, err)
		require.Empty(t, ledger.submits)
		// Only the draft was built.
		require.Len(t, ledger.raws, 1)

		failed, err := repo.Attempts().ListFailed(context.Background())
		require.NoError(t, err)
		require.Len(t, failed, 1)
		require.Equal(t, domain.StageQuoting, failed[0].Stage)
		require.Contains(t, failed[0].Reason, errors.INSUFFICIENT_FUNDS_FOR_REFUND.Name)
	})

	t.Run("failures do not halt the loop", func(t *testing.T) {
		ledger := newFakeLedger(
			utxo(hashA, 0, "addrX", testFee),
			utxo(hashB, 1, "addrY", testFee),
		)
		ledger.failSignOn["refund/"+hashA+"_0.raw"] = true
		clock := newFakeClock()
		repo := newFakeRepoManager()
		o := newTestOrchestrator(ledger, anyMetadata(), payerResolver(), repo, clock)

		watermark, err := newRefunder(o).run(
			context.Background(), refundCheckpoint(clock, time.Minute, -1),
		)
		require.NoError(t, err)
		require.Equal(t, 1, watermark.LastSeenOutputIndex)
		require.Equal(t, []string{"refund/" + hashB + "_1.signed"}, ledger.submits)
		require.Equal(t, int64(1), o.counters.failed.Load())
		require.Equal(t, int64(1), o.counters.refunded.Load())
	})

	t.Run("elapsed window does not poll", func(t *testing.T) {
		ledger := newFakeLedger(utxo(hashA, 0, "addrX", testFee))
		clock := newFakeClock()
		o := newTestOrchestrator(
			ledger, anyMetadata(), payerResolver(), newFakeRepoManager(), clock,
		)

		_, err := newRefunder(o).run(context.Background(), refundCheckpoint(clock, 0, -1))
		require.NoError(t, err)
		require.Zero(t, ledger.pollCount())
	})
}
