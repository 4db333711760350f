package application

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
)

type refunder struct {
	*orchestrator
}

func newRefunder(o *orchestrator) *refunder {
	return &refunder{o}
}

// run refunds late payments until the checkpoint's refund deadline.
// Every refund is attempted once: failures are recorded and the loop moves on.
func (r *refunder) run(
	ctx context.Context, checkpoint *domain.Checkpoint,
) (domain.Watermark, error) {
	deadline := checkpoint.Deadline()
	sleep := func(d time.Duration) error {
		if left := deadline.Sub(r.now()); left < d {
			d = left
		}
		return r.sleep(ctx, d)
	}

	log.WithFields(log.Fields{
		"deadline":  deadline.Format(time.RFC3339),
		"watermark": checkpoint.Watermark.LastSeenOutputIndex,
	}).Info("refund phase started")

	for r.now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return checkpoint.Watermark, err
		}

		r.setState(stateAwaitingPayment)
		payment, err := r.detect(ctx, domain.PhaseRefund, checkpoint, sleep)
		if err != nil {
			return checkpoint.Watermark, err
		}
		if payment == nil {
			continue
		}

		r.refund(ctx, *payment)
		r.setState(stateAwaitingPayment)

		if err := sleep(r.cfg.CycleBackoff); err != nil {
			return checkpoint.Watermark, err
		}
	}

	r.setState(stateDone)
	log.WithField("refunded", r.counters.refunded.Load()).Info("refund window elapsed")
	return checkpoint.Watermark, nil
}

func (r *refunder) refund(ctx context.Context, payment domain.UnspentOutput) bool {
	attempt := domain.NewRefundAttempt(payment)
	r.addAttempt(ctx, attempt)

	refundAddress, err := r.resolvePayer(ctx, payment.TxHash)
	if err != nil {
		r.fail(ctx, attempt, err)
		return false
	}
	attempt.Destination = refundAddress

	attempt.MoveTo(domain.StageQuoting)
	r.setState(stateBuilding)
	fee, err := r.builder.quoteRefundFee(ctx, payment, refundAddress)
	if err != nil {
		r.fail(ctx, attempt, err)
		return false
	}
	attempt.Fee = fee

	req, err := domain.NewRefundRequest(payment, refundAddress, fee)
	if err != nil {
		r.fail(ctx, attempt, insufficientFunds(payment, fee))
		return false
	}

	attempt.MoveTo(domain.StageBuilding)
	tx, err := r.builder.buildRefund(ctx, *req)
	if err != nil {
		r.fail(ctx, attempt, err)
		return false
	}
	attempt.RawFile = tx.RawFile
	attempt.SignedFile = tx.SignedFile

	r.setState(stateSigning)
	attempt.MoveTo(domain.StageSigning)
	if err := r.builder.signRefund(ctx, *tx); err != nil {
		r.fail(ctx, attempt, err)
		return false
	}

	r.setState(stateSubmitting)
	attempt.MoveTo(domain.StageSubmitting)
	if err := r.builder.submit(ctx, *tx); err != nil {
		r.fail(ctx, attempt, err)
		return false
	}

	attempt.Succeed()
	r.updateAttempt(ctx, attempt)
	r.counters.refunded.Add(1)
	r.metrics.attemptFinished(ctx, *attempt)
	r.metrics.lovelaceSent(ctx, domain.AttemptRefund, req.NetAmount)
	r.publish(ctx, domain.RefundSubmitted{
		Source:        payment.Outpoint,
		RefundAddress: refundAddress,
		NetAmount:     req.NetAmount,
		MinerFee:      req.MinerFee,
		SignedFile:    tx.SignedFile,
	})

	log.WithFields(log.Fields{
		"refund_address": refundAddress,
		"net_amount":     req.NetAmount,
		"fee":            req.MinerFee,
		"tx_hash":        payment.TxHash,
		"tx_index":       payment.OutputIndex,
	}).Info("refund submitted")
	return true
}
