package application

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/pkg/errors"
)

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type state int32

const (
	stateIdle state = iota
	stateAwaitingPayment
	stateBuilding
	stateSigning
	stateSubmitting
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingPayment:
		return "awaiting_payment"
	case stateBuilding:
		return "building"
	case stateSigning:
		return "signing"
	case stateSubmitting:
		return "submitting"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

type counters struct {
	minted   atomic.Int64
	refunded atomic.Int64
	failed   atomic.Int64
}

// orchestrator holds what the mint and refund loops share.
type orchestrator struct {
	cfg         Config
	detector    *eventDetector
	builder     *txBuilder
	resolver    ports.PayerResolver
	repoManager ports.RepoManager
	bus         ports.EventBus
	metrics     *metrics
	counters    *counters
	sleep       sleepFunc
	now         func() time.Time

	state atomic.Int32
}

func (o *orchestrator) setState(s state) {
	o.state.Store(int32(s))
}

func (o *orchestrator) currentState() state {
	return state(o.state.Load())
}

// saveCheckpoint persists the progress even when ctx is already canceled.
// The loops stop on error: progress that is not persisted is replayed after
// a restart, which would mint a token id twice.
func (o *orchestrator) saveCheckpoint(ctx context.Context, checkpoint *domain.Checkpoint) error {
	checkpoint.UpdatedAt = o.now().Unix()
	if err := o.repoManager.Checkpoints().Upsert(
		context.WithoutCancel(ctx), *checkpoint,
	); err != nil {
		return errors.CHECKPOINT_NOT_PERSISTED.Wrap(err).
			WithMetadata(errors.CheckpointMetadata{
				Phase:       string(checkpoint.Phase),
				NextTokenID: checkpoint.NextTokenID,
				Watermark:   checkpoint.Watermark.LastSeenOutputIndex,
			})
	}
	return nil
}

func (o *orchestrator) addAttempt(ctx context.Context, attempt *domain.Attempt) {
	if err := o.repoManager.Attempts().Add(ctx, *attempt); err != nil {
		log.WithError(err).WithField("attempt", attempt.ID).Warn("failed to persist attempt")
	}
}

func (o *orchestrator) updateAttempt(ctx context.Context, attempt *domain.Attempt) {
	if err := o.repoManager.Attempts().Update(ctx, *attempt); err != nil {
		log.WithError(err).WithField("attempt", attempt.ID).Warn("failed to update attempt")
	}
}

func (o *orchestrator) publish(ctx context.Context, events ...domain.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, events...); err != nil {
		log.WithError(err).Warn("failed to publish events")
	}
}

// detect polls once and applies the backoff policy. It returns nil when the
// caller should simply poll again, and an error when the loop must stop.
func (o *orchestrator) detect(
	ctx context.Context, phase domain.Phase, checkpoint *domain.Checkpoint,
	sleep func(time.Duration) error,
) (*domain.UnspentOutput, error) {
	payment, err := o.detector.poll(ctx, checkpoint.Watermark)
	if err != nil {
		o.metrics.pollFailed(ctx, phase)
		return nil, sleep(o.cfg.CycleBackoff)
	}
	if payment == nil {
		return nil, sleep(o.cfg.IdleBackoff)
	}

	checkpoint.Watermark = checkpoint.Watermark.Advance(payment.OutputIndex)
	if err := o.saveCheckpoint(ctx, checkpoint); err != nil {
		return nil, err
	}
	o.metrics.paymentDetected(ctx, phase)
	o.publish(ctx, domain.PaymentDetected{Phase: phase, Output: *payment})

	log.WithFields(log.Fields{
		"phase":     phase,
		"tx_hash":   payment.TxHash,
		"tx_index":  payment.OutputIndex,
		"watermark": checkpoint.Watermark.LastSeenOutputIndex,
	}).Info("qualifying payment detected")
	return payment, nil
}

func (o *orchestrator) resolvePayer(ctx context.Context, txHash string) (string, error) {
	payer, err := o.resolver.ResolvePayer(ctx, txHash)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return "", err
		}
		return "", errors.PAYER_UNRESOLVED.Wrap(err).
			WithMetadata(errors.PayerMetadata{Txid: txHash})
	}
	return payer, nil
}

// fail records a terminal failure of the attempt. Attempts are never retried
// automatically: they are kept in the store for manual recovery.
func (o *orchestrator) fail(ctx context.Context, attempt *domain.Attempt, err error) {
	attempt.Fail(err)
	o.updateAttempt(ctx, attempt)
	o.counters.failed.Add(1)
	o.metrics.attemptFinished(ctx, *attempt)
	o.publish(ctx, domain.AttemptFailedEvent{
		AttemptID: attempt.ID,
		Kind:      attempt.Kind,
		TokenID:   attempt.TokenID,
		Source:    attempt.Source,
		Stage:     attempt.Stage,
		Reason:    attempt.Reason,
	})

	entry := log.WithError(err)
	if typed, ok := errors.As(err); ok {
		entry = typed.Log().WithError(err)
	}
	entry.WithFields(log.Fields{
		"kind":     attempt.Kind,
		"token_id": attempt.TokenID,
		"tx_hash":  attempt.Source.TxHash,
		"tx_index": attempt.Source.OutputIndex,
		"stage":    attempt.Stage,
	}).Error("attempt failed, left for manual recovery")
}
