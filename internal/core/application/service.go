package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const lockKeyPrefix = "mintd:treasury:"

type Option func(*service)

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(s *service) {
		s.meterProvider = provider
	}
}

func withSleep(fn sleepFunc) Option {
	return func(s *service) {
		s.sleep = fn
	}
}

func withClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	cfg           Config
	repoManager   ports.RepoManager
	bus           ports.EventBus
	alerts        ports.Alerts
	lock          ports.InstanceLock
	scheduler     ports.SchedulerService
	meterProvider metric.MeterProvider
	sleep         sleepFunc
	now           func() time.Time

	orchestrator *orchestrator
	minter       *minter
	refunder     *refunder

	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
	done   chan struct{}

	haltOnce sync.Once
	haltMu   sync.Mutex
	haltErr  error
	halted   chan struct{}
}

func NewService(
	cfg Config,
	ledger ports.LedgerClient,
	metadata ports.MetadataProvider,
	resolver ports.PayerResolver,
	repoManager ports.RepoManager,
	bus ports.EventBus,
	alerts ports.Alerts,
	lock ports.InstanceLock,
	scheduler ports.SchedulerService,
	opts ...Option,
) (Service, error) {
	if ledger == nil || metadata == nil || resolver == nil || repoManager == nil {
		return nil, fmt.Errorf("missing ledger, metadata, payer resolver or repo manager")
	}
	if cfg.TreasuryAddress == "" {
		return nil, fmt.Errorf("missing treasury address")
	}
	if cfg.Fee == 0 {
		return nil, fmt.Errorf("fee must be greater than zero")
	}
	if cfg.TotalMint < cfg.StartingID {
		return nil, fmt.Errorf(
			"total mint %d must not be lower than starting id %d", cfg.TotalMint, cfg.StartingID,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &service{
		cfg:           cfg,
		repoManager:   repoManager,
		bus:           bus,
		alerts:        alerts,
		lock:          lock,
		scheduler:     scheduler,
		meterProvider: otel.GetMeterProvider(),
		sleep:         sleepContext,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		wg:            &sync.WaitGroup{},
		done:          make(chan struct{}),
		halted:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(svc)
	}

	m, err := newMetrics(svc.meterProvider)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	svc.orchestrator = &orchestrator{
		cfg:         cfg,
		detector:    newEventDetector(ledger, cfg.TreasuryAddress, cfg.Fee),
		builder:     newTxBuilder(ledger, metadata, cfg, m),
		resolver:    resolver,
		repoManager: repoManager,
		bus:         bus,
		metrics:     m,
		counters:    &counters{},
		sleep:       svc.sleep,
		now:         svc.now,
	}
	svc.minter = newMinter(svc.orchestrator)
	svc.refunder = newRefunder(svc.orchestrator)

	return svc, nil
}

func (s *service) Start() (err error) {
	var lockAcquired, schedulerStarted bool
	defer func() {
		if err == nil {
			return
		}
		s.cancel()
		s.wg.Wait()
		if schedulerStarted {
			s.scheduler.Stop()
		}
		if lockAcquired {
			s.releaseLock()
		}
	}()

	if s.lock != nil {
		if err := s.lock.Acquire(s.ctx, lockKeyPrefix+s.cfg.TreasuryAddress); err != nil {
			return fmt.Errorf("failed to acquire instance lock: %w", err)
		}
		lockAcquired = true

		if lost := s.lock.Lost(); lost != nil {
			s.wg.Add(1)
			go s.watchLock(lost)
		}
	}

	checkpoint, err := s.loadCheckpoint(s.ctx)
	if err != nil {
		return err
	}

	if s.bus != nil && s.alerts != nil {
		events, err := s.bus.Subscribe(s.ctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe to events: %w", err)
		}
		s.wg.Add(1)
		go s.listenToEvents(events)
	}

	if s.scheduler != nil && s.cfg.HeartbeatInterval > 0 {
		s.scheduler.Start()
		schedulerStarted = true
		if err := s.scheduler.ScheduleEvery(s.cfg.HeartbeatInterval, s.heartbeat); err != nil {
			return fmt.Errorf("failed to schedule heartbeat: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"treasury":      s.cfg.TreasuryAddress,
		"phase":         checkpoint.Phase,
		"next_token_id": checkpoint.NextTokenID,
		"total_mint":    s.cfg.TotalMint,
		"watermark":     checkpoint.Watermark.LastSeenOutputIndex,
	}).Info("starting sales service")

	s.wg.Add(1)
	go s.run(checkpoint)
	return nil
}

func (s *service) Stop() {
	s.cancel()
	s.wg.Wait()

	if s.scheduler != nil && s.cfg.HeartbeatInterval > 0 {
		s.scheduler.Stop()
		log.Debug("stopped scheduler")
	}
	if s.lock != nil {
		s.releaseLock()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			log.WithError(err).Warn("failed to close event bus")
		}
	}
	s.repoManager.Close()
	log.Debug("closed connection to db")
}

func (s *service) Done() <-chan struct{} {
	return s.done
}

func (s *service) Halted() <-chan struct{} {
	return s.halted
}

func (s *service) Err() error {
	s.haltMu.Lock()
	defer s.haltMu.Unlock()
	return s.haltErr
}

func (s *service) GetStatus(ctx context.Context) (*Status, error) {
	checkpoint, err := s.repoManager.Checkpoints().Get(ctx)
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		checkpoint = domain.NewCheckpoint(s.cfg.StartingID)
	}

	status := &Status{
		Phase:       checkpoint.Phase,
		State:       s.orchestrator.currentState().String(),
		NextTokenID: checkpoint.NextTokenID,
		TotalMint:   s.cfg.TotalMint,
		Watermark:   checkpoint.Watermark.LastSeenOutputIndex,
		Minted:      s.orchestrator.counters.minted.Load(),
		Refunded:    s.orchestrator.counters.refunded.Load(),
		Failed:      s.orchestrator.counters.failed.Load(),
	}
	if checkpoint.RefundDeadline > 0 {
		status.RefundDeadline = checkpoint.Deadline()
	}
	return status, nil
}

func (s *service) ListAttempts(ctx context.Context, failedOnly bool) ([]domain.Attempt, error) {
	if failedOnly {
		return s.repoManager.Attempts().ListFailed(ctx)
	}
	return s.repoManager.Attempts().List(ctx, "")
}

func (s *service) loadCheckpoint(ctx context.Context) (*domain.Checkpoint, error) {
	checkpoint, err := s.repoManager.Checkpoints().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint from db: %w", err)
	}
	if checkpoint != nil {
		if checkpoint.NextTokenID != s.cfg.StartingID {
			log.Infof(
				"resuming from persisted token id %d, ignoring starting id %d",
				checkpoint.NextTokenID, s.cfg.StartingID,
			)
		}
		return checkpoint, nil
	}

	checkpoint = domain.NewCheckpoint(s.cfg.StartingID)
	if err := s.repoManager.Checkpoints().Upsert(ctx, *checkpoint); err != nil {
		return nil, fmt.Errorf("failed to upsert initial checkpoint to db: %w", err)
	}
	return checkpoint, nil
}

func (s *service) run(checkpoint *domain.Checkpoint) {
	defer s.wg.Done()
	ctx := s.ctx

	if checkpoint.Phase == domain.PhaseMint {
		watermark, err := s.minter.run(ctx, checkpoint)
		if err != nil {
			s.stopRun(domain.PhaseMint, err)
			return
		}
		checkpoint.Watermark = watermark
		checkpoint.StartRefund(s.now().Add(s.cfg.RefundTime))
		if err := s.orchestrator.saveCheckpoint(ctx, checkpoint); err != nil {
			s.halt(err)
			return
		}
	}

	if checkpoint.Phase == domain.PhaseRefund {
		watermark, err := s.refunder.run(ctx, checkpoint)
		if err != nil {
			s.stopRun(domain.PhaseRefund, err)
			return
		}
		checkpoint.Watermark = watermark
		checkpoint.Finish()
		if err := s.orchestrator.saveCheckpoint(ctx, checkpoint); err != nil {
			s.halt(err)
			return
		}
		s.sendCompletedAlert(checkpoint)
	}

	log.WithField("watermark", checkpoint.Watermark.LastSeenOutputIndex).
		Info("sales run completed")
	close(s.done)
}

// stopRun tells a shutdown apart from a loop that gave up.
func (s *service) stopRun(phase domain.Phase, err error) {
	if s.ctx.Err() != nil {
		log.WithError(err).Infof("%s phase interrupted", phase)
		return
	}
	s.halt(err)
}

// halt stops the run for good and raises an alert. Only the first reason is
// kept.
func (s *service) halt(err error) {
	s.haltOnce.Do(func() {
		s.haltMu.Lock()
		s.haltErr = err
		s.haltMu.Unlock()

		entry := log.WithError(err)
		if typed, ok := errors.As(err); ok {
			entry = typed.Log().WithError(err)
		}
		entry.Error("sales run halted")

		var nextTokenID int
		if md, ok := errors.CHECKPOINT_NOT_PERSISTED.Match(err); ok {
			nextTokenID = md.NextTokenID
		}
		s.publishAlert(ports.SalesHalted, ports.SalesHaltedAlert{
			Reason:      err.Error(),
			NextTokenID: nextTokenID,
		})

		s.cancel()
		close(s.halted)
	})
}

func (s *service) watchLock(lost <-chan struct{}) {
	defer s.wg.Done()

	select {
	case <-s.ctx.Done():
	case <-lost:
		s.halt(fmt.Errorf("instance lock lost, another instance may drive the treasury"))
	}
}

func (s *service) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.lock.Release(ctx); err != nil {
		log.WithError(err).Warn("failed to release instance lock")
	}
}

func (s *service) heartbeat() {
	status, err := s.GetStatus(s.ctx)
	if err != nil {
		log.WithError(err).Warn("failed to get status")
		return
	}

	entry := log.WithFields(log.Fields{
		"phase":         status.Phase,
		"state":         status.State,
		"next_token_id": status.NextTokenID,
		"total_mint":    status.TotalMint,
		"watermark":     status.Watermark,
		"minted":        status.Minted,
		"refunded":      status.Refunded,
		"failed":        status.Failed,
	})
	if !status.RefundDeadline.IsZero() {
		entry = entry.WithField("refund_deadline", status.RefundDeadline.Format(time.RFC3339))
	}
	entry.Info("heartbeat")
}
