package slotscheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/ports"
)

// slotLength is the duration of a ledger slot.
const slotLength = time.Second

type Option func(*service)

func WithTickerInterval(interval time.Duration) Option {
	return func(s *service) {
		s.tickerInterval = interval
	}
}

type task struct {
	every uint64
	run   func()
}

type service struct {
	ledger         ports.ChainQuerier
	lock           sync.Locker
	tasks          map[uint64][]task
	pending        []task
	stopCh         chan struct{}
	stopOnce       sync.Once
	tickerInterval time.Duration
}

// NewScheduler returns a scheduler driven by the ledger's slot rather than
// the local clock.
func NewScheduler(ledger ports.ChainQuerier, opts ...Option) (ports.SchedulerService, error) {
	if ledger == nil {
		return nil, fmt.Errorf("missing chain querier")
	}

	svc := &service{
		ledger:         ledger,
		lock:           &sync.Mutex{},
		tasks:          make(map[uint64][]task),
		stopCh:         make(chan struct{}),
		tickerInterval: time.Second * 10,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *service) Start() {
	go func() {
		ticker := time.NewTicker(s.tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				tasks, err := s.popTasks()
				if err != nil {
					log.WithError(err).Warn("failed to fetch due tasks")
					continue
				}

				log.Debugf("fetched %d tasks", len(tasks))
				for _, t := range tasks {
					go t.run()
				}
			}
		}
	}()
}

func (s *service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// ScheduleEvery converts interval into a number of slots. The first run
// happens once that many slots have passed since the next tick.
func (s *service) ScheduleEvery(interval time.Duration, run func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}
	every := uint64(math.Ceil(float64(interval) / float64(slotLength)))

	s.lock.Lock()
	defer s.lock.Unlock()

	s.pending = append(s.pending, task{every, run})
	return nil
}

func (s *service) popTasks() ([]task, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.tickerInterval)
	defer cancel()

	tip, err := s.ledger.CurrentSlot(ctx)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	for _, t := range s.pending {
		s.tasks[tip+t.every] = append(s.tasks[tip+t.every], t)
	}
	s.pending = nil

	due := make([]task, 0)
	for slot, tasks := range s.tasks {
		if slot > tip {
			continue
		}
		due = append(due, tasks...)
		delete(s.tasks, slot)
	}
	for _, t := range due {
		s.tasks[tip+t.every] = append(s.tasks[tip+t.every], t)
	}

	return due, nil
}
