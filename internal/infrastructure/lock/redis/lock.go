package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/ports"
)

const defaultTTL = 30 * time.Second

var errLeaseLost = errors.New("lease taken over")

type lock struct {
	rdb          *redis.Client
	ttl          time.Duration
	numOfRetries int
	retryDelay   time.Duration

	mu     sync.Mutex
	key    string
	token  string
	lost   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLock returns a lease based lock. The lease is refreshed in background
// until released, a crashed instance frees the key after ttl. The lease is
// lost once the key is taken over, or after refreshes keep failing for ttl.
func NewLock(rdb *redis.Client, ttl time.Duration, numOfRetries int) ports.InstanceLock {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if numOfRetries <= 0 {
		numOfRetries = 1
	}
	return &lock{
		rdb:          rdb,
		ttl:          ttl,
		numOfRetries: numOfRetries,
		retryDelay:   10 * time.Millisecond,
	}
}

func (l *lock) Acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key != "" {
		return fmt.Errorf("lock already acquired for %s", l.key)
	}

	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return ports.ErrLockHeld
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	lost := make(chan struct{})
	l.key, l.token, l.lost, l.cancel = key, token, lost, cancel

	l.wg.Add(1)
	go l.refresh(refreshCtx, key, token, lost)
	return nil
}

func (l *lock) Lost() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

func (l *lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == "" {
		return nil
	}
	l.cancel()
	l.wg.Wait()

	key, token := l.key, l.token
	l.key, l.token, l.cancel = "", "", nil

	var err error
	for i := 0; i < l.numOfRetries; i++ {
		if err = l.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			if current != token {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key); err == nil {
			return nil
		}
		time.Sleep(l.retryDelay)
	}
	return fmt.Errorf("failed to release lock after max number of retries: %v", err)
}

func (l *lock) refresh(ctx context.Context, key, token string, lost chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	refreshedAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
				current, err := tx.Get(ctx, key).Result()
				if err != nil {
					return err
				}
				if current != token {
					return errLeaseLost
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.PExpire(ctx, key, l.ttl)
					return nil
				})
				return err
			}, key)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				refreshedAt = time.Now()
				continue
			}

			if errors.Is(err, redis.Nil) || errors.Is(err, errLeaseLost) ||
				time.Since(refreshedAt) >= l.ttl {
				log.WithError(err).Errorf("lock %s lost", key)
				close(lost)
				return
			}
			log.WithError(err).Warnf("failed to refresh lock %s", key)
		}
	}
}
