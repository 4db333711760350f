package inmemorylock

import (
	"context"
	"fmt"
	"sync"

	"github.com/tokenfund/mintd/internal/core/ports"
)

var (
	registryLock sync.Mutex
	registry     = make(map[string]struct{})
)

type lock struct {
	mu  sync.Mutex
	key string
}

// NewLock returns a lock shared by every instance living in this process.
func NewLock() ports.InstanceLock {
	return &lock{}
}

func (l *lock) Acquire(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key != "" {
		return fmt.Errorf("lock already acquired for %s", l.key)
	}

	registryLock.Lock()
	defer registryLock.Unlock()

	if _, ok := registry[key]; ok {
		return ports.ErrLockHeld
	}
	registry[key] = struct{}{}
	l.key = key
	return nil
}

func (l *lock) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == "" {
		return nil
	}

	registryLock.Lock()
	delete(registry, l.key)
	registryLock.Unlock()

	l.key = ""
	return nil
}

// Lost never fires, the registry entry lives as long as the process.
func (l *lock) Lost() <-chan struct{} {
	return nil
}
