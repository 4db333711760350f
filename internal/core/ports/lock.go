package ports

import (
	"context"
	"errors"
)

var ErrLockHeld = errors.New("lock held by another instance")

// InstanceLock guarantees a single process drives a given treasury address.
type InstanceLock interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context) error
	// Lost is closed when the lock acquired last stops being held without
	// Release being called. It is nil before the first Acquire.
	Lost() <-chan struct{}
}
