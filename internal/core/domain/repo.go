package domain

import (
	"context"
	"errors"
)

type CheckpointRepository interface {
	Get(ctx context.Context) (*Checkpoint, error)
	Upsert(ctx context.Context, checkpoint Checkpoint) error
	Close()
}

type AttemptRepository interface {
	Add(ctx context.Context, attempt Attempt) error
	Update(ctx context.Context, attempt Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	// List returns the attempts of the given kind, oldest first.
	// An empty kind returns every attempt.
	List(ctx context.Context, kind AttemptKind) ([]Attempt, error)
	ListFailed(ctx context.Context) ([]Attempt, error)
	Close()
}

var ErrNotFound = errors.New("not found")
