package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
	"github.com/tokenfund/mintd/internal/core/domain"
)

const attemptStoreDir = "attempts"

// attemptDTO carries the insertion sequence used to list attempts in order.
type attemptDTO struct {
	domain.Attempt
	Seq uint64
}

type attemptRepository struct {
	store *badgerhold.Store
	lock  sync.Mutex
}

func NewAttemptRepository(config ...interface{}) (domain.AttemptRepository, error) {
	baseDir, logger, err := parseConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, attemptStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open attempt store: %s", err)
	}

	return &attemptRepository{store: store}, nil
}

func (r *attemptRepository) Add(ctx context.Context, attempt domain.Attempt) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	count, err := r.store.Count(&attemptDTO{}, nil)
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}
	dto := attemptDTO{Attempt: attempt, Seq: count + 1}

	if err := r.store.Insert(attempt.ID, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("attempt %s already exists", attempt.ID)
		}
		return fmt.Errorf("failed to add attempt: %w", err)
	}
	return nil
}

func (r *attemptRepository) Update(ctx context.Context, attempt domain.Attempt) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	var dto attemptDTO
	if err := r.store.Get(attempt.ID, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("attempt %s: %w", attempt.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}
	dto.Attempt = attempt

	err := r.store.Update(attempt.ID, &dto)
	attempts := 1
	for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
		time.Sleep(100 * time.Millisecond)
		err = r.store.Update(attempt.ID, &dto)
		attempts++
	}
	return err
}

func (r *attemptRepository) Get(ctx context.Context, id string) (*domain.Attempt, error) {
	var dto attemptDTO
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("attempt %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &dto.Attempt, nil
}

func (r *attemptRepository) List(
	ctx context.Context, kind domain.AttemptKind,
) ([]domain.Attempt, error) {
	var query *badgerhold.Query
	if kind != "" {
		query = badgerhold.Where("Kind").Eq(kind)
	}
	return r.find(query)
}

func (r *attemptRepository) ListFailed(ctx context.Context) ([]domain.Attempt, error) {
	return r.find(badgerhold.Where("Status").Eq(domain.AttemptFailed))
}

func (r *attemptRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *attemptRepository) find(query *badgerhold.Query) ([]domain.Attempt, error) {
	var dtos []attemptDTO
	if err := r.store.Find(&dtos, query); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	sort.SliceStable(dtos, func(i, j int) bool {
		return dtos[i].Seq < dtos[j].Seq
	})
	attempts := make([]domain.Attempt, 0, len(dtos))
	for _, dto := range dtos {
		attempts = append(attempts, dto.Attempt)
	}
	return attempts, nil
}
