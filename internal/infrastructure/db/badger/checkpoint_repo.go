package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
	"github.com/tokenfund/mintd/internal/core/domain"
)

const (
	checkpointStoreDir = "checkpoint"
	checkpointKey      = "checkpoint"
)

type checkpointRepository struct {
	store *badgerhold.Store
}

func NewCheckpointRepository(config ...interface{}) (domain.CheckpointRepository, error) {
	baseDir, logger, err := parseConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, checkpointStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %s", err)
	}

	return &checkpointRepository{store}, nil
}

func (r *checkpointRepository) Get(ctx context.Context) (*domain.Checkpoint, error) {
	var checkpoint domain.Checkpoint
	err := r.store.Get(checkpointKey, &checkpoint)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (r *checkpointRepository) Upsert(ctx context.Context, checkpoint domain.Checkpoint) error {
	if err := r.store.Upsert(checkpointKey, &checkpoint); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			attempts := 1
			for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
				time.Sleep(100 * time.Millisecond)
				err = r.store.Upsert(checkpointKey, &checkpoint)
				attempts++
			}
		}
		return err
	}
	return nil
}

func (r *checkpointRepository) Close() {
	// nolint:all
	r.store.Close()
}
