package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tokenfund/mintd/internal/core/domain"
)

const (
	selectCheckpoint = `
SELECT phase, next_token_id, watermark, refund_deadline, updated_at
FROM checkpoint WHERE id = 1`

	upsertCheckpoint = `
INSERT INTO checkpoint (id, phase, next_token_id, watermark, refund_deadline, updated_at)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    phase = excluded.phase,
    next_token_id = excluded.next_token_id,
    watermark = excluded.watermark,
    refund_deadline = excluded.refund_deadline,
    updated_at = excluded.updated_at`
)

type checkpointRepository struct {
	db *sql.DB
}

func NewCheckpointRepository(config ...interface{}) (domain.CheckpointRepository, error) {
	db, err := parseConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("cannot open checkpoint repository: %w", err)
	}
	return &checkpointRepository{db}, nil
}

func (r *checkpointRepository) Get(ctx context.Context) (*domain.Checkpoint, error) {
	var (
		checkpoint domain.Checkpoint
		phase      string
	)
	err := r.db.QueryRowContext(ctx, selectCheckpoint).Scan(
		&phase,
		&checkpoint.NextTokenID,
		&checkpoint.Watermark.LastSeenOutputIndex,
		&checkpoint.RefundDeadline,
		&checkpoint.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	checkpoint.Phase = domain.Phase(phase)
	return &checkpoint, nil
}

func (r *checkpointRepository) Upsert(ctx context.Context, checkpoint domain.Checkpoint) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx, upsertCheckpoint,
			string(checkpoint.Phase),
			checkpoint.NextTokenID,
			checkpoint.Watermark.LastSeenOutputIndex,
			checkpoint.RefundDeadline,
			checkpoint.UpdatedAt,
		)
		return err
	})
}

func (r *checkpointRepository) Close() {
	_ = r.db.Close()
}
