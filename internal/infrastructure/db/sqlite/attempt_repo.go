package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tokenfund/mintd/internal/core/domain"
)

const (
	attemptColumns = `id, kind, token_id, source_txid, source_vout, destination, lovelace, fee,
    stage, status, reason, raw_file, signed_file, created_at, updated_at`

	insertAttempt = `
INSERT INTO attempt (` + attemptColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateAttempt = `
UPDATE attempt SET
    destination = ?, lovelace = ?, fee = ?, stage = ?, status = ?, reason = ?,
    raw_file = ?, signed_file = ?, updated_at = ?
WHERE id = ?`

	selectAttempt        = `SELECT ` + attemptColumns + ` FROM attempt WHERE id = ?`
	selectAttempts       = `SELECT ` + attemptColumns + ` FROM attempt ORDER BY seq`
	selectAttemptsByKind = `SELECT ` + attemptColumns + ` FROM attempt WHERE kind = ? ORDER BY seq`
	selectFailedAttempts = `SELECT ` + attemptColumns + ` FROM attempt WHERE status = ? ORDER BY seq`
)

type attemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(config ...interface{}) (domain.AttemptRepository, error) {
	db, err := parseConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("cannot open attempt repository: %w", err)
	}
	return &attemptRepository{db}, nil
}

func (r *attemptRepository) Add(ctx context.Context, attempt domain.Attempt) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx, insertAttempt,
			attempt.ID,
			string(attempt.Kind),
			attempt.TokenID,
			attempt.Source.TxHash,
			attempt.Source.OutputIndex,
			attempt.Destination,
			int64(attempt.Lovelace),
			int64(attempt.Fee),
			string(attempt.Stage),
			string(attempt.Status),
			attempt.Reason,
			attempt.RawFile,
			attempt.SignedFile,
			attempt.CreatedAt,
			attempt.UpdatedAt,
		)
		return err
	})
}

func (r *attemptRepository) Update(ctx context.Context, attempt domain.Attempt) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx, updateAttempt,
			attempt.Destination,
			int64(attempt.Lovelace),
			int64(attempt.Fee),
			string(attempt.Stage),
			string(attempt.Status),
			attempt.Reason,
			attempt.RawFile,
			attempt.SignedFile,
			attempt.UpdatedAt,
			attempt.ID,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("attempt %s: %w", attempt.ID, domain.ErrNotFound)
		}
		return nil
	})
}

func (r *attemptRepository) Get(ctx context.Context, id string) (*domain.Attempt, error) {
	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, selectAttempt, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attempt %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

func (r *attemptRepository) List(
	ctx context.Context, kind domain.AttemptKind,
) ([]domain.Attempt, error) {
	if kind == "" {
		return r.query(ctx, selectAttempts)
	}
	return r.query(ctx, selectAttemptsByKind, string(kind))
}

func (r *attemptRepository) ListFailed(ctx context.Context) ([]domain.Attempt, error) {
	return r.query(ctx, selectFailedAttempts, string(domain.AttemptFailed))
}

func (r *attemptRepository) Close() {
	_ = r.db.Close()
}

func (r *attemptRepository) query(
	ctx context.Context, query string, args ...any,
) ([]domain.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	// nolint:errcheck
	defer rows.Close()

	attempts := make([]domain.Attempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, *attempt)
	}
	return attempts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*domain.Attempt, error) {
	var (
		attempt             domain.Attempt
		kind, stage, status string
		lovelace, fee       int64
	)
	if err := row.Scan(
		&attempt.ID,
		&kind,
		&attempt.TokenID,
		&attempt.Source.TxHash,
		&attempt.Source.OutputIndex,
		&attempt.Destination,
		&lovelace,
		&fee,
		&stage,
		&status,
		&attempt.Reason,
		&attempt.RawFile,
		&attempt.SignedFile,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	attempt.Kind = domain.AttemptKind(kind)
	attempt.Stage = domain.AttemptStage(stage)
	attempt.Status = domain.AttemptStatus(status)
	attempt.Lovelace = uint64(lovelace)
	attempt.Fee = uint64(fee)
	return &attempt, nil
}
