package db_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/internal/infrastructure/db"
)

const (
	txida = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	txidb = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	txidc = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

func TestService(t *testing.T) {
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_badger_stores_on_disk",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{t.TempDir(), nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: db.ServiceConfig{
				DataStoreType:   "sqlite",
				DataStoreConfig: []interface{}{t.TempDir()},
			},
		},
	}
	// Postgres is only exercised when a server is available.
	if dsn := os.Getenv("MINTD_TEST_PG_DSN"); dsn != "" {
		tests = append(tests, struct {
			name   string
			config db.ServiceConfig
		}{
			name: "repo_manager_with_postgres_stores",
			config: db.ServiceConfig{
				DataStoreType:   "postgres",
				DataStoreConfig: []interface{}{dsn, true},
			},
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			require.NotNil(t, svc)

			testCheckpointRepository(t, svc)
			testAttemptRepository(t, svc)

			svc.Close()
		})
	}

	t.Run("invalid", func(t *testing.T) {
		fixtures := []db.ServiceConfig{
			{DataStoreType: "leveldb"},
			{DataStoreType: "badger", DataStoreConfig: []interface{}{""}},
			{DataStoreType: "badger", DataStoreConfig: []interface{}{1, nil}},
			{DataStoreType: "sqlite"},
			{DataStoreType: "sqlite", DataStoreConfig: []interface{}{1}},
			{DataStoreType: "postgres", DataStoreConfig: []interface{}{"dsn"}},
			{DataStoreType: "postgres", DataStoreConfig: []interface{}{1, false}},
		}
		for _, f := range fixtures {
			_, err := db.NewService(f)
			require.Error(t, err, f)
		}
	})
}

func TestSqliteStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	config := db.ServiceConfig{DataStoreType: "sqlite", DataStoreConfig: []interface{}{dir}}
	ctx := context.Background()

	svc, err := db.NewService(config)
	require.NoError(t, err)

	checkpoint := domain.NewCheckpoint(1)
	checkpoint.NextTokenID = 3
	checkpoint.Watermark = checkpoint.Watermark.Advance(4)
	require.NoError(t, svc.Checkpoints().Upsert(ctx, *checkpoint))
	svc.Close()

	svc, err = db.NewService(config)
	require.NoError(t, err)
	defer svc.Close()

	got, err := svc.Checkpoints().Get(ctx)
	require.NoError(t, err)
	require.Equal(t, checkpoint, got)
}

func testCheckpointRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_checkpoint_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Checkpoints()

		checkpoint, err := repo.Get(ctx)
		require.NoError(t, err)
		require.Nil(t, checkpoint)

		checkpoint = domain.NewCheckpoint(1)
		require.NoError(t, repo.Upsert(ctx, *checkpoint))

		got, err := repo.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, checkpoint, got)
		require.Equal(t, -1, got.Watermark.LastSeenOutputIndex)

		checkpoint.NextTokenID = 4
		checkpoint.Watermark = checkpoint.Watermark.Advance(7)
		checkpoint.StartRefund(time.Unix(1767240000, 0))
		require.NoError(t, repo.Upsert(ctx, *checkpoint))

		got, err = repo.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, domain.PhaseRefund, got.Phase)
		require.Equal(t, 4, got.NextTokenID)
		require.Equal(t, 7, got.Watermark.LastSeenOutputIndex)
		require.Equal(t, int64(1767240000), got.Deadline().Unix())

		checkpoint.Finish()
		require.NoError(t, repo.Upsert(ctx, *checkpoint))

		got, err = repo.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, domain.PhaseDone, got.Phase)
	})
}

func testAttemptRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_attempt_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Attempts()

		attempts, err := repo.List(ctx, "")
		require.NoError(t, err)
		require.Empty(t, attempts)

		_, err = repo.Get(ctx, "missing")
		require.True(t, errors.Is(err, domain.ErrNotFound))

		mint1 := domain.NewMintAttempt(1, utxo(txida, 0))
		refund := domain.NewRefundAttempt(utxo(txidb, 3))
		mint2 := domain.NewMintAttempt(2, utxo(txidc, 5))
		for _, a := range []*domain.Attempt{mint1, refund, mint2} {
			require.NoError(t, repo.Add(ctx, *a))
		}
		require.Error(t, repo.Add(ctx, *mint1))

		got, err := repo.Get(ctx, mint1.ID)
		require.NoError(t, err)
		require.Equal(t, mint1, got)

		mint1.Destination = "addr_test1payer"
		mint1.Fee = 187321
		mint1.Lovelace = 1400000
		mint1.MoveTo(domain.StageSubmitting)
		mint1.RawFile = "matx/matx1.raw"
		mint1.SignedFile = "matx/matx1.signed"
		mint1.Succeed()
		require.NoError(t, repo.Update(ctx, *mint1))

		refund.MoveTo(domain.StageQuoting)
		refund.Fail(fmt.Errorf("fee exceeds payment"))
		require.NoError(t, repo.Update(ctx, *refund))

		got, err = repo.Get(ctx, mint1.ID)
		require.NoError(t, err)
		require.Equal(t, mint1, got)

		unknown := domain.NewMintAttempt(9, utxo(txida, 9))
		err = repo.Update(ctx, *unknown)
		require.True(t, errors.Is(err, domain.ErrNotFound))

		attempts, err = repo.List(ctx, "")
		require.NoError(t, err)
		require.Equal(t, []string{mint1.ID, refund.ID, mint2.ID}, ids(attempts))

		attempts, err = repo.List(ctx, domain.AttemptMint)
		require.NoError(t, err)
		require.Equal(t, []string{mint1.ID, mint2.ID}, ids(attempts))

		attempts, err = repo.List(ctx, domain.AttemptRefund)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		require.Equal(t, *refund, attempts[0])

		failed, err := repo.ListFailed(ctx)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		require.Equal(t, refund.ID, failed[0].ID)
		require.Equal(t, domain.StageQuoting, failed[0].Stage)
		require.Equal(t, "fee exceeds payment", failed[0].Reason)
	})
}

func utxo(txid string, index int) domain.UnspentOutput {
	return domain.UnspentOutput{
		Outpoint: domain.Outpoint{TxHash: txid, OutputIndex: index},
		Address:  "addr_test1treasury",
		Lovelace: 100000000,
	}
}

func ids(attempts []domain.Attempt) []string {
	list := make([]string, 0, len(attempts))
	for _, a := range attempts {
		list = append(list, a.ID)
	}
	return list
}
