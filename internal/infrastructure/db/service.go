package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	badgerdb "github.com/tokenfund/mintd/internal/infrastructure/db/badger"
	pgdb "github.com/tokenfund/mintd/internal/infrastructure/db/postgres"
	sqlitedb "github.com/tokenfund/mintd/internal/infrastructure/db/sqlite"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

var (
	checkpointStoreTypes = map[string]func(...interface{}) (domain.CheckpointRepository, error){
		"badger":   badgerdb.NewCheckpointRepository,
		"sqlite":   sqlitedb.NewCheckpointRepository,
		"postgres": pgdb.NewCheckpointRepository,
	}
	attemptStoreTypes = map[string]func(...interface{}) (domain.AttemptRepository, error){
		"badger":   badgerdb.NewAttemptRepository,
		"sqlite":   sqlitedb.NewAttemptRepository,
		"postgres": pgdb.NewAttemptRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	checkpointStore domain.CheckpointRepository
	attemptStore    domain.AttemptRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	checkpointStoreFactory, ok := checkpointStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	attemptStoreFactory, ok := attemptStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	var checkpointStore domain.CheckpointRepository
	var attemptStore domain.AttemptRepository
	var err error

	switch config.DataStoreType {
	case "badger":
		checkpointStore, err = checkpointStoreFactory(config.DataStoreConfig...)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint store: %s", err)
		}
		attemptStore, err = attemptStoreFactory(config.DataStoreConfig...)
		if err != nil {
			checkpointStore.Close()
			return nil, fmt.Errorf("failed to open attempt store: %s", err)
		}

	case "postgres":
		if len(config.DataStoreConfig) != 2 {
			return nil, fmt.Errorf("invalid data store config for postgres")
		}

		dsn, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid DSN for postgres")
		}

		autoCreate, ok := config.DataStoreConfig[1].(bool)
		if !ok {
			return nil, fmt.Errorf("invalid autocreate flag for postgres")
		}

		db, err := pgdb.OpenDb(dsn, autoCreate)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres db: %s", err)
		}

		pgDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres migration driver: %s", err)
		}

		source, err := iofs.New(pgMigration, "postgres/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed postgres migrations: %s", err)
		}

		m, err := migrate.NewWithInstance("iofs", source, "postgres", pgDriver)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres migration instance: %s", err)
		}

		if err := runMigrations(m); err != nil {
			return nil, fmt.Errorf("failed to run postgres migrations: %s", err)
		}

		if checkpointStore, attemptStore, err = openSQLStores(
			db, checkpointStoreFactory, attemptStoreFactory,
		); err != nil {
			return nil, err
		}

	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}

		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		dbFile := filepath.Join(baseDir, sqliteDbFile)
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %s", err)
		}

		driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init driver: %s", err)
		}

		source, err := iofs.New(migrations, "sqlite/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed migrations: %s", err)
		}

		m, err := migrate.NewWithInstance("iofs", source, "mintdb", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %s", err)
		}

		if err := runMigrations(m); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %s", err)
		}

		if checkpointStore, attemptStore, err = openSQLStores(
			db, checkpointStoreFactory, attemptStoreFactory,
		); err != nil {
			return nil, err
		}
	}

	return &service{
		checkpointStore: checkpointStore,
		attemptStore:    attemptStore,
	}, nil
}

func (s *service) Checkpoints() domain.CheckpointRepository {
	return s.checkpointStore
}

func (s *service) Attempts() domain.AttemptRepository {
	return s.attemptStore
}

func (s *service) Close() {
	s.checkpointStore.Close()
	s.attemptStore.Close()
}

func runMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	log.Debugf("db schema at version %d (dirty: %t)", version, dirty)
	return nil
}

func openSQLStores(
	db *sql.DB,
	checkpointStoreFactory func(...interface{}) (domain.CheckpointRepository, error),
	attemptStoreFactory func(...interface{}) (domain.AttemptRepository, error),
) (domain.CheckpointRepository, domain.AttemptRepository, error) {
	checkpointStore, err := checkpointStoreFactory(db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open checkpoint store: %s", err)
	}
	attemptStore, err := attemptStoreFactory(db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open attempt store: %s", err)
	}
	return checkpointStore, attemptStore, nil
}
