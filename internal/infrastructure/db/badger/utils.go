package badgerdb

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const maxRetries = 5

var (
	errInvalidConfig  = errors.New("invalid config")
	errInvalidBaseDir = errors.New("invalid base directory")
	errInvalidLogger  = errors.New("invalid logger")
)

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// parseConfig expects the base directory, empty for an in-memory store,
// and an optional badger logger.
func parseConfig(config ...interface{}) (string, badger.Logger, error) {
	if len(config) != 2 {
		return "", nil, errInvalidConfig
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return "", nil, errInvalidBaseDir
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return "", nil, errInvalidLogger
		}
	}
	return baseDir, logger, nil
}
