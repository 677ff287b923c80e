package storage

import (
	"fmt"

	"referrald/internal/providers"
	"referrald/internal/structures"
)

// NewParticipantStore opens the backend selected by storage.driver.
func NewParticipantStore(conf *structures.Config, logger providers.Logger) (ParticipantStore, error) {
	driver := conf.Storage.Driver
	switch driver {
	case "", "memory":
		logger.Infof(providers.TypeStorage, "Using in-memory participant store, snapshots at %s", conf.Persistence.FilePath)
		return NewMemoryStore(), nil
	case "leveldb":
		logger.Infof(providers.TypeStorage, "Opening leveldb participant store at %s", conf.Storage.DSN)
		return NewLevelStore(conf.Storage.DSN)
	case "postgres", "sqlite":
		logger.Infof(providers.TypeStorage, "Opening %s participant store", driver)
		db, err := OpenGorm(driver, conf.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", driver, err)
		}
		return NewSQLStore(db)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// NewSnapshotter returns the store itself when it keeps state in memory, nil otherwise.
func NewSnapshotter(store ParticipantStore) Snapshotter {
	if s, ok := store.(Snapshotter); ok {
		return s
	}
	return nil
}
