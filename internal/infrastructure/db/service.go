package db

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lotterylab/lotteryd/internal/core/domain"
	"github.com/lotterylab/lotteryd/internal/core/ports"
	badgerdb "github.com/lotterylab/lotteryd/internal/infrastructure/db/badger"
	sqlitedb "github.com/lotterylab/lotteryd/internal/infrastructure/db/sqlite"
)

var (
	roundStoreTypes = map[string]func(...interface{}) (domain.RoundRepository, error){
		"badger": badgerdb.NewRoundRepository,
		"sqlite": sqlitedb.NewRoundRepository,
	}
	winnerStoreTypes = map[string]func(...interface{}) (domain.WinnerRepository, error){
		"badger": badgerdb.NewWinnerRepository,
		"sqlite": sqlitedb.NewWinnerRepository,
	}
)

const (
	sqliteDbFile  = "sqlite.db"
	migrationPath = "file://internal/infrastructure/db/sqlite/migration"
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
	// MigrationPath overrides the default CWD-relative migration source
	// for the sqlite store.
	MigrationPath string
}

type service struct {
	roundStore  domain.RoundRepository
	winnerStore domain.WinnerRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	roundStoreFactory, ok := roundStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	winnerStoreFactory, ok := winnerStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	storeConfig := config.DataStoreConfig
	if config.DataStoreType == "sqlite" {
		migration := config.MigrationPath
		if len(migration) <= 0 {
			migration = migrationPath
		}
		db, err := openAndMigrateSqlite(config.DataStoreConfig, migration)
		if err != nil {
			return nil, err
		}
		storeConfig = []interface{}{db}
	}

	roundStore, err := roundStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create round store: %w", err)
	}

	winnerStore, err := winnerStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create winner store: %w", err)
	}

	return &service{
		roundStore:  roundStore,
		winnerStore: winnerStore,
	}, nil
}

func (s *service) Rounds() domain.RoundRepository {
	return s.roundStore
}

func (s *service) Winners() domain.WinnerRepository {
	return s.winnerStore
}

func (s *service) Close() {
	s.roundStore.Close()
	s.winnerStore.Close()
}

func openAndMigrateSqlite(config []interface{}, migrationPath string) (interface{}, error) {
	if len(config) != 1 {
		return nil, errors.New("invalid config")
	}

	dbDir, ok := config[0].(string)
	if !ok {
		return nil, errors.New("invalid config")
	}

	db, err := sqlitedb.OpenDb(filepath.Join(dbDir, sqliteDbFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationPath, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to migrate up: %w", err)
	}

	return db, nil
}
