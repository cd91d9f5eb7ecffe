package core

import (
	"fmt"
	"os"

	"navisol/internal/infra/persistence/memory"
	"navisol/internal/infra/persistence/postgres"
	"navisol/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes a storage backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageConfigFromEnv reads the storage selection from the environment.
//
//	NAVISOL_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	NAVISOL_SQLITE_PATH: path to sqlite file (default ./navisol.db)
//	NAVISOL_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	return StorageConfig{
		Driver:      StorageDriver(os.Getenv("NAVISOL_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("NAVISOL_SQLITE_PATH"),
		PostgresDSN: os.Getenv("NAVISOL_POSTGRES_DSN"),
	}
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	return OpenStorage(StorageConfigFromEnv(), engine)
}

// OpenStorage opens the backend named by cfg.
func OpenStorage(cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
