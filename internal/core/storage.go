package core

import (
	"fmt"
	"os"

	"linkcore/internal/infra/persistence/memory"
	"linkcore/internal/infra/persistence/postgres"
	"linkcore/internal/infra/persistence/sqlite"
	"linkcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	LINKCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LINKCORE_SQLITE_PATH: path to sqlite file (default ./linkcore.db)
//	LINKCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(hooks *domain.Hooks) (PersistentStore, error) {
	driver := os.Getenv("LINKCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(hooks), nil
	case StorageSQLite:
		path := os.Getenv("LINKCORE_SQLITE_PATH")
		return sqlite.NewStore(path, hooks)
	case StoragePostgres:
		dsn := os.Getenv("LINKCORE_POSTGRES_DSN")
		ps, err := postgres.NewStore(dsn, hooks)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
