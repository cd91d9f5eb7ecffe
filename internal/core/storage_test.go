package core

import (
	"context"
	"path/filepath"
	"testing"

	"navisol/internal/infra/persistence/memory"
	"navisol/internal/infra/persistence/sqlite"
	"navisol/pkg/domain"
)

func TestStorageConfigFromEnv(t *testing.T) {
	t.Setenv("NAVISOL_STORAGE_DRIVER", "postgres")
	t.Setenv("NAVISOL_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("NAVISOL_POSTGRES_DSN", "postgres://navisol@db/navisol")
	cfg := StorageConfigFromEnv()
	if cfg.Driver != StoragePostgres || cfg.SQLitePath != "/tmp/x.db" || cfg.PostgresDSN != "postgres://navisol@db/navisol" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navisol.db")
	t.Setenv("NAVISOL_STORAGE_DRIVER", "")
	t.Setenv("NAVISOL_SQLITE_PATH", path)
	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store, got %T", store)
	}
	defer s.Close()
	if s.Path() != path {
		t.Fatalf("expected path %s, got %s", path, s.Path())
	}
}

func TestOpenStorageMemoryUsesEngine(t *testing.T) {
	engine := NewDefaultRulesEngine()
	store, err := OpenStorage(StorageConfig{Driver: StorageMemory}, engine)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mem, ok := store.(*memory.Store)
	if !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
	if mem.RulesEngine() != engine {
		t.Fatalf("expected supplied rules engine")
	}
}

func TestOpenStoragePostgresBadDSN(t *testing.T) {
	if _, err := OpenStorage(StorageConfig{Driver: StoragePostgres, PostgresDSN: "host=localhost port=notaport"}, nil); err == nil {
		t.Fatalf("expected postgres dsn error")
	}
}

func TestOpenStorageUnknownDriver(t *testing.T) {
	store, err := OpenStorage(StorageConfig{Driver: "gibberish"}, nil)
	if err == nil || store != nil {
		t.Fatalf("expected error for unknown driver, got store=%v err=%v", store, err)
	}
}

func TestServiceStateSurvivesSQLiteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navisol.db")
	store, err := OpenStorage(StorageConfig{Driver: StorageSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	svc := NewService(store, WithIDGenerator(sequentialIDs("db")))
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)
	p = advanceTo(t, svc, p.ID, domain.StatusOrderConfirmed)
	if err := store.(*sqlite.Store).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenStorage(StorageConfig{Driver: StorageSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.(*sqlite.Store).Close()
	got, err := NewService(reopened).GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Status != domain.StatusOrderConfirmed || len(got.ConfigurationSnapshots) != 1 || got.LibraryPins == nil {
		t.Fatalf("unexpected reloaded project %+v", got)
	}
}
