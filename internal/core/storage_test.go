package core

import (
	"context"
	"path/filepath"
	"testing"

	"linkcore/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("LINKCORE_STORAGE_DRIVER", string(StorageMemory))
	store, err := OpenPersistentStore(domain.NewHooks())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, _, err := store.CreateItem(context.Background(), domain.WorldContainer(),
		domain.Item{Name: "Rope"}, domain.MutationOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestOpenPersistentStoreSQLiteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkcore.db")
	t.Setenv("LINKCORE_STORAGE_DRIVER", "")
	t.Setenv("LINKCORE_SQLITE_PATH", path)

	store, err := OpenPersistentStore(domain.NewHooks())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("LINKCORE_STORAGE_DRIVER", "papyrus")
	if _, err := OpenPersistentStore(domain.NewHooks()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
