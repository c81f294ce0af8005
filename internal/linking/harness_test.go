package linking

import (
	"context"
	"log/slog"
	"testing"

	"linkcore/internal/config"
	"linkcore/internal/infra/persistence/memory"
	"linkcore/pkg/domain"
)

// newTestEngine wires a memory store and a reconciler the way the service
// does, with a quiet logger.
func newTestEngine(t *testing.T, settings *config.Settings) (*memory.Store, *Reconciler) {
	t.Helper()
	if settings == nil {
		settings = config.Default()
	}
	store := memory.NewStore(domain.NewHooks())
	rec, err := NewReconciler(store, settings, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	return store, rec
}

func mustCreatePack(t *testing.T, store *memory.Store, name string) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateCompendium(domain.Compendium{Name: name, Label: name})
		return err
	})
	if err != nil {
		t.Fatalf("create pack %s: %v", name, err)
	}
}

func mustCreateItem(t *testing.T, store *memory.Store, c domain.Container, item domain.Item) domain.Identity {
	t.Helper()
	created, _, err := store.CreateItem(context.Background(), c, item, domain.MutationOptions{KeepID: item.ID != ""})
	if err != nil {
		t.Fatalf("create item %s: %v", item.Name, err)
	}
	return c.ItemIdentity(created.ID)
}

func mustCreateActor(t *testing.T, store *memory.Store, actor domain.Actor) string {
	t.Helper()
	var created domain.Actor
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateActor(actor)
		return err
	})
	if err != nil {
		t.Fatalf("create actor %s: %v", actor.Name, err)
	}
	return created.ID
}

func mustCreateFolder(t *testing.T, store *memory.Store, folder domain.Folder) string {
	t.Helper()
	var created domain.Folder
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateFolder(folder)
		return err
	})
	if err != nil {
		t.Fatalf("create folder %s: %v", folder.Name, err)
	}
	return created.ID
}

func mustResolve(t *testing.T, store *memory.Store, id domain.Identity) domain.Item {
	t.Helper()
	item, ok := store.ResolveItem(id)
	if !ok {
		t.Fatalf("item %s not found", id)
	}
	return item
}

func mustLink(t *testing.T, rec *Reconciler, id, base domain.Identity) {
	t.Helper()
	if _, err := rec.SetLinkedItem(context.Background(), id, base); err != nil {
		t.Fatalf("link %s -> %s: %v", id, base, err)
	}
}

func systemValue(t *testing.T, item domain.Item, path string) any {
	t.Helper()
	cur := any(item.System)
	for _, part := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			t.Fatalf("path %s not resolvable on %#v", path, item.System)
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	return append(parts, path[start:])
}
