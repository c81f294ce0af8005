package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"linkcore/internal/blobcore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := `{"items":[{"id":"rope"}]}`
	info, err := s.Put(ctx, "compendium/world.gear/20260301T120000Z.json", strings.NewReader(payload), blobcore.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"pack": "world.gear"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) || info.ETag == "" {
		t.Fatalf("info = %+v", info)
	}

	got, rc, err := s.Get(ctx, "compendium/world.gear/20260301T120000Z.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != payload {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/json" || got.Metadata["pack"] != "world.gear" {
		t.Fatalf("got = %+v", got)
	}
}

func TestSidecarMetaWritten(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := s.Put(context.Background(), "a/b.json", strings.NewReader("x"), blobcore.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b.json.meta")); err != nil {
		t.Fatalf("meta sidecar missing: %v", err)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("a"), blobcore.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("b"), blobcore.PutOptions{}); err == nil {
		t.Fatal("overwrite accepted")
	}
}

func TestKeySanitization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "/absolute", "a/../../b"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), blobcore.PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestHeadDeleteList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"compendium/a/1.json", "compendium/b/2.json", "unrelated.json"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), blobcore.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	if _, err := s.Head(ctx, "compendium/a/1.json"); err != nil {
		t.Fatalf("head: %v", err)
	}

	infos, err := s.List(ctx, "compendium/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "compendium/a/1.json" || infos[1].Key != "compendium/b/2.json" {
		t.Fatalf("infos = %+v", infos)
	}

	existed, err := s.Delete(ctx, "compendium/a/1.json")
	if err != nil || !existed {
		t.Fatalf("delete = %v, %v", existed, err)
	}
	if existed, _ := s.Delete(ctx, "compendium/a/1.json"); existed {
		t.Fatal("second delete reported existence")
	}
	if _, err := s.Head(ctx, "compendium/a/1.json"); err == nil {
		t.Fatal("head of deleted key succeeded")
	}
}

func TestDriver(t *testing.T) {
	if newTestStore(t).Driver() != blobcore.DriverFilesystem {
		t.Fatal("wrong driver id")
	}
}
