package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"linkcore/internal/blobcore"
)

func TestMockPutGetRoundTrip(t *testing.T) {
	s := NewMockForTests()
	ctx := context.Background()

	payload := `{"items":[]}`
	info, err := s.Put(ctx, "compendium/world.gear/1.json", strings.NewReader(payload), blobcore.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Fatalf("size = %d", info.Size)
	}

	got, rc, err := s.Get(ctx, "compendium/world.gear/1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != payload {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type = %q", got.ContentType)
	}
}

func TestMockPutIsCreateOnly(t *testing.T) {
	s := NewMockForTests()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("a"), blobcore.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("b"), blobcore.PutOptions{}); err == nil {
		t.Fatal("overwrite accepted")
	}
}

func TestMockListAndDelete(t *testing.T) {
	s := NewMockForTests()
	ctx := context.Background()
	for _, key := range []string{"compendium/b/2.json", "compendium/a/1.json", "other/x"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), blobcore.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "compendium/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "compendium/a/1.json" || infos[1].Key != "compendium/b/2.json" {
		t.Fatalf("infos = %+v", infos)
	}

	if existed, err := s.Delete(ctx, "compendium/a/1.json"); err != nil || !existed {
		t.Fatalf("delete = %v, %v", existed, err)
	}
	if _, _, err := s.Get(ctx, "compendium/a/1.json"); err == nil {
		t.Fatal("get of deleted key succeeded")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("missing bucket accepted")
	}
}

func TestDriver(t *testing.T) {
	if NewMockForTests().Driver() != blobcore.DriverS3 {
		t.Fatal("wrong driver id")
	}
}
