package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"linkcore/pkg/domain"
)

// stubConn is an in-memory database/sql driver modeling the single-table
// bucket schema the store uses.
type stubConn struct {
	execs      []string
	buckets    map[string][]byte
	failCommit bool
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{buckets: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *stubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Ping(context.Context) error          { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return &stubTx{conn: c}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	upper := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(upper, "INSERT INTO STATE") {
		if len(args) != 2 {
			return nil, fmt.Errorf("want bucket and payload args, got %d", len(args))
		}
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		c.buckets[bucket] = append([]byte(nil), payload...)
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToUpper(query), "FROM STATE") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	rows := make([][]driver.Value, 0, len(c.buckets))
	for bucket, payload := range c.buckets {
		rows = append(rows, []driver.Value{bucket, append([]byte(nil), payload...)})
	}
	return &stubRows{cols: []string{"bucket", "payload"}, rows: rows}, nil
}

type stubTx struct {
	conn *stubConn
}

func (t *stubTx) Commit() error {
	if t.conn.failCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func TestNewStoreAppliesDDLAndHydrates(t *testing.T) {
	db, conn := newStubDB()
	seed, _ := json.Marshal([]domain.Item{{Base: domain.Base{ID: "rope"}, Name: "Rope"}})
	conn.buckets["items"] = seed

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewHooks())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	item, ok := store.ResolveItem(domain.Identity("Item.rope"))
	if !ok || item.Name != "Rope" {
		t.Fatalf("item = %+v ok=%v", item, ok)
	}
	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
			break
		}
	}
	if !sawDDL {
		t.Fatalf("expected state-table DDL, got execs: %v", conn.execs)
	}
}

func TestRunInTransactionPersistsSnapshot(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewHooks())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, _, err := store.CreateItem(context.Background(), domain.WorldContainer(),
		domain.Item{Base: domain.Base{ID: "torch"}, Name: "Torch"},
		domain.MutationOptions{KeepID: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	payload, ok := conn.buckets["items"]
	if !ok {
		t.Fatal("items bucket not persisted")
	}
	var items []domain.Item
	if err := json.Unmarshal(payload, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Torch" {
		t.Fatalf("items = %+v", items)
	}
	if _, ok := conn.buckets["settings"]; !ok {
		t.Fatal("settings bucket not persisted")
	}
}

func TestCommitFailureSurfacesAsError(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewHooks())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.failCommit = true
	if _, _, err := store.CreateItem(context.Background(), domain.WorldContainer(),
		domain.Item{Name: "Torch"}, domain.MutationOptions{}); err == nil {
		t.Fatal("expected commit error")
	}
}

func TestLoadSnapshotToleratesEmptyTable(t *testing.T) {
	db, _ := newStubDB()
	snapshot, loaded, err := loadSnapshot(context.Background(), db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded {
		t.Fatal("empty table reported as loaded")
	}
	if len(snapshot.Items) != 0 {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}
