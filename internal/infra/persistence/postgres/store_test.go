package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ordercore/pkg/domain"
)

func openStubStore(t *testing.T) (*Store, *stubConn) {
	t.Helper()
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresRecordsTable(t *testing.T) {
	_, conn := openStubStore(t)
	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected records DDL, got execs: %v", conn.execs)
	}
}

func TestPutGetScanUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := openStubStore(t)

	put := func(id, biz string) {
		t.Helper()
		doc := domain.Document{
			"id":       id,
			"status":   "pending",
			"location": map[string]any{"business_id": biz},
		}
		if err := store.PutItem(ctx, domain.TableOrders, doc); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	put("o1", "biz-1")
	put("o2", "biz-2")
	put("o3", "biz-1")

	got, err := store.GetItem(ctx, domain.TableOrders, "o2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["status"] != "pending" {
		t.Fatalf("unexpected doc %v", got)
	}
	if _, err := store.GetItem(ctx, domain.TableOrders, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	all, err := store.ScanItems(ctx, domain.TableOrders, domain.ScanFilter{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(all) != 3 || all[0]["id"] != "o1" || all[2]["id"] != "o3" {
		t.Fatalf("scan should preserve insertion order: %v", all)
	}

	scoped, err := store.ScanItems(ctx, domain.TableOrders, domain.ScanFilter{BusinessID: "biz-1"})
	if err != nil {
		t.Fatalf("scan scoped: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("expected 2 biz-1 orders, got %d", len(scoped))
	}

	merged, err := store.UpdateItem(ctx, domain.TableOrders, "o1", domain.Document{"status": "picked_up"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if merged["status"] != "picked_up" {
		t.Fatalf("merge failed: %v", merged)
	}
	back, err := store.GetItem(ctx, domain.TableOrders, "o1")
	if err != nil || back["status"] != "picked_up" {
		t.Fatalf("update not persisted: %v %v", back, err)
	}
	if _, err := store.UpdateItem(ctx, domain.TableOrders, "missing", domain.Document{"status": "x"}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := store.DeleteItem(ctx, domain.TableOrders, "o2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteItem(ctx, domain.TableOrders, "o2"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestEntityTypeFilter(t *testing.T) {
	ctx := context.Background()
	store, _ := openStubStore(t)
	for i, typ := range []domain.EntityType{domain.EntityLocation, domain.EntityUser, domain.EntityLocation} {
		doc := domain.Document{
			"id":          fmt.Sprintf("e%d", i),
			"type":        string(typ),
			"business_id": "biz-1",
		}
		if err := store.PutItem(ctx, domain.TableEntities, doc); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	locs, err := store.ScanItems(ctx, domain.TableEntities, domain.ScanFilter{Type: domain.EntityLocation})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(locs) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(locs))
	}
}

func TestProbeSucceedsOnEmptyTable(t *testing.T) {
	store, _ := openStubStore(t)
	if err := store.Probe(context.Background()); err != nil {
		t.Fatalf("probe on empty table: %v", err)
	}
}

func TestTransportErrorsWrapAsAdapterError(t *testing.T) {
	store, conn := openStubStore(t)
	conn.failAll = true
	if err := store.PutItem(context.Background(), domain.TableOrders, domain.Document{"id": "x"}); !domain.IsAdapterError(err) {
		t.Fatalf("expected adapter error, got %v", err)
	}
	if _, err := store.GetItem(context.Background(), domain.TableOrders, "x"); !domain.IsAdapterError(err) {
		t.Fatalf("expected adapter error, got %v", err)
	}
	if err := store.Probe(context.Background()); !domain.IsAdapterError(err) {
		t.Fatalf("expected adapter error, got %v", err)
	}
}

// --- stub database/sql driver -------------------------------------------

type storedRow struct {
	tbl        string
	id         string
	entityType string
	doc        []byte
	seq        int64
}

type stubConn struct {
	mu      sync.Mutex
	rows    map[string]*storedRow
	nextSeq int64
	execs   []string
	failAll bool
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{rows: make(map[string]*storedRow)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.failAll {
		return nil, fmt.Errorf("begin fail")
	}
	return stubTx{}, nil
}

func (c *stubConn) Ping(context.Context) error {
	if c.failAll {
		return fmt.Errorf("ping fail")
	}
	return nil
}

func key(tbl, id string) string { return tbl + "\x00" + id }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	if c.failAll {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(upper, "INSERT INTO RECORDS"):
		tbl, id := args[0].Value.(string), args[1].Value.(string)
		row, ok := c.rows[key(tbl, id)]
		if !ok {
			c.nextSeq++
			row = &storedRow{tbl: tbl, id: id, seq: c.nextSeq}
			c.rows[key(tbl, id)] = row
		}
		row.entityType = args[2].Value.(string)
		row.doc = append([]byte(nil), asBytes(args[3].Value)...)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "UPDATE RECORDS"):
		tbl, id := args[0].Value.(string), args[1].Value.(string)
		row, ok := c.rows[key(tbl, id)]
		if !ok {
			return driver.RowsAffected(0), nil
		}
		row.doc = append([]byte(nil), asBytes(args[2].Value)...)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM RECORDS"):
		tbl, id := args[0].Value.(string), args[1].Value.(string)
		if _, ok := c.rows[key(tbl, id)]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.rows, key(tbl, id))
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected exec: %s", query)
}

func (c *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return nil, fmt.Errorf("query fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "SELECT ID FROM RECORDS"):
		for _, row := range c.rows {
			return &stubRows{cols: []string{"id"}, vals: [][]driver.Value{{row.id}}}, nil
		}
		return &stubRows{cols: []string{"id"}}, nil
	case strings.HasPrefix(upper, "SELECT DOC FROM RECORDS WHERE TBL = $1 AND ID = $2"):
		tbl, id := args[0].Value.(string), args[1].Value.(string)
		if row, ok := c.rows[key(tbl, id)]; ok {
			return &stubRows{cols: []string{"doc"}, vals: [][]driver.Value{{append([]byte(nil), row.doc...)}}}, nil
		}
		return &stubRows{cols: []string{"doc"}}, nil
	case strings.HasPrefix(upper, "SELECT DOC FROM RECORDS WHERE TBL = $1"):
		tbl := args[0].Value.(string)
		var matched []*storedRow
		for _, row := range c.rows {
			if row.tbl != tbl {
				continue
			}
			if !c.rowMatches(query, args, row) {
				continue
			}
			matched = append(matched, row)
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
		out := &stubRows{cols: []string{"doc"}}
		for _, row := range matched {
			out.vals = append(out.vals, []driver.Value{append([]byte(nil), row.doc...)})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func (c *stubConn) rowMatches(query string, args []driver.NamedValue, row *storedRow) bool {
	for i, arg := range args[1:] {
		want, _ := arg.Value.(string)
		placeholder := fmt.Sprintf("$%d", i+2)
		switch {
		case strings.Contains(query, "entity_type = "+placeholder):
			if row.entityType != want {
				return false
			}
		case strings.Contains(query, "business_id' = "+placeholder):
			var doc map[string]any
			_ = json.Unmarshal(row.doc, &doc)
			tbl := domain.Table(row.tbl)
			if domain.DocumentBusinessID(tbl, doc) != want {
				return false
			}
		}
	}
	return true
}

func asBytes(v driver.Value) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return nil
	}
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	vals [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.vals) {
		return io.EOF
	}
	copy(dest, r.vals[r.idx])
	r.idx++
	return nil
}
