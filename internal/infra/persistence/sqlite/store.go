// Package sqlite wraps the in-memory fallback store with a local SQLite
// snapshot so a process restarted in fallback mode does not lose records. It
// snapshots the full state after every successful write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"ordercore/internal/infra/persistence/memory"
	"ordercore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.DocumentStore = (*Store)(nil)

// Store is a snapshotting SQLite-backed fallback store.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the snapshot database at path and hydrates the
// in-memory state from it.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "ordercore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"orders", "entities", "order_seq", "entity_seq"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{}
	var loaded bool
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		loaded = true
		switch bucket {
		case "orders":
			if err := json.Unmarshal(payload, &snapshot.Orders); err != nil {
				return fmt.Errorf("decode orders: %w", err)
			}
		case "entities":
			if err := json.Unmarshal(payload, &snapshot.Entities); err != nil {
				return fmt.Errorf("decode entities: %w", err)
			}
		case "order_seq":
			if err := json.Unmarshal(payload, &snapshot.OrderSeq); err != nil {
				return fmt.Errorf("decode order_seq: %w", err)
			}
		case "entity_seq":
			if err := json.Unmarshal(payload, &snapshot.EntitySeq); err != nil {
				return fmt.Errorf("decode entity_seq: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if loaded {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "orders":
			data, err = json.Marshal(snapshot.Orders)
		case "entities":
			data, err = json.Marshal(snapshot.Entities)
		case "order_seq":
			data, err = json.Marshal(snapshot.OrderSeq)
		case "entity_seq":
			data, err = json.Marshal(snapshot.EntitySeq)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// PutItem writes through the in-memory store, then snapshots to SQLite.
func (s *Store) PutItem(ctx context.Context, table domain.Table, doc domain.Document) error {
	if err := s.Store.PutItem(ctx, table, doc); err != nil {
		return err
	}
	return s.persist()
}

// UpdateItem merges through the in-memory store, then snapshots to SQLite.
func (s *Store) UpdateItem(ctx context.Context, table domain.Table, id string, delta domain.Document) (domain.Document, error) {
	doc, err := s.Store.UpdateItem(ctx, table, id, delta)
	if err != nil {
		return nil, err
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteItem removes through the in-memory store, then snapshots to SQLite.
func (s *Store) DeleteItem(ctx context.Context, table domain.Table, id string) error {
	if err := s.Store.DeleteItem(ctx, table, id); err != nil {
		return err
	}
	return s.persist()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close flushes nothing further and closes the database handle.
func (s *Store) Close() error { return s.db.Close() }
