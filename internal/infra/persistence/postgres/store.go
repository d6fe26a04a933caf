// Package postgres provides the durable backend adapter for self-hosted
// deployments: the same schema-less key-addressed contract as the DynamoDB
// adapter, served from a single JSONB table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"ordercore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.DocumentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/ordercore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists documents to a records table keyed by (tbl, id). A seq
// column preserves insertion order for scans so the backend matches the
// fallback store's scan behavior.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN) and ensures the records table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, domain.AdapterError{Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, domain.AdapterError{Op: "ping", Err: err}
	}
	ddl := `CREATE TABLE IF NOT EXISTS records (
		tbl TEXT NOT NULL,
		id TEXT NOT NULL,
		entity_type TEXT NOT NULL DEFAULT '',
		doc JSONB NOT NULL,
		seq BIGSERIAL,
		PRIMARY KEY (tbl, id)
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, domain.AdapterError{Op: "ensure records table", Err: err}
	}
	return &Store{db: db}, nil
}

// Probe issues one bounded read; the facade runs it once at initialization.
func (s *Store) Probe(ctx context.Context) error {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM records LIMIT 1`).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.AdapterError{Op: "probe", Err: err}
	}
	return nil
}

// PutItem upserts the full document.
func (s *Store) PutItem(ctx context.Context, table domain.Table, doc domain.Document) error {
	id := domain.DocumentID(doc)
	if id == "" {
		return domain.ValidationError{Field: domain.FieldID, Reason: "missing"}
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return domain.AdapterError{Op: "marshal", Err: err}
	}
	entityType, _ := doc[domain.FieldType].(string)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records(tbl, id, entity_type, doc) VALUES($1, $2, $3, $4)
		 ON CONFLICT (tbl, id) DO UPDATE SET entity_type = EXCLUDED.entity_type, doc = EXCLUDED.doc`,
		string(table), id, entityType, payload)
	if err != nil {
		return domain.AdapterError{Op: "put_item", Err: err}
	}
	return nil
}

// GetItem reads one document by key.
func (s *Store) GetItem(ctx context.Context, table domain.Table, id string) (domain.Document, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE tbl = $1 AND id = $2`, string(table), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, domain.AdapterError{Op: "get_item", Err: err}
	}
	return decodePayload(payload)
}

// ScanItems reads all matching documents in insertion order, pushing the
// filter into SQL.
func (s *Store) ScanItems(ctx context.Context, table domain.Table, filter domain.ScanFilter) ([]domain.Document, error) {
	query := `SELECT doc FROM records WHERE tbl = $1`
	args := []any{string(table)}
	if filter.Type != "" && table == domain.TableEntities {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(` AND entity_type = $%d`, len(args))
	}
	if filter.BusinessID != "" {
		args = append(args, filter.BusinessID)
		if table == domain.TableOrders {
			query += fmt.Sprintf(` AND doc->'location'->>'business_id' = $%d`, len(args))
		} else {
			query += fmt.Sprintf(` AND doc->>'business_id' = $%d`, len(args))
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.AdapterError{Op: "scan", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var docs []domain.Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, domain.AdapterError{Op: "scan", Err: err}
		}
		doc, err := decodePayload(payload)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.AdapterError{Op: "scan", Err: err}
	}
	return docs, nil
}

// UpdateItem merges top-level delta fields under a row lock and returns the
// merged document.
func (s *Store) UpdateItem(ctx context.Context, table domain.Table, id string, delta domain.Document) (domain.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.AdapterError{Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var payload []byte
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE tbl = $1 AND id = $2 FOR UPDATE`, string(table), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, domain.AdapterError{Op: "update_item", Err: err}
	}
	current, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	for k, v := range delta {
		if k == domain.FieldID {
			continue
		}
		current[k] = v
	}
	out, err := json.Marshal(current)
	if err != nil {
		return nil, domain.AdapterError{Op: "marshal", Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET doc = $3 WHERE tbl = $1 AND id = $2`, string(table), id, out); err != nil {
		return nil, domain.AdapterError{Op: "update_item", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.AdapterError{Op: "commit", Err: err}
	}
	committed = true
	return current, nil
}

// DeleteItem removes one document, surfacing not-found when no row matched.
func (s *Store) DeleteItem(ctx context.Context, table domain.Table, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE tbl = $1 AND id = $2`, string(table), id)
	if err != nil {
		return domain.AdapterError{Op: "delete_item", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.AdapterError{Op: "delete_item", Err: err}
	}
	if affected == 0 {
		return domain.ErrNotFound{ID: id}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func decodePayload(payload []byte) (domain.Document, error) {
	var doc domain.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, domain.AdapterError{Op: "decode", Err: err}
	}
	return doc, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
