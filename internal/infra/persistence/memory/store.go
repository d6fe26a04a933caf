// Package memory provides the in-process fallback store: a per-table map of
// documents scoped to the lifetime of the running process. It backs every
// request when the durable backend is unavailable and doubles as the
// write-through cache when it is not.
package memory

import (
	"context"
	"sync"

	"ordercore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.DocumentStore = (*Store)(nil)

type tableState struct {
	docs map[string]domain.Document
	// seq preserves insertion order for scans.
	seq []string
}

func newTableState() *tableState {
	return &tableState{docs: make(map[string]domain.Document)}
}

// Store is the map-based fallback store. All operations succeed for
// structurally valid input; concurrent access is synchronized so no reader
// observes a partially merged record.
type Store struct {
	mu     sync.RWMutex
	tables map[domain.Table]*tableState
}

// NewStore constructs an empty fallback store.
func NewStore() *Store {
	return &Store{
		tables: map[domain.Table]*tableState{
			domain.TableOrders:   newTableState(),
			domain.TableEntities: newTableState(),
		},
	}
}

func (s *Store) table(t domain.Table) *tableState {
	ts, ok := s.tables[t]
	if !ok {
		ts = newTableState()
		s.tables[t] = ts
	}
	return ts
}

func entityForTable(t domain.Table, doc domain.Document) domain.EntityType {
	if t == domain.TableOrders {
		return domain.EntityOrder
	}
	if doc != nil {
		if typ, ok := doc[domain.FieldType].(string); ok {
			return domain.EntityType(typ)
		}
	}
	return ""
}

// PutItem upserts a full record. A document without an id is rejected; the
// write-through mirror relies on upsert semantics for refreshed reads.
func (s *Store) PutItem(_ context.Context, table domain.Table, doc domain.Document) error {
	id := domain.DocumentID(doc)
	if id == "" {
		return domain.ValidationError{Field: domain.FieldID, Reason: "missing"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.table(table)
	if _, exists := ts.docs[id]; !exists {
		ts.seq = append(ts.seq, id)
	}
	ts.docs[id] = domain.CloneDocument(doc)
	return nil
}

// GetItem returns a copy of the record or ErrNotFound.
func (s *Store) GetItem(_ context.Context, table domain.Table, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts := s.tables[table]
	if ts == nil {
		return nil, domain.ErrNotFound{Entity: entityForTable(table, nil), ID: id}
	}
	doc, ok := ts.docs[id]
	if !ok {
		return nil, domain.ErrNotFound{Entity: entityForTable(table, nil), ID: id}
	}
	return domain.CloneDocument(doc), nil
}

// ScanItems returns all matching records in insertion order via a linear
// predicate scan; there are no indexes.
func (s *Store) ScanItems(_ context.Context, table domain.Table, filter domain.ScanFilter) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts := s.tables[table]
	if ts == nil {
		return nil, nil
	}
	out := make([]domain.Document, 0, len(ts.seq))
	for _, id := range ts.seq {
		doc, ok := ts.docs[id]
		if !ok {
			continue
		}
		if !domain.MatchesFilter(table, doc, filter) {
			continue
		}
		out = append(out, domain.CloneDocument(doc))
	}
	return out, nil
}

// UpdateItem merges top-level delta fields into an existing record and
// returns the merged copy. The merge is atomic relative to readers.
func (s *Store) UpdateItem(_ context.Context, table domain.Table, id string, delta domain.Document) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.tables[table]
	if ts == nil {
		return nil, domain.ErrNotFound{Entity: entityForTable(table, nil), ID: id}
	}
	current, ok := ts.docs[id]
	if !ok {
		return nil, domain.ErrNotFound{Entity: entityForTable(table, nil), ID: id}
	}
	merged := domain.CloneDocument(current)
	for k, v := range domain.CloneDocument(delta) {
		if k == domain.FieldID {
			continue
		}
		merged[k] = v
	}
	ts.docs[id] = merged
	return domain.CloneDocument(merged), nil
}

// DeleteItem removes the record, returning ErrNotFound when absent.
func (s *Store) DeleteItem(_ context.Context, table domain.Table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.tables[table]
	if ts == nil {
		return domain.ErrNotFound{Entity: entityForTable(table, nil), ID: id}
	}
	if _, ok := ts.docs[id]; !ok {
		return domain.ErrNotFound{Entity: entityForTable(table, nil), ID: id}
	}
	delete(ts.docs, id)
	for i, seqID := range ts.seq {
		if seqID == id {
			ts.seq = append(ts.seq[:i], ts.seq[i+1:]...)
			break
		}
	}
	return nil
}

// Snapshot captures a point-in-time clone of the store state, including scan
// order, for durability wrappers.
type Snapshot struct {
	Orders    map[string]domain.Document `json:"orders"`
	Entities  map[string]domain.Document `json:"entities"`
	OrderSeq  []string                   `json:"order_seq"`
	EntitySeq []string                   `json:"entity_seq"`
}

// ExportState returns a deep copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Orders:   make(map[string]domain.Document),
		Entities: make(map[string]domain.Document),
	}
	if ts := s.tables[domain.TableOrders]; ts != nil {
		for id, doc := range ts.docs {
			snap.Orders[id] = domain.CloneDocument(doc)
		}
		snap.OrderSeq = append([]string(nil), ts.seq...)
	}
	if ts := s.tables[domain.TableEntities]; ts != nil {
		for id, doc := range ts.docs {
			snap.Entities[id] = domain.CloneDocument(doc)
		}
		snap.EntitySeq = append([]string(nil), ts.seq...)
	}
	return snap
}

// ImportState replaces the store state with the supplied snapshot. Missing
// sequence data falls back to map iteration order.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = map[domain.Table]*tableState{
		domain.TableOrders:   importTable(snap.Orders, snap.OrderSeq),
		domain.TableEntities: importTable(snap.Entities, snap.EntitySeq),
	}
}

func importTable(docs map[string]domain.Document, seq []string) *tableState {
	ts := newTableState()
	seen := make(map[string]bool, len(seq))
	for _, id := range seq {
		if doc, ok := docs[id]; ok && !seen[id] {
			ts.docs[id] = domain.CloneDocument(doc)
			ts.seq = append(ts.seq, id)
			seen[id] = true
		}
	}
	for id, doc := range docs {
		if !seen[id] {
			ts.docs[id] = domain.CloneDocument(doc)
			ts.seq = append(ts.seq, id)
		}
	}
	return ts
}
