package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is the schema-less wire representation every storage backend
// exchanges: a JSON-compatible map keyed by field name.
type Document = map[string]any

// Well-known document field names.
const (
	// FieldID keys every record in its table.
	FieldID = "id"
	// FieldType is the discriminator distinguishing non-order entities
	// multiplexed into the shared entities table.
	FieldType = "type"
)

// TimeLayout is the serialization format for timestamps: fixed-width UTC so
// persisted values sort lexicographically in timestamp order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// ScanFilter narrows a ScanItems call. Zero value matches everything in the
// table.
type ScanFilter struct {
	// Type restricts results to one entity type (entities table only).
	Type EntityType
	// BusinessID restricts results to records owned by a business.
	BusinessID string
}

// DocumentStore is the four-primitive storage contract implemented by the
// durable backend adapters and the fallback store. Every method maps 1:1 to
// a facade operation.
type DocumentStore interface {
	// PutItem writes a full record. The document must carry FieldID.
	PutItem(ctx context.Context, table Table, doc Document) error
	// GetItem returns the record or ErrNotFound.
	GetItem(ctx context.Context, table Table, id string) (Document, error)
	// ScanItems returns all matching records. Order is backend-defined;
	// the fallback store returns insertion order.
	ScanItems(ctx context.Context, table Table, filter ScanFilter) ([]Document, error)
	// UpdateItem merges top-level fields of delta into an existing record
	// and returns the merged result, or ErrNotFound when the id is absent.
	UpdateItem(ctx context.Context, table Table, id string, delta Document) (Document, error)
	// DeleteItem removes the record, returning ErrNotFound when absent.
	DeleteItem(ctx context.Context, table Table, id string) error
}

// EncodeDocument serializes an entity into its document form: timestamps
// become fixed-width sortable UTC strings and nil leaves are stripped
// recursively, preserving empty collections. The remote store rejects nil
// attribute values.
func EncodeDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	sanitized, _ := sanitizeValue(doc, false)
	doc, ok := sanitized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("encode document: %T is not an object", v)
	}
	return doc, nil
}

// DecodeDocument deserializes a document back into the supplied entity
// pointer.
func DecodeDocument(doc Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// sanitizeValue walks a decoded JSON value dropping nil map entries and nil
// slice elements, and rewriting RFC3339 strings into TimeLayout — but only
// under timestamp keys (suffix "_at"), so free text that happens to parse as
// a date is left alone. The second return reports whether the value itself
// should be dropped.
func sanitizeValue(v any, timestampKey bool) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			cleaned, drop := sanitizeValue(item, strings.HasSuffix(k, "_at"))
			if drop {
				continue
			}
			out[k] = cleaned
		}
		return out, false
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			cleaned, drop := sanitizeValue(item, false)
			if drop {
				continue
			}
			out = append(out, cleaned)
		}
		return out, false
	case string:
		if !timestampKey {
			return val, false
		}
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC().Format(TimeLayout), false
		}
		return val, false
	default:
		return val, false
	}
}

// CloneDocument deep-copies a document so no caller can mutate stored state
// through a returned or retained reference.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	cloned, _ := sanitizeValue(doc, false)
	out, _ := cloned.(map[string]any)
	return out
}

// DocumentID extracts the record id, empty when absent.
func DocumentID(doc Document) string {
	id, _ := doc[FieldID].(string)
	return id
}

// DocumentBusinessID extracts the owning business id of a record. Orders
// attribute ownership through their location snapshot; every other entity
// carries it top-level.
func DocumentBusinessID(table Table, doc Document) string {
	if table == TableOrders {
		loc, _ := doc["location"].(map[string]any)
		id, _ := loc["business_id"].(string)
		return id
	}
	id, _ := doc["business_id"].(string)
	return id
}

// MatchesFilter reports whether a record satisfies a scan filter.
func MatchesFilter(table Table, doc Document, filter ScanFilter) bool {
	if filter.Type != "" {
		if t, _ := doc[FieldType].(string); t != string(filter.Type) {
			return false
		}
	}
	if filter.BusinessID != "" && DocumentBusinessID(table, doc) != filter.BusinessID {
		return false
	}
	return true
}
