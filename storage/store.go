package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is one stored record. Data is the JSON encoding of the record.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document into v.
func (d Document) Decode(v interface{}) error {
	return json.Unmarshal(d.Data, v)
}

// Filter matches documents whose top-level Field equals Value.
type Filter struct {
	Field string
	Value interface{}
}

// Where is shorthand for a Filter.
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Order sorts query results by a top-level field.
type Order struct {
	Field string
	Desc  bool
}

// OpKind is the kind of write in a batch.
type OpKind int

const (
	OpSet OpKind = iota
	OpUpdate
	OpDelete
)

// Op is one write in an atomic batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Doc        interface{}            // OpSet
	Fields     map[string]interface{} // OpUpdate
}

// SetOp builds a set (upsert) operation.
func SetOp(collection, id string, doc interface{}) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Doc: doc}
}

// UpdateOp builds a partial update of an existing document.
func UpdateOp(collection, id string, fields map[string]interface{}) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Fields: fields}
}

// DeleteOp builds a delete operation.
func DeleteOp(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

// DocumentStore is a schemaless collection/document store. Query supports
// equality filters only. Batch applies all ops or none.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Document, error)
	Set(ctx context.Context, collection, id string, doc interface{}) error
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
	Batch(ctx context.Context, ops []Op) error
	NewID() string
	Close() error
}

// Open returns the store selected by driver ("bolt" or "sqlite") rooted at path.
func Open(driver, path string) (DocumentStore, error) {
	switch driver {
	case "bolt", "":
		return NewBoltStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	}
	return nil, errors.Errorf("unknown storage driver %q", driver)
}

func newID() string {
	return uuid.NewString()
}

func encode(doc interface{}) ([]byte, error) {
	if raw, ok := doc.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encode document")
	}
	return data, nil
}

// merge applies fields on top of the JSON object in data.
func merge(data []byte, fields map[string]interface{}) ([]byte, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	for k, v := range fields {
		obj[k] = v
	}
	return encode(obj)
}

// matches reports whether the JSON object in data satisfies every filter.
func matches(data []byte, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return false, errors.Wrap(err, "decode document")
	}
	for _, f := range filters {
		want, err := json.Marshal(f.Value)
		if err != nil {
			return false, errors.Wrapf(err, "encode filter %s", f.Field)
		}
		got, ok := obj[f.Field]
		if !ok {
			got = json.RawMessage("null")
		}
		if !bytes.Equal(compact(got), want) {
			return false, nil
		}
	}
	return true, nil
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// sortDocuments orders docs by order.Field. Timestamps compare as times,
// numbers as numbers; ties keep id order.
func sortDocuments(docs []Document, order *Order) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	if order == nil || order.Field == "" {
		return
	}

	keys := make([]interface{}, len(docs))
	for i, d := range docs {
		var obj map[string]interface{}
		if err := json.Unmarshal(d.Data, &obj); err == nil {
			keys[i] = sortKey(obj[order.Field])
		}
	}
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		c := compareKeys(keys[idx[a]], keys[idx[b]])
		if order.Desc {
			return c > 0
		}
		return c < 0
	})

	sorted := make([]Document, len(docs))
	for i, k := range idx {
		sorted[i] = docs[k]
	}
	copy(docs, sorted)
}

func sortKey(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return v
}

// compareKeys orders nil first, then by type-specific comparison.
func compareKeys(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return 0
}

func checkCollection(collection, id string) error {
	if collection == "" {
		return errors.New("collection is required")
	}
	if id == "" {
		return errors.New("document id is required")
	}
	return nil
}
