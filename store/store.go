// Package store is a small document store: schemaless records grouped in
// collections, queried with Mongo-style filters.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// IDField is the key holding a record's identifier.
const IDField = "_id"

const (
	CreatedAtField = "created_at"
	UpdatedAtField = "updated_at"
)

// TimeFormat is RFC 3339 with a fixed-width fraction so stamps sort as strings.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrInvalidStage  = errors.New("invalid aggregation stage")
)

// Record is one stored document. Values are JSON-shaped: string, float64,
// bool, nil, []any and map[string]any.
type Record map[string]any

// ID returns the record's identifier, or "" when unset.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// Filter selects records. Keys are dotted field paths mapped to a value
// (equality) or an operator object such as {"$gt": 3}; "$or" and "$and" take
// a list of filters.
type Filter map[string]any

// Patch describes an update. Set and Inc keys are dotted paths. With Upsert,
// an update that matches nothing inserts a record built from the filter's
// equality fields and the patch.
type Patch struct {
	Set    map[string]any
	Inc    map[string]float64
	Upsert bool
}

// Store is implemented by the memory and badger backends.
type Store interface {
	// Find returns up to limit matching records in insertion order. A limit
	// of zero or less means no limit.
	Find(ctx context.Context, collection string, filter Filter, limit int) ([]Record, error)
	// FindOne returns the first matching record or ErrNotFound.
	FindOne(ctx context.Context, collection string, filter Filter) (Record, error)
	// Insert stores doc, assigning an _id and created_at when missing, and
	// returns the id.
	Insert(ctx context.Context, collection string, doc any) (string, error)
	// Update applies p to every matching record, stamping updated_at, and
	// returns how many records were written.
	Update(ctx context.Context, collection string, filter Filter, p Patch) (int, error)
	// Delete removes every matching record and returns how many were removed.
	Delete(ctx context.Context, collection string, filter Filter) (int, error)
	// Aggregate runs stages over the collection.
	Aggregate(ctx context.Context, collection string, stages []Stage) ([]Record, error)
	Close() error
}

// Encode converts a typed value to a Record through its JSON form.
func Encode(v any) (Record, error) {
	switch m := v.(type) {
	case Record:
		return encodeMap(m)
	case map[string]any:
		return encodeMap(m)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("encode record: value of type %T is not an object: %w", v, err)
	}
	return r, nil
}

func encodeMap(m map[string]any) (Record, error) {
	n, err := normalize(m)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return Record(n.(map[string]any)), nil
}

// Decode fills v from r.
func Decode(r Record, v any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// DecodeAll decodes every record into a T.
func DecodeAll[T any](records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		var v T
		if err := Decode(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FindAs runs Find and decodes the results.
func FindAs[T any](ctx context.Context, s Store, collection string, filter Filter, limit int) ([]T, error) {
	records, err := s.Find(ctx, collection, filter, limit)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](records)
}

// FindOneAs runs FindOne and decodes the result.
func FindOneAs[T any](ctx context.Context, s Store, collection string, filter Filter) (T, error) {
	var v T
	r, err := s.FindOne(ctx, collection, filter)
	if err != nil {
		return v, err
	}
	err = Decode(r, &v)
	return v, err
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

func timestamp() string {
	return now().Format(TimeFormat)
}

// newID returns a time-ordered identifier so key order follows insertion order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// prepareInsert encodes doc and fills _id and created_at.
func prepareInsert(doc any) (Record, error) {
	r, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	if r.ID() == "" {
		r[IDField] = newID()
	}
	if v, ok := r[CreatedAtField]; !ok || v == nil || v == "" {
		r[CreatedAtField] = timestamp()
	}
	return r, nil
}

// applyPatch writes p into r and stamps updated_at.
func applyPatch(r Record, p Patch) error {
	for path, v := range p.Set {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("set %q: %w", path, err)
		}
		setPath(r, path, nv)
	}
	for path, delta := range p.Inc {
		cur, ok := getPath(r, path)
		base := 0.0
		if ok && cur != nil {
			n, isNum := cur.(float64)
			if !isNum {
				return fmt.Errorf("inc %q: field is %T, not a number", path, cur)
			}
			base = n
		}
		setPath(r, path, base+delta)
	}
	r[UpdatedAtField] = timestamp()
	return nil
}

// upsertSeed builds the record inserted when an upsert matches nothing.
func upsertSeed(f Filter) Record {
	r := Record{}
	for k, v := range f {
		if len(k) > 0 && k[0] == '$' {
			continue
		}
		if isOperatorObject(v) {
			continue
		}
		if nv, err := normalize(v); err == nil {
			setPath(r, k, nv)
		}
	}
	return r
}
