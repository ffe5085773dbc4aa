package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
)

// BadgerOptions configures the embedded badger backend.
type BadgerOptions struct {
	Path     string
	InMemory bool
}

// Badger persists records in an embedded badger database under keys of the
// form doc:<collection>:<id>. Ids are time ordered, so key order is insertion
// order.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// OpenBadger opens or creates the database.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badger store: path is required")
		}
		bo = badger.DefaultOptions(opts.Path)
	}
	db, err := badger.Open(bo.WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("badger store: open: %w", err)
	}
	return &Badger{db: db}, nil
}

// NewBadger wraps an already opened database.
func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

func collectionPrefix(collection string) []byte {
	return []byte("doc:" + collection + ":")
}

func docKey(collection, id string) []byte {
	return append(collectionPrefix(collection), id...)
}

// scan visits the collection's records in key order until fn returns false.
func scan(txn *badger.Txn, collection string, fn func(Record) (bool, error)) error {
	prefix := collectionPrefix(collection)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var r Record
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
		if err != nil {
			return fmt.Errorf("badger store: decode %s: %w", it.Item().Key(), err)
		}
		more, err := fn(r)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func matching(txn *badger.Txn, collection string, filter Filter, limit int) ([]Record, error) {
	out := make([]Record, 0)
	err := scan(txn, collection, func(r Record) (bool, error) {
		ok, err := Matches(r, filter)
		if err != nil {
			return false, err
		}
		if ok {
			out = append(out, r)
		}
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func put(txn *badger.Txn, collection string, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("badger store: encode: %w", err)
	}
	return txn.Set(docKey(collection, r.ID()), data)
}

func (b *Badger) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = matching(txn, collection, filter, limit)
		return err
	})
	return out, err
}

func (b *Badger) FindOne(ctx context.Context, collection string, filter Filter) (Record, error) {
	found, err := b.Find(ctx, collection, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (b *Badger) Insert(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r, err := prepareInsert(doc)
	if err != nil {
		return "", err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return insertTxn(txn, collection, r)
	})
	if err != nil {
		return "", err
	}
	return r.ID(), nil
}

func insertTxn(txn *badger.Txn, collection string, r Record) error {
	_, err := txn.Get(docKey(collection, r.ID()))
	switch {
	case err == nil:
		return fmt.Errorf("insert into %s: duplicate id %q", collection, r.ID())
	case !errors.Is(err, badger.ErrKeyNotFound):
		return err
	}
	return put(txn, collection, r)
}

func (b *Badger) Update(ctx context.Context, collection string, filter Filter, p Patch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := b.db.Update(func(txn *badger.Txn) error {
		found, err := matching(txn, collection, filter, 0)
		if err != nil {
			return err
		}
		if len(found) == 0 && p.Upsert {
			r := upsertSeed(filter)
			if err := applyPatch(r, p); err != nil {
				return err
			}
			if r, err = prepareInsert(r); err != nil {
				return err
			}
			n = 1
			return insertTxn(txn, collection, r)
		}
		for _, r := range found {
			if err := applyPatch(r, p); err != nil {
				return err
			}
			if err := put(txn, collection, r); err != nil {
				return err
			}
		}
		n = len(found)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Badger) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := b.db.Update(func(txn *badger.Txn) error {
		found, err := matching(txn, collection, filter, 0)
		if err != nil {
			return err
		}
		for _, r := range found {
			if err := txn.Delete(docKey(collection, r.ID())); err != nil {
				return err
			}
		}
		n = len(found)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Badger) Aggregate(ctx context.Context, collection string, stages []Stage) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []Record
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		records, err = matching(txn, collection, Filter{}, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Run(records, stages)
}

func (b *Badger) Close() error {
	return b.db.Close()
}
