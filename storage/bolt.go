package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// BoltStore keeps each collection in its own bucket, keyed by document id.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) mailbridge.db under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}
	dbPath := filepath.Join(dataDir, "mailbridge.db")

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{CollectionAccounts, CollectionEmails} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return errors.Wrapf(err, "create bucket %s", bucket)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) NewID() string {
	return newID()
}

func (s *BoltStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc *Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		doc = &Document{ID: id, Data: append([]byte(nil), v...)}
		return nil
	})
	return doc, err
}

func (s *BoltStore) Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			ok, err := matches(v, filters)
			if err != nil {
				return errors.Wrapf(err, "%s/%s", collection, k)
			}
			if ok {
				docs = append(docs, Document{ID: string(k), Data: append([]byte(nil), v...)})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortDocuments(docs, order)
	return docs, nil
}

func (s *BoltStore) Set(ctx context.Context, collection, id string, doc interface{}) error {
	return s.Batch(ctx, []Op{SetOp(collection, id, doc)})
}

func (s *BoltStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return s.Batch(ctx, []Op{UpdateOp(collection, id, fields)})
}

func (s *BoltStore) Delete(ctx context.Context, collection, id string) error {
	return s.Batch(ctx, []Op{DeleteOp(collection, id)})
}

// Batch applies ops inside one bbolt write transaction.
func (s *BoltStore) Batch(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, op := range ops {
			if err := applyBolt(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyBolt(tx *bbolt.Tx, op Op) error {
	if err := checkCollection(op.Collection, op.ID); err != nil {
		return err
	}
	b, err := tx.CreateBucketIfNotExists([]byte(op.Collection))
	if err != nil {
		return errors.Wrapf(err, "bucket %s", op.Collection)
	}
	key := []byte(op.ID)

	switch op.Kind {
	case OpSet:
		data, err := encode(op.Doc)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	case OpUpdate:
		current := b.Get(key)
		if current == nil {
			return errors.Wrapf(ErrNotFound, "%s/%s", op.Collection, op.ID)
		}
		data, err := merge(current, op.Fields)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	case OpDelete:
		return b.Delete(key)
	}
	return errors.Errorf("unknown op kind %d", op.Kind)
}
