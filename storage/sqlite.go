package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps every collection in one documents table holding JSON.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) mailbridge.sqlite under dataDir, enables
// WAL mode and runs pending migrations.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}

	db, err := sqlx.Open("sqlite", filepath.Join(dataDir, "mailbridge.sqlite"))
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite db")
	}
	// One writer at a time; batches rely on it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling WAL mode")
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return errors.Wrap(err, "checking schema_version table")
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return errors.Wrap(err, "reading schema version")
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return errors.Wrapf(err, "applying migration v%d", m.version)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) NewID() string {
	return newID()
}

type documentRow struct {
	ID   string `db:"id"`
	Data string `db:"data"`
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, data FROM documents WHERE collection = ? AND id = ?", collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	return &Document{ID: row.ID, Data: json.RawMessage(row.Data)}, nil
}

// Query pushes string equality filters down to json_extract and re-checks
// every filter on the decoded rows, so both stores match identically.
func (s *SQLiteStore) Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Document, error) {
	query := "SELECT id, data FROM documents WHERE collection = ?"
	args := []interface{}{collection}
	for _, f := range filters {
		v := reflect.ValueOf(f.Value)
		if v.IsValid() && v.Kind() == reflect.String {
			query += " AND json_extract(data, ?) = ?"
			args = append(args, "$."+f.Field, v.String())
		}
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}

	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		ok, err := matches([]byte(r.Data), filters)
		if err != nil {
			return nil, errors.Wrapf(err, "%s/%s", collection, r.ID)
		}
		if ok {
			docs = append(docs, Document{ID: r.ID, Data: json.RawMessage(r.Data)})
		}
	}
	sortDocuments(docs, order)
	return docs, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, id string, doc interface{}) error {
	return s.Batch(ctx, []Op{SetOp(collection, id, doc)})
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return s.Batch(ctx, []Op{UpdateOp(collection, id, fields)})
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	return s.Batch(ctx, []Op{DeleteOp(collection, id)})
}

// Batch applies ops in one transaction.
func (s *SQLiteStore) Batch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	for _, op := range ops {
		if err := applySQL(ctx, tx, op); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func applySQL(ctx context.Context, tx *sqlx.Tx, op Op) error {
	if err := checkCollection(op.Collection, op.ID); err != nil {
		return err
	}

	switch op.Kind {
	case OpSet:
		data, err := encode(op.Doc)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data`,
			op.Collection, op.ID, string(data))
		return errors.Wrapf(err, "set %s/%s", op.Collection, op.ID)
	case OpUpdate:
		var current string
		err := tx.GetContext(ctx, &current,
			"SELECT data FROM documents WHERE collection = ? AND id = ?", op.Collection, op.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrNotFound, "%s/%s", op.Collection, op.ID)
		}
		if err != nil {
			return errors.Wrapf(err, "load %s/%s", op.Collection, op.ID)
		}
		data, err := merge([]byte(current), op.Fields)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE documents SET data = ? WHERE collection = ? AND id = ?",
			string(data), op.Collection, op.ID)
		return errors.Wrapf(err, "update %s/%s", op.Collection, op.ID)
	case OpDelete:
		_, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?", op.Collection, op.ID)
		return errors.Wrapf(err, "delete %s/%s", op.Collection, op.ID)
	}
	return errors.Errorf("unknown op kind %d", op.Kind)
}
