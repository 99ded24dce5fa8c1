package settings

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/truecost/internal/db"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS local_values (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS local_counters (
	key    TEXT PRIMARY KEY,
	amount REAL NOT NULL DEFAULT 0
);
`

var (
	valueUpsert = db.MustUpsertSQL(db.UpsertConfig{
		Table:        "local_values",
		Columns:      []string{"key", "value"},
		ConflictKeys: []string{"key"},
		Overwrite:    []string{"value"},
	}, db.Question)

	counterUpsert = db.MustUpsertSQL(db.UpsertConfig{
		Table:        "local_counters",
		Columns:      []string{"key", "amount"},
		ConflictKeys: []string{"key"},
		Increment:    []string{"amount"},
	}, db.Question)
)

// SQLiteStore keeps local state in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates) the local store at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "settings: create schema")
	}
	return &SQLiteStore{db: conn}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM local_values WHERE key = ?`, key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "settings: get %s", key)
	}
	return true, decode(b, dst)
}

func (s *SQLiteStore) Set(ctx context.Context, values map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "settings: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for k, v := range values {
		b, err := encode(v)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, valueUpsert, k, b); err != nil {
			return eris.Wrapf(err, "settings: set %s", k)
		}
	}
	return eris.Wrap(tx.Commit(), "settings: commit")
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := `DELETE FROM local_values WHERE key IN (?` + strings.Repeat(", ?", len(keys)-1) + `)`
	_, err := s.db.ExecContext(ctx, query, args...)
	return eris.Wrap(err, "settings: delete")
}

func (s *SQLiteStore) AddFloat(ctx context.Context, key string, delta float64) (float64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "settings: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, counterUpsert, key, delta); err != nil {
		return 0, eris.Wrapf(err, "settings: add to %s", key)
	}
	var total float64
	if err := tx.QueryRowContext(ctx, `SELECT amount FROM local_counters WHERE key = ?`, key).Scan(&total); err != nil {
		return 0, eris.Wrapf(err, "settings: read %s", key)
	}
	return total, eris.Wrap(tx.Commit(), "settings: commit")
}

func (s *SQLiteStore) Float(ctx context.Context, key string) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM local_counters WHERE key = ?`, key).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return total, eris.Wrapf(err, "settings: read %s", key)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
