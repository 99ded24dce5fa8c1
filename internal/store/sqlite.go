package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/truecost/internal/db"
	"github.com/sells-group/truecost/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. Timestamps are stored
// as Unix milliseconds so range filters compare numerically.
type SQLiteStore struct {
	db *sql.DB
}

var (
	liteEffectivenessUpsert = db.MustUpsertSQL(effectivenessUpsert, db.Question)
	liteSettingsUpsert      = db.MustUpsertSQL(settingsUpsert, db.Question)
	liteVariantUpsert       = db.MustUpsertSQL(variantUpsert, db.Question)
)

// NewSQLite opens a SQLite database at the given path.
func NewSQLite(path string) (*SQLiteStore, error) {
	conn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: conn}, nil
}

// NewSQLiteFromDB wraps an already opened database handle.
func NewSQLiteFromDB(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS question_variants (
	id            TEXT PRIMARY KEY,
	question_text TEXT NOT NULL,
	subtext       TEXT NOT NULL DEFAULT '',
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS savings (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	price               REAL NOT NULL CHECK (price > 0),
	currency            TEXT NOT NULL DEFAULT 'USD',
	url                 TEXT NOT NULL DEFAULT '',
	product_title       TEXT NOT NULL DEFAULT '',
	question_variant_id TEXT,
	user_response       TEXT,
	final_decision      TEXT NOT NULL CHECK (final_decision IN ('purchased', 'skipped')),
	created_at          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_savings_user_decision_created ON savings(user_id, final_decision, created_at);

CREATE TABLE IF NOT EXISTS variant_effectiveness (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	question_variant_id TEXT NOT NULL,
	times_shown         INTEGER NOT NULL DEFAULT 0,
	times_skipped       INTEGER NOT NULL DEFAULT 0,
	total_saved         REAL NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL,
	UNIQUE (user_id, question_variant_id),
	CHECK (times_skipped <= times_shown)
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id                 TEXT PRIMARY KEY,
	enabled                 INTEGER NOT NULL,
	confirm_before_purchase INTEGER NOT NULL,
	return_rate             REAL NOT NULL,
	years                   INTEGER NOT NULL,
	min_price               REAL NOT NULL,
	updated_at              INTEGER NOT NULL
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertSaving(ctx context.Context, rec *model.SavingRecord) error {
	fillRecord(rec)
	created := rec.CreatedAt.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO savings (id, user_id, price, currency, url, product_title, question_variant_id, user_response, final_decision, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Price, rec.Currency, rec.URL, rec.ProductTitle,
		rec.VariantID, nullableResponse(rec.UserResponse), string(rec.FinalDecision), created,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert saving")
	}

	if rec.VariantID != nil {
		skipped, saved := effectivenessDelta(rec)
		if _, err := tx.ExecContext(ctx, liteEffectivenessUpsert,
			uuid.New().String(), rec.UserID, *rec.VariantID, 1, skipped, saved, created, created,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert effectiveness %s", *rec.VariantID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit saving")
}

func (s *SQLiteStore) ListSkipped(ctx context.Context, userID string, r model.TimeRange) ([]model.SavingAmount, error) {
	query := `SELECT price, created_at FROM savings WHERE user_id = ? AND final_decision = 'skipped'`
	args := []any{userID}
	if r.Start != nil {
		query += ` AND created_at >= ?`
		args = append(args, r.Start.UnixMilli())
	}
	if r.End != nil {
		query += ` AND created_at < ?`
		args = append(args, r.End.UnixMilli())
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list skipped")
	}
	defer rows.Close()

	out := []model.SavingAmount{}
	for rows.Next() {
		var a model.SavingAmount
		var ms int64
		if err := rows.Scan(&a.Price, &ms); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan saving")
		}
		a.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list skipped iterate")
}

const liteStatColumns = `e.id, e.user_id, e.question_variant_id, e.times_shown, e.times_skipped, e.total_saved, v.question_text, v.subtext`

func (s *SQLiteStore) ListEffectiveness(ctx context.Context, userID string) ([]model.EffectivenessStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+liteStatColumns+` FROM variant_effectiveness e
		 LEFT JOIN question_variants v ON v.id = e.question_variant_id
		 WHERE e.user_id = ? ORDER BY e.rowid`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list effectiveness")
	}
	defer rows.Close()

	out := []model.EffectivenessStat{}
	for rows.Next() {
		st, err := scanLiteStat(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan effectiveness")
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list effectiveness iterate")
}

func (s *SQLiteStore) BestVariant(ctx context.Context, userID string, minShown int) (*model.BestVariant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+liteStatColumns+` FROM variant_effectiveness e
		 LEFT JOIN question_variants v ON v.id = e.question_variant_id
		 WHERE e.user_id = ? AND e.times_shown >= ?
		 ORDER BY e.times_skipped DESC, e.rowid ASC LIMIT 1`,
		userID, minShown,
	)
	st, err := scanLiteStat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: best variant")
	}
	return &model.BestVariant{EffectivenessStat: *st, SkipRate: st.SkipRate()}, nil
}

func (s *SQLiteStore) ActiveVariants(ctx context.Context) ([]model.QuestionVariant, error) {
	return s.queryVariants(ctx, `SELECT id, question_text, subtext, is_active, created_at FROM question_variants WHERE is_active = 1 ORDER BY created_at, id`)
}

func (s *SQLiteStore) ListVariants(ctx context.Context) ([]model.QuestionVariant, error) {
	return s.queryVariants(ctx, `SELECT id, question_text, subtext, is_active, created_at FROM question_variants ORDER BY created_at, id`)
}

func (s *SQLiteStore) queryVariants(ctx context.Context, query string) ([]model.QuestionVariant, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list variants")
	}
	defer rows.Close()

	out := []model.QuestionVariant{}
	for rows.Next() {
		var v model.QuestionVariant
		var ms int64
		if err := rows.Scan(&v.ID, &v.QuestionText, &v.Subtext, &v.IsActive, &ms); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan variant")
		}
		v.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list variants iterate")
}

func (s *SQLiteStore) UpsertVariant(ctx context.Context, v *model.QuestionVariant) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, liteVariantUpsert, v.ID, v.QuestionText, v.Subtext, v.IsActive, v.CreatedAt.UnixMilli())
	return eris.Wrapf(err, "sqlite: upsert variant %s", v.ID)
}

func (s *SQLiteStore) GetSettings(ctx context.Context, userID string) (*model.Settings, error) {
	var st model.Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled, confirm_before_purchase, return_rate, years, min_price FROM user_settings WHERE user_id = ?`,
		userID,
	).Scan(&st.Enabled, &st.ConfirmBeforePurchase, &st.ReturnRate, &st.Years, &st.MinPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get settings %s", userID)
	}
	return &st, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, userID string, st model.Settings) error {
	_, err := s.db.ExecContext(ctx, liteSettingsUpsert,
		userID, st.Enabled, st.ConfirmBeforePurchase, st.ReturnRate, st.Years, st.MinPrice, time.Now().UnixMilli(),
	)
	return eris.Wrapf(err, "sqlite: save settings %s", userID)
}

func scanLiteStat(row rowScanner) (*model.EffectivenessStat, error) {
	var st model.EffectivenessStat
	var text, subtext sql.NullString
	if err := row.Scan(&st.ID, &st.UserID, &st.VariantID, &st.TimesShown, &st.TimesSkipped, &st.TotalSaved, &text, &subtext); err != nil {
		return nil, err
	}
	if text.Valid {
		st.Variant = &model.VariantText{QuestionText: text.String, Subtext: subtext.String}
	}
	return &st, nil
}
