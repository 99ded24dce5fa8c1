package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/truecost/internal/db"
	"github.com/sells-group/truecost/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	pgEffectivenessUpsert = db.MustUpsertSQL(effectivenessUpsert, db.Dollar)
	pgSettingsUpsert      = db.MustUpsertSQL(settingsUpsert, db.Dollar)
	pgVariantUpsert       = db.MustUpsertSQL(variantUpsert, db.Dollar)
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS question_variants (
	id            TEXT PRIMARY KEY,
	question_text TEXT NOT NULL,
	subtext       TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT true,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS savings (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	price               DOUBLE PRECISION NOT NULL CHECK (price > 0),
	currency            TEXT NOT NULL DEFAULT 'USD',
	url                 TEXT NOT NULL DEFAULT '',
	product_title       TEXT NOT NULL DEFAULT '',
	question_variant_id TEXT,
	user_response       TEXT,
	final_decision      TEXT NOT NULL CHECK (final_decision IN ('purchased', 'skipped')),
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_savings_user_decision_created ON savings(user_id, final_decision, created_at);

CREATE TABLE IF NOT EXISTS variant_effectiveness (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	question_variant_id TEXT NOT NULL,
	times_shown         INTEGER NOT NULL DEFAULT 0,
	times_skipped       INTEGER NOT NULL DEFAULT 0,
	total_saved         DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, question_variant_id),
	CHECK (times_skipped <= times_shown)
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id                 TEXT PRIMARY KEY,
	enabled                 BOOLEAN NOT NULL,
	confirm_before_purchase BOOLEAN NOT NULL,
	return_rate             DOUBLE PRECISION NOT NULL,
	years                   INTEGER NOT NULL,
	min_price               DOUBLE PRECISION NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertSaving(ctx context.Context, rec *model.SavingRecord) error {
	fillRecord(rec)

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO savings (id, user_id, price, currency, url, product_title, question_variant_id, user_response, final_decision, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, rec.UserID, rec.Price, rec.Currency, rec.URL, rec.ProductTitle,
			rec.VariantID, nullableResponse(rec.UserResponse), string(rec.FinalDecision), rec.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert saving")
		}
		if rec.VariantID == nil {
			return nil
		}

		skipped, saved := effectivenessDelta(rec)
		_, err = tx.Exec(ctx, pgEffectivenessUpsert,
			uuid.New().String(), rec.UserID, *rec.VariantID, 1, skipped, saved, rec.CreatedAt, rec.CreatedAt,
		)
		return eris.Wrapf(err, "postgres: upsert effectiveness %s", *rec.VariantID)
	})
}

func (s *PostgresStore) ListSkipped(ctx context.Context, userID string, r model.TimeRange) ([]model.SavingAmount, error) {
	query := `SELECT price, created_at FROM savings WHERE user_id = $1 AND final_decision = 'skipped'`
	args := []any{userID}
	if r.Start != nil {
		args = append(args, *r.Start)
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if r.End != nil {
		args = append(args, *r.End)
		query += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list skipped")
	}
	defer rows.Close()

	out := []model.SavingAmount{}
	for rows.Next() {
		var a model.SavingAmount
		if err := rows.Scan(&a.Price, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan saving")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list skipped iterate")
}

const pgStatColumns = `e.id, e.user_id, e.question_variant_id, e.times_shown, e.times_skipped, e.total_saved, v.question_text, v.subtext`

func (s *PostgresStore) ListEffectiveness(ctx context.Context, userID string) ([]model.EffectivenessStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgStatColumns+` FROM variant_effectiveness e
		 LEFT JOIN question_variants v ON v.id = e.question_variant_id
		 WHERE e.user_id = $1 ORDER BY e.created_at`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list effectiveness")
	}
	defer rows.Close()

	out := []model.EffectivenessStat{}
	for rows.Next() {
		st, err := scanStat(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan effectiveness")
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list effectiveness iterate")
}

func (s *PostgresStore) BestVariant(ctx context.Context, userID string, minShown int) (*model.BestVariant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgStatColumns+` FROM variant_effectiveness e
		 LEFT JOIN question_variants v ON v.id = e.question_variant_id
		 WHERE e.user_id = $1 AND e.times_shown >= $2
		 ORDER BY e.times_skipped DESC, e.created_at ASC LIMIT 1`,
		userID, minShown,
	)
	st, err := scanStat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: best variant")
	}
	return &model.BestVariant{EffectivenessStat: *st, SkipRate: st.SkipRate()}, nil
}

func (s *PostgresStore) ActiveVariants(ctx context.Context) ([]model.QuestionVariant, error) {
	return s.queryVariants(ctx, `SELECT id, question_text, subtext, is_active, created_at FROM question_variants WHERE is_active ORDER BY created_at, id`)
}

func (s *PostgresStore) ListVariants(ctx context.Context) ([]model.QuestionVariant, error) {
	return s.queryVariants(ctx, `SELECT id, question_text, subtext, is_active, created_at FROM question_variants ORDER BY created_at, id`)
}

func (s *PostgresStore) queryVariants(ctx context.Context, query string) ([]model.QuestionVariant, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list variants")
	}
	defer rows.Close()

	out := []model.QuestionVariant{}
	for rows.Next() {
		var v model.QuestionVariant
		if err := rows.Scan(&v.ID, &v.QuestionText, &v.Subtext, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan variant")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list variants iterate")
}

func (s *PostgresStore) UpsertVariant(ctx context.Context, v *model.QuestionVariant) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, pgVariantUpsert, v.ID, v.QuestionText, v.Subtext, v.IsActive, v.CreatedAt)
	return eris.Wrapf(err, "postgres: upsert variant %s", v.ID)
}

func (s *PostgresStore) GetSettings(ctx context.Context, userID string) (*model.Settings, error) {
	var st model.Settings
	err := s.pool.QueryRow(ctx,
		`SELECT enabled, confirm_before_purchase, return_rate, years, min_price FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&st.Enabled, &st.ConfirmBeforePurchase, &st.ReturnRate, &st.Years, &st.MinPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get settings %s", userID)
	}
	return &st, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, userID string, st model.Settings) error {
	_, err := s.pool.Exec(ctx, pgSettingsUpsert,
		userID, st.Enabled, st.ConfirmBeforePurchase, st.ReturnRate, st.Years, st.MinPrice, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save settings %s", userID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStat(row rowScanner) (*model.EffectivenessStat, error) {
	var st model.EffectivenessStat
	var text, subtext *string
	if err := row.Scan(&st.ID, &st.UserID, &st.VariantID, &st.TimesShown, &st.TimesSkipped, &st.TotalSaved, &text, &subtext); err != nil {
		return nil, err
	}
	if text != nil {
		st.Variant = &model.VariantText{QuestionText: *text}
		if subtext != nil {
			st.Variant.Subtext = *subtext
		}
	}
	return &st, nil
}

func fillRecord(rec *model.SavingRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Currency == "" {
		rec.Currency = "USD"
	}
}

func nullableResponse(r model.UserResponse) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}
