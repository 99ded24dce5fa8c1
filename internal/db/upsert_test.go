package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     UpsertConfig
		ph      Placeholder
		want    string
		wantErr string
	}{
		{
			name: "increment and overwrite",
			cfg: UpsertConfig{
				Table:        "stats",
				Columns:      []string{"user_id", "variant_id", "shown", "updated_at"},
				ConflictKeys: []string{"user_id", "variant_id"},
				Increment:    []string{"shown"},
				Overwrite:    []string{"updated_at"},
			},
			ph:   Dollar,
			want: "INSERT INTO stats (user_id, variant_id, shown, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (user_id, variant_id) DO UPDATE SET shown = stats.shown + EXCLUDED.shown, updated_at = EXCLUDED.updated_at",
		},
		{
			name: "sqlite placeholders",
			cfg:  UpsertConfig{Table: "t", Columns: []string{"k", "v"}, ConflictKeys: []string{"k"}, Overwrite: []string{"v"}},
			ph:   Question,
			want: "INSERT INTO t (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v",
		},
		{
			name: "do nothing",
			cfg:  UpsertConfig{Table: "t", Columns: []string{"k"}, ConflictKeys: []string{"k"}},
			ph:   Question,
			want: "INSERT INTO t (k) VALUES (?) ON CONFLICT (k) DO NOTHING",
		},
		{
			name:    "no keys",
			cfg:     UpsertConfig{Table: "t", Columns: []string{"k"}},
			ph:      Dollar,
			wantErr: "no conflict keys",
		},
		{
			name:    "unknown increment",
			cfg:     UpsertConfig{Table: "t", Columns: []string{"k"}, ConflictKeys: []string{"k"}, Increment: []string{"n"}},
			ph:      Dollar,
			wantErr: `"n" not inserted`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := UpsertSQL(tt.cfg, tt.ph)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInTx(t *testing.T) {
	t.Parallel()

	t.Run("commit", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err = InTx(context.Background(), mock, func(tx pgx.Tx) error {
			_, err := tx.Exec(context.Background(), "UPDATE t SET v = 1")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = InTx(context.Background(), mock, func(pgx.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
