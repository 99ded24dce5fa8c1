// Package store persists savings records, per-variant effectiveness counters,
// question variants and user settings profiles.
package store

import (
	"context"

	"github.com/sells-group/truecost/internal/db"
	"github.com/sells-group/truecost/internal/model"
)

// Store is the persistence interface of the savings service.
type Store interface {
	// InsertSaving writes rec and, when it names a variant, applies the
	// create-or-increment to the (user, variant) effectiveness row in the
	// same transaction. Missing ID and CreatedAt are filled in.
	InsertSaving(ctx context.Context, rec *model.SavingRecord) error
	// ListSkipped returns the user's skipped purchases inside r, newest first.
	ListSkipped(ctx context.Context, userID string, r model.TimeRange) ([]model.SavingAmount, error)

	ListEffectiveness(ctx context.Context, userID string) ([]model.EffectivenessStat, error)
	// BestVariant returns the stat with the most skips among those shown at
	// least minShown times, or nil.
	BestVariant(ctx context.Context, userID string, minShown int) (*model.BestVariant, error)

	ActiveVariants(ctx context.Context) ([]model.QuestionVariant, error)
	ListVariants(ctx context.Context) ([]model.QuestionVariant, error)
	UpsertVariant(ctx context.Context, v *model.QuestionVariant) error

	// GetSettings returns nil when the user has no saved profile.
	GetSettings(ctx context.Context, userID string) (*model.Settings, error)
	SaveSettings(ctx context.Context, userID string, s model.Settings) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var effectivenessUpsert = db.UpsertConfig{
	Table:        "variant_effectiveness",
	Columns:      []string{"id", "user_id", "question_variant_id", "times_shown", "times_skipped", "total_saved", "created_at", "updated_at"},
	ConflictKeys: []string{"user_id", "question_variant_id"},
	Increment:    []string{"times_shown", "times_skipped", "total_saved"},
	Overwrite:    []string{"updated_at"},
}

var settingsUpsert = db.UpsertConfig{
	Table:        "user_settings",
	Columns:      []string{"user_id", "enabled", "confirm_before_purchase", "return_rate", "years", "min_price", "updated_at"},
	ConflictKeys: []string{"user_id"},
	Overwrite:    []string{"enabled", "confirm_before_purchase", "return_rate", "years", "min_price", "updated_at"},
}

var variantUpsert = db.UpsertConfig{
	Table:        "question_variants",
	Columns:      []string{"id", "question_text", "subtext", "is_active", "created_at"},
	ConflictKeys: []string{"id"},
	Overwrite:    []string{"question_text", "subtext", "is_active"},
}

// effectivenessDelta is the increment a single decision contributes.
func effectivenessDelta(rec *model.SavingRecord) (skipped int, saved float64) {
	if rec.Skipped() {
		return 1, rec.Price
	}
	return 0, 0
}
