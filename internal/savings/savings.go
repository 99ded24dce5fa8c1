// Package savings records purchase decisions and aggregates skipped-purchase
// totals and per-variant effectiveness.
package savings

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/resilience"
	"github.com/sells-group/truecost/internal/store"
)

// BestVariantMinShown is how often a variant must have been shown before it
// can be reported as the best one.
const BestVariantMinShown = 3

// Service is the savings aggregator behind the data service.
type Service struct {
	store store.Store
	retry resilience.RetryConfig
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRetry sets how colliding effectiveness upserts are replayed.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithClock overrides time.Now, and with it the local timezone used for
// period boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		retry: resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: 20 * time.Millisecond, MaxBackoff: 500 * time.Millisecond},
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.retry.ShouldRetry = resilience.IsConflict
	s.retry.OnRetry = resilience.RetryLogger("savings", "record")
	return s
}

// Record validates rec, stores it for userID and updates the effectiveness
// counters of its variant. Write collisions are replayed transparently; if
// they persist the error wraps model.ErrAggregationRace.
func (s *Service) Record(ctx context.Context, userID string, rec model.SavingRecord) (*model.SavingRecord, error) {
	rec.UserID = userID
	if err := rec.Validate(); err != nil {
		zap.L().Info("savings: rejected record", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	if rec.VariantID != nil && *rec.VariantID == "" {
		rec.VariantID = nil
	}

	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.store.InsertSaving(ctx, &rec)
	})
	if err != nil {
		if resilience.IsConflict(err) {
			return nil, eris.Wrapf(model.ErrAggregationRace, "savings: record for %s: %v", userID, err)
		}
		return nil, eris.Wrap(err, "savings: record")
	}

	zap.L().Debug("savings: recorded decision",
		zap.String("user_id", userID),
		zap.Float64("price", rec.Price),
		zap.String("final_decision", string(rec.FinalDecision)),
	)
	return &rec, nil
}

// Range resolves a period or explicit range against the service clock.
func (s *Service) Range(period, start, end string) (model.TimeRange, error) {
	return ResolvePeriod(period, start, end, s.now())
}

// Totals sums the user's skipped purchases inside r.
func (s *Service) Totals(ctx context.Context, userID string, r model.TimeRange) (*model.Totals, error) {
	rows, err := s.store.ListSkipped(ctx, userID, r)
	if err != nil {
		return nil, eris.Wrap(err, "savings: totals")
	}
	prices := make([]float64, len(rows))
	for i, row := range rows {
		prices[i] = row.Price
	}
	return &model.Totals{Total: floats.Sum(prices), Count: len(rows), Savings: rows}, nil
}

// BestVariant returns the variant with the most skips among those shown at
// least BestVariantMinShown times, or nil.
func (s *Service) BestVariant(ctx context.Context, userID string) (*model.BestVariant, error) {
	best, err := s.store.BestVariant(ctx, userID, BestVariantMinShown)
	return best, eris.Wrap(err, "savings: best variant")
}

// Effectiveness lists the user's per-variant counters.
func (s *Service) Effectiveness(ctx context.Context, userID string) ([]model.EffectivenessStat, error) {
	stats, err := s.store.ListEffectiveness(ctx, userID)
	return stats, eris.Wrap(err, "savings: effectiveness")
}

// ActiveVariants lists the prompts eligible for selection.
func (s *Service) ActiveVariants(ctx context.Context) ([]model.QuestionVariant, error) {
	vs, err := s.store.ActiveVariants(ctx)
	return vs, eris.Wrap(err, "savings: active variants")
}

// Settings returns the user's saved profile, or nil.
func (s *Service) Settings(ctx context.Context, userID string) (*model.Settings, error) {
	st, err := s.store.GetSettings(ctx, userID)
	return st, eris.Wrap(err, "savings: get settings")
}

// SaveSettings validates and stores the user's profile.
func (s *Service) SaveSettings(ctx context.Context, userID string, st model.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	return eris.Wrap(s.store.SaveSettings(ctx, userID, st), "savings: save settings")
}

// ApplyDecision is the create-or-increment rule for one decision: shown
// always grows by one, skipped and total saved only for a skip.
func ApplyDecision(stat model.EffectivenessStat, skipped bool, price float64) model.EffectivenessStat {
	stat.TimesShown++
	if skipped {
		stat.TimesSkipped++
		stat.TotalSaved += price
	}
	return stat
}
