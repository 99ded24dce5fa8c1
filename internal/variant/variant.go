// Package variant picks the wording of the want/need prompt, favouring
// wordings that have led the user to skip purchases.
package variant

import (
	"context"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/truecost/internal/model"
)

// Source fetches active variants and the caller's effectiveness stats.
type Source interface {
	ActiveVariants(ctx context.Context) ([]model.QuestionVariant, error)
	Effectiveness(ctx context.Context) ([]model.EffectivenessStat, error)
}

// Authenticator reports whether the adaptive source can be used.
type Authenticator interface {
	IsAuthenticated() bool
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand sets the source of uniform draws in [0, 1).
func WithRand(r func() float64) Option {
	return func(s *Selector) { s.rand = r }
}

// Selector chooses a QuestionVariant per interception.
type Selector struct {
	src  Source
	auth Authenticator

	mu   sync.Mutex
	rand func() float64
}

// New creates a Selector. A nil src or auth always selects a default.
func New(src Source, auth Authenticator, opts ...Option) *Selector {
	s := &Selector{src: src, auth: auth, rand: rand.Float64}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) draw() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand()
}

// Select returns a weighted pick from the active variants. When signed out,
// when nothing is active or when either fetch fails it returns a uniform
// pick from the built-in defaults. ctx bounds the fetch.
func (s *Selector) Select(ctx context.Context) model.QuestionVariant {
	if s.src == nil || s.auth == nil || !s.auth.IsAuthenticated() {
		return s.fallback()
	}

	var variants []model.QuestionVariant
	var stats []model.EffectivenessStat
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		variants, err = s.src.ActiveVariants(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.src.Effectiveness(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		zap.L().Info("variant: adaptive source unavailable, using defaults", zap.Error(err))
		return s.fallback()
	}
	if len(variants) == 0 {
		return s.fallback()
	}
	return Pick(variants, stats, s.draw())
}

func (s *Selector) fallback() model.QuestionVariant {
	defaults := model.DefaultVariants()
	i := int(s.draw() * float64(len(defaults)))
	return defaults[min(i, len(defaults)-1)]
}

// Weight is 1 for a variant never shown, otherwise 0.5 plus its skip rate.
func Weight(stat *model.EffectivenessStat) float64 {
	if stat == nil || stat.TimesShown == 0 {
		return 1
	}
	return 0.5 + stat.SkipRate()
}

// Pick draws from variants weighted by their stats. u is a uniform draw in
// [0, 1); the first variant whose cumulative weight reaches u*Σw wins.
func Pick(variants []model.QuestionVariant, stats []model.EffectivenessStat, u float64) model.QuestionVariant {
	byVariant := make(map[string]*model.EffectivenessStat, len(stats))
	for i := range stats {
		byVariant[stats[i].VariantID] = &stats[i]
	}

	weights := make([]float64, len(variants))
	for i, v := range variants {
		weights[i] = Weight(byVariant[v.ID])
	}

	r := u * floats.Sum(weights)
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return variants[i]
		}
	}
	return variants[0]
}
