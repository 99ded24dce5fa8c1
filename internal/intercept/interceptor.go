// Package intercept pauses checkout actions above a price threshold and walks
// the user through the want/need prompt before letting the action proceed.
package intercept

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/decision"
	"github.com/sells-group/truecost/internal/dom"
	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/opcost"
	"github.com/sells-group/truecost/internal/price"
	"github.com/sells-group/truecost/internal/settings"
)

// BoundAttr marks checkout controls the interceptor listens on.
const BoundAttr = "data-true-cost-confirm"

// DefaultVariantTimeout bounds variant selection.
const DefaultVariantTimeout = 2 * time.Second

// Action replays the intercepted checkout action.
type Action func()

// PriceSource reads the price and title of the product being bought.
type PriceSource interface {
	CurrentPrice() (float64, bool)
	ProductTitle() string
}

// VariantSource picks the prompt wording. It must return within ctx.
type VariantSource interface {
	Select(ctx context.Context) model.QuestionVariant
}

// Recorder accepts decisions for background submission.
type Recorder interface {
	RecordAsync(d decision.Decision)
}

// Config wires an Interceptor's collaborators.
type Config struct {
	Prices    PriceSource
	Variants  VariantSource
	Recorder  Recorder
	Local     settings.Store
	Presenter Presenter

	CheckoutSelectors []string
	VariantTimeout    time.Duration
}

// Interceptor owns at most one live Session per page.
type Interceptor struct {
	doc       dom.Document
	cfg       Config
	currency  price.Currency
	formatter *opcost.Formatter

	mu       sync.Mutex
	settings model.Settings
	active   *Session

	replaying atomic.Bool
}

// New creates an Interceptor for doc.
func New(doc dom.Document, s model.Settings, cfg Config) *Interceptor {
	if cfg.VariantTimeout <= 0 {
		cfg.VariantTimeout = DefaultVariantTimeout
	}
	cur := price.DetectCurrency(doc.Hostname())
	return &Interceptor{
		doc:       doc,
		cfg:       cfg,
		currency:  cur,
		formatter: opcost.NewFormatter(cur.Symbol),
		settings:  s,
	}
}

// UpdateSettings replaces the settings used by the guard.
func (i *Interceptor) UpdateSettings(s model.Settings) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.settings = s
}

// Bind marks every checkout control with BoundAttr and returns how many were
// newly marked. Nothing is bound while confirmation is off.
func (i *Interceptor) Bind() int {
	i.mu.Lock()
	enabled := i.settings.ConfirmBeforePurchase
	i.mu.Unlock()
	if !enabled {
		return 0
	}

	n := 0
	for _, sel := range i.cfg.CheckoutSelectors {
		for _, el := range i.doc.QueryAll(sel) {
			if el.HasAttr(BoundAttr) {
				continue
			}
			el.SetAttr(BoundAttr, "true")
			n++
		}
	}
	return n
}

// Bound reports whether el is a bound checkout control.
func Bound(el dom.Element) bool {
	return el != nil && el.HasAttr(BoundAttr)
}

// Active returns the live session, or nil.
func (i *Interceptor) Active() *Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// HandleClick decides whether to pause action. It returns (nil, false) when
// the action should proceed untouched: confirmation off, no parseable price,
// price under the minimum, a replay in progress or any internal failure.
// While a session is unresolved every further click is held and the live
// session is returned; only that session's action can be replayed.
func (i *Interceptor) HandleClick(ctx context.Context, action Action) (sess *Session, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("intercept: failing open after panic", zap.Any("panic", r))
			sess, ok = nil, false
		}
	}()

	if i.replaying.Load() {
		return nil, false
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.settings.ConfirmBeforePurchase {
		return nil, false
	}
	if i.active != nil && !i.active.State().Terminal() {
		zap.L().Debug("intercept: click held by open session", zap.String("state", i.active.State().String()))
		return i.active, true
	}
	if i.cfg.Prices == nil {
		return nil, false
	}
	p, found := i.cfg.Prices.CurrentPrice()
	if !found || p < i.settings.MinPrice {
		return nil, false
	}

	s := &Session{
		ic:       i,
		state:    StateAwaitingResponse,
		price:    p,
		title:    i.cfg.Prices.ProductTitle(),
		url:      i.doc.URL(),
		calc:     opcost.NewCalculator(i.settings),
		variant:  i.selectVariant(ctx),
		action:   action,
		started:  time.Now(),
		currency: i.currency,
	}

	if err := i.present(func(pr Presenter) error {
		return pr.ShowQuestion(s, Question{Variant: s.variant, Price: p})
	}); err != nil {
		zap.L().Warn("intercept: presenter failed, letting action proceed", zap.Error(err))
		return nil, false
	}

	i.active = s
	zap.L().Debug("intercept: paused checkout",
		zap.Float64("price", p),
		zap.String("variant_id", s.variant.ID),
	)
	return s, true
}

func (i *Interceptor) selectVariant(ctx context.Context) model.QuestionVariant {
	if i.cfg.Variants == nil {
		return model.DefaultVariants()[0]
	}
	vctx, cancel := context.WithTimeout(ctx, i.cfg.VariantTimeout)
	defer cancel()
	v := i.cfg.Variants.Select(vctx)
	if v.QuestionText == "" {
		return model.DefaultVariants()[0]
	}
	return v
}

func (i *Interceptor) present(fn func(Presenter) error) error {
	if i.cfg.Presenter == nil {
		return nil
	}
	return fn(i.cfg.Presenter)
}

func (i *Interceptor) record(s *Session, resp model.UserResponse, final model.FinalDecision) {
	if i.cfg.Recorder == nil {
		return
	}
	i.cfg.Recorder.RecordAsync(decision.Decision{
		Price:        s.price,
		Currency:     s.currency.Code,
		Response:     resp,
		Final:        final,
		Variant:      s.variant,
		URL:          s.url,
		ProductTitle: s.title,
	})
}

func (i *Interceptor) addSkipped(ctx context.Context, s *Session) float64 {
	if i.cfg.Local == nil {
		return s.price
	}
	total, err := settings.AppendSkipped(ctx, i.cfg.Local, model.SkippedItem{
		Price:     s.price,
		URL:       s.url,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		zap.L().Warn("intercept: local total not updated", zap.Error(err))
		return s.price
	}
	return total
}

func (i *Interceptor) replay(s *Session) {
	s.replay.Do(func() {
		s.replayed.Store(true)
		if s.action == nil {
			return
		}
		i.replaying.Store(true)
		defer i.replaying.Store(false)
		s.action()
	})
}

// Session is one paused checkout action.
type Session struct {
	ic       *Interceptor
	price    float64
	title    string
	url      string
	calc     *opcost.Calculator
	variant  model.QuestionVariant
	action   Action
	started  time.Time
	currency price.Currency

	mu    sync.Mutex
	state State

	replay   sync.Once
	replayed atomic.Bool
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Price is the price snapshot taken when the action was paused.
func (s *Session) Price() float64 { return s.price }

func (s *Session) Variant() model.QuestionVariant { return s.variant }

// Replayed reports whether the paused action has been let through.
func (s *Session) Replayed() bool { return s.replayed.Load() }

// transition moves from one of the allowed states to next.
func (s *Session) transition(next State, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.state == f {
			s.state = next
			return nil
		}
	}
	return eris.Wrapf(ErrInvalidTransition, "%s -> %s", s.state, next)
}

// Respond answers the want/need prompt. Need lets the action proceed; want
// shows the opportunity cost and awaits Confirm.
func (s *Session) Respond(r model.UserResponse) error {
	switch r {
	case model.ResponseNeed:
		if err := s.transition(StateResolvedNeed, StateAwaitingResponse); err != nil {
			return err
		}
		s.ic.record(s, model.ResponseNeed, model.DecisionPurchased)
		s.finish()
		s.ic.replay(s)
		return nil

	case model.ResponseWant:
		if err := s.transition(StateAwaitingConfirmation, StateAwaitingResponse); err != nil {
			return err
		}
		if err := s.ic.present(func(pr Presenter) error {
			return pr.ShowProjection(s, s.projection())
		}); err != nil {
			zap.L().Warn("intercept: presenter failed, letting action proceed", zap.Error(err))
			_ = s.transition(StateAbandoned, StateAwaitingConfirmation)
			s.finish()
			s.ic.replay(s)
		}
		return nil

	default:
		return eris.Wrapf(model.ErrValidation, "intercept: unknown response %q", r)
	}
}

// Confirm answers the opportunity-cost step. Skip records the saving and
// keeps the action paused for good; buy anyway lets it proceed.
func (s *Session) Confirm(ctx context.Context, c Choice) error {
	switch c {
	case ChoiceSkip:
		if err := s.transition(StateResolvedSkipped, StateAwaitingConfirmation); err != nil {
			return err
		}
		s.ic.record(s, model.ResponseWant, model.DecisionSkipped)
		total := s.ic.addSkipped(ctx, s)
		if err := s.ic.present(func(pr Presenter) error {
			return pr.ShowSaved(s, s.saved(total))
		}); err != nil {
			zap.L().Warn("intercept: presenter failed on saved summary", zap.Error(err))
		}
		s.ic.release(s)
		return nil

	case ChoiceBuyAnyway:
		if err := s.transition(StateResolvedBuyAnyway, StateAwaitingConfirmation); err != nil {
			return err
		}
		s.ic.record(s, model.ResponseWant, model.DecisionPurchased)
		s.finish()
		s.ic.replay(s)
		return nil

	default:
		return eris.Wrapf(model.ErrValidation, "intercept: unknown choice %q", c)
	}
}

// Dismiss abandons the session without recording anything.
func (s *Session) Dismiss() error {
	if err := s.transition(StateAbandoned, StateAwaitingResponse, StateAwaitingConfirmation); err != nil {
		return err
	}
	s.finish()
	return nil
}

// Acknowledge closes the saved summary of a skipped session.
func (s *Session) Acknowledge() error {
	if st := s.State(); st != StateResolvedSkipped {
		return eris.Wrapf(ErrInvalidTransition, "acknowledge in %s", st)
	}
	if pr := s.ic.cfg.Presenter; pr != nil {
		pr.Close(s)
	}
	return nil
}

// finish closes the presenter and frees the interceptor for the next click.
func (s *Session) finish() {
	if pr := s.ic.cfg.Presenter; pr != nil {
		pr.Close(s)
	}
	s.ic.release(s)
}

func (i *Interceptor) release(s *Session) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active == s {
		i.active = nil
	}
}

func (s *Session) projection() ProjectionView {
	f := s.ic.formatter
	p := s.calc.Project(s.price)
	return ProjectionView{
		Projection:  p,
		PresentText: f.FormatExact(p.Present) + " today",
		FutureText:  fmt.Sprintf("Could become %s in %d years", f.Format(p.Future), p.Years),
		SkipLabel:   "Skip & Save " + f.FormatExact(p.Present),
	}
}

func (s *Session) saved(total float64) SavedView {
	f := s.ic.formatter
	return SavedView{
		Saved:     s.price,
		Total:     total,
		SavedText: f.FormatExact(s.price),
		TotalText: f.FormatExact(total),
	}
}
