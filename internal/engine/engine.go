// Package engine runs the scanner and the purchase interceptor against one
// open page.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/dom"
	"github.com/sells-group/truecost/internal/intercept"
	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/scanner"
	"github.com/sells-group/truecost/internal/settings"
)

// SettingsSource loads the settings a tab renders with. *settings.Remote
// satisfies it; Local adapts a bare store.
type SettingsSource interface {
	Load(ctx context.Context) (model.Settings, error)
}

// Local loads settings from a local store only.
type Local struct {
	Store settings.Store
}

func (l Local) Load(ctx context.Context) (model.Settings, error) {
	return settings.Load(ctx, l.Store)
}

// Config wires a Tab. Local is required; the remaining collaborators are
// optional and the tab degrades to defaults without them.
type Config struct {
	Local     settings.Store
	Settings  SettingsSource
	Variants  intercept.VariantSource
	Recorder  intercept.Recorder
	Presenter intercept.Presenter

	Selectors         scanner.Selectors
	CheckoutSelectors []string
	VariantTimeout    time.Duration
}

// Tab serializes scans, clicks and settings reloads for one document.
type Tab struct {
	doc    dom.Document
	source SettingsSource

	mu       sync.Mutex
	settings model.Settings
	scanner  *scanner.Scanner
	ic       *intercept.Interceptor
}

// Open loads settings, scans the page and binds its checkout controls.
func Open(ctx context.Context, doc dom.Document, cfg Config) (*Tab, error) {
	if cfg.Local == nil {
		return nil, eris.New("engine: local settings store required")
	}
	src := cfg.Settings
	if src == nil {
		src = Local{Store: cfg.Local}
	}
	s, err := src.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load settings")
	}

	presenter := cfg.Presenter
	if presenter == nil {
		presenter = intercept.NewDOMPresenter(doc)
	}

	sc := scanner.New(doc, s, scanner.WithSelectors(cfg.Selectors))
	t := &Tab{
		doc:      doc,
		source:   src,
		settings: s,
		scanner:  sc,
		ic: intercept.New(doc, s, intercept.Config{
			Prices:            sc,
			Variants:          cfg.Variants,
			Recorder:          cfg.Recorder,
			Local:             cfg.Local,
			Presenter:         presenter,
			CheckoutSelectors: cfg.CheckoutSelectors,
			VariantTimeout:    cfg.VariantTimeout,
		}),
	}

	res := t.Scan()
	zap.L().Debug("engine: tab opened",
		zap.String("url", doc.URL()),
		zap.String("category", string(res.Category)),
		zap.Int("badges", len(res.Badges)),
	)
	return t, nil
}

// Settings returns the settings currently applied.
func (t *Tab) Settings() model.Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// Scan badges new prices and binds new checkout controls.
func (t *Tab) Scan() scanner.ScanResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := t.scanner.Scan()
	t.ic.Bind()
	return res
}

// ReloadSettings is the settings-changed event: badges are removed and, when
// enabled, redrawn with the new values.
func (t *Tab) ReloadSettings(ctx context.Context) (scanner.ScanResult, error) {
	s, err := t.source.Load(ctx)
	if err != nil {
		return scanner.ScanResult{}, eris.Wrap(err, "engine: reload settings")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = s
	res := t.scanner.UpdateSettings(s)
	t.ic.UpdateSettings(s)
	t.ic.Bind()
	return res, nil
}

// Click routes a click on el. Clicks on controls the interceptor has not
// bound run action immediately. A paused click returns its session; a click
// while a prompt is unresolved is held and returns the live session.
func (t *Tab) Click(ctx context.Context, el dom.Element, action intercept.Action) (*intercept.Session, bool) {
	t.mu.Lock()
	var sess *intercept.Session
	paused := false
	if intercept.Bound(el) {
		sess, paused = t.ic.HandleClick(ctx, action)
	}
	t.mu.Unlock()

	if !paused && action != nil {
		action()
	}
	return sess, paused
}

// Run rescans after every document change until ctx is done.
func (t *Tab) Run(ctx context.Context) error {
	err := t.scanner.Watch(ctx, func(scanner.ScanResult) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.ic.Bind()
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
