package settings

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/config"
	"github.com/sells-group/truecost/internal/model"
)

// Open returns the local store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.LocalConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, eris.Errorf("settings: unknown local driver %q", cfg.Driver)
	}
}

// Load reads the user settings, filling any missing key from defaults.
func Load(ctx context.Context, st Store) (model.Settings, error) {
	return LoadWithDefaults(ctx, st, model.DefaultSettings())
}

// LoadWithDefaults is Load with caller-supplied defaults.
func LoadWithDefaults(ctx context.Context, st Store, def model.Settings) (model.Settings, error) {
	s := def
	fields := []struct {
		key string
		dst any
	}{
		{KeyEnabled, &s.Enabled},
		{KeyConfirmBeforePurchase, &s.ConfirmBeforePurchase},
		{KeyReturnRate, &s.ReturnRate},
		{KeyYears, &s.Years},
		{KeyMinPrice, &s.MinPrice},
	}
	for _, f := range fields {
		if _, err := st.Get(ctx, f.key, f.dst); err != nil {
			return def, eris.Wrapf(err, "settings: load %s", f.key)
		}
	}
	return s, nil
}

// Save validates s and writes every key.
func Save(ctx context.Context, st Store, s model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return st.Set(ctx, map[string]any{
		KeyEnabled:               s.Enabled,
		KeyConfirmBeforePurchase: s.ConfirmBeforePurchase,
		KeyReturnRate:            s.ReturnRate,
		KeyYears:                 s.Years,
		KeyMinPrice:              s.MinPrice,
	})
}

// AppendSkipped adds item.Price to the running total and appends item to the
// skipped-items log. It returns the new total.
func AppendSkipped(ctx context.Context, st Store, item model.SkippedItem) (float64, error) {
	if item.Timestamp == 0 {
		item.Timestamp = time.Now().UnixMilli()
	}
	total, err := st.AddFloat(ctx, KeyTotalSaved, item.Price)
	if err != nil {
		return 0, err
	}

	items, err := SkippedItems(ctx, st)
	if err != nil {
		return total, err
	}
	items = append(items, item)
	if err := st.Set(ctx, map[string]any{KeySkippedItems: items}); err != nil {
		return total, eris.Wrap(err, "settings: append skipped item")
	}
	return total, nil
}

// SkippedItems returns the local skipped-items log, oldest first.
func SkippedItems(ctx context.Context, st Store) ([]model.SkippedItem, error) {
	var items []model.SkippedItem
	if _, err := st.Get(ctx, KeySkippedItems, &items); err != nil {
		return nil, eris.Wrap(err, "settings: read skipped items")
	}
	return items, nil
}

// TotalSaved returns the running local total.
func TotalSaved(ctx context.Context, st Store) (float64, error) {
	return st.Float(ctx, KeyTotalSaved)
}

// Profile is the remote settings profile kept by the data service.
type Profile interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) (*model.Settings, error)
}

// Authenticator reports whether a signed-in identity is available.
type Authenticator interface {
	IsAuthenticated() bool
}

// Remote layers the remote profile over the local store. The remote copy
// wins when reachable; the local copy is the fallback.
type Remote struct {
	local   Store
	profile Profile
	auth    Authenticator
}

// NewRemote creates a Remote.
func NewRemote(local Store, profile Profile, auth Authenticator) *Remote {
	return &Remote{local: local, profile: profile, auth: auth}
}

// Load returns the remote profile when signed in and reachable, caching it
// locally; otherwise the local settings.
func (r *Remote) Load(ctx context.Context) (model.Settings, error) {
	local, err := Load(ctx, r.local)
	if err != nil {
		return local, err
	}
	if r.profile == nil || r.auth == nil || !r.auth.IsAuthenticated() {
		return local, nil
	}

	remote, err := r.profile.GetSettings(ctx)
	if err != nil {
		zap.L().Warn("settings: remote profile unavailable, using local", zap.Error(err))
		return local, nil
	}
	if remote == nil {
		return local, nil
	}
	if err := Save(ctx, r.local, *remote); err != nil {
		zap.L().Warn("settings: ignoring invalid remote profile", zap.Error(err))
		return local, nil
	}
	return *remote, nil
}

// Save writes s locally and, when signed in, pushes it to the remote profile.
// Remote failures are logged, not returned.
func (r *Remote) Save(ctx context.Context, s model.Settings) error {
	if err := Save(ctx, r.local, s); err != nil {
		return err
	}
	if r.profile == nil || r.auth == nil || !r.auth.IsAuthenticated() {
		return nil
	}
	if _, err := r.profile.SaveSettings(ctx, s); err != nil {
		zap.L().Warn("settings: remote save failed", zap.Error(err))
	}
	return nil
}
