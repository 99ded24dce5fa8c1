// Package settings persists the engine's local key-value state: user
// preferences, the running savings total, the skipped-items log and the auth
// session tokens.
package settings

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/vmihailenco/msgpack/v5"
)

// Keys of the local store.
const (
	KeyEnabled               = "enabled"
	KeyConfirmBeforePurchase = "confirm_before_purchase"
	KeyReturnRate            = "return_rate"
	KeyYears                 = "years"
	KeyMinPrice              = "min_price"

	KeyTotalSaved   = "total_saved"
	KeySkippedItems = "skipped_items"

	KeyAccessToken  = "api_access_token"
	KeyRefreshToken = "api_refresh_token"
	KeyUser         = "api_user"
)

// Store is the local key-value store. Values are msgpack-encoded. Counters
// live in their own namespace and are only reachable through AddFloat and
// Float.
type Store interface {
	// Get decodes the value at key into dst and reports whether it existed.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set writes all values at once.
	Set(ctx context.Context, values map[string]any) error
	Delete(ctx context.Context, keys ...string) error

	// AddFloat atomically adds delta to the counter at key and returns the
	// new value. A missing counter starts at zero.
	AddFloat(ctx context.Context, key string, delta float64) (float64, error)
	// Float returns the counter at key, or zero.
	Float(ctx context.Context, key string) (float64, error)

	Close() error
}

func encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	return b, eris.Wrap(err, "settings: encode")
}

func decode(b []byte, dst any) error {
	return eris.Wrap(msgpack.Unmarshal(b, dst), "settings: decode")
}
