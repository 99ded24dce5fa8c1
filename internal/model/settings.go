package model

import "github.com/rotisserie/eris"

// Settings holds the user preferences that drive badge rendering and
// purchase interception.
type Settings struct {
	Enabled               bool    `json:"enabled" msgpack:"enabled" mapstructure:"enabled"`
	ConfirmBeforePurchase bool    `json:"confirm_before_purchase" msgpack:"confirm_before_purchase" mapstructure:"confirm_before_purchase"`
	ReturnRate            float64 `json:"return_rate" msgpack:"return_rate" mapstructure:"return_rate"`
	Years                 int     `json:"years" msgpack:"years" mapstructure:"years"`
	MinPrice              float64 `json:"min_price" msgpack:"min_price" mapstructure:"min_price"`
}

// DefaultSettings returns the settings applied on a fresh install and for
// any key missing from the local store.
func DefaultSettings() Settings {
	return Settings{
		Enabled:               true,
		ConfirmBeforePurchase: false,
		ReturnRate:            7,
		Years:                 10,
		MinPrice:              10,
	}
}

// Validate checks that the settings can produce a meaningful future value.
func (s Settings) Validate() error {
	if s.ReturnRate <= 0 {
		return eris.Wrapf(ErrValidation, "settings: return rate must be positive, got %v", s.ReturnRate)
	}
	if s.Years <= 0 {
		return eris.Wrapf(ErrValidation, "settings: years must be positive, got %d", s.Years)
	}
	if s.MinPrice < 0 {
		return eris.Wrapf(ErrValidation, "settings: min price must not be negative, got %v", s.MinPrice)
	}
	return nil
}
