package model

import (
	"strings"
	"time"
)

// DefaultVariantPrefix marks built-in prompts that are never persisted.
const DefaultVariantPrefix = "default-"

// QuestionVariant is one wording of the want/need prompt.
type QuestionVariant struct {
	ID           string    `json:"id" yaml:"id"`
	QuestionText string    `json:"question_text" yaml:"question_text"`
	Subtext      string    `json:"subtext" yaml:"subtext"`
	IsActive     bool      `json:"is_active" yaml:"is_active"`
	CreatedAt    time.Time `json:"created_at,omitempty" yaml:"-"`
}

// IsDefault reports whether v is a built-in fallback prompt.
func (v QuestionVariant) IsDefault() bool {
	return strings.HasPrefix(v.ID, DefaultVariantPrefix)
}

// DefaultVariants returns the built-in prompts used when the adaptive source
// is unavailable.
func DefaultVariants() []QuestionVariant {
	return []QuestionVariant{
		{ID: "default-1", QuestionText: "Is this a want or a need?", Subtext: "Be honest with yourself.", IsActive: true},
		{ID: "default-2", QuestionText: "Will this purchase bring lasting joy?", Subtext: "Think about how you'll feel in a month.", IsActive: true},
		{ID: "default-3", QuestionText: "Do you really need this right now?", Subtext: "Consider if you could wait.", IsActive: true},
		{ID: "default-4", QuestionText: "Is future-you going to thank you for this?", Subtext: "Think long-term.", IsActive: true},
	}
}

// VariantText is the joined prompt text attached to stats listings.
type VariantText struct {
	QuestionText string `json:"question_text"`
	Subtext      string `json:"subtext"`
}

// EffectivenessStat counts how often a variant was shown to a user and how
// often it led to a skipped purchase.
type EffectivenessStat struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	VariantID    string       `json:"question_variant_id"`
	TimesShown   int          `json:"times_shown"`
	TimesSkipped int          `json:"times_skipped"`
	TotalSaved   float64      `json:"total_saved"`
	Variant      *VariantText `json:"question_variants,omitempty"`
}

// SkipRate returns TimesSkipped/TimesShown, or 0 for an unshown variant.
func (s EffectivenessStat) SkipRate() float64 {
	if s.TimesShown == 0 {
		return 0
	}
	return float64(s.TimesSkipped) / float64(s.TimesShown)
}

// BestVariant is the most effective variant for a user.
type BestVariant struct {
	EffectivenessStat
	SkipRate float64 `json:"skip_rate"`
}
