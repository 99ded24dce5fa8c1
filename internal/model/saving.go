package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// UserResponse is the answer to the want/need prompt.
type UserResponse string

const (
	ResponseNeed UserResponse = "need"
	ResponseWant UserResponse = "want"
)

// Valid reports whether r is a known response.
func (r UserResponse) Valid() bool {
	return r == ResponseNeed || r == ResponseWant
}

// FinalDecision is the outcome of an interception.
type FinalDecision string

const (
	DecisionPurchased FinalDecision = "purchased"
	DecisionSkipped   FinalDecision = "skipped"
)

// Valid reports whether d is a known decision.
func (d FinalDecision) Valid() bool {
	return d == DecisionPurchased || d == DecisionSkipped
}

// SavingRecord is one recorded purchase decision. Immutable once written.
type SavingRecord struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Price         float64       `json:"price"`
	Currency      string        `json:"currency"`
	URL           string        `json:"url,omitempty"`
	ProductTitle  string        `json:"product_title,omitempty"`
	VariantID     *string       `json:"question_variant_id"`
	UserResponse  UserResponse  `json:"user_response"`
	FinalDecision FinalDecision `json:"final_decision"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Skipped reports whether the purchase was skipped.
func (r SavingRecord) Skipped() bool {
	return r.FinalDecision == DecisionSkipped
}

// Validate rejects records missing required fields or violating the
// skipped-implies-want rule.
func (r SavingRecord) Validate() error {
	if r.Price <= 0 {
		return eris.Wrap(ErrValidation, "saving: price required")
	}
	if !r.FinalDecision.Valid() {
		return eris.Wrapf(ErrValidation, "saving: final_decision %q invalid", r.FinalDecision)
	}
	if r.UserResponse != "" && !r.UserResponse.Valid() {
		return eris.Wrapf(ErrValidation, "saving: user_response %q invalid", r.UserResponse)
	}
	if r.Skipped() && r.UserResponse != ResponseWant {
		return eris.Wrap(ErrValidation, "saving: skipped purchase must follow a want response")
	}
	return nil
}

// SkippedItem is the local log entry kept next to the running total.
type SkippedItem struct {
	Price     float64 `json:"price" msgpack:"price"`
	URL       string  `json:"url" msgpack:"url"`
	Timestamp int64   `json:"timestamp" msgpack:"timestamp"`
}

// Totals summarises skipped purchases in a time range.
type Totals struct {
	Total   float64        `json:"total"`
	Count   int            `json:"count"`
	Savings []SavingAmount `json:"savings"`
}

// SavingAmount is the per-row projection returned with Totals.
type SavingAmount struct {
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// TimeRange is a half-open [Start, End) window. A nil bound is unbounded.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && !t.Before(*r.End) {
		return false
	}
	return true
}
