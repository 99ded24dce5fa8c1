package intercept

import "github.com/rotisserie/eris"

// State is the lifecycle position of an interception Session.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateAwaitingConfirmation
	StateResolvedNeed
	StateResolvedBuyAnyway
	StateResolvedSkipped
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateResolvedNeed:
		return "resolved_need"
	case StateResolvedBuyAnyway:
		return "resolved_buy_anyway"
	case StateResolvedSkipped:
		return "resolved_skipped"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s >= StateResolvedNeed
}

// ErrInvalidTransition is returned for an event the current state does not
// accept.
var ErrInvalidTransition = eris.New("intercept: invalid transition")

// Choice is the answer to the opportunity-cost step.
type Choice string

const (
	ChoiceSkip      Choice = "skip"
	ChoiceBuyAnyway Choice = "buy_anyway"
)
