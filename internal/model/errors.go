package model

import "github.com/rotisserie/eris"

// Error taxonomy shared by the engine and the savings service. Callers match
// with errors.Is; every site wraps these with context via eris.
var (
	// ErrParseFailure marks price text that could not be turned into a number.
	ErrParseFailure = eris.New("price text not parseable")
	// ErrUnavailable marks a failed collaborator call or missing identity.
	ErrUnavailable = eris.New("service unavailable")
	// ErrValidation marks a decision or settings value rejected before submission.
	ErrValidation = eris.New("validation failed")
	// ErrAggregationRace marks a concurrent upsert collision on effectiveness stats.
	ErrAggregationRace = eris.New("effectiveness update collided")
	// ErrNotFound marks a missing row.
	ErrNotFound = eris.New("not found")
)
