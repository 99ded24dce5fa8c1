// Package decision submits purchase decisions to the data service without
// holding up the page.
package decision

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/model"
)

// DefaultTimeout bounds one background submission.
const DefaultTimeout = 5 * time.Second

// Decision is the outcome of one interception, before submission.
type Decision struct {
	Price        float64
	Currency     string
	Response     model.UserResponse
	Final        model.FinalDecision
	Variant      model.QuestionVariant
	URL          string
	ProductTitle string
}

// Record converts d into the submitted record. Built-in variants are not
// attributed.
func (d Decision) Record() model.SavingRecord {
	rec := model.SavingRecord{
		Price:         d.Price,
		Currency:      d.Currency,
		URL:           d.URL,
		ProductTitle:  d.ProductTitle,
		UserResponse:  d.Response,
		FinalDecision: d.Final,
	}
	if rec.Currency == "" {
		rec.Currency = "USD"
	}
	if d.Variant.ID != "" && !d.Variant.IsDefault() {
		id := d.Variant.ID
		rec.VariantID = &id
	}
	return rec
}

// Sink accepts saving records.
type Sink interface {
	RecordSaving(ctx context.Context, rec model.SavingRecord) (*model.SavingRecord, error)
}

// Authenticator reports whether decisions can be attributed to a user.
type Authenticator interface {
	IsAuthenticated() bool
}

// Recorder submits decisions to a Sink.
type Recorder struct {
	sink    Sink
	auth    Authenticator
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRecorder creates a Recorder. A non-positive timeout uses
// DefaultTimeout.
func NewRecorder(sink Sink, auth Authenticator, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Recorder{sink: sink, auth: auth, timeout: timeout}
}

// Record validates and submits d. Invalid decisions return an error wrapping
// model.ErrValidation and are never sent. Signed-out users and submission
// failures are not errors: the decision is dropped and logged.
func (r *Recorder) Record(ctx context.Context, d Decision) error {
	rec := d.Record()
	if err := rec.Validate(); err != nil {
		zap.L().Warn("decision: invalid, not submitted",
			zap.Float64("price", d.Price),
			zap.String("user_response", string(d.Response)),
			zap.String("final_decision", string(d.Final)),
			zap.Error(err),
		)
		return err
	}
	if r.sink == nil || r.auth == nil || !r.auth.IsAuthenticated() {
		return nil
	}

	if _, err := r.sink.RecordSaving(ctx, rec); err != nil {
		zap.L().Warn("decision: submission failed", zap.String("final_decision", string(d.Final)), zap.Error(err))
		return nil
	}
	zap.L().Debug("decision: recorded",
		zap.Float64("price", d.Price),
		zap.String("final_decision", string(d.Final)),
	)
	return nil
}

// RecordAsync submits d in the background within the configured timeout.
func (r *Recorder) RecordAsync(d Decision) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		_ = r.Record(ctx, d)
	}()
}

// Wait blocks until every background submission has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
