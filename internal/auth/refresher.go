package auth

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultRefreshSchedule renews the session every 30 minutes.
const DefaultRefreshSchedule = "@every 30m"

// Refresher renews a Session on a cron schedule.
type Refresher struct {
	cron    *cron.Cron
	session *Session
	timeout time.Duration
}

// NewRefresher registers the refresh job. An empty schedule uses
// DefaultRefreshSchedule.
func NewRefresher(session *Session, schedule string) (*Refresher, error) {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	r := &Refresher{cron: cron.New(), session: session, timeout: 30 * time.Second}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, eris.Wrapf(err, "auth: bad refresh schedule %q", schedule)
	}
	return r, nil
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if !r.session.IsAuthenticated() {
		return
	}
	if err := r.session.Refresh(ctx); err != nil {
		zap.L().Warn("auth: scheduled refresh failed", zap.Error(err))
		return
	}
	zap.L().Debug("auth: session refreshed", zap.String("user_id", r.session.UserID()))
}

// Start begins the schedule in its own goroutine.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}
