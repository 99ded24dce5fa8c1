package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/auth"
	"github.com/sells-group/truecost/internal/resilience"
	"github.com/sells-group/truecost/internal/settings"
	"github.com/sells-group/truecost/pkg/truecost"
)

// clientEnv is the client-side stack: local settings store, signed-in
// identity and data service client.
type clientEnv struct {
	Local    settings.Store
	Session  *auth.Session
	Identity auth.Identity
	Client   *truecost.Client
}

// initClient opens the local store and restores the persisted session. A
// non-empty token overrides the session for one invocation.
func initClient(ctx context.Context, token, userID string) (*clientEnv, error) {
	local, err := settings.Open(ctx, cfg.Local)
	if err != nil {
		return nil, err
	}

	env := &clientEnv{Local: local}
	env.Session = auth.NewSession(local, cfg.Auth.BaseURL)
	env.Identity = env.Session

	if token != "" {
		env.Identity = auth.Static{ID: userID, AccessToken: token}
	} else if ok, err := env.Session.Restore(ctx); err != nil {
		zap.L().Warn("session not restored", zap.Error(err))
	} else if !ok {
		zap.L().Debug("no stored session, continuing signed out")
	}

	env.Client = newAPIClient(env.Identity)
	return env, nil
}

func newAPIClient(tokens truecost.TokenSource) *truecost.Client {
	timeout := time.Duration(cfg.API.TimeoutSecs) * time.Second
	return truecost.NewClient(cfg.API.BaseURL, tokens,
		truecost.WithHTTPClient(&http.Client{Timeout: timeout}),
		truecost.WithRateLimit(cfg.API.RatePerSec, cfg.API.Burst),
		truecost.WithRetry(resilience.FromRetryConfig(cfg.API.MaxAttempts, cfg.API.InitialBackoffMs, 0)),
		truecost.WithCircuitBreaker(resilience.FromCircuitConfig(cfg.API.FailureThreshold, cfg.API.ResetTimeoutSecs)),
	)
}

func (e *clientEnv) Close() {
	if err := e.Local.Close(); err != nil {
		zap.L().Warn("close local store", zap.Error(err))
	}
}
