package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/truecost/internal/auth"
	"github.com/sells-group/truecost/internal/config"
	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/resilience"
	"github.com/sells-group/truecost/internal/savings"
	"github.com/sells-group/truecost/internal/settings"
	"github.com/sells-group/truecost/internal/store"
	"github.com/sells-group/truecost/pkg/truecost"
)

type env struct {
	srv       *httptest.Server
	validator *auth.Validator
	store     *store.SQLiteStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	v, err := auth.NewValidator("api-test-secret", "")
	require.NoError(t, err)

	s := New(savings.NewService(st), v, config.ServerConfig{AllowedOrigin: "https://truecost.example"})
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return &env{srv: hs, validator: v, store: st}
}

func (e *env) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := e.validator.Sign(user, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) client(t *testing.T, user string) *truecost.Client {
	t.Helper()
	return truecost.NewClient(e.srv.URL, auth.Static{ID: user, AccessToken: e.token(t, user)},
		truecost.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
	)
}

func (e *env) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestRoutesRequireAuth(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/settings", "/variants/active", "/effectiveness", "/savings", "/savings/best-variant"} {
		resp, body := e.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "Not authenticated", body["error"], path)
	}
}

func TestClientRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.UpsertVariant(ctx, &model.QuestionVariant{ID: "v1", QuestionText: "Need it?", Subtext: "Honestly.", IsActive: true}))
	require.NoError(t, e.store.UpsertVariant(ctx, &model.QuestionVariant{ID: "v2", QuestionText: "Retired", IsActive: false}))
	c := e.client(t, "user-1")

	got, err := c.GetSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := model.Settings{Enabled: true, ConfirmBeforePurchase: true, ReturnRate: 8, Years: 20, MinPrice: 25}
	_, err = c.SaveSettings(ctx, want)
	require.NoError(t, err)
	got, err = c.GetSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	variants, err := c.ActiveVariants(ctx)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, "v1", variants[0].ID)

	v1 := "v1"
	for i := 0; i < 3; i++ {
		saved, err := c.RecordSaving(ctx, model.SavingRecord{Price: 49.99, VariantID: &v1, UserResponse: model.ResponseWant, FinalDecision: model.DecisionSkipped})
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, "user-1", saved.UserID)
		assert.Equal(t, "USD", saved.Currency)
	}
	_, err = c.RecordSaving(ctx, model.SavingRecord{Price: 10, VariantID: &v1, UserResponse: model.ResponseNeed, FinalDecision: model.DecisionPurchased})
	require.NoError(t, err)

	totals, err := c.Savings(ctx, savings.PeriodAll)
	require.NoError(t, err)
	assert.Equal(t, 3, totals.Count)
	assert.InDelta(t, 149.97, totals.Total, 1e-9)

	totals, err = c.SavingsBetween(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, totals.Count)

	stats, err := c.Effectiveness(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 4, stats[0].TimesShown)
	assert.Equal(t, 3, stats[0].TimesSkipped)

	best, err := c.BestVariant(ctx)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "v1", best.VariantID)
	assert.InDelta(t, 0.75, best.SkipRate, 1e-9)
	require.NotNil(t, best.Variant)
	assert.Equal(t, "Need it?", best.Variant.QuestionText)

	other := e.client(t, "user-2")
	totals, err = other.Savings(ctx, savings.PeriodAll)
	require.NoError(t, err)
	assert.Zero(t, totals.Count)
	assert.NotNil(t, totals.Savings)
}

func TestRecordSaving_Rejections(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "user-1")

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"missing price", `{"final_decision":"skipped"}`, http.StatusBadRequest, "Price and final_decision required"},
		{"missing decision", `{"price":12}`, http.StatusBadRequest, "Price and final_decision required"},
		{"malformed", `{"price":`, http.StatusBadRequest, "Invalid request body"},
		{"skip after need", `{"price":12,"user_response":"need","final_decision":"skipped"}`, http.StatusBadRequest, "want response"},
		{"skip without response", `{"price":12,"final_decision":"skipped"}`, http.StatusBadRequest, "want response"},
		{"negative price", `{"price":-3,"final_decision":"purchased"}`, http.StatusBadRequest, "price required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := e.do(t, http.MethodPost, "/savings", tok, tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Contains(t, body["error"], tt.wantErr)
		})
	}
}

func TestSaveSettings_Invalid(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodPost, "/settings", e.token(t, "user-1"), `{"return_rate":0,"years":10}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "return rate")
}

func TestTotals_InvalidRange(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodGet, "/savings?start_date=2026-02-01&end_date=2026-01-01", e.token(t, "user-1"), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEffectiveness_Aliases(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "user-1")

	resp, body := e.do(t, http.MethodGet, "/variants/effectiveness?user=user-1", tok, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "effectiveness")

	resp, body = e.do(t, http.MethodGet, "/effectiveness?user=user-2", tok, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Forbidden", body["error"])

	resp, body = e.do(t, http.MethodGet, "/variants", tok, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "variants")
}

func TestRefresh(t *testing.T) {
	e := newEnv(t)
	_, refresh, err := e.validator.SignPair("user-1", "u@example.com", time.Minute, time.Hour)
	require.NoError(t, err)

	resp, body := e.do(t, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]any)
	assert.Equal(t, "user-1", user["id"])
	sess := body["session"].(map[string]any)
	access := sess["access_token"].(string)

	resp, _ = e.do(t, http.MethodGet, "/settings", access, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+access+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "access tokens cannot refresh")

	resp, body = e.do(t, http.MethodPost, "/auth/refresh", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Refresh token required", body["error"])
}

func TestSessionRefreshAgainstServer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	access, refresh, err := e.validator.SignPair("user-1", "", time.Minute, time.Hour)
	require.NoError(t, err)

	sess := auth.NewSession(settings.NewMemoryStore(), e.srv.URL)
	require.NoError(t, sess.SignIn(ctx, access, refresh, auth.User{ID: "user-1"}))
	require.NoError(t, sess.Refresh(ctx))
	assert.True(t, sess.IsAuthenticated())
	assert.Equal(t, "user-1", sess.UserID())
}

func TestCORS(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		origin string
		allow  bool
	}{
		{"chrome-extension://abcdefghijklmnop", true},
		{"moz-extension://1234-5678", true},
		{"https://truecost.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, e.srv.URL+"/savings", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close() //nolint:errcheck

			if tt.allow {
				assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

type brokenService struct{ Service }

func (brokenService) ActiveVariants(context.Context) ([]model.QuestionVariant, error) {
	return nil, errors.New("connection reset")
}

func (brokenService) Record(context.Context, string, model.SavingRecord) (*model.SavingRecord, error) {
	return nil, model.ErrAggregationRace
}

func TestServiceFailures(t *testing.T) {
	v, err := auth.NewValidator("secret", "")
	require.NoError(t, err)
	tok, err := v.Sign("user-1", time.Hour)
	require.NoError(t, err)
	h := New(brokenService{}, v, config.ServerConfig{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/variants/active", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/savings", strings.NewReader(`{"price":5,"final_decision":"purchased"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAllowedOrigin(t *testing.T) {
	assert.True(t, allowedOrigin("chrome-extension://x", ""))
	assert.True(t, allowedOrigin("https://a.example", "*"))
	assert.False(t, allowedOrigin("https://a.example", ""))
	assert.False(t, allowedOrigin("https://a.example", "https://b.example"))
}
