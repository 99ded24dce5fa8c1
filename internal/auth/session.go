package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/settings"
)

// User is the account behind a session.
type User struct {
	ID    string `json:"id" msgpack:"id"`
	Email string `json:"email,omitempty" msgpack:"email"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	User    *User      `json:"user"`
	Session *tokenPair `json:"session"`
	Error   string     `json:"error"`
}

// Session is the client-side Identity. Tokens are persisted in the local
// settings store and renewed against {baseURL}/auth/refresh. A failed
// refresh signs the user out.
type Session struct {
	store   settings.Store
	baseURL string
	http    *http.Client

	mu      sync.RWMutex
	access  string
	refresh string
	user    *User
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionHTTPClient sets the client used for refresh calls.
func WithSessionHTTPClient(hc *http.Client) SessionOption {
	return func(s *Session) { s.http = hc }
}

// NewSession creates a signed-out Session.
func NewSession(store settings.Store, baseURL string, opts ...SessionOption) *Session {
	s := &Session{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.access != ""
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// SignIn stores a fresh token pair.
func (s *Session) SignIn(ctx context.Context, access, refresh string, user User) error {
	s.mu.Lock()
	s.access, s.refresh, s.user = access, refresh, &user
	s.mu.Unlock()

	return eris.Wrap(s.store.Set(ctx, map[string]any{
		settings.KeyAccessToken:  access,
		settings.KeyRefreshToken: refresh,
		settings.KeyUser:         user,
	}), "auth: persist session")
}

// SignOut forgets the tokens locally.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.access, s.refresh, s.user = "", "", nil
	s.mu.Unlock()

	return eris.Wrap(s.store.Delete(ctx, settings.KeyAccessToken, settings.KeyRefreshToken, settings.KeyUser), "auth: clear session")
}

// Restore loads persisted tokens and validates them with a refresh. It
// reports whether a session survived.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	var access, refresh string
	var user User
	ok, err := s.store.Get(ctx, settings.KeyAccessToken, &access)
	if err != nil || !ok || access == "" {
		return false, eris.Wrap(err, "auth: restore session")
	}
	if _, err := s.store.Get(ctx, settings.KeyRefreshToken, &refresh); err != nil {
		return false, eris.Wrap(err, "auth: restore session")
	}
	if _, err := s.store.Get(ctx, settings.KeyUser, &user); err != nil {
		return false, eris.Wrap(err, "auth: restore session")
	}

	s.mu.Lock()
	s.access, s.refresh, s.user = access, refresh, &user
	s.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		return false, err
	}
	return s.IsAuthenticated(), nil
}

// Refresh exchanges the refresh token for a new pair. Without a refresh
// token it does nothing. Any failure signs the session out and returns an
// error wrapping model.ErrUnavailable.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	refresh := s.refresh
	s.mu.RUnlock()
	if refresh == "" {
		return nil
	}

	resp, err := s.postRefresh(ctx, refresh)
	if err != nil {
		zap.L().Info("auth: session refresh failed, signing out", zap.Error(err))
		if serr := s.SignOut(ctx); serr != nil {
			zap.L().Warn("auth: sign out", zap.Error(serr))
		}
		return eris.Wrapf(model.ErrUnavailable, "auth: refresh: %v", err)
	}

	user := User{ID: s.UserID()}
	if resp.User != nil {
		user = *resp.User
	}
	return s.SignIn(ctx, resp.Session.AccessToken, resp.Session.RefreshToken, user)
}

func (s *Session) postRefresh(ctx context.Context, refresh string) (*refreshResponse, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refresh})
	if err != nil {
		return nil, eris.Wrap(err, "auth: marshal refresh")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "auth: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "auth: refresh request")
	}
	defer httpResp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "auth: read response body")
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrapf(err, "auth: unmarshal refresh response (status %d)", httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("auth: refresh status %d: %s", httpResp.StatusCode, out.Error)
	}
	if out.Session == nil || out.Session.AccessToken == "" {
		return nil, eris.New("auth: refresh response without session")
	}
	return &out, nil
}
