package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Claims are the JWT claims accepted by the data service.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Use   string `json:"use,omitempty"`
}

// TokenUseRefresh marks tokens that may only be exchanged at /auth/refresh.
const TokenUseRefresh = "refresh"

// Validator verifies HS256 bearer tokens.
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator creates a Validator. An empty issuer accepts any issuer.
func NewValidator(secret, issuer string) (*Validator, error) {
	if secret == "" {
		return nil, eris.New("auth: jwt secret required")
	}
	return &Validator{secret: []byte(secret), issuer: issuer}, nil
}

// Validate parses token and returns its claims. The subject is required.
func (v *Validator) Validate(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "auth: validate token")
	}
	if !parsed.Valid {
		return nil, eris.New("auth: invalid token")
	}
	if claims.Subject == "" {
		return nil, eris.New("auth: token subject required")
	}
	return claims, nil
}

// Sign issues an access token for subject valid for ttl.
func (v *Validator) Sign(subject string, ttl time.Duration) (string, error) {
	return v.sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}, ttl)
}

// SignPair issues an access token and a refresh token for subject.
func (v *Validator) SignPair(subject, email string, accessTTL, refreshTTL time.Duration) (access, refresh string, err error) {
	access, err = v.sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}, Email: email}, accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = v.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject, ID: uuid.New().String()},
		Email:            email,
		Use:              TokenUseRefresh,
	}, refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (v *Validator) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.Issuer = v.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	return s, eris.Wrap(err, "auth: sign token")
}

type ctxKey struct{}

// WithUserID returns ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the id stored by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the token subject in the request context.
func Middleware(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "Not authenticated")
				return
			}
			claims, err := v.Validate(token)
			if err == nil && claims.Use == TokenUseRefresh {
				err = eris.New("auth: refresh token used as bearer")
			}
			if err != nil {
				zap.L().Debug("auth: rejected token", zap.String("path", r.URL.Path), zap.Error(err))
				unauthorized(w, "Not authenticated")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
