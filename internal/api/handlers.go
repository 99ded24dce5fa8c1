package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/auth"
	"github.com/sells-group/truecost/internal/model"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps service errors onto status codes. Unexpected errors are logged
// and reported without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrAggregationRace):
		writeError(w, http.StatusConflict, "Concurrent update, please retry")
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// userID is always present behind auth.Middleware.
func userID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type sessionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token required")
		return
	}

	claims, err := s.validator.Validate(req.RefreshToken)
	if err != nil || claims.Use != auth.TokenUseRefresh {
		zap.L().Debug("api: refresh rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	access, refresh, err := s.validator.SignPair(claims.Subject, claims.Email, AccessTokenTTL, RefreshTokenTTL)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    sessionUser{ID: claims.Subject, Email: claims.Email},
		"session": sessionTokens{AccessToken: access, RefreshToken: refresh},
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Settings(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": st})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var st model.Settings
	if !decode(w, r, &st) {
		return
	}
	if err := s.svc.SaveSettings(r.Context(), userID(r), st); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": st})
}

func (s *Server) handleActiveVariants(w http.ResponseWriter, r *http.Request) {
	vs, err := s.svc.ActiveVariants(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variants": vs})
}

func (s *Server) handleEffectiveness(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if u := r.URL.Query().Get("user"); u != "" && u != id {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	stats, err := s.svc.Effectiveness(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"effectiveness": stats})
}

// savingRequest is the accepted POST /savings body. Ids and timestamps are
// assigned by the server.
type savingRequest struct {
	Price             float64             `json:"price"`
	Currency          string              `json:"currency"`
	URL               string              `json:"url"`
	ProductTitle      string              `json:"product_title"`
	QuestionVariantID *string             `json:"question_variant_id"`
	UserResponse      model.UserResponse  `json:"user_response"`
	FinalDecision     model.FinalDecision `json:"final_decision"`
}

func (s *Server) handleRecordSaving(w http.ResponseWriter, r *http.Request) {
	var req savingRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Price == 0 || req.FinalDecision == "" {
		writeError(w, http.StatusBadRequest, "Price and final_decision required")
		return
	}

	saved, err := s.svc.Record(r.Context(), userID(r), model.SavingRecord{
		Price:         req.Price,
		Currency:      req.Currency,
		URL:           req.URL,
		ProductTitle:  req.ProductTitle,
		VariantID:     req.QuestionVariantID,
		UserResponse:  req.UserResponse,
		FinalDecision: req.FinalDecision,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saving": saved})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := q.Get("start_date"), q.Get("end_date")
	if start == "" && end == "" {
		start, end = q.Get("start"), q.Get("end")
	}

	rng, err := s.svc.Range(q.Get("period"), start, end)
	if err != nil {
		fail(w, r, err)
		return
	}
	totals, err := s.svc.Totals(r.Context(), userID(r), rng)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleBestVariant(w http.ResponseWriter, r *http.Request) {
	best, err := s.svc.BestVariant(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"best_variant": best})
}
