package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/middleware"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error":      code,
		"message":    message,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
}

// writeSignupError traduz as categorias de signup em status HTTP. A causa vai só para o log.
func (h *Handler) writeSignupError(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	status, code, retryable := http.StatusInternalServerError, "internal", true
	switch signup.Kind(err) {
	case signup.ErrInvalidToken:
		status, code, retryable = http.StatusBadRequest, "invalid_token", false
	case signup.ErrInvalidAnswers:
		status, code, retryable = http.StatusBadRequest, "invalid_answers", false
	case signup.ErrNotFound:
		status, code, retryable = http.StatusNotFound, "not_found", false
	case signup.ErrExpired:
		status, code, retryable = http.StatusGone, "expired", false
	case signup.ErrCreateFailed:
		status, code = http.StatusServiceUnavailable, "create_failed"
	case signup.ErrUnavailable:
		status, code = http.StatusServiceUnavailable, "unavailable"
	case signup.ErrCompletionFailed:
		status, code = http.StatusBadGateway, "completion_failed"
	case signup.ErrTokenUnresolvable:
		status, code, retryable = http.StatusConflict, "token_unresolvable", false
	}
	if status >= 500 {
		h.log().Error("signup request failed", zap.String("code", code), zap.Error(err))
	} else {
		h.log().Debug("signup request rejected", zap.String("code", code), zap.Error(err))
	}

	body := map[string]any{
		"error":      code,
		"message":    signup.UserMessage(err),
		"request_id": middleware.RequestIDFromContext(r.Context()),
		"retryable":  retryable,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}
