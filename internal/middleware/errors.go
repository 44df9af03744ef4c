package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError usa o mesmo corpo de erro dos handlers da API.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      code,
		"message":    message,
		"request_id": RequestIDFromContext(r.Context()),
	})
}
