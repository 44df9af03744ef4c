package middleware

import (
	"net/http"
	"strings"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/auth"
)

// RequireAuth barra a request sem um Bearer JWT válido.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Autenticação necessária.")
				return
			}
			claims, err := auth.ParseJWT(secret, raw)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Sessão inválida ou expirada.")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole exige RequireAuth antes na cadeia.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := auth.RoleFrom(r.Context())
			for _, want := range roles {
				if role == want {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, http.StatusForbidden, "forbidden", "Acesso restrito à equipe da clínica.")
		})
	}
}

// OptionalAuth lê o Bearer token se houver; ausente ou inválido segue sem claims.
func OptionalAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := extractBearer(r); raw != "" {
				if claims, err := auth.ParseJWT(secret, raw); err == nil {
					r = r.WithContext(auth.WithClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
