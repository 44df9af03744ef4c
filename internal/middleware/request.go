package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// RequestID garante um X-Request-ID em toda request, no context e na resposta.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" || len(rid) > 64 {
			rid = uuid.New().String()
			r.Header.Set("X-Request-ID", rid)
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, rid)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

// Recover devolve 500 em JSON quando o handler entra em pânico, com stack no log.
// Também registra uma linha por request. Vai no router (mux.Use) para enxergar o template
// da rota: o path cru carrega o token da sessão e não entra no log.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				route := routeTemplate(r)
				if p := recover(); p != nil {
					log.Error("panic",
						zap.String("request_id", r.Header.Get("X-Request-ID")),
						zap.String("route", route),
						zap.Any("panic", p),
						zap.ByteString("stack", debug.Stack()),
					)
					if rec.status == 0 {
						writeError(rec, r, http.StatusInternalServerError, "internal", "Erro inesperado. Tente novamente.")
					}
					return
				}
				log.Info("request",
					zap.String("request_id", r.Header.Get("X-Request-ID")),
					zap.String("method", r.Method),
					zap.String("route", route),
					zap.Int("status", rec.status),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
