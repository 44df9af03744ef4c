// Package api expõe o fluxo público de autocadastro via HTTP (gorilla/mux).
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/auth"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/config"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/middleware"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
)

// AnamnesisReader lê a sessão do formulário seguinte ao cadastro.
type AnamnesisReader interface {
	GetAnamnesisSession(ctx context.Context, token string) (*signup.AnamnesisSession, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// LinkMailer envia o link de cadastro por e-mail, com o folheto em anexo quando houver.
type LinkMailer interface {
	SendSignupLink(to, fullName, url string, expiresAt time.Time, handout []byte) error
}

// LinkMessenger envia o link de cadastro por WhatsApp.
type LinkMessenger interface {
	SendSignupLink(ctx context.Context, phone, fullName, url string) error
}

type Handler struct {
	Manager   *signup.Manager
	Resolver  *signup.Resolver
	Anamnesis AnamnesisReader
	Ready     Pinger
	Cfg       *config.Config
	Log       *zap.Logger

	mailer    LinkMailer
	messenger LinkMessenger
	now       func() time.Time
}

func (h *Handler) SetLinkMailer(m LinkMailer) { h.mailer = m }

func (h *Handler) SetLinkMessenger(m LinkMessenger) { h.messenger = m }

func (h *Handler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *Handler) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}

// Routes registra as rotas públicas do cadastro, o folheto (só equipe) e os health checks.
// createLimiter pode ser nil.
func (h *Handler) Routes(r *mux.Router, createLimiter *middleware.RateLimiter) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.Readiness).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	create := middleware.OptionalAuth(h.Cfg.JWTSecret)(http.HandlerFunc(h.CreateSignupSession))
	if createLimiter != nil {
		create = createLimiter.Middleware(create)
	}
	api.Handle("/signup-sessions", create).Methods(http.MethodPost)
	api.HandleFunc("/signup-sessions/{token}", h.GetSignupSession).Methods(http.MethodGet)
	api.HandleFunc("/signup-sessions/{token}/answers", h.SaveSignupAnswers).Methods(http.MethodPatch)
	api.HandleFunc("/signup-sessions/{token}/complete", h.CompleteSignupSession).Methods(http.MethodPost)
	api.HandleFunc("/signup-sessions/{token}/qrcode.png", h.SignupQRCode).Methods(http.MethodGet)

	staff := func(next http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(h.Cfg.JWTSecret)(
			middleware.RequireRole(auth.RoleProfessional, auth.RoleReceptionist, auth.RoleAdmin)(next))
	}
	api.Handle("/signup-sessions/{token}/handout.pdf", staff(h.SignupHandout)).Methods(http.MethodGet)

	api.HandleFunc("/anamnesis-sessions/{token}", h.GetAnamnesisSession).Methods(http.MethodGet)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.Ready == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no store"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Ready.Ping(ctx); err != nil {
		h.log().Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
