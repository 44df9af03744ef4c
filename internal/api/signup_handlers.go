package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/auth"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/pdf"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
)

const (
	maxBodyBytes      = 64 << 10
	maxExpiryHours    = 30 * 24
	maxSourceLen      = 32
	defaultQRSize     = 256
	minQRSize         = 128
	maxQRSize         = 1024
	deliverySent      = "sent"
	deliveryFailed    = "failed"
	deliveryNotWanted = "skipped"
)

type CreateSignupSessionRequest struct {
	ExpiresInHours int    `json:"expires_in_hours"`
	Source         string `json:"source"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	FullName       string `json:"full_name"`
}

type sessionView struct {
	Token       string         `json:"token"`
	Status      signup.Status  `json:"status"`
	Completed   bool           `json:"completed"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Answers     signup.Answers `json:"answers"`
	Source      string         `json:"source,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// decodeBody aceita corpo vazio (mantém v zerado) e rejeita JSON malformado.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) CreateSignupSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSignupSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "Corpo da requisição inválido.")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.ExpiresInHours < 0 || req.ExpiresInHours > maxExpiryHours {
		writeError(w, r, http.StatusBadRequest, "invalid_expiry", "Validade deve ficar entre 1 e 720 horas.")
		return
	}
	if req.Email != "" && ValidateEmailRegex(req.Email) != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_email", "E-mail inválido.")
		return
	}
	if req.Phone != "" && ValidatePhone(req.Phone) != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_phone", "Telefone inválido. Informe DDD e número.")
		return
	}

	createdBy := auth.UserIDFrom(r.Context())
	source := strings.ToLower(strings.TrimSpace(req.Source))
	if source == "" {
		source = "public"
		if createdBy != nil {
			source = "staff"
		}
	}
	if len(source) > maxSourceLen {
		source = source[:maxSourceLen]
	}

	created, err := h.Manager.CreateSession(r.Context(), req.ExpiresInHours, source, createdBy)
	if err != nil {
		h.writeSignupError(w, r, err, nil)
		return
	}
	url := h.Cfg.SignupURL(created.Token)
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      created.Token,
		"expires_at": created.ExpiresAt,
		"url":        url,
		"delivery":   h.deliverLink(r, req, url, created.ExpiresAt),
	})
}

// deliverLink envia o link pelos canais pedidos. Falha de entrega não desfaz a sessão.
func (h *Handler) deliverLink(r *http.Request, req CreateSignupSessionRequest, url string, expiresAt time.Time) map[string]string {
	out := map[string]string{"email": deliveryNotWanted, "whatsapp": deliveryNotWanted}
	if req.Email != "" && h.mailer != nil {
		handout, err := h.buildHandout(url, expiresAt)
		if err != nil {
			h.log().Warn("handout for e-mail failed", zap.Error(err))
		}
		out["email"] = deliverySent
		if err := h.mailer.SendSignupLink(req.Email, req.FullName, url, expiresAt, handout); err != nil {
			h.log().Warn("signup link e-mail failed", zap.Error(err))
			out["email"] = deliveryFailed
		}
	}
	if req.Phone != "" && h.messenger != nil {
		out["whatsapp"] = deliverySent
		if err := h.messenger.SendSignupLink(r.Context(), req.Phone, req.FullName, url); err != nil {
			h.log().Warn("signup link whatsapp failed", zap.Error(err))
			out["whatsapp"] = deliveryFailed
		}
	}
	return out
}

func (h *Handler) buildHandout(url string, expiresAt time.Time) ([]byte, error) {
	return pdf.BuildSignupHandout(pdf.Handout{
		ClinicName: h.Cfg.ClinicName,
		URL:        url,
		ExpiresAt:  expiresAt,
		Location:   h.Cfg.Location(),
	})
}

func (h *Handler) GetSignupSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.LoadSession(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.writeSignupError(w, r, err, nil)
		return
	}
	status := s.EffectiveStatus(h.clock())
	writeJSON(w, http.StatusOK, sessionView{
		Token:       s.Token,
		Status:      status,
		Completed:   status == signup.StatusCompleted,
		ExpiresAt:   s.ExpiresAt,
		Answers:     s.Answers,
		Source:      s.Source,
		CompletedAt: s.CompletedAt,
	})
}

// SaveSignupAnswers é o autosave do formulário. Só corpo malformado vira erro; o resto é {saved}.
func (h *Handler) SaveSignupAnswers(w http.ResponseWriter, r *http.Request) {
	var a signup.Answers
	if err := decodeBody(w, r, &a); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "Corpo da requisição inválido.")
		return
	}
	saved := h.Manager.SaveAnswers(r.Context(), mux.Vars(r)["token"], a)
	writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

func (h *Handler) CompleteSignupSession(w http.ResponseWriter, r *http.Request) {
	var a signup.Answers
	if err := decodeBody(w, r, &a); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "Corpo da requisição inválido.")
		return
	}
	res, err := h.Resolver.Complete(r.Context(), mux.Vars(r)["token"], a)
	if err != nil {
		var extra map[string]any
		if errors.Is(err, signup.ErrInvalidAnswers) {
			extra = map[string]any{"missing": signup.MissingRequired(signup.NormalizeAnswers(a))}
		}
		h.writeSignupError(w, r, err, extra)
		return
	}
	body := struct {
		PatientID     *uuid.UUID `json:"patient_id,omitempty"`
		AnamneseToken string     `json:"anamnese_token"`
		NextURL       string     `json:"next_url"`
	}{res.PatientID, res.AnamneseToken, h.Cfg.AnamnesisURL(res.AnamneseToken)}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) SignupQRCode(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.LoadSession(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.writeSignupError(w, r, err, nil)
		return
	}
	size := defaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			size = min(max(n, minQRSize), maxQRSize)
		}
	}
	png, err := pdf.QRCodePNG(h.Cfg.SignupURL(s.Token), size)
	if err != nil {
		h.log().Error("qrcode failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal", "Não foi possível gerar o QR code.")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// SignupHandout gera o folheto A4 para impressão na recepção.
func (h *Handler) SignupHandout(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.LoadSession(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.writeSignupError(w, r, err, nil)
		return
	}
	if s.Status == signup.StatusCompleted {
		writeError(w, r, http.StatusConflict, "already_completed", "Este cadastro já foi concluído.")
		return
	}
	doc, err := h.buildHandout(h.Cfg.SignupURL(s.Token), s.ExpiresAt)
	if err != nil {
		h.log().Error("handout failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal", "Não foi possível gerar o folheto.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="cadastro.pdf"`)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(doc)
}
