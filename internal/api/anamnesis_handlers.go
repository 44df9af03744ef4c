package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/token"
)

type anamnesisView struct {
	Token     string        `json:"token"`
	PatientID uuid.UUID     `json:"patient_id"`
	Status    signup.Status `json:"status"`
	Usable    bool          `json:"usable"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// GetAnamnesisSession informa se o formulário seguinte ainda pode ser preenchido.
// Só SENT dentro da validade é utilizável; vencida responde 410.
func (h *Handler) GetAnamnesisSession(w http.ResponseWriter, r *http.Request) {
	tok, ok := token.Parse(mux.Vars(r)["token"])
	if !ok {
		h.writeSignupError(w, r, signup.ErrInvalidToken, nil)
		return
	}
	a, err := h.Anamnesis.GetAnamnesisSession(r.Context(), tok)
	switch {
	case errors.Is(err, signup.ErrSessionNotFound):
		h.writeSignupError(w, r, signup.ErrNotFound, nil)
		return
	case err != nil:
		h.writeSignupError(w, r, fmt.Errorf("%w: %w", signup.ErrUnavailable, err), nil)
		return
	}
	status := a.Status
	if status == signup.StatusSent && !h.clock().Before(a.ExpiresAt) {
		status = signup.StatusExpired
	}
	if status == signup.StatusExpired {
		h.writeSignupError(w, r, signup.ErrExpired, nil)
		return
	}
	writeJSON(w, http.StatusOK, anamnesisView{
		Token:     a.Token,
		PatientID: a.PatientID,
		Status:    status,
		Usable:    status == signup.StatusSent,
		ExpiresAt: a.ExpiresAt,
	})
}
