package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/token"
)

func TestGetAnamnesisSession(t *testing.T) {
	s := newTestServer(t)
	tok := s.create(t)
	rec := s.do(t, http.MethodPost, "/api/signup-sessions/"+tok+"/complete", completeBody)
	require.Equal(t, http.StatusOK, rec.Code)
	at := decode(t, rec)["anamnese_token"].(string)

	rec = s.do(t, http.MethodGet, "/api/anamnesis-sessions/"+at, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "SENT", body["status"])
	assert.Equal(t, true, body["usable"])

	s.clock.Advance(7 * 24 * time.Hour)
	rec = s.do(t, http.MethodGet, "/api/anamnesis-sessions/"+at, "")
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestGetAnamnesisSession_CompletedIsNotUsable(t *testing.T) {
	s := newTestServer(t)
	at := token.New()
	s.store.anamneses[at] = &signup.AnamnesisSession{
		Token: at, Status: signup.StatusCompleted, ExpiresAt: s.clock.Now().Add(time.Hour),
	}

	rec := s.do(t, http.MethodGet, "/api/anamnesis-sessions/"+at, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["usable"])
}

func TestGetAnamnesisSession_Errors(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/anamnesis-sessions/x", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/anamnesis-sessions/"+token.New(), "").Code)
}
