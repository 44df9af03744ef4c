// Package signup implementa o fluxo público de autocadastro de pacientes: criação de sessão
// por token, autosave das respostas e conclusão idempotente com resolução do token da anamnese.
package signup

import (
	"time"

	"github.com/google/uuid"
)

// Status é o ciclo de vida persistido de uma sessão (autocadastro ou anamnese).
type Status string

const (
	StatusSent      Status = "SENT"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// Session é uma sessão de autocadastro vista pelo fluxo público.
type Session struct {
	Token           string
	Status          Status
	ExpiresAt       time.Time
	Answers         Answers
	LinkedPatientID *uuid.UUID
	Source          string
	CreatedBy       *string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// EffectiveStatus considera a expiração: uma sessão não concluída com ExpiresAt <= now
// é EXPIRED, mesmo que o store ainda diga SENT.
func (s *Session) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusCompleted {
		return StatusCompleted
	}
	if s.Status == StatusExpired || !now.Before(s.ExpiresAt) {
		return StatusExpired
	}
	return s.Status
}

// NewSession são os parâmetros de criação repassados ao store.
type NewSession struct {
	ExpiresAt time.Time
	Source    string
	CreatedBy *string
}

// Created é o retorno mínimo da criação de sessão.
type Created struct {
	Token     string
	ExpiresAt time.Time
}

// AnamnesisSession é a sessão do formulário seguinte, emitida para um paciente.
type AnamnesisSession struct {
	Token     string
	PatientID uuid.UUID
	Status    Status
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SelectAnamnesisToken escolhe, entre as sessões de um paciente, a mais recente com status
// SENT cuja expiração ainda não passou. Retorna "" quando não há candidata.
func SelectAnamnesisToken(sessions []AnamnesisSession, now time.Time) string {
	var best *AnamnesisSession
	for i := range sessions {
		s := &sessions[i]
		if s.Status != StatusSent || !now.Before(s.ExpiresAt) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	if best == nil {
		return ""
	}
	return best.Token
}
