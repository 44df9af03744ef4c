package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/crypto"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
)

type idRow struct {
	ID uuid.UUID
}

type tokenRow struct {
	Token string
}

// FindPatientByCPF procura pelo hash; o CPF em claro nunca chega ao banco.
func (s *Store) FindPatientByCPF(ctx context.Context, cpf string) (*uuid.UUID, error) {
	var rows []idRow
	err := s.db.WithContext(ctx).Raw(`SELECT id FROM patients WHERE cpf_hash = ? LIMIT 1`,
		crypto.CPFHash(crypto.NormalizeCPF(cpf))).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find patient by cpf: %w", err)
	}
	return firstID(rows), nil
}

func (s *Store) FindPatientByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	var rows []idRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT id FROM patients WHERE lower(email) = lower(?)
		ORDER BY created_at DESC LIMIT 1
	`, email).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find patient by email: %w", err)
	}
	return firstID(rows), nil
}

func (s *Store) FindAnamnesisToken(ctx context.Context, patientID uuid.UUID, now time.Time) (string, error) {
	var rows []tokenRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT token FROM anamnesis_sessions
		WHERE patient_id = ? AND status = 'SENT' AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1
	`, patientID, now).Scan(&rows).Error
	if err != nil {
		return "", fmt.Errorf("find anamnesis token: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Token, nil
}

type anamnesisRow struct {
	Token     string
	PatientID uuid.UUID
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// GetAnamnesisSession lê a sessão do formulário seguinte. signup.ErrSessionNotFound quando não existe.
func (s *Store) GetAnamnesisSession(ctx context.Context, tok string) (*signup.AnamnesisSession, error) {
	var rows []anamnesisRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT token, patient_id, status, expires_at, created_at
		FROM anamnesis_sessions WHERE token = ?
	`, tok).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get anamnesis session: %w", err)
	}
	if len(rows) == 0 {
		return nil, signup.ErrSessionNotFound
	}
	r := rows[0]
	return &signup.AnamnesisSession{
		Token: r.Token, PatientID: r.PatientID, Status: signup.Status(r.Status),
		ExpiresAt: r.ExpiresAt, CreatedAt: r.CreatedAt,
	}, nil
}

func firstID(rows []idRow) *uuid.UUID {
	if len(rows) == 0 {
		return nil
	}
	id := rows[0].ID
	return &id
}
