package rpcstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/crypto"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
)

var _ signup.Store = (*Store)(nil)

type sessionRow struct {
	Token           string          `json:"token"`
	Status          string          `json:"status"`
	ExpiresAt       time.Time       `json:"expires_at"`
	Answers         json.RawMessage `json:"answers"`
	LinkedPatientID *uuid.UUID      `json:"linked_patient_id"`
	Source          string          `json:"source"`
	CreatedBy       *string         `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at"`
}

type createdRow struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Store) CreateSession(ctx context.Context, in signup.NewSession) (*signup.Created, error) {
	raw, err := s.rpc(ctx, "create_signup_session", map[string]any{
		"p_expires_at": in.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"p_source":     in.Source,
		"p_created_by": in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	var row createdRow
	if err := decodeOne(raw, &row); err != nil {
		return nil, fmt.Errorf("create_signup_session: %w", err)
	}
	return &signup.Created{Token: row.Token, ExpiresAt: row.ExpiresAt}, nil
}

func (s *Store) GetSession(ctx context.Context, tok string) (*signup.Session, error) {
	var rows []sessionRow
	err := s.selectRows(ctx, "signup_sessions", map[string]string{
		"token":  "eq." + tok,
		"select": "*",
		"limit":  "1",
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, signup.ErrSessionNotFound
	}
	r := rows[0]
	sess := &signup.Session{
		Token: r.Token, Status: signup.Status(r.Status), ExpiresAt: r.ExpiresAt,
		LinkedPatientID: r.LinkedPatientID, Source: r.Source, CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt, CompletedAt: r.CompletedAt,
	}
	if len(r.Answers) > 0 && !bytes.Equal(r.Answers, []byte("null")) {
		if err := json.Unmarshal(r.Answers, &sess.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return sess, nil
}

func (s *Store) SaveAnswers(ctx context.Context, tok string, partial signup.Answers) (bool, error) {
	raw, err := s.rpc(ctx, "save_signup_answers", map[string]any{"p_token": tok, "p_answers": partial})
	if err != nil {
		return false, err
	}
	var saved bool
	if err := decodeOne(raw, &saved); err != nil {
		return false, fmt.Errorf("save_signup_answers: %w", err)
	}
	return saved, nil
}

// CompleteSession traduz a resposta remota para um dos casos de signup.CompletionResponse.
// A conclusão repetida chega como erro do backend e vira IdempotentReplay.
func (s *Store) CompleteSession(ctx context.Context, tok string, a signup.Answers) (signup.CompletionResponse, error) {
	raw, err := s.rpc(ctx, "complete_signup_session", map[string]any{"p_token": tok, "p_answers": a})
	if err != nil {
		if e, ok := asAPIError(err); ok && e.alreadyCompleted() {
			s.log.Info("complete_signup_session: session already completed", zap.String("code", e.Code))
			return signup.IdempotentReplay{}, nil
		}
		if e, ok := asAPIError(err); ok {
			switch e.Code {
			case CodeSessionClosed:
				return nil, fmt.Errorf("%w: %w", signup.ErrSessionClosed, e)
			case CodeSessionNotFound:
				return nil, fmt.Errorf("%w: %w", signup.ErrSessionNotFound, e)
			}
		}
		return nil, err
	}
	return signup.DecodeCompletionResponse(raw)
}

type idRow struct {
	ID uuid.UUID `json:"id"`
}

func (s *Store) FindPatientByCPF(ctx context.Context, cpf string) (*uuid.UUID, error) {
	var rows []idRow
	err := s.selectRows(ctx, "patients", map[string]string{
		"cpf_hash": "eq." + crypto.CPFHash(crypto.NormalizeCPF(cpf)),
		"select":   "id",
		"limit":    "1",
	}, &rows)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0].ID, nil
}

func (s *Store) FindPatientByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	var rows []idRow
	err := s.selectRows(ctx, "patients", map[string]string{
		"email":  "eq." + email,
		"select": "id",
		"order":  "created_at.desc",
		"limit":  "1",
	}, &rows)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0].ID, nil
}

type anamnesisRow struct {
	Token     string    `json:"token"`
	PatientID uuid.UUID `json:"patient_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) FindAnamnesisToken(ctx context.Context, patientID uuid.UUID, now time.Time) (string, error) {
	var rows []anamnesisRow
	err := s.selectRows(ctx, "anamnesis_sessions", map[string]string{
		"patient_id": "eq." + patientID.String(),
		"status":     "eq." + string(signup.StatusSent),
		"select":     "token,patient_id,status,expires_at,created_at",
		"order":      "created_at.desc",
	}, &rows)
	if err != nil {
		return "", err
	}
	// o filtro de expiração é aplicado aqui, com o relógio de quem chama
	list := make([]signup.AnamnesisSession, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.session())
	}
	return signup.SelectAnamnesisToken(list, now), nil
}

func (s *Store) GetAnamnesisSession(ctx context.Context, tok string) (*signup.AnamnesisSession, error) {
	var rows []anamnesisRow
	err := s.selectRows(ctx, "anamnesis_sessions", map[string]string{
		"token":  "eq." + tok,
		"select": "token,patient_id,status,expires_at,created_at",
		"limit":  "1",
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, signup.ErrSessionNotFound
	}
	a := rows[0].session()
	return &a, nil
}

func (r anamnesisRow) session() signup.AnamnesisSession {
	return signup.AnamnesisSession{
		Token: r.Token, PatientID: r.PatientID, Status: signup.Status(r.Status),
		ExpiresAt: r.ExpiresAt, CreatedAt: r.CreatedAt,
	}
}

// Ping consulta a raiz da API para o /ready.
func (s *Store) Ping(ctx context.Context) error {
	resp, err := s.http.R().SetContext(ctx).SetError(&APIError{}).Get("/")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// decodeOne aceita o valor puro ou uma lista com um único elemento.
func decodeOne(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		if len(items) != 1 {
			return fmt.Errorf("expected one row, got %d", len(items))
		}
		raw = items[0]
	}
	return json.Unmarshal(raw, out)
}
