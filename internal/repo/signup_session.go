package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/crypto"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/token"
)

const DefaultAnamnesisTTL = 7 * 24 * time.Hour

// Store implementa signup.Store sobre o Postgres. Sessões e a transação de conclusão
// usam o pool pgx; buscas de paciente e anamnese usam gorm.
type Store struct {
	pool         *pgxpool.Pool
	db           *gorm.DB
	keys         *crypto.Keyring
	anamnesisTTL time.Duration
	now          func() time.Time
}

// NewStore monta o store. keys nil grava só o hash do CPF, sem o valor cifrado.
func NewStore(pool *pgxpool.Pool, db *gorm.DB, keys *crypto.Keyring, anamnesisTTL time.Duration) *Store {
	if anamnesisTTL <= 0 {
		anamnesisTTL = DefaultAnamnesisTTL
	}
	return &Store{pool: pool, db: db, keys: keys, anamnesisTTL: anamnesisTTL, now: time.Now}
}

var _ signup.Store = (*Store)(nil)

func (s *Store) CreateSession(ctx context.Context, in signup.NewSession) (*signup.Created, error) {
	var c signup.Created
	err := s.pool.QueryRow(ctx, `
		INSERT INTO signup_sessions (token, status, expires_at, source, created_by)
		VALUES ($1, 'SENT', $2, $3, $4)
		RETURNING token, expires_at
	`, token.New(), in.ExpiresAt, in.Source, in.CreatedBy).Scan(&c.Token, &c.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert signup session: %w", err)
	}
	return &c, nil
}

func (s *Store) GetSession(ctx context.Context, tok string) (*signup.Session, error) {
	var (
		sess    signup.Session
		status  string
		answers []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT token, status, expires_at, answers, linked_patient_id, source, created_by, created_at, completed_at
		FROM signup_sessions WHERE token = $1
	`, tok).Scan(&sess.Token, &status, &sess.ExpiresAt, &answers, &sess.LinkedPatientID,
		&sess.Source, &sess.CreatedBy, &sess.CreatedAt, &sess.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, signup.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signup session: %w", err)
	}
	sess.Status = signup.Status(status)
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &sess.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return &sess, nil
}

// SaveAnswers mescla os campos no JSONB gravado. Só afeta sessões SENT e não vencidas;
// nesses outros casos devolve false sem erro.
func (s *Store) SaveAnswers(ctx context.Context, tok string, partial signup.Answers) (bool, error) {
	patch, err := json.Marshal(partial)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE signup_sessions SET answers = answers || $2::jsonb
		WHERE token = $1 AND status = 'SENT' AND expires_at > now()
	`, tok, string(patch))
	if err != nil {
		return false, fmt.Errorf("save answers: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteSession finaliza a sessão numa única transação com a linha da sessão travada:
// reaproveita o paciente pelo hash do CPF (ou cria), vincula, emite a anamnese e marca COMPLETED.
func (s *Store) CompleteSession(ctx context.Context, tok string, a signup.Answers) (signup.CompletionResponse, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status    string
		expiresAt time.Time
	)
	err = tx.QueryRow(ctx, `SELECT status, expires_at FROM signup_sessions WHERE token = $1 FOR UPDATE`, tok).
		Scan(&status, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, signup.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock signup session: %w", err)
	}
	if signup.Status(status) == signup.StatusCompleted {
		return signup.IdempotentReplay{}, nil
	}
	now := s.now()
	if signup.Status(status) != signup.StatusSent || !now.Before(expiresAt) {
		return nil, signup.ErrSessionClosed
	}

	pid, err := s.upsertPatient(ctx, tx, a)
	if err != nil {
		return nil, err
	}
	anamnese := token.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO anamnesis_sessions (token, patient_id, status, expires_at)
		VALUES ($1, $2, 'SENT', $3)
	`, anamnese, pid, now.Add(s.anamnesisTTL)); err != nil {
		return nil, fmt.Errorf("insert anamnesis session: %w", err)
	}
	patch, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE signup_sessions
		SET status = 'COMPLETED', answers = answers || $2::jsonb, linked_patient_id = $3, completed_at = now()
		WHERE token = $1
	`, tok, string(patch), pid); err != nil {
		return nil, fmt.Errorf("complete signup session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return signup.StructuredResult{AnamneseToken: anamnese, PatientID: &pid}, nil
}

func (s *Store) upsertPatient(ctx context.Context, tx pgx.Tx, a signup.Answers) (uuid.UUID, error) {
	cpf := crypto.NormalizeCPF(value(a.CPF))
	var (
		ct, nonce []byte
		version   *string
	)
	hash := crypto.CPFHash(cpf)
	if s.keys != nil {
		sealed, err := s.keys.SealCPF(cpf)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encrypt cpf: %w", err)
		}
		ct, nonce, version = sealed.Ciphertext, sealed.Nonce, &sealed.KeyVersion
	}
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO patients (id, full_name, phone, email, birth_date, address, photo_url,
		                      cpf_encrypted, cpf_nonce, cpf_key_version, cpf_hash)
		VALUES ($1, $2, $3, NULLIF($4::text, ''), NULLIF($5::text, '')::date, NULLIF($6::text, ''), NULLIF($7::text, ''),
		        $8, $9, $10, $11)
		ON CONFLICT (cpf_hash) WHERE cpf_hash IS NOT NULL DO UPDATE SET updated_at = now()
		RETURNING id
	`, uuid.New(), value(a.Name), value(a.Phone), value(a.Email), value(a.BirthDate), value(a.Address), value(a.PhotoURL),
		ct, nonce, version, hash).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert patient: %w", err)
	}
	return id, nil
}

// Ping responde ao /ready.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
