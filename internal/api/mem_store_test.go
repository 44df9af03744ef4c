package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/token"
)

// memStore é um signup.Store em memória para os testes de handler.
type memStore struct {
	mu        sync.Mutex
	now       func() time.Time
	sessions  map[string]*signup.Session
	patients  map[string]uuid.UUID
	anamneses map[string]*signup.AnamnesisSession

	createErr   error
	completeErr error
	pingErr     error
	saveCalls   int
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:       now,
		sessions:  map[string]*signup.Session{},
		patients:  map[string]uuid.UUID{},
		anamneses: map[string]*signup.AnamnesisSession{},
	}
}

func (m *memStore) CreateSession(_ context.Context, in signup.NewSession) (*signup.Created, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	tok := token.New()
	m.sessions[tok] = &signup.Session{
		Token: tok, Status: signup.StatusSent, ExpiresAt: in.ExpiresAt,
		Source: in.Source, CreatedBy: in.CreatedBy, CreatedAt: m.now(),
	}
	return &signup.Created{Token: tok, ExpiresAt: in.ExpiresAt}, nil
}

func (m *memStore) GetSession(_ context.Context, tok string) (*signup.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tok]
	if !ok {
		return nil, signup.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) SaveAnswers(_ context.Context, tok string, partial signup.Answers) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	s, ok := m.sessions[tok]
	if !ok || s.Status != signup.StatusSent {
		return false, nil
	}
	s.Answers = s.Answers.Merge(partial)
	return true, nil
}

func (m *memStore) CompleteSession(_ context.Context, tok string, a signup.Answers) (signup.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	s, ok := m.sessions[tok]
	if !ok {
		return nil, signup.ErrSessionNotFound
	}
	if s.Status == signup.StatusCompleted {
		return signup.IdempotentReplay{}, nil
	}
	if !m.now().Before(s.ExpiresAt) {
		return nil, signup.ErrSessionClosed
	}
	pid, ok := m.patients[*a.CPF]
	if !ok {
		pid = uuid.New()
		m.patients[*a.CPF] = pid
	}
	at := token.New()
	m.anamneses[at] = &signup.AnamnesisSession{
		Token: at, PatientID: pid, Status: signup.StatusSent,
		ExpiresAt: m.now().Add(7 * 24 * time.Hour), CreatedAt: m.now(),
	}
	done := m.now()
	s.Status = signup.StatusCompleted
	s.LinkedPatientID = &pid
	s.CompletedAt = &done
	s.Answers = s.Answers.Merge(a)
	return signup.StructuredResult{AnamneseToken: at, PatientID: &pid}, nil
}

func (m *memStore) FindPatientByCPF(_ context.Context, cpf string) (*uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.patients[cpf]; ok {
		return &id, nil
	}
	return nil, nil
}

func (m *memStore) FindPatientByEmail(context.Context, string) (*uuid.UUID, error) {
	return nil, nil
}

func (m *memStore) FindAnamnesisToken(_ context.Context, pid uuid.UUID, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []signup.AnamnesisSession
	for _, a := range m.anamneses {
		if a.PatientID == pid {
			all = append(all, *a)
		}
	}
	return signup.SelectAnamnesisToken(all, now), nil
}

func (m *memStore) GetAnamnesisSession(_ context.Context, tok string) (*signup.AnamnesisSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.anamneses[tok]
	if !ok {
		return nil, signup.ErrSessionNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }
