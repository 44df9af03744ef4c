package signup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/token"
)

type fakePatient struct {
	id    uuid.UUID
	cpf   string
	email string
}

// fakeStore implementa Store em memória com as mesmas regras do store Postgres.
type fakeStore struct {
	mu        sync.Mutex
	now       func() time.Time
	sessions  map[string]*Session
	patients  []fakePatient
	anamneses []AnamnesisSession

	createErr   error
	getErr      error
	saveErr     error
	completeErr error
	cpfErr      error
	// respond monta a resposta de uma conclusão nova; padrão: StructuredResult completo.
	respond func(anamnese string, pid uuid.UUID) CompletionResponse
	// anamnesisOverride, quando não vazio, é o que FindAnamnesisToken devolve.
	anamnesisOverride string
	// badCreate devolve uma resposta de criação sem token.
	badCreate bool

	createCalls, getCalls, saveCalls, completeCalls int
	cpfCalls, emailCalls, anamnesisCalls            int
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{now: now, sessions: make(map[string]*Session)}
}

func (f *fakeStore) CreateSession(_ context.Context, in NewSession) (*Created, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.badCreate {
		return &Created{ExpiresAt: in.ExpiresAt}, nil
	}
	tok := token.New()
	f.sessions[tok] = &Session{
		Token: tok, Status: StatusSent, ExpiresAt: in.ExpiresAt,
		Source: in.Source, CreatedBy: in.CreatedBy, CreatedAt: f.now(),
	}
	return &Created{Token: tok, ExpiresAt: in.ExpiresAt}, nil
}

func (f *fakeStore) GetSession(_ context.Context, tok string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[tok]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) SaveAnswers(_ context.Context, tok string, partial Answers) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return false, f.saveErr
	}
	s, ok := f.sessions[tok]
	if !ok || s.Status != StatusSent || !f.now().Before(s.ExpiresAt) {
		return false, nil
	}
	s.Answers = s.Answers.Merge(partial)
	return true, nil
}

func (f *fakeStore) CompleteSession(_ context.Context, tok string, a Answers) (CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	s, ok := f.sessions[tok]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Status == StatusCompleted {
		return IdempotentReplay{}, nil
	}
	if !f.now().Before(s.ExpiresAt) {
		return nil, ErrSessionClosed
	}
	pid := f.upsertPatient(a)
	anamnese := token.New()
	now := f.now()
	f.anamneses = append(f.anamneses, AnamnesisSession{
		Token: anamnese, PatientID: pid, Status: StatusSent,
		ExpiresAt: now.Add(7 * 24 * time.Hour), CreatedAt: now,
	})
	s.Answers = s.Answers.Merge(a)
	s.Status = StatusCompleted
	s.LinkedPatientID = &pid
	s.CompletedAt = &now
	if f.respond != nil {
		return f.respond(anamnese, pid), nil
	}
	return StructuredResult{AnamneseToken: anamnese, PatientID: &pid}, nil
}

func (f *fakeStore) upsertPatient(a Answers) uuid.UUID {
	for _, p := range f.patients {
		if a.CPF != nil && p.cpf == *a.CPF {
			return p.id
		}
	}
	p := fakePatient{id: uuid.New(), cpf: value(a.CPF), email: value(a.Email)}
	f.patients = append(f.patients, p)
	return p.id
}

func (f *fakeStore) FindPatientByCPF(_ context.Context, cpf string) (*uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpfCalls++
	if f.cpfErr != nil {
		return nil, f.cpfErr
	}
	for _, p := range f.patients {
		if p.cpf == cpf {
			id := p.id
			return &id, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindPatientByEmail(_ context.Context, email string) (*uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailCalls++
	for _, p := range f.patients {
		if p.email != "" && p.email == email {
			id := p.id
			return &id, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindAnamnesisToken(_ context.Context, pid uuid.UUID, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anamnesisCalls++
	if f.anamnesisOverride != "" {
		return f.anamnesisOverride, nil
	}
	var mine []AnamnesisSession
	for _, s := range f.anamneses {
		if s.PatientID == pid {
			mine = append(mine, s)
		}
	}
	return SelectAnamnesisToken(mine, now), nil
}

// unlink simula uma sessão concluída cujo vínculo com o paciente se perdeu.
func (f *fakeStore) unlink(tok string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tok].LinkedPatientID = nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func strp(s string) *string { return &s }

func fullAnswers(cpf string) Answers {
	return Answers{
		Name:      strp("Ana Souza"),
		Email:     strp("ana@example.com"),
		Phone:     strp("11999999999"),
		CPF:       strp(cpf),
		BirthDate: strp("1990-05-20"),
	}
}
