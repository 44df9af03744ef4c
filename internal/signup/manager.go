package signup

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/metrics"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/token"
)

// Manager cuida de criar, carregar e salvar parcialmente as sessões de autocadastro.
// É seguro para uso concorrente; o gate de autosave é por token.
type Manager struct {
	store Store
	opts  options
}

func NewManager(store Store, opts ...Option) *Manager {
	o := buildOptions(opts)
	if o.gate == nil {
		o.gate = NewLocalGate(DefaultAutosaveInterval)
	}
	return &Manager{store: store, opts: o}
}

// CreateSession emite uma sessão nova. expiryHours <= 0 usa a validade padrão.
// Qualquer falha do store, ou resposta sem token/expiração válidos, vira ErrCreateFailed.
func (m *Manager) CreateSession(ctx context.Context, expiryHours int, source string, createdBy *string) (*Created, error) {
	ttl := m.opts.defaultExpiry
	if expiryHours > 0 {
		ttl = time.Duration(expiryHours) * time.Hour
	}
	created, err := m.store.CreateSession(ctx, NewSession{
		ExpiresAt: m.opts.now().Add(ttl),
		Source:    source,
		CreatedBy: createdBy,
	})
	if err != nil {
		m.opts.metrics.SessionCreateFailed()
		return nil, fail("create", ErrCreateFailed, err)
	}
	if created == nil || created.ExpiresAt.IsZero() || !token.IsValidSessionToken(created.Token) {
		m.opts.metrics.SessionCreateFailed()
		return nil, fail("create", ErrCreateFailed, errors.New("incomplete store response"))
	}
	m.opts.metrics.SessionCreated(source)
	m.opts.log.Info("signup session created",
		zap.String("source", source),
		zap.Time("expires_at", created.ExpiresAt),
	)
	return created, nil
}

// LoadSession devolve a sessão do token. Sessão concluída é um estado válido (sem erro);
// sessão vencida é ErrExpired mesmo que o store ainda diga SENT.
func (m *Manager) LoadSession(ctx context.Context, raw string) (*Session, error) {
	tok, ok := token.Parse(raw)
	if !ok {
		return nil, fail("load", ErrInvalidToken, nil)
	}
	s, err := m.store.GetSession(ctx, tok)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil, fail("load", ErrNotFound, nil)
	case err != nil:
		return nil, fail("load", ErrUnavailable, err)
	case s == nil:
		return nil, fail("load", ErrNotFound, nil)
	}
	if s.EffectiveStatus(m.opts.now()) == StatusExpired {
		return nil, fail("load", ErrExpired, nil)
	}
	return s, nil
}

// SaveAnswers é o autosave: mescla partial nas respostas gravadas. Dentro do intervalo
// mínimo desde o último save aceito a chamada não vai ao store e devolve true.
// Falhas são apenas registradas em log e devolvem false.
func (m *Manager) SaveAnswers(ctx context.Context, raw string, partial Answers) bool {
	tok, ok := token.Parse(raw)
	if !ok {
		m.opts.log.Debug("autosave: invalid token")
		return false
	}
	partial = NormalizeAnswers(partial)
	if partial.IsEmpty() {
		return true
	}
	if !m.opts.gate.Allow(ctx, tok) {
		m.opts.metrics.Autosave(metrics.AutosaveSkipped)
		return true
	}
	saved, err := m.store.SaveAnswers(ctx, tok, partial)
	if err != nil {
		m.opts.metrics.Autosave(metrics.AutosaveFailed)
		m.opts.log.Warn("autosave failed", zap.Error(err))
		return false
	}
	if !saved {
		m.opts.metrics.Autosave(metrics.AutosaveFailed)
		m.opts.log.Warn("autosave rejected by store (session completed, expired or missing)")
		return false
	}
	m.opts.metrics.Autosave(metrics.AutosaveSaved)
	return true
}
