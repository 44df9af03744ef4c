package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/metrics"
)

// Expirer grava EXPIRED nas sessões SENT vencidas até now e devolve quantas mudaram.
type Expirer interface {
	ExpireSignupSessions(ctx context.Context, now time.Time) (int64, error)
	ExpireAnamnesisSessions(ctx context.Context, now time.Time) (int64, error)
}

type Result struct {
	Signup    int64
	Anamnesis int64
}

// Sweeper persiste a expiração que a leitura já aplica em memória, para relatórios e limpeza.
type Sweeper struct {
	store   Expirer
	log     *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

func New(store Expirer, log *zap.Logger, rec metrics.Recorder) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Sweeper{store: store, log: log, metrics: rec, now: time.Now}
}

// Sweep faz uma passada. Falha em um tipo de sessão não impede o outro; o primeiro erro é devolvido.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.now()
	var res Result
	var firstErr error

	n, err := s.store.ExpireSignupSessions(ctx, now)
	if err != nil {
		s.log.Error("expire signup sessions", zap.Error(err))
		firstErr = err
	} else {
		res.Signup = n
		s.metrics.SessionsExpired("signup", int(n))
	}

	n, err = s.store.ExpireAnamnesisSessions(ctx, now)
	if err != nil {
		s.log.Error("expire anamnesis sessions", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	} else {
		res.Anamnesis = n
		s.metrics.SessionsExpired("anamnesis", int(n))
	}

	s.log.Info("sweep done", zap.Int64("signup", res.Signup), zap.Int64("anamnesis", res.Anamnesis))
	return res, firstErr
}

// Run faz uma passada imediata e repete a cada interval até ctx acabar.
// interval <= 0 faz só a primeira passada.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	_, err := s.Sweep(ctx)
	if interval <= 0 {
		return err
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_, _ = s.Sweep(ctx)
		}
	}
}
