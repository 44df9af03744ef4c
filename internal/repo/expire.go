package repo

import (
	"context"
	"fmt"
	"time"
)

// ExpireSignupSessions grava EXPIRED nas sessões de cadastro SENT vencidas até now.
func (s *Store) ExpireSignupSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
		UPDATE signup_sessions SET status = 'EXPIRED'
		WHERE status = 'SENT' AND expires_at <= ?
	`, now)
	if res.Error != nil {
		return 0, fmt.Errorf("expire signup sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ExpireAnamnesisSessions faz o mesmo para as sessões de anamnese.
func (s *Store) ExpireAnamnesisSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
		UPDATE anamnesis_sessions SET status = 'EXPIRED'
		WHERE status = 'SENT' AND expires_at <= ?
	`, now)
	if res.Error != nil {
		return 0, fmt.Errorf("expire anamnesis sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
