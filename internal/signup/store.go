package signup

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store é a fronteira com a persistência das sessões, pacientes e anamneses.
// Tokens recebidos aqui já foram sanitizados e validados.
type Store interface {
	// CreateSession emite um token novo com a expiração pedida.
	CreateSession(ctx context.Context, in NewSession) (*Created, error)
	// GetSession devolve ErrSessionNotFound quando o token não existe.
	GetSession(ctx context.Context, token string) (*Session, error)
	// SaveAnswers mescla os campos informados nas respostas gravadas.
	SaveAnswers(ctx context.Context, token string, partial Answers) (bool, error)
	// CompleteSession cria (ou reaproveita) o paciente e finaliza a sessão.
	// Uma sessão já concluída resulta em IdempotentReplay, não em erro.
	CompleteSession(ctx context.Context, token string, answers Answers) (CompletionResponse, error)
	// FindPatientByCPF recebe o CPF só com dígitos. nil quando não há paciente.
	FindPatientByCPF(ctx context.Context, cpf string) (*uuid.UUID, error)
	FindPatientByEmail(ctx context.Context, email string) (*uuid.UUID, error)
	// FindAnamnesisToken devolve o token da anamnese SENT mais recente e não expirada em now,
	// ou "" quando não há.
	FindAnamnesisToken(ctx context.Context, patientID uuid.UUID, now time.Time) (string, error)
}
