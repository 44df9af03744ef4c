package signup

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrNotFound          = errors.New("session not found")
	ErrExpired           = errors.New("session expired")
	ErrCreateFailed      = errors.New("create session failed")
	ErrCompletionFailed  = errors.New("completion failed")
	ErrTokenUnresolvable = errors.New("anamnesis token unresolvable")
	ErrInvalidAnswers    = errors.New("invalid answers")
	ErrUnavailable       = errors.New("session store unavailable")
)

// Erros devolvidos pelo Store.
var (
	// ErrSessionNotFound: o token não existe.
	ErrSessionNotFound = errors.New("store: session not found")
	// ErrSessionClosed: a sessão existe mas venceu ou não aceita mais conclusão.
	ErrSessionClosed = errors.New("store: session closed")
)

// Error carrega a categoria (Kind) e a causa original, que fica só para log.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signup %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("signup %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(op string, kind, cause error) error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Kind devolve a categoria de err, ou nil se err não veio deste pacote.
func Kind(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	for _, k := range []error{ErrInvalidToken, ErrNotFound, ErrExpired, ErrCreateFailed,
		ErrCompletionFailed, ErrTokenUnresolvable, ErrInvalidAnswers, ErrUnavailable} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// UserMessage é o texto exibido ao usuário para cada categoria. Nunca inclui a causa.
func UserMessage(err error) string {
	switch Kind(err) {
	case ErrInvalidToken:
		return "Link inválido. Confira o endereço recebido."
	case ErrNotFound:
		return "Cadastro não encontrado. Solicite um novo link à clínica."
	case ErrExpired:
		return "Este link expirou. Solicite um novo link à clínica."
	case ErrCreateFailed:
		return "Não foi possível iniciar o cadastro. Tente novamente."
	case ErrCompletionFailed:
		return "Não foi possível concluir o cadastro. Seus dados foram salvos; tente novamente."
	case ErrTokenUnresolvable:
		return "Cadastro recebido, mas não foi possível abrir a anamnese. Entre em contato com a clínica."
	case ErrInvalidAnswers:
		return "Preencha nome, telefone, CPF e data de nascimento."
	case ErrUnavailable:
		return "Serviço indisponível no momento. Tente novamente."
	default:
		return "Erro inesperado. Tente novamente."
	}
}
