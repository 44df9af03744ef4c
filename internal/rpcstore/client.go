// Package rpcstore implementa signup.Store sobre um backend gerenciado no estilo PostgREST:
// funções remotas em POST /rest/v1/rpc/<fn> e leituras em GET /rest/v1/<tabela>.
package rpcstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// CodeAlreadyCompleted é o código que a função de conclusão levanta quando a sessão
// já foi concluída por uma chamada anterior.
const CodeAlreadyCompleted = "SGN01"

// Códigos levantados pela conclusão para sessão vencida ou fechada e para token desconhecido.
const (
	CodeSessionClosed   = "SGN02"
	CodeSessionNotFound = "SGN03"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// APIError é o corpo de erro devolvido pelo backend.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rpc %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("rpc %d: %s", e.Status, e.Message)
}

// alreadyCompleted reconhece a conclusão repetida pelo código estruturado e, na falta dele,
// pela mensagem.
func (e *APIError) alreadyCompleted() bool {
	if e.Code == CodeAlreadyCompleted {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "already completed")
}

// Store fala com o backend remoto. É seguro para uso concorrente.
type Store struct {
	http *resty.Client
	log  *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/rest/v1").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("apikey", cfg.APIKey).SetAuthToken(cfg.APIKey)
	}
	return &Store{http: client, log: log}
}

// rpc chama uma função remota e devolve o corpo cru da resposta.
func (s *Store) rpc(ctx context.Context, fn string, body any) (json.RawMessage, error) {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&APIError{}).
		Post("/rpc/" + fn)
	if err != nil {
		return nil, fmt.Errorf("rpc %s: %w", fn, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return json.RawMessage(resp.Body()), nil
}

// selectRows lê uma tabela com filtros PostgREST e decodifica a lista em out.
func (s *Store) selectRows(ctx context.Context, table string, params map[string]string, out any) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(&APIError{}).
		Get("/" + table)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *resty.Response) error {
	e, ok := resp.Error().(*APIError)
	if !ok || e == nil {
		e = &APIError{}
	}
	e.Status = resp.StatusCode()
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(resp.Body()))
	}
	return e
}

// asAPIError é errors.As com o tipo do pacote.
func asAPIError(err error) (*APIError, bool) {
	var e *APIError
	ok := errors.As(err, &e)
	return e, ok
}
