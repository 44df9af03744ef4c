package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// Config guarda as credenciais da Twilio. From é o número WhatsApp (ex.: whatsapp:+14155238886).
// Telefones em E.164.
type Config struct {
	AccountSid string
	AuthToken  string
	From       string
	// BaseURL troca o endpoint da Twilio (testes).
	BaseURL string
}

func (c Config) enabled() bool {
	return c.AccountSid != "" && c.AuthToken != "" && c.From != ""
}

type Client struct {
	cfg  Config
	http *resty.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	base := cfg.BaseURL
	if base == "" {
		base = twilioBaseURL
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(10*time.Second).
		SetBasicAuth(cfg.AccountSid, cfg.AuthToken)
	return &Client{cfg: cfg, http: http, log: log}
}

// SendSignupLink manda o link de cadastro. Sem credenciais configuradas não faz nada e devolve nil.
func (c *Client) SendSignupLink(ctx context.Context, phone, fullName, url string) error {
	if !c.cfg.enabled() {
		return nil
	}
	greeting := "Olá!"
	if name := strings.TrimSpace(fullName); name != "" {
		greeting = "Olá, " + strings.Fields(name)[0] + "!"
	}
	body := fmt.Sprintf("%s Para agilizar seu atendimento, faça seu cadastro pelo link: %s", greeting, url)
	return c.send(ctx, phone, body)
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) send(ctx context.Context, to, body string) error {
	to = normalizeNumber(to)
	if to == "" {
		return fmt.Errorf("whatsapp: destinatário vazio")
	}
	from := c.cfg.From
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}
	var apiErr twilioError
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"To": to, "From": from, "Body": body}).
		SetError(&apiErr).
		Post("/Accounts/" + c.cfg.AccountSid + "/Messages.json")
	if err != nil {
		return fmt.Errorf("whatsapp: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("whatsapp: %s: %d %s", resp.Status(), apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("whatsapp: %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	c.log.Info("whatsapp message queued", zap.Int("status", resp.StatusCode()))
	return nil
}

// normalizeNumber aceita "+55 (11) 99999-0000", "5511999990000" ou "whatsapp:+55...".
func normalizeNumber(n string) string {
	n = strings.TrimPrefix(strings.TrimSpace(n), "whatsapp:")
	var b strings.Builder
	for _, r := range n {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "whatsapp:+" + b.String()
}
