package email

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNoRecipient   = errors.New("email: destinatário vazio")
	ErrNotConfigured = errors.New("email: SMTP host ou remetente não configurado")
)

type Config struct {
	Host     string
	Port     int
	User     string
	Pass     string
	FromName string
	FromAddr string
}

// Sender envia e-mails via SMTP. sendMail pode ser trocado nos testes.
type Sender struct {
	cfg      Config
	log      *zap.Logger
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSender(cfg Config, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	return &Sender{cfg: cfg, log: log, sendMail: smtp.SendMail}
}

// Attachment é um anexo em base64 no corpo MIME.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

func (s *Sender) Send(to, subject, body string, attachments ...Attachment) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	if s.cfg.Host == "" || s.cfg.FromAddr == "" {
		return ErrNotConfigured
	}
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	msg := s.buildMessage(to, subject, body, attachments)
	if err := s.sendMail(addr, s.auth(), s.cfg.FromAddr, []string{to}, msg); err != nil {
		s.log.Warn("email send failed", zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Info("email sent", zap.String("subject", subject), zap.Int("attachments", len(attachments)))
	return nil
}

func (s *Sender) buildMessage(to, subject, body string, attachments []Attachment) []byte {
	from := s.cfg.FromAddr
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.FromName), s.cfg.FromAddr)
	}
	var buf bytes.Buffer
	buf.WriteString("From: " + from + "\r\n")
	buf.WriteString("To: " + to + "\r\n")
	buf.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	buf.WriteString("MIME-Version: 1.0\r\n")
	if len(attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(body)
		return buf.Bytes()
	}
	const boundary = "boundary-cadastro-paciente"
	buf.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n\r\n")
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(body)
	for _, a := range attachments {
		buf.WriteString("\r\n--" + boundary + "\r\n")
		buf.WriteString("Content-Type: " + a.ContentType + "; name=\"" + a.Name + "\"\r\n")
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		buf.WriteString("Content-Disposition: attachment; filename=\"" + a.Name + "\"\r\n\r\n")
		// RFC 2045: linhas de no máximo 76 caracteres
		encoded := base64.StdEncoding.EncodeToString(a.Data)
		for i := 0; i < len(encoded); i += 76 {
			end := min(i+76, len(encoded))
			buf.WriteString(encoded[i:end] + "\r\n")
		}
	}
	buf.WriteString("\r\n--" + boundary + "--\r\n")
	return buf.Bytes()
}

// auth é nil sem usuário (ex.: MailHog), e aí o AUTH não é enviado.
func (s *Sender) auth() smtp.Auth {
	if s.cfg.User != "" {
		return smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}
	return nil
}

var signupLinkTpl = template.Must(template.New("signup").Parse(`Olá{{if .FullName}}, {{.FullName}}{{end}},

A clínica enviou um link para você fazer seu cadastro de paciente. Suas respostas são salvas enquanto você preenche.

{{.URL}}

O link vale até {{.ExpiresAt}}. Se você não esperava este e-mail, ignore.`))

// SendSignupLink envia o link de autocadastro. O PDF do folheto vai anexado quando informado.
func (s *Sender) SendSignupLink(to, fullName, url string, expiresAt time.Time, handout []byte) error {
	var b bytes.Buffer
	err := signupLinkTpl.Execute(&b, map[string]string{
		"FullName":  fullName,
		"URL":       url,
		"ExpiresAt": expiresAt.In(saoPaulo).Format("02/01/2006 15:04"),
	})
	if err != nil {
		return err
	}
	var atts []Attachment
	if len(handout) > 0 {
		atts = append(atts, Attachment{Name: "cadastro.pdf", ContentType: "application/pdf", Data: handout})
	}
	return s.Send(to, "Cadastro de paciente - Clínica Loraine", b.String(), atts...)
}

// LogConfigSummary registra a config SMTP (sem senha) na subida do serviço.
func (s *Sender) LogConfigSummary() {
	s.log.Info("smtp config",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.String("from", s.cfg.FromAddr),
		zap.Bool("auth", s.cfg.User != ""),
	)
	if s.cfg.Host == "" || s.cfg.FromAddr == "" {
		s.log.Warn("smtp host or from is empty; e-mail delivery will fail")
	}
}

func PortFromString(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
