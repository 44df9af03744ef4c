package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendRPC      = "rpc"

	defaultJWTSecret = "default-secret-min-32-chars-required!!"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnLifetime time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	RequestTimeoutSec int           `mapstructure:"REQUEST_TIMEOUT_SEC"`
	JWTSecretRaw      string        `mapstructure:"JWT_SECRET"`
	CORSOriginsRaw    string        `mapstructure:"CORS_ORIGINS"`

	DataEncryptionKeys string `mapstructure:"DATA_ENCRYPTION_KEYS"`
	CurrentDataKeyVer  string `mapstructure:"CURRENT_DATA_KEY_VERSION"`

	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      string `mapstructure:"SMTP_PORT"`
	SMTPUser      string `mapstructure:"SMTP_USER"`
	SMTPPass      string `mapstructure:"SMTP_PASS"`
	SMTPFromName  string `mapstructure:"SMTP_FROM_NAME"`
	SMTPFromEmail string `mapstructure:"SMTP_FROM_EMAIL"`
	AppPublicURL  string `mapstructure:"APP_PUBLIC_URL"`
	// WhatsApp (Twilio) para envio do link de cadastro
	TwilioAccountSid   string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppFrom string `mapstructure:"TWILIO_WHATSAPP_FROM"`

	RedisURL     string `mapstructure:"REDIS_URL"`
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	RPCBaseURL   string `mapstructure:"RPC_BASE_URL"`
	RPCAPIKey    string `mapstructure:"RPC_API_KEY"`

	SignupDefaultExpiryHours int           `mapstructure:"SIGNUP_DEFAULT_EXPIRY_HOURS"`
	AutosaveInterval         time.Duration `mapstructure:"AUTOSAVE_INTERVAL"`
	AnamnesisExpiryHours     int           `mapstructure:"ANAMNESIS_EXPIRY_HOURS"`
	// 0 = o sweeper roda uma vez e sai
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
	// > 0 liga o sweeper dentro do servidor (só Postgres), com métricas no /metrics
	ServerSweepInterval time.Duration `mapstructure:"SERVER_SWEEP_INTERVAL"`
	// destino das métricas do cmd/sweeper; vazio = não envia
	PushgatewayURL string `mapstructure:"PUSHGATEWAY_URL"`
	// POST público de criação, por IP
	CreateRatePerMin int `mapstructure:"CREATE_RATE_PER_MIN"`
	// CIDRs dos proxies cujo X-Forwarded-For é aceito; vazio = só o endereço da conexão
	TrustedProxiesRaw string `mapstructure:"TRUSTED_PROXIES"`
	ClinicName        string `mapstructure:"CLINIC_NAME"`
	Timezone          string `mapstructure:"TIMEZONE"`

	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
	ServiceName string `mapstructure:"SERVICE_NAME"`

	JWTSecret      []byte         `mapstructure:"-"`
	CORSOrigins    []string       `mapstructure:"-"`
	TrustedProxies []netip.Prefix `mapstructure:"-"`
}

var keys = []string{
	"PORT", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_MAX_CONN_LIFETIME", "REQUEST_TIMEOUT_SEC",
	"JWT_SECRET", "CORS_ORIGINS", "DATA_ENCRYPTION_KEYS", "CURRENT_DATA_KEY_VERSION",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_FROM_NAME", "SMTP_FROM_EMAIL", "APP_PUBLIC_URL",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_WHATSAPP_FROM",
	"REDIS_URL", "STORE_BACKEND", "RPC_BASE_URL", "RPC_API_KEY",
	"SIGNUP_DEFAULT_EXPIRY_HOURS", "AUTOSAVE_INTERVAL", "ANAMNESIS_EXPIRY_HOURS", "SWEEP_INTERVAL",
	"SERVER_SWEEP_INTERVAL", "PUSHGATEWAY_URL",
	"CREATE_RATE_PER_MIN", "TRUSTED_PROXIES", "CLINIC_NAME", "TIMEZONE",
	"LOG_LEVEL", "LOG_FORMAT", "SERVICE_NAME",
}

// Load lê o ambiente (e um .env opcional no diretório corrente).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_MAX_CONN_LIFETIME", "30m")
	v.SetDefault("REQUEST_TIMEOUT_SEC", 30)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("DATA_ENCRYPTION_KEYS", "v1:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	v.SetDefault("CURRENT_DATA_KEY_VERSION", "v1")
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", "1025")
	v.SetDefault("SMTP_FROM_NAME", "Clínica Loraine")
	v.SetDefault("SMTP_FROM_EMAIL", "noreply@localhost")
	v.SetDefault("APP_PUBLIC_URL", "http://localhost:5173")
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("SIGNUP_DEFAULT_EXPIRY_HOURS", 48)
	v.SetDefault("AUTOSAVE_INTERVAL", "500ms")
	v.SetDefault("ANAMNESIS_EXPIRY_HOURS", 168)
	v.SetDefault("SWEEP_INTERVAL", "0s")
	v.SetDefault("SERVER_SWEEP_INTERVAL", "0s")
	v.SetDefault("CREATE_RATE_PER_MIN", 30)
	v.SetDefault("CLINIC_NAME", "Clínica Loraine")
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SERVICE_NAME", "signup-api")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	if len(c.JWTSecretRaw) < 32 {
		c.JWTSecretRaw = defaultJWTSecret
	}
	c.JWTSecret = []byte(c.JWTSecretRaw)
	c.CORSOrigins = nil
	for _, o := range strings.Split(c.CORSOriginsRaw, ",") {
		if t := strings.TrimSpace(o); t != "" {
			c.CORSOrigins = append(c.CORSOrigins, t)
		}
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.AppPublicURL = strings.TrimRight(c.AppPublicURL, "/")
	c.TrustedProxies = nil
	for _, raw := range strings.Split(c.TrustedProxiesRaw, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := parsePrefix(raw)
		if err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		c.TrustedProxies = append(c.TrustedProxies, p)
	}
	return nil
}

// parsePrefix aceita CIDR ou endereço avulso (vira /32 ou /128).
func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		return p.Masked(), err
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}

// Validate confere as combinações obrigatórias para o backend escolhido.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case BackendRPC:
		if c.RPCBaseURL == "" {
			return errors.New("RPC_BASE_URL is required when STORE_BACKEND=rpc")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.SignupDefaultExpiryHours <= 0 {
		return errors.New("SIGNUP_DEFAULT_EXPIRY_HOURS must be positive")
	}
	if c.AutosaveInterval <= 0 {
		return errors.New("AUTOSAVE_INTERVAL must be positive")
	}
	return nil
}

// RequestTimeout é o limite aplicado pelo middleware de timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) SignupURL(token string) string {
	return c.AppPublicURL + "/cadastro/" + token
}

func (c *Config) AnamnesisURL(token string) string {
	return c.AppPublicURL + "/anamnese/" + token
}

// Location é o fuso usado nos horários exibidos ao paciente. Fuso inválido cai em UTC-3.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil && c.Timezone != "" {
		return loc
	}
	return time.FixedZone("BRT", -3*60*60)
}

func (c *Config) WhatsAppEnabled() bool {
	return c.TwilioAccountSid != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppFrom != ""
}
