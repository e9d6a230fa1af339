package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mailbag/internal/mail"
)

type Config struct {
	ListenAddr         string
	WebRoot            string
	TrustProxy         bool
	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string

	ContactsDBDriver  string
	ContactsDBDSN     string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	IMAPHost               string
	IMAPPort               int
	IMAPTLS                bool
	IMAPStartTLS           bool
	IMAPInsecureSkipVerify bool

	SMTPHost               string
	SMTPPort               int
	SMTPTLS                bool
	SMTPStartTLS           bool
	SMTPInsecureSkipVerify bool

	MailUsername       string
	MailPassword       string
	SMTPUsername       string
	SMTPPassword       string
	MailProfile        mail.Profile
	MailDialTimeout    time.Duration
	MailCommandTimeout time.Duration

	SendRatePerMinute int

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":9000"),
		WebRoot:                  env("WEB_ROOT", ""),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		LogLevel:                 strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:                strings.ToLower(env("LOG_FORMAT", "json")),
		ContactsDBDriver:         strings.ToLower(env("CONTACTS_DB_DRIVER", "sqlite")),
		ContactsDBDSN:            env("CONTACTS_DB_DSN", "./data/contacts.db"),
		DBMaxOpenConns:           envInt("DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		IMAPHost:                 env("IMAP_HOST", "127.0.0.1"),
		IMAPPort:                 envInt("IMAP_PORT", 993),
		IMAPTLS:                  envBool("IMAP_TLS", true),
		IMAPStartTLS:             envBool("IMAP_STARTTLS", false),
		IMAPInsecureSkipVerify:   envBool("IMAP_INSECURE_SKIP_VERIFY", false),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		SMTPTLS:                  envBool("SMTP_TLS", false),
		SMTPStartTLS:             envBool("SMTP_STARTTLS", true),
		SMTPInsecureSkipVerify:   envBool("SMTP_INSECURE_SKIP_VERIFY", false),
		MailUsername:             env("MAIL_USERNAME", ""),
		MailPassword:             env("MAIL_PASSWORD", ""),
		SMTPUsername:             env("SMTP_USERNAME", ""),
		SMTPPassword:             env("SMTP_PASSWORD", ""),
		MailDialTimeout:          envDuration("MAIL_DIAL_TIMEOUT", 10*time.Second),
		MailCommandTimeout:       envDuration("MAIL_COMMAND_TIMEOUT", time.Minute),
		SendRatePerMinute:        envInt("SEND_RATE_PER_MINUTE", 20),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 90),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	profile, err := mail.ParseProfile(env("MAIL_PROFILE", "standard"))
	if err != nil {
		return Config{}, fmt.Errorf("MAIL_PROFILE: %w", err)
	}
	cfg.MailProfile = profile

	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if cfg.IMAPPort <= 0 || cfg.SMTPPort <= 0 {
		return Config{}, fmt.Errorf("invalid mail host port")
	}
	if cfg.IMAPTLS && cfg.IMAPStartTLS {
		return Config{}, fmt.Errorf("IMAP_TLS and IMAP_STARTTLS are mutually exclusive")
	}
	if cfg.SMTPTLS && cfg.SMTPStartTLS {
		return Config{}, fmt.Errorf("SMTP_TLS and SMTP_STARTTLS are mutually exclusive")
	}
	if cfg.MailDialTimeout <= 0 || cfg.MailCommandTimeout <= 0 {
		return Config{}, fmt.Errorf("mail timeouts must be positive")
	}
	if cfg.SendRatePerMinute < 0 {
		return Config{}, fmt.Errorf("SEND_RATE_PER_MINUTE must be >= 0")
	}
	switch cfg.ContactsDBDriver {
	case "sqlite", "mysql", "pgx":
	case "postgres", "postgresql":
		cfg.ContactsDBDriver = "pgx"
	default:
		return Config{}, fmt.Errorf("CONTACTS_DB_DRIVER must be one of: sqlite, mysql, pgx")
	}
	if strings.TrimSpace(cfg.ContactsDBDSN) == "" {
		return Config{}, fmt.Errorf("CONTACTS_DB_DSN is required")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return cfg, nil
}

// MailConfigured reports whether an account was supplied. Without one the
// server still starts and answers from a no-op mail client.
func (c Config) MailConfigured() bool {
	return strings.TrimSpace(c.MailUsername) != "" && c.MailPassword != ""
}

func (c Config) ServerInfo() mail.ServerInfo {
	return mail.ServerInfo{
		IMAP: mail.Endpoint{
			Host:               c.IMAPHost,
			Port:               c.IMAPPort,
			TLS:                c.IMAPTLS,
			StartTLS:           c.IMAPStartTLS,
			InsecureSkipVerify: c.IMAPInsecureSkipVerify,
		},
		SMTP: mail.Endpoint{
			Host:               c.SMTPHost,
			Port:               c.SMTPPort,
			TLS:                c.SMTPTLS,
			StartTLS:           c.SMTPStartTLS,
			InsecureSkipVerify: c.SMTPInsecureSkipVerify,
		},
		Username:     c.MailUsername,
		Secret:       c.MailPassword,
		SMTPUsername: c.SMTPUsername,
		SMTPSecret:   c.SMTPPassword,
	}
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

// envDuration accepts Go duration strings ("15s") or a bare number of
// seconds.
func envDuration(k string, d time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
