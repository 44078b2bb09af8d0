// Package config reads server settings from the environment.
//
// A .env file, when present, is loaded first; variables already set in the
// process environment win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const defaultSecret = "changeme-use-a-real-secret-in-production"

// Config is the complete server configuration.
type Config struct {
	Addr        string
	DatabaseURL string

	JWTSecret  string
	JWTExpiry  time.Duration
	BcryptCost int

	CORSOrigin string

	UploadDir      string
	MaxUploadBytes int64

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	MailAPIURL string
	MailAPIKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogFormat string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Load reads envFile (ignored when missing) and then the environment.
// An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		Addr: getEnv("ADDR", ":8080"),
		// DATABASE_URL uses modernc.org/sqlite URI parameters:
		//   _pragma=foreign_keys(1)    enforce FK constraints on every connection
		//   _pragma=journal_mode(WAL)  readers don't block writers
		//   _pragma=busy_timeout(5000) wait up to 5 s instead of returning SQLITE_BUSY
		DatabaseURL: getEnv("DATABASE_URL",
			"gatepass.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		JWTSecret:  getEnv("JWT_SECRET", defaultSecret),
		BcryptCost: bcrypt.DefaultCost,

		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: 10 << 20,

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     587,
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnv("SMTP_FROM", "gatepass@localhost"),

		MailAPIURL: os.Getenv("MAIL_API_URL"),
		MailAPIKey: os.Getenv("MAIL_API_KEY"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		BootstrapAdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
	}

	var errs []error
	var err error
	if cfg.JWTExpiry, err = getDuration("JWT_EXPIRY", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.BcryptCost, err = getInt("BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		errs = append(errs, err)
	}
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	var maxUpload int
	if maxUpload, err = getInt("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		errs = append(errs, err)
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that Load cannot default away.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.JWTExpiry <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// DefaultSecret reports whether the built-in development secret is in use.
func (c *Config) DefaultSecret() bool { return c.JWTSecret == defaultSecret }

// SMTPEnabled reports whether an SMTP relay is configured.
func (c *Config) SMTPEnabled() bool { return c.SMTPHost != "" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// getDuration accepts Go durations ("12h") and the "7d" day shorthand.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
