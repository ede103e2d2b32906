package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage drivers.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// OTP delivery modes.
const (
	OtpModeChat  = "chat"
	OtpModeEmail = "email"
)

// Config holds all application configuration.
type Config struct {
	App          AppConfig
	Telegram     TelegramConfig
	Care         CareConfig
	Storage      StorageConfig
	Redis        RedisConfig
	Otp          OtpConfig
	SMTP         SMTPConfig
	Monitor      MonitorConfig
	Registration RegistrationConfig
	HTTP         HTTPConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name            string
	Environment     Environment
	LogLevel        string
	Version         string
	ShutdownTimeout time.Duration
}

// TelegramConfig holds Bot API settings.
type TelegramConfig struct {
	Token       string
	BaseURL     string
	PollTimeout time.Duration
}

// CareConfig holds CARE API settings.
type CareConfig struct {
	APIURL string
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// RateLimit is the sustained request rate per second.
	RateLimit float64
	Burst     int
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Driver      string
	DatabaseURL string
	DataDir     string
	MaxConns    int32
}

// RedisConfig holds Redis connection settings. Redis is optional; without it
// OTPs are kept in memory and cycles run unlocked.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	LockTTL  time.Duration
}

// OtpConfig configures verification codes.
type OtpConfig struct {
	Mode       string
	Expiry     time.Duration
	BcryptCost int
}

// SMTPConfig configures email delivery of codes.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MonitorConfig configures the attendance monitor.
type MonitorConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	// RunOnStart runs a cycle immediately instead of after the first interval.
	RunOnStart bool
}

// RegistrationConfig describes accepted registration numbers.
type RegistrationConfig struct {
	Prefix       string
	SuffixLength int
	DefaultName  string
}

// HTTPConfig configures the ops server.
type HTTPConfig struct {
	Addr string
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "care-attendance-bot")
	v.SetDefault("APP_ENV", string(EnvDevelopment))
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	v.SetDefault("TELEGRAM_BASE_URL", "https://api.telegram.org")
	v.SetDefault("TELEGRAM_POLL_TIMEOUT", "30s")

	v.SetDefault("CARE_API_URL", "")
	v.SetDefault("CARE_TIMEOUT", "15s")
	v.SetDefault("CARE_RATE_LIMIT", 2.0)
	v.SetDefault("CARE_BURST", 4)

	v.SetDefault("STORAGE_DRIVER", StorageFile)
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("DATABASE_MAX_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_LOCK_TTL", "15m")

	v.SetDefault("OTP_MODE", OtpModeChat)
	v.SetDefault("OTP_EXPIRY", "5m")
	v.SetDefault("OTP_BCRYPT_COST", 10)

	v.SetDefault("SMTP_PORT", 587)

	v.SetDefault("MONITOR_INTERVAL", "10m")
	v.SetDefault("MONITOR_CYCLE_TIMEOUT", "5m")
	v.SetDefault("MONITOR_RUN_ON_START", true)

	v.SetDefault("REGISTRATION_PREFIX", "8107")
	v.SetDefault("REGISTRATION_SUFFIX_LENGTH", 8)
	v.SetDefault("DEFAULT_STUDENT_NAME", "Student")

	v.SetDefault("HTTP_ADDR", ":8080")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name:            v.GetString("APP_NAME"),
			Environment:     Environment(strings.ToLower(v.GetString("APP_ENV"))),
			LogLevel:        v.GetString("LOG_LEVEL"),
			Version:         v.GetString("APP_VERSION"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Telegram: TelegramConfig{
			Token:       v.GetString("TELEGRAM_TOKEN"),
			BaseURL:     v.GetString("TELEGRAM_BASE_URL"),
			PollTimeout: v.GetDuration("TELEGRAM_POLL_TIMEOUT"),
		},
		Care: CareConfig{
			APIURL:    v.GetString("CARE_API_URL"),
			Timeout:   v.GetDuration("CARE_TIMEOUT"),
			RateLimit: v.GetFloat64("CARE_RATE_LIMIT"),
			Burst:     v.GetInt("CARE_BURST"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
			DatabaseURL: v.GetString("DATABASE_URL"),
			DataDir:     v.GetString("DATA_DIR"),
			MaxConns:    v.GetInt32("DATABASE_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			LockTTL:  v.GetDuration("REDIS_LOCK_TTL"),
		},
		Otp: OtpConfig{
			Mode:       strings.ToLower(v.GetString("OTP_MODE")),
			Expiry:     v.GetDuration("OTP_EXPIRY"),
			BcryptCost: v.GetInt("OTP_BCRYPT_COST"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		Monitor: MonitorConfig{
			Interval:     v.GetDuration("MONITOR_INTERVAL"),
			CycleTimeout: v.GetDuration("MONITOR_CYCLE_TIMEOUT"),
			RunOnStart:   v.GetBool("MONITOR_RUN_ON_START"),
		},
		Registration: RegistrationConfig{
			Prefix:       v.GetString("REGISTRATION_PREFIX"),
			SuffixLength: v.GetInt("REGISTRATION_SUFFIX_LENGTH"),
			DefaultName:  v.GetString("DEFAULT_STUDENT_NAME"),
		},
		HTTP: HTTPConfig{
			Addr: v.GetString("HTTP_ADDR"),
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV %q is not one of development, staging, production", c.App.Environment))
	}

	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	if c.Telegram.PollTimeout <= 0 {
		errs = append(errs, errors.New("TELEGRAM_POLL_TIMEOUT must be positive"))
	}

	if c.Care.Timeout <= 0 {
		errs = append(errs, errors.New("CARE_TIMEOUT must be positive"))
	}
	if c.Care.RateLimit <= 0 {
		errs = append(errs, errors.New("CARE_RATE_LIMIT must be positive"))
	}

	switch c.Storage.Driver {
	case StorageFile:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the file driver"))
		}
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not one of file, postgres", c.Storage.Driver))
	}

	switch c.Otp.Mode {
	case OtpModeChat:
	case OtpModeEmail:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			errs = append(errs, errors.New("SMTP_HOST and SMTP_FROM are required when OTP_MODE=email"))
		}
	default:
		errs = append(errs, fmt.Errorf("OTP_MODE %q is not one of chat, email", c.Otp.Mode))
	}
	if c.Otp.Expiry <= 0 {
		errs = append(errs, errors.New("OTP_EXPIRY must be positive"))
	}
	if c.Otp.BcryptCost < 4 || c.Otp.BcryptCost > 31 {
		errs = append(errs, errors.New("OTP_BCRYPT_COST must be 4-31"))
	}

	if c.Monitor.Interval < time.Minute {
		errs = append(errs, errors.New("MONITOR_INTERVAL must be at least 1m"))
	}
	if c.Monitor.CycleTimeout <= 0 {
		errs = append(errs, errors.New("MONITOR_CYCLE_TIMEOUT must be positive"))
	}

	if c.Registration.Prefix == "" || c.Registration.SuffixLength <= 0 {
		errs = append(errs, errors.New("REGISTRATION_PREFIX and REGISTRATION_SUFFIX_LENGTH are required"))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
