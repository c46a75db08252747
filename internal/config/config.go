package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces environment overrides, e.g. DEBATEHUB_SERVER_ADDR.
const EnvPrefix = "debatehub"

type Config struct {
	Server       ServerConfig       `toml:"server"`
	Database     DatabaseConfig     `toml:"database"`
	Auth         AuthConfig         `toml:"auth"`
	Debate       DebateConfig       `toml:"debate"`
	Verification VerificationConfig `toml:"verification"`
	Mail         MailConfig         `toml:"mail"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Log          LogConfig          `toml:"log"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr" envconfig:"addr"`
	RateLimit       int           `toml:"rate_limit" envconfig:"rate_limit"`
	RateWindow      time.Duration `toml:"rate_window" envconfig:"rate_window"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" envconfig:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path  string `toml:"path" envconfig:"path"`
	Audit bool   `toml:"audit" envconfig:"audit"`
}

type AuthConfig struct {
	JWTSecret      string   `toml:"jwt_secret" envconfig:"jwt_secret"`
	TokenExpiryMin int      `toml:"token_expiry_min" envconfig:"token_expiry_min"`
	AdminEmails    []string `toml:"admin_emails" envconfig:"admin_emails"`
}

type DebateConfig struct {
	ArgumentAward       int           `toml:"argument_award" envconfig:"argument_award"`
	VoteAward           int           `toml:"vote_award" envconfig:"vote_award"`
	LevelStep           int           `toml:"level_step" envconfig:"level_step"`
	StartingCredibility int           `toml:"starting_credibility" envconfig:"starting_credibility"`
	MaxArgumentLength   int           `toml:"max_argument_length" envconfig:"max_argument_length"`
	DefaultDuration     time.Duration `toml:"default_duration" envconfig:"default_duration"`
	ResolveInterval     time.Duration `toml:"resolve_interval" envconfig:"resolve_interval"`
	DenyList            []string      `toml:"deny_list" envconfig:"deny_list"`
}

type VerificationConfig struct {
	CodeTTL       time.Duration `toml:"code_ttl" envconfig:"code_ttl"`
	SweepInterval time.Duration `toml:"sweep_interval" envconfig:"sweep_interval"`
	MaxAttempts   int           `toml:"max_attempts" envconfig:"max_attempts"`
}

// MailConfig selects the outgoing mail transport. An empty SMTPHost logs
// messages instead of sending them.
type MailConfig struct {
	SMTPHost string `toml:"smtp_host" envconfig:"smtp_host"`
	SMTPPort int    `toml:"smtp_port" envconfig:"smtp_port"`
	Username string `toml:"username" envconfig:"username"`
	Password string `toml:"password" envconfig:"password"`
	From     string `toml:"from" envconfig:"from"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" envconfig:"enabled"`
	Path    string `toml:"path" envconfig:"path"`
}

type LogConfig struct {
	Level  string `toml:"level" envconfig:"level"`
	Format string `toml:"format" envconfig:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       120,
			RateWindow:      time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:  "data/debatehub.db",
			Audit: true,
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 10080, // 7d
		},
		Debate: DebateConfig{
			ArgumentAward:       10,
			VoteAward:           5,
			LevelStep:           100,
			StartingCredibility: 100,
			MaxArgumentLength:   5000,
			DefaultDuration:     24 * time.Hour,
			ResolveInterval:     time.Minute,
			DenyList:            []string{"abuse", "hate", "target"},
		},
		Verification: VerificationConfig{
			CodeTTL:       10 * time.Minute,
			SweepInterval: time.Minute,
			MaxAttempts:   5,
		},
		Mail: MailConfig{
			SMTPPort: 587,
			From:     "noreply@debatehub.local",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load layers the TOML file at path over the defaults, then applies a .env
// file from the working directory and DEBATEHUB_* environment variables.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return errors.New("database.path is required")
	case c.Auth.JWTSecret == "":
		return errors.New("auth.jwt_secret is required")
	case c.Auth.TokenExpiryMin <= 0:
		return errors.New("auth.token_expiry_min must be positive")
	case c.Debate.LevelStep <= 0:
		return errors.New("debate.level_step must be positive")
	case c.Debate.StartingCredibility < 0:
		return errors.New("debate.starting_credibility must not be negative")
	case c.Debate.ArgumentAward < 0 || c.Debate.VoteAward < 0:
		return errors.New("debate awards must not be negative")
	case c.Debate.DefaultDuration <= 0:
		return errors.New("debate.default_duration must be positive")
	case c.Verification.MaxAttempts <= 0:
		return errors.New("verification.max_attempts must be positive")
	case c.Verification.CodeTTL <= 0:
		return errors.New("verification.code_ttl must be positive")
	}
	return nil
}

// IsAdminEmail reports whether email is listed in auth.admin_emails.
func (c *Config) IsAdminEmail(email string) bool {
	for _, e := range c.Auth.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}
