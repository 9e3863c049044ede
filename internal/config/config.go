// Package config loads server and CLI settings from an optional YAML file,
// a .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	QuickBooks QuickBooksConfig `yaml:"quickbooks"`
	Database   DatabaseConfig   `yaml:"database"`
	LogLevel   string           `yaml:"log_level"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	AllowedOrigins string        `yaml:"allowed_origins"`
	JWTSecret      string        `yaml:"jwt_secret"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	TurnTimeout    time.Duration `yaml:"turn_timeout"`
	// EnvCredentials lets requests without a session or token cookie act on
	// the QuickBooks tokens in the environment. Development only.
	EnvCredentials bool `yaml:"env_credentials"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type QuickBooksConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	// Environment is sandbox or production.
	Environment  string `yaml:"environment"`
	MinorVersion string `yaml:"minor_version"`
	// BaseURL overrides the API host derived from Environment.
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			SecureCookies: true,
			TurnTimeout:   60 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o",
		},
		QuickBooks: QuickBooksConfig{
			Environment:  "sandbox",
			MinorVersion: "75",
		},
		LogLevel: "info",
	}
}

// Load reads .env (if present), then the YAML file named by path or
// CONFIG_FILE (if any), then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvVars substitutes ${VAR} and ${VAR:-default} in input.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(m string) string {
		parts := envVarPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[2]
	})
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"OPENAI_API_KEY":           &cfg.OpenAI.APIKey,
		"OPENAI_MODEL":             &cfg.OpenAI.Model,
		"SERVER_PORT":              &cfg.Server.Port,
		"ALLOWED_ORIGINS":          &cfg.Server.AllowedOrigins,
		"JWT_SECRET":               &cfg.Server.JWTSecret,
		"DATABASE_URL":             &cfg.Database.URL,
		"QUICKBOOKS_CLIENT_ID":     &cfg.QuickBooks.ClientID,
		"QUICKBOOKS_CLIENT_SECRET": &cfg.QuickBooks.ClientSecret,
		"QUICKBOOKS_REDIRECT_URI":  &cfg.QuickBooks.RedirectURI,
		"QUICKBOOKS_ENVIRONMENT":   &cfg.QuickBooks.Environment,
		"QUICKBOOKS_MINOR_VERSION": &cfg.QuickBooks.MinorVersion,
		"QUICKBOOKS_BASE_URL":      &cfg.QuickBooks.BaseURL,
		"LOG_LEVEL":                &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("TURN_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("TURN_TIMEOUT: %w", err)
		}
		cfg.Server.TurnTimeout = d
	}
	if v := os.Getenv("ALLOW_ENV_CREDENTIALS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALLOW_ENV_CREDENTIALS: %w", err)
		}
		cfg.Server.EnvCredentials = b
	}
	if v := os.Getenv("SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SECURE_COOKIES: %w", err)
		}
		cfg.Server.SecureCookies = b
	}
	return nil
}

// parseDuration accepts Go durations ("45s") or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate checks values that would otherwise fail late.
func Validate(cfg *Config) error {
	var errs []error
	switch cfg.QuickBooks.Environment {
	case "sandbox", "production":
	default:
		errs = append(errs, fmt.Errorf("quickbooks.environment must be sandbox or production, got %q", cfg.QuickBooks.Environment))
	}
	if cfg.Server.TurnTimeout <= 0 {
		errs = append(errs, errors.New("server.turn_timeout must be positive"))
	}
	if cfg.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RequireOpenAI reports a missing API key for commands that call the model.
func (c *Config) RequireOpenAI() error {
	if c.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	return nil
}

// OAuthConfigured reports whether the QuickBooks connect flow can run.
func (c *Config) OAuthConfigured() bool {
	return c.QuickBooks.ClientID != "" && c.QuickBooks.ClientSecret != ""
}

// ParseLevel maps a level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}
