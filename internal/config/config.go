package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v4"
)

const (
	DefaultConfigFile = "config.yaml"
	defaultEnvFile    = ".env"
)

type OIDCProviderConfig struct {
	Id           string   `yaml:"id" toml:"id"`
	Name         string   `yaml:"name" toml:"name"`
	ClientID     string   `yaml:"client_id" toml:"client_id"`
	ClientSecret string   `yaml:"client_secret" toml:"client_secret"`
	IssuerURL    string   `yaml:"issuer_url" toml:"issuer_url"`
	RedirectURL  string   `yaml:"redirect_url" toml:"redirect_url"`
	Scopes       []string `yaml:"scopes" toml:"scopes"`
}

type StorageConfig struct {
	// Driver is one of bolt, sqlite or postgres.
	Driver   string `yaml:"driver" toml:"driver"`
	Path     string `yaml:"path" toml:"path"`
	DSN      string `yaml:"dsn" toml:"dsn"`
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Name     string `yaml:"name" toml:"name"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	SSLMode  string `yaml:"sslmode" toml:"sslmode"`
}

type NudgeConfig struct {
	ResendAPIKey   string `yaml:"resend_api_key" toml:"resend_api_key"`
	Email          string `yaml:"email" toml:"email"`
	From           string `yaml:"from" toml:"from"`
	ThresholdHours int    `yaml:"threshold_hours" toml:"threshold_hours"`
}

type Config struct {
	ListenAddr    string               `yaml:"listen_addr" toml:"listen_addr"`
	APIBaseURL    string               `yaml:"api_base_url" toml:"api_base_url"`
	APIKey        string               `yaml:"api_key" toml:"api_key"`
	SecretKey     string               `yaml:"secret_key" toml:"secret_key"`
	SecureCookies bool                 `yaml:"secure_cookies" toml:"secure_cookies"`
	Timezone      string               `yaml:"timezone" toml:"timezone"`
	LogLevel      string               `yaml:"log_level" toml:"log_level"`
	LogFormat     string               `yaml:"log_format" toml:"log_format"`
	Storage       StorageConfig        `yaml:"storage" toml:"storage"`
	OIDCProviders []OIDCProviderConfig `yaml:"oidc_providers" toml:"oidc_providers"`
	Nudge         NudgeConfig          `yaml:"nudge" toml:"nudge"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		APIBaseURL: "http://localhost:8080",
		Timezone:   "Local",
		LogLevel:   "info",
		LogFormat:  "text",
		Storage: StorageConfig{
			Driver:  "bolt",
			Path:    "habits.db",
			Port:    5432,
			SSLMode: "disable",
		},
		Nudge: NudgeConfig{
			From:           "onboarding@resend.dev",
			ThresholdHours: 4,
		},
	}
}

// Load reads the config file named by $HABITS_CONFIG (or config.yaml), then
// applies a .env file and environment overrides. A missing default file is
// fine; a missing file that was asked for explicitly is not.
func Load() (*Config, error) {
	path := os.Getenv("HABITS_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	return LoadFile(path, explicit)
}

func LoadFile(path string, required bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	envFile := os.Getenv("HABITS_ENV_FILE")
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := loadEnvFile(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, "HABITS_LISTEN_ADDR")
	setString(&c.APIBaseURL, "HABITS_API_BASE")
	setString(&c.APIKey, "HABITS_API_KEY")
	setString(&c.SecretKey, "SECRET_KEY")
	setString(&c.SecretKey, "HABITS_SECRET_KEY")
	setString(&c.Timezone, "HABITS_TIMEZONE")
	setString(&c.LogLevel, "HABITS_LOG_LEVEL")
	setString(&c.LogFormat, "HABITS_LOG_FORMAT")

	setString(&c.Storage.Driver, "HABITS_DB_DRIVER")
	setString(&c.Storage.Path, "HABITS_DB_PATH")
	setString(&c.Storage.DSN, "HABITS_DB_DSN")
	setString(&c.Storage.Host, "DB_HOST")
	setString(&c.Storage.Name, "DB_NAME")
	setString(&c.Storage.User, "DB_USER")
	setString(&c.Storage.Password, "DB_PASSWORD")
	if err := setInt(&c.Storage.Port, "DB_PORT"); err != nil {
		return err
	}

	setString(&c.Nudge.ResendAPIKey, "HABITS_RESEND_API_KEY")
	setString(&c.Nudge.Email, "HABITS_NOTIFY_EMAIL")
	if err := setInt(&c.Nudge.ThresholdHours, "HABITS_NUDGE_THRESHOLD"); err != nil {
		return err
	}

	if v := os.Getenv("HABITS_SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HABITS_SECURE_COOKIES must be a boolean: %w", err)
		}
		c.SecureCookies = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	*dst = n
	return nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "bolt", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %s", c.Storage.Driver)
		}
	case "postgres":
		if c.Storage.DSN == "" && c.Storage.Host == "" {
			return errors.New("storage.dsn or storage.host is required for driver postgres")
		}
		if c.Storage.Port <= 0 || c.Storage.Port > 65535 {
			return fmt.Errorf("invalid storage.port %d", c.Storage.Port)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	for _, p := range c.OIDCProviders {
		if p.Id == "" || p.IssuerURL == "" || p.ClientID == "" {
			return errors.New("oidc providers need id, issuer_url and client_id")
		}
	}
	return nil
}

// Location resolves the time zone that decides what "today" is.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// PostgresDSN builds a connection URL from the discrete DB_* settings unless
// a DSN was given directly.
func (s StorageConfig) PostgresDSN() string {
	if s.DSN != "" {
		return s.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:   "/" + s.Name,
	}
	if s.User != "" {
		u.User = url.UserPassword(s.User, s.Password)
	}
	if s.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {s.SSLMode}}.Encode()
	}
	return u.String()
}
