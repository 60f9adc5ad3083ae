package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	xdgAppName = "clarity"
	configFile = "config.yaml"
	envPrefix  = "CLARITY"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	NLP       NLPConfig       `mapstructure:"nlp"`
	Google    GoogleConfig    `mapstructure:"google"`
	Reminder  ReminderConfig  `mapstructure:"reminder"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

// NLPConfig controls free-text interpretation.
type NLPConfig struct {
	// Timezone is used to read due dates the model returns without an offset.
	Timezone string        `mapstructure:"timezone"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type GoogleConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	CalendarID   string        `mapstructure:"calendar_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// Endpoint overrides the Calendar API base URL. Empty means Google's.
	Endpoint string `mapstructure:"endpoint"`
}

type ReminderConfig struct {
	Lead time.Duration `mapstructure:"lead"`
}

type CalendarConfig struct {
	EventDuration time.Duration `mapstructure:"event_duration"`
}

type WorkerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Lease       time.Duration `mapstructure:"lease"`
	BatchSize   int64         `mapstructure:"batch_size"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	StateTTL  time.Duration `mapstructure:"state_ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Location resolves NLP.Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.NLP.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.NLP.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func GetConfigDir() (string, error) {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, xdgAppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads configuration with precedence env > .env > config file > defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()
	dir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return decode(v)
}

// LoadFromPath reads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", path, err)
	}
	return decode(v)
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.busy_timeout", cfg.Database.BusyTimeout.String())
	v.Set("redis.addr", cfg.Redis.Addr)
	v.Set("redis.db", cfg.Redis.DB)
	v.Set("redis.key_prefix", cfg.Redis.KeyPrefix)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("nlp.timezone", cfg.NLP.Timezone)
	v.Set("nlp.timeout", cfg.NLP.Timeout.String())
	v.Set("google.redirect_url", cfg.Google.RedirectURL)
	v.Set("google.calendar_id", cfg.Google.CalendarID)
	v.Set("google.timeout", cfg.Google.Timeout.String())
	v.Set("reminder.lead", cfg.Reminder.Lead.String())
	v.Set("calendar.event_duration", cfg.Calendar.EventDuration.String())
	v.Set("worker.interval", cfg.Worker.Interval.String())
	v.Set("worker.lease", cfg.Worker.Lease.String())
	v.Set("worker.batch_size", cfg.Worker.BatchSize)
	v.Set("worker.retry_delay", cfg.Worker.RetryDelay.String())
	v.Set("worker.max_attempts", cfg.Worker.MaxAttempts)
	v.Set("auth.issuer", cfg.Auth.Issuer)
	v.Set("auth.token_ttl", cfg.Auth.TokenTTL.String())
	v.Set("auth.state_ttl", cfg.Auth.StateTTL.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.json", cfg.Log.JSON)
	// Secrets stay in the environment.
	return v.WriteConfigAs(path)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("invalid built-in config defaults: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "CLARITY_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("google.client_id", "CLARITY_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	_ = v.BindEnv("google.client_secret", "CLARITY_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Auth.JWTSecret = os.ExpandEnv(cfg.Auth.JWTSecret)
	if cfg.Google.CalendarID == "" {
		cfg.Google.CalendarID = "primary"
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataDir = filepath.Join(home, ".local", "share")
		}
	}
	v.SetDefault("database.path", filepath.Join(dataDir, xdgAppName, "clarity.db"))
	v.SetDefault("database.busy_timeout", "5s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "clarity")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("anthropic.max_tokens", 1024)

	v.SetDefault("nlp.timezone", "UTC")
	v.SetDefault("nlp.timeout", "30s")

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "http://localhost:8080/api/auth/google/callback")
	v.SetDefault("google.calendar_id", "primary")
	v.SetDefault("google.timeout", "20s")
	v.SetDefault("google.endpoint", "")

	v.SetDefault("reminder.lead", "30m")
	v.SetDefault("calendar.event_duration", "1h")

	v.SetDefault("worker.interval", "5s")
	v.SetDefault("worker.lease", "1m")
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.retry_delay", "1m")
	v.SetDefault("worker.max_attempts", 10)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "clarity")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.state_ttl", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}
