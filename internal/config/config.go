package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	OpenAIModel       string `yaml:"openai_model"`
	OpenAIScribeModel string `yaml:"openai_scribe_model"`
	OpenAIBaseURL     string `yaml:"openai_base_url"`

	Store      string `yaml:"store"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`

	Port          string `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	AuthHeader    string `yaml:"auth_header"`

	LogMode string `yaml:"log_mode"`
	LogDir  string `yaml:"log_dir"`

	RegenerateConcurrency int  `yaml:"regenerate_concurrency"`
	AutoLink              bool `yaml:"auto_link"`
}

// Load reads path (if non-empty), applies environment overrides and fills
// defaults. It does not validate; callers pick what they need and call
// Validate.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("OPENAI_MODEL", &c.OpenAIModel)
	str("OPENAI_SCRIBE_MODEL", &c.OpenAIScribeModel)
	str("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	str("STUDY_STORE", &c.Store)
	str("SQLITE_PATH", &c.SQLitePath)
	str("REDIS_ADDR", &c.RedisAddr)
	str("PORT", &c.Port)
	str("SESSION_SECRET", &c.SessionSecret)
	str("LOG_MODE", &c.LogMode)
	str("LOG_DIR", &c.LogDir)
	str("AUTH_HEADER", &c.AuthHeader)

	if v := strings.TrimSpace(getenv("REGENERATE_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RegenerateConcurrency = n
		}
	}
	if v := strings.TrimSpace(getenv("AUTO_LINK")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoLink = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.OpenAIModel == "" {
		c.OpenAIModel = "gpt-4o-mini"
	}
	if c.OpenAIScribeModel == "" {
		c.OpenAIScribeModel = "gpt-4o"
	}
	if c.Store == "" {
		c.Store = StoreSQLite
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "studies.db"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.AuthHeader == "" {
		c.AuthHeader = "X-Authenticated-User"
	}
	if c.LogMode == "" {
		c.LogMode = "dev"
	}
	if c.RegenerateConcurrency <= 0 {
		c.RegenerateConcurrency = 4
	}
}

// Validate checks the store kind and, when requireGenerator is set, that an
// API key is present.
func (c *Config) Validate(requireGenerator bool) error {
	var errs []error
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, StoreMemory, StoreSQLite, StoreRedis))
	}
	if requireGenerator && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY environment variable is required"))
	}
	return errors.Join(errs...)
}
