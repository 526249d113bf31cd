// Package config loads service configuration from an optional YAML file and
// the environment, with sane defaults for every knob.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables; double underscores
// separate nesting levels (CTXGATE_SERVER__PORT -> server.port).
const envPrefix = "CTXGATE_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Schema     SchemaConfig     `koanf:"schema"`
	Rules      RulesConfig      `koanf:"rules"`
	Guardrails GuardrailsConfig `koanf:"guardrails"`
	Transform  TransformConfig  `koanf:"transform"`
	Storage    StorageConfig    `koanf:"storage"`
}

type ServerConfig struct {
	Port           int             `koanf:"port"`
	RequestTimeout time.Duration   `koanf:"request_timeout"`
	RateLimit      RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig controls the optional redis-backed request limiter.
type RateLimitConfig struct {
	Enabled   bool   `koanf:"enabled"`
	PerSecond int    `koanf:"per_second"`
	RedisAddr string `koanf:"redis_addr"`
}

type PipelineConfig struct {
	EnableAI bool `koanf:"enable_ai"`
	Strict   bool `koanf:"strict"`
}

type SchemaConfig struct {
	RequiredFields []string `koanf:"required_fields"`
	AllowedRoles   []string `koanf:"allowed_roles"`
	AllowedActions []string `koanf:"allowed_actions"`
}

type RulesConfig struct {
	AllowedRoles []string            `koanf:"allowed_roles"`
	RoleActions  map[string][]string `koanf:"role_actions"`
}

type GuardrailsConfig struct {
	MaxTextLen    int      `koanf:"max_text_len"`
	MaxListItems  int      `koanf:"max_list_items"`
	MaxTokens     int      `koanf:"max_tokens"`
	BannedWords   []string `koanf:"banned_words"`
	BannedPhrases []string `koanf:"banned_phrases"`
}

type TransformConfig struct {
	// Type selects the transform backing the ai stage: echo, webhook, none.
	Type    string            `koanf:"type"`
	URL     string            `koanf:"url"`
	Timeout time.Duration     `koanf:"timeout"`
	Retries int               `koanf:"retries"`
	Headers map[string]string `koanf:"headers"`
}

type StorageConfig struct {
	// Type selects the run store: sqlite, memory, none.
	Type      string          `koanf:"type"`
	SQLite    SQLiteConfig    `koanf:"sqlite"`
	Retention RetentionConfig `koanf:"retention"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// RetentionConfig controls pruning of stored runs.
type RetentionConfig struct {
	Enabled  bool          `koanf:"enabled"`
	MaxAge   time.Duration `koanf:"max_age"`
	Schedule string        `koanf:"schedule"`
}

// Load reads configuration from path (missing file is fine) and the
// environment, then applies defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Environment overrides file values.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                  8080,
		"server.request_timeout":       "30s",
		"server.rate_limit.per_second": 50,
		"pipeline.enable_ai":           false,
		"pipeline.strict":              true,
		"transform.type":               "echo",
		"transform.timeout":            "30s",
		"storage.type":                 "memory",
		"storage.sqlite.path":          "./data/contextgate.db",
		"storage.retention.max_age":    "720h",
		"storage.retention.schedule":   "@hourly",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}
