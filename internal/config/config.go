// Package config loads the service configuration from YAML and FLOWENGINE_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLOWENGINE_"

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Storage    StorageConfig    `yaml:"storage"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Redis      RedisConfig      `yaml:"redis"`
	Engine     EngineConfig     `yaml:"engine"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s" validate:"gt=0"`
}

// StorageConfig selects where flows live.
type StorageConfig struct {
	Driver string `yaml:"driver" default:"memory" validate:"oneof=memory sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver memory"`
}

// SessionsConfig selects where sessions live and when they reset.
// An empty Backend reuses the flow storage driver.
type SessionsConfig struct {
	Backend     string        `yaml:"backend" validate:"omitempty,oneof=memory redis sqlite postgres"`
	IdleTimeout time.Duration `yaml:"idle_timeout" default:"24h" validate:"gte=0"`
	LockTimeout time.Duration `yaml:"lock_timeout" default:"5s" validate:"gt=0"`
	LockTTL     time.Duration `yaml:"lock_ttl" default:"30s" validate:"gt=0"`
	TTL         time.Duration `yaml:"ttl" validate:"gte=0"`
	// EncryptionKey is a base64 AES-256 key. When set, session variables
	// are sealed before they reach the backend.
	EncryptionKey string `yaml:"encryption_key" validate:"omitempty,base64"`
	// PreviousKeys still decrypt sessions written before a key rotation.
	PreviousKeys []string `yaml:"previous_keys" validate:"dive,base64"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"flowengine:session:"`
	// Lock enables the cross-replica session lock.
	Lock bool `yaml:"lock"`
}

type EngineConfig struct {
	MaxHops         int           `yaml:"max_hops" default:"25" validate:"min=1"`
	FallbackMessage string        `yaml:"fallback_message"`
	ErrorMessage    string        `yaml:"error_message" default:"Something went wrong. Please try again later."`
	MaxInputSize    int           `yaml:"max_input_size" default:"4096" validate:"min=1"`
	CacheSize       int           `yaml:"cache_size" default:"256" validate:"min=1"`
	CacheTTL        time.Duration `yaml:"cache_ttl" default:"10m" validate:"gte=0"`
	RegexTimeout    time.Duration `yaml:"regex_timeout" default:"100ms" validate:"gt=0"`
}

type WebhookConfig struct {
	Timeout   time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
	Retries   int           `yaml:"retries" validate:"gte=0,lte=5"`
	UserAgent string        `yaml:"user_agent" default:"botaas-flowengine/1"`
}

// ClassifierConfig points at the toxicity model. An empty Endpoint
// disables toxicity conditions.
type ClassifierConfig struct {
	Endpoint string        `yaml:"endpoint" validate:"omitempty,url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout" default:"5s" validate:"gt=0"`
}

// SessionBackend resolves the effective session backend.
func (c *Config) SessionBackend() string {
	if c.Sessions.Backend != "" {
		return c.Sessions.Backend
	}
	return c.Storage.Driver
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// The tags are static, so this only fires on a malformed tag.
		panic(fmt.Sprintf("config: invalid default tags: %v", err))
	}
	return cfg
}

// Load reads path (optional), then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field rule and reports all failures at once.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
