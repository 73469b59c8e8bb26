package config

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

type binding struct {
	name  string
	apply func(*Config, string) error
}

func str(set func(*Config, string)) func(*Config, string) error {
	return func(c *Config, v string) error {
		set(c, v)
		return nil
	}
}

func integer(set func(*Config, int)) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := cast.ToIntE(v)
		if err != nil {
			return err
		}
		set(c, n)
		return nil
	}
}

func duration(set func(*Config, time.Duration)) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return err
		}
		set(c, d)
		return nil
	}
}

func boolean(set func(*Config, bool)) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		set(c, b)
		return nil
	}
}

var bindings = []binding{
	{"LOG_LEVEL", str(func(c *Config, v string) { c.Log.Level = v })},
	{"LOG_FORMAT", str(func(c *Config, v string) { c.Log.Format = v })},
	{"HTTP_ADDR", str(func(c *Config, v string) { c.HTTP.Addr = v })},
	{"STORAGE_DRIVER", str(func(c *Config, v string) { c.Storage.Driver = v })},
	{"STORAGE_DSN", str(func(c *Config, v string) { c.Storage.DSN = v })},
	{"SESSIONS_BACKEND", str(func(c *Config, v string) { c.Sessions.Backend = v })},
	{"SESSIONS_IDLE_TIMEOUT", duration(func(c *Config, d time.Duration) { c.Sessions.IdleTimeout = d })},
	{"SESSIONS_LOCK_TIMEOUT", duration(func(c *Config, d time.Duration) { c.Sessions.LockTimeout = d })},
	{"SESSIONS_ENCRYPTION_KEY", str(func(c *Config, v string) { c.Sessions.EncryptionKey = v })},
	{"SESSIONS_TTL", duration(func(c *Config, d time.Duration) { c.Sessions.TTL = d })},
	{"REDIS_ADDR", str(func(c *Config, v string) { c.Redis.Addr = v })},
	{"REDIS_PASSWORD", str(func(c *Config, v string) { c.Redis.Password = v })},
	{"REDIS_DB", integer(func(c *Config, n int) { c.Redis.DB = n })},
	{"REDIS_LOCK", boolean(func(c *Config, b bool) { c.Redis.Lock = b })},
	{"ENGINE_MAX_HOPS", integer(func(c *Config, n int) { c.Engine.MaxHops = n })},
	{"ENGINE_FALLBACK_MESSAGE", str(func(c *Config, v string) { c.Engine.FallbackMessage = v })},
	{"ENGINE_ERROR_MESSAGE", str(func(c *Config, v string) { c.Engine.ErrorMessage = v })},
	{"ENGINE_MAX_INPUT_SIZE", integer(func(c *Config, n int) { c.Engine.MaxInputSize = n })},
	{"WEBHOOK_TIMEOUT", duration(func(c *Config, d time.Duration) { c.Webhook.Timeout = d })},
	{"WEBHOOK_RETRIES", integer(func(c *Config, n int) { c.Webhook.Retries = n })},
	{"CLASSIFIER_ENDPOINT", str(func(c *Config, v string) { c.Classifier.Endpoint = v })},
	{"CLASSIFIER_API_KEY", str(func(c *Config, v string) { c.Classifier.APIKey = v })},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range bindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, b.name, v, err)
		}
	}
	return nil
}
