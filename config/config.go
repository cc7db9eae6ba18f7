// Package config loads embedcfg settings from a YAML file and EMBEDCFG_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/snow-ghost/embedcfg/pkg/cache"
	"github.com/snow-ghost/embedcfg/pkg/limiter"
	"github.com/snow-ghost/embedcfg/pkg/logging"
	"github.com/snow-ghost/embedcfg/pkg/tracing"
	"gopkg.in/yaml.v3"
)

const envPrefix = "EMBEDCFG_"

// Settings holds everything needed to assemble a registry and its backends
type Settings struct {
	Log        logging.Config            `yaml:"log"`
	Cache      CacheSettings             `yaml:"cache"`
	RedisAddr  string                    `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	ChromaAddr string                    `yaml:"chroma_addr" validate:"omitempty,url"`
	Tracing    tracing.Config            `yaml:"tracing"`
	Protection ProtectionSettings        `yaml:"protection"`
	Providers  []embeddings.StoredConfig `yaml:"providers" validate:"dive"`
}

// CacheSettings selects and sizes the vector cache. Vectors go to Redis when
// RedisAddr is set and to an in-process LRU otherwise.
type CacheSettings struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size" validate:"gte=0"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

// ProtectionSettings wraps providers with rate limiting, retries and circuit
// breaking when enabled
type ProtectionSettings struct {
	Enabled                  bool `yaml:"enabled"`
	limiter.ProtectionConfig `yaml:",inline"`
}

// Default returns the settings used when no file or environment overrides exist
func Default() *Settings {
	cacheDefaults := cache.DefaultCacheConfig()
	return &Settings{
		Log: logging.DefaultConfig(),
		Cache: CacheSettings{
			Enabled: true,
			Size:    cacheDefaults.MaxSize,
			TTL:     cacheDefaults.DefaultTTL,
		},
		Tracing: tracing.Config{
			ServiceName: "embedcfg",
			Environment: "development",
		},
		Protection: ProtectionSettings{ProtectionConfig: limiter.DefaultProtectionConfig()},
	}
}

// Load reads path, if non-empty, over the defaults, then applies environment
// overrides and validates the result
func Load(path string) (*Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := settings.applyEnv(); err != nil {
		return nil, err
	}
	if settings.Protection.Retry == nil {
		settings.Protection.Retry = limiter.DefaultRetryConfig()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

var validate = validator.New()

// Validate checks struct constraints on every section
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func (s *Settings) applyEnv() error {
	s.Log.Level = getEnv("LOG_LEVEL", s.Log.Level)
	s.Log.Format = getEnv("LOG_FORMAT", s.Log.Format)
	s.Log.Output = getEnv("LOG_OUTPUT", s.Log.Output)
	s.RedisAddr = getEnv("REDIS_ADDR", s.RedisAddr)
	s.ChromaAddr = getEnv("CHROMA_ADDR", s.ChromaAddr)
	s.Tracing.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", s.Tracing.JaegerEndpoint)

	var errs []error
	var err error
	if s.Cache.Enabled, err = getEnvBool("CACHE_ENABLED", s.Cache.Enabled); err != nil {
		errs = append(errs, err)
	}
	if s.Cache.Size, err = getEnvInt("CACHE_SIZE", s.Cache.Size); err != nil {
		errs = append(errs, err)
	}
	if s.Cache.TTL, err = getEnvDuration("CACHE_TTL", s.Cache.TTL); err != nil {
		errs = append(errs, err)
	}
	if s.Protection.Enabled, err = getEnvBool("PROTECTION_ENABLED", s.Protection.Enabled); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return intValue, nil
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return boolValue, nil
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return duration, nil
}
