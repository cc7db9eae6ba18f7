package embeddings

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config is the flat key/value configuration of an embedding function
type Config map[string]any

// Clone returns a shallow copy of c
func (c Config) Clone() Config {
	if c == nil {
		return Config{}
	}
	return maps.Clone(c)
}

// Keys returns the configured keys in sorted order
func (c Config) Keys() []string {
	return slices.Sorted(maps.Keys(c))
}

// Has reports whether key is present
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// String reads a string value. A nil value reads as the empty string.
func (c Config) String(key string) (string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidConfigValue, key, v)
	}
	return s, nil
}

// Int reads an integer value, accepting the numeric types JSON and YAML decoders produce
func (c Config) Int(key string) (int, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidConfigValue, key, v)
	}
	return n, nil
}

// checkKeys fails with ErrUnknownConfigKey when cfg carries a key outside allowed
func checkKeys(provider string, cfg Config, allowed ...string) error {
	for _, key := range cfg.Keys() {
		if !slices.Contains(allowed, key) {
			return fmt.Errorf("%w: %s does not accept %q", ErrUnknownConfigKey, provider, key)
		}
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		if float32(math.Trunc(float64(n))) == n {
			return int(n), true
		}
	case float64:
		if math.Trunc(n) == n {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// StoredConfig is the persisted form of an embedding function: the provider name
// selects the implementation, the config reconstructs it.
type StoredConfig struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Config Config `json:"config,omitempty" yaml:"config,omitempty"`
}

// Store captures ef's name and configuration
func Store(ef EmbeddingFunction) StoredConfig {
	return StoredConfig{
		Name:   ef.Name(),
		Config: ef.GetConfig(),
	}
}

// MarshalStoredJSON serializes an embedding function's stored form
func MarshalStoredJSON(ef EmbeddingFunction) ([]byte, error) {
	data, err := json.Marshal(Store(ef))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding function %s: %w", ef.Name(), err)
	}
	return data, nil
}

// UnmarshalStoredJSON parses a stored form produced by MarshalStoredJSON
func UnmarshalStoredJSON(data []byte) (StoredConfig, error) {
	var stored StoredConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		return StoredConfig{}, fmt.Errorf("failed to parse embedding function config: %w", err)
	}
	if stored.Name == "" {
		return StoredConfig{}, fmt.Errorf("%w: stored config has no name", ErrIncompleteConfiguration)
	}
	return stored, nil
}

// MarshalStoredYAML serializes an embedding function's stored form as YAML
func MarshalStoredYAML(ef EmbeddingFunction) ([]byte, error) {
	data, err := yaml.Marshal(Store(ef))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding function %s: %w", ef.Name(), err)
	}
	return data, nil
}

// UnmarshalStoredYAML parses a stored form produced by MarshalStoredYAML
func UnmarshalStoredYAML(data []byte) (StoredConfig, error) {
	var stored StoredConfig
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return StoredConfig{}, fmt.Errorf("failed to parse YAML embedding function config: %w", err)
	}
	if stored.Name == "" {
		return StoredConfig{}, fmt.Errorf("%w: stored config has no name", ErrIncompleteConfiguration)
	}
	return stored, nil
}
