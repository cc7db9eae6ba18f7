package embeddings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigAccessors(t *testing.T) {
	cfg := Config{
		"name":    "x",
		"int":     7,
		"float":   float64(8),
		"frac":    1.5,
		"number":  json.Number("9"),
		"missing": nil,
	}

	s, err := cfg.String("name")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	_, err = cfg.String("int")
	assert.ErrorIs(t, err, ErrInvalidConfigValue)

	for key, want := range map[string]int{"int": 7, "float": 8, "number": 9, "missing": 0, "absent": 0} {
		got, err := cfg.Int(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	_, err = cfg.Int("frac")
	assert.ErrorIs(t, err, ErrInvalidConfigValue)

	assert.Equal(t, []string{"float", "frac", "int", "missing", "name", "number"}, cfg.Keys())
}

func TestConfigClone(t *testing.T) {
	cfg := Config{"a": 1}
	clone := cfg.Clone()
	clone["a"] = 2

	assert.Equal(t, 1, cfg["a"])
	assert.NotNil(t, Config(nil).Clone())
}

func TestStoredConfigJSON(t *testing.T) {
	ef := NewOpenAIEmbeddingFunction(OpenAIOptions{ModelName: "text-embedding-3-small", Dimensions: 512})

	data, err := MarshalStoredJSON(ef)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"openai"`)

	stored, err := UnmarshalStoredJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "openai", stored.Name)

	rebuilt, err := NewOpenAIEmbeddingFunction(OpenAIOptions{}).BuildFromConfig(stored.Config)
	require.NoError(t, err)
	assert.Equal(t, ef.GetConfig(), rebuilt.GetConfig())
}

func TestStoredConfigYAML(t *testing.T) {
	ef := NewCohereEmbeddingFunction(CohereOptions{ModelName: "small", APIKeyEnvVar: "MY_KEY"})

	data, err := MarshalStoredYAML(ef)
	require.NoError(t, err)

	stored, err := UnmarshalStoredYAML(data)
	require.NoError(t, err)
	assert.Equal(t, "cohere", stored.Name)

	rebuilt, err := NewCohereEmbeddingFunction(CohereOptions{}).BuildFromConfig(stored.Config)
	require.NoError(t, err)
	assert.Equal(t, ef.GetConfig(), rebuilt.GetConfig())
}

func TestStoredConfigRequiresName(t *testing.T) {
	_, err := UnmarshalStoredJSON([]byte(`{"config":{"model_name":"large"}}`))
	assert.ErrorIs(t, err, ErrIncompleteConfiguration)

	_, err = UnmarshalStoredYAML([]byte("config:\n  model_name: large\n"))
	assert.ErrorIs(t, err, ErrIncompleteConfiguration)

	_, err = UnmarshalStoredJSON([]byte(`{`))
	assert.Error(t, err)
}
