package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("EMBEDCFG_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProvidersCommand(t *testing.T) {
	out, err := run(t, "providers")
	require.NoError(t, err)

	for _, name := range []string{"cohere", "default", "ollama", "openai", "wasm"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, embeddings.DefaultModelName)
}

func TestEmbedCommand(t *testing.T) {
	t.Run("Should print one vector per text", func(t *testing.T) {
		out, err := run(t, "embed", "--batch-size", "1", "hello", "world", "again")
		require.NoError(t, err)

		var result embedOutput
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "default", result.Provider)
		assert.Equal(t, embeddings.Cosine, result.Metric)
		assert.Equal(t, 384, result.Dimension)
		assert.Len(t, result.Embeddings, 3)
	})

	t.Run("Should apply providers from the settings file", func(t *testing.T) {
		settings := writeTemp(t, "settings.yaml", "providers:\n  - name: default\n    config:\n      model_name: unknown-model\n")
		_, err := run(t, "--config", settings, "embed", "hello")
		assert.ErrorIs(t, err, embeddings.ErrUnsupportedModel)
	})

	t.Run("Should reject unknown overrides", func(t *testing.T) {
		_, err := run(t, "embed", "--set", "colour=red", "hello")
		assert.ErrorIs(t, err, embeddings.ErrUnknownConfigKey)
	})

	t.Run("Should reject unknown providers", func(t *testing.T) {
		_, err := run(t, "embed", "--provider", "nope", "hello")
		assert.ErrorIs(t, err, embeddings.ErrProviderNotFound)
	})
}

func TestCollectionCommands(t *testing.T) {
	create := writeTemp(t, "create.yaml", `
hnsw:
  distance_metric: cosine
embedding_function:
  name: default
`)

	t.Run("Should resolve a create config", func(t *testing.T) {
		out, err := run(t, "collection", "create", "--file", create)
		require.NoError(t, err)

		var result collectionOutput
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "cosine", result.Metadata["hnsw:space"])
		assert.Equal(t, 80.0, result.Metadata["hnsw:construction_ef"])
		assert.Contains(t, result.Metadata, "embedding_function")
	})

	t.Run("Should resolve an update config", func(t *testing.T) {
		update := writeTemp(t, "update.yaml", "hnsw:\n  ef_search: 10\n")
		out, err := run(t, "collection", "update", "--file", update)
		require.NoError(t, err)
		assert.Contains(t, out, `"hnsw:search_ef": 10`)
	})

	t.Run("Should reject invalid configs", func(t *testing.T) {
		bad := writeTemp(t, "bad.yaml", "hnsw:\n  max_neighbors: 1\n")
		_, err := run(t, "collection", "create", "--file", bad)
		assert.Error(t, err)
	})

	t.Run("Should require a chroma address to apply", func(t *testing.T) {
		_, err := run(t, "collection", "create", "--file", create, "--apply", "docs")
		assert.ErrorContains(t, err, "chroma_addr")
	})

	t.Run("Should require a redis address for indexes", func(t *testing.T) {
		_, err := run(t, "collection", "index", "docs", "--file", create)
		assert.ErrorContains(t, err, "redis_addr")
	})
}

func TestRootCommandClosesApp(t *testing.T) {
	t.Setenv("EMBEDCFG_LOG_LEVEL", "error")
	settings := writeTemp(t, "settings.yaml", "redis_addr: 127.0.0.1:6390\n")

	execute := func(args ...string) (*command, error) {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"--config", settings}, args...))
		return root, root.Execute()
	}

	t.Run("Should close the app when the command fails", func(t *testing.T) {
		root, err := execute("embed", "--provider", "nope", "hello")
		assert.ErrorIs(t, err, embeddings.ErrProviderNotFound)

		require.NotNil(t, root.state)
		assert.ErrorIs(t, root.state.redis.Ping(context.Background()).Err(), redis.ErrClosed)
	})

	t.Run("Should close the app after the command succeeds", func(t *testing.T) {
		root, err := execute("providers")
		require.NoError(t, err)

		require.NotNil(t, root.state)
		assert.ErrorIs(t, root.state.redis.Ping(context.Background()).Err(), redis.ErrClosed)
	})
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parseOverrides([]string{"model_name=small", "dimensions=256", "flag=true", "url=http://host:1/x", "empty="})
	require.NoError(t, err)
	assert.Equal(t, embeddings.Config{
		"model_name": "small",
		"dimensions": 256,
		"flag":       true,
		"url":        "http://host:1/x",
		"empty":      "",
	}, cfg)

	_, err = parseOverrides([]string{"novalue"})
	assert.Error(t, err)
}
