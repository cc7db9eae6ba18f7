package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"
	"github.com/snow-ghost/embedcfg/pkg/limiter"
)

const (
	OllamaProviderName = "ollama"
	defaultOllamaURL   = "http://127.0.0.1:11434"
)

var ollamaModels = modelTable{
	"mxbai-embed-large":      {metric: Cosine, dimension: 1024},
	"nomic-embed-text":       {metric: Cosine, dimension: 768},
	"snowflake-arctic-embed": {metric: Cosine, dimension: 1024},
	"all-minilm":             {metric: Cosine, dimension: 384},
}

// OllamaOptions configures the Ollama embedding function
type OllamaOptions struct {
	ModelName string
	URL       string
	// Dimension overrides the model table, for models pulled with a custom size
	Dimension  int
	HTTPClient *http.Client
}

// OllamaEmbeddingFunction embeds documents with a model served by a local Ollama
type OllamaEmbeddingFunction struct {
	modelName string
	url       string
	dimension int
	httpc     *http.Client
}

var (
	_ EmbeddingFunction = (*OllamaEmbeddingFunction)(nil)
	_ Dimensioned       = (*OllamaEmbeddingFunction)(nil)
)

// NewOllamaEmbeddingFunction creates an Ollama embedding function
func NewOllamaEmbeddingFunction(opts OllamaOptions) *OllamaEmbeddingFunction {
	if opts.URL == "" {
		opts.URL = defaultOllamaURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OllamaEmbeddingFunction{
		modelName: opts.ModelName,
		url:       opts.URL,
		dimension: opts.Dimension,
		httpc:     opts.HTTPClient,
	}
}

func (o *OllamaEmbeddingFunction) Name() string {
	return OllamaProviderName
}

// GenerateEmbeddings embeds all documents with one call to /api/embed
func (o *OllamaEmbeddingFunction) GenerateEmbeddings(ctx context.Context, input Embeddable) (Embeddings, error) {
	docs, err := requireDocuments(o.Name(), input)
	if err != nil {
		return nil, err
	}
	if _, err := ollamaModels.lookup(o.Name(), o.modelName); err != nil {
		return nil, err
	}

	base, err := url.Parse(o.url)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama url %q: %v", ErrInvalidConfigValue, o.url, err)
	}
	client := ollama.NewClient(base, o.httpc)

	resp, err := client.Embed(ctx, &ollama.EmbedRequest{
		Model: o.modelName,
		Input: docs,
	})
	if err != nil {
		var statusErr ollama.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("ollama embed failed: %w", limiter.NewHTTPError(statusErr.StatusCode, statusErr.ErrorMessage, statusErr.Status))
		}
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}

	vectors := make(Embeddings, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		vectors[i] = v
	}
	if err := checkShape(o.Name(), vectors, len(docs), o.Dimension()); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (o *OllamaEmbeddingFunction) DefaultMetric() (DistanceMetric, error) {
	return ollamaModels.metric(o.Name(), o.modelName)
}

// Dimension returns the configured override, else the model's vector length, or 0
func (o *OllamaEmbeddingFunction) Dimension() int {
	if o.dimension > 0 {
		return o.dimension
	}
	return ollamaModels[o.modelName].dimension
}

func (o *OllamaEmbeddingFunction) GetConfig() Config {
	return Config{
		"model_name": o.modelName,
		"url":        o.url,
		"dimension":  o.dimension,
	}
}

func (o *OllamaEmbeddingFunction) BuildFromConfig(cfg Config) (EmbeddingFunction, error) {
	if err := checkKeys(o.Name(), cfg, "model_name", "url", "dimension"); err != nil {
		return nil, err
	}

	next := *o
	if cfg.Has("model_name") {
		v, err := cfg.String("model_name")
		if err != nil {
			return nil, err
		}
		next.modelName = v
	}
	if cfg.Has("url") {
		v, err := cfg.String("url")
		if err != nil {
			return nil, err
		}
		next.url = v
	}
	if cfg.Has("dimension") {
		v, err := cfg.Int("dimension")
		if err != nil {
			return nil, err
		}
		next.dimension = v
	}
	return &next, nil
}

func (o *OllamaEmbeddingFunction) ModifiableVariables() []string {
	return []string{"url"}
}
