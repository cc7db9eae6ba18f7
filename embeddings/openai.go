package embeddings

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"
	"github.com/snow-ghost/embedcfg/pkg/limiter"
	"github.com/snow-ghost/embedcfg/pkg/tokens"
)

const (
	OpenAIProviderName   = "openai"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIKeyEnv  = "OPENAI_API_KEY"
	defaultOpenAITokens  = 8191
)

var openAIModels = modelTable{
	"text-embedding-3-small": {metric: Cosine, dimension: 1536},
	"text-embedding-3-large": {metric: Cosine, dimension: 3072},
	"text-embedding-ada-002": {metric: Cosine, dimension: 1536},
}

// OpenAIOptions configures the OpenAI embedding function
type OpenAIOptions struct {
	ModelName    string
	APIKeyEnvVar string
	BaseURL      string
	// Dimensions shortens text-embedding-3 vectors; 0 keeps the model's native size
	Dimensions int
	MaxTokens  int
	// Encoder counts tokens for truncation; nil selects the model's tiktoken encoding
	Encoder tokens.Encoder
}

// OpenAIEmbeddingFunction embeds documents with OpenAI-compatible embedding APIs
type OpenAIEmbeddingFunction struct {
	modelName    string
	apiKeyEnvVar string
	baseURL      string
	dimensions   int
	maxTokens    int
	encoder      tokens.Encoder
}

var (
	_ EmbeddingFunction = (*OpenAIEmbeddingFunction)(nil)
	_ MetricAdvertiser  = (*OpenAIEmbeddingFunction)(nil)
	_ Dimensioned       = (*OpenAIEmbeddingFunction)(nil)
)

// NewOpenAIEmbeddingFunction creates an OpenAI embedding function
func NewOpenAIEmbeddingFunction(opts OpenAIOptions) *OpenAIEmbeddingFunction {
	if opts.APIKeyEnvVar == "" {
		opts.APIKeyEnvVar = defaultOpenAIKeyEnv
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultOpenAIBaseURL
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultOpenAITokens
	}

	return &OpenAIEmbeddingFunction{
		modelName:    opts.ModelName,
		apiKeyEnvVar: opts.APIKeyEnvVar,
		baseURL:      opts.BaseURL,
		dimensions:   opts.Dimensions,
		maxTokens:    opts.MaxTokens,
		encoder:      opts.Encoder,
	}
}

func (o *OpenAIEmbeddingFunction) Name() string {
	return OpenAIProviderName
}

// GenerateEmbeddings embeds all documents in a single batch request
func (o *OpenAIEmbeddingFunction) GenerateEmbeddings(ctx context.Context, input Embeddable) (Embeddings, error) {
	docs, err := requireDocuments(o.Name(), input)
	if err != nil {
		return nil, err
	}
	if _, err := openAIModels.lookup(o.Name(), o.modelName); err != nil {
		return nil, err
	}
	if o.dimensions > 0 && o.modelName == "text-embedding-ada-002" {
		return nil, fmt.Errorf("%w: %s does not support custom dimensions", ErrUnsupportedConfiguration, o.modelName)
	}

	apiKey := os.Getenv(o.apiKeyEnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", ErrIncompleteConfiguration, o.apiKeyEnvVar)
	}

	// Truncate texts that exceed the model's context
	encoder := o.encoder
	if encoder == nil {
		encoder = tokens.GetDefaultRegistry().GetEncoder(o.modelName)
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i], _ = tokens.Truncate(encoder, doc, o.maxTokens)
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = o.baseURL
	client := openai.NewClientWithConfig(config)

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.modelName),
		Dimensions: o.dimensions,
	}

	resp, err := client.CreateEmbeddings(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai embeddings failed: %w", limiter.NewHTTPError(apiErr.HTTPStatusCode, apiErr.Message, ""))
		}
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}

	// Place vectors by their reported index
	vectors := make(Embeddings, len(resp.Data))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: openai returned index %d for %d items", ErrDimensionMismatch, data.Index, len(docs))
		}
		vectors[data.Index] = data.Embedding
	}

	if err := checkShape(o.Name(), vectors, len(docs), o.Dimension()); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (o *OpenAIEmbeddingFunction) DefaultMetric() (DistanceMetric, error) {
	return openAIModels.metric(o.Name(), o.modelName)
}

// SupportedMetrics returns every metric: OpenAI vectors are unit length, so the
// three metrics rank neighbors identically
func (o *OpenAIEmbeddingFunction) SupportedMetrics() []DistanceMetric {
	return AllMetrics()
}

// Dimension returns the configured output size
func (o *OpenAIEmbeddingFunction) Dimension() int {
	if o.dimensions > 0 {
		return o.dimensions
	}
	return openAIModels[o.modelName].dimension
}

// GetConfig leaves dimensions out while the model's native size is in use
func (o *OpenAIEmbeddingFunction) GetConfig() Config {
	cfg := Config{
		"model_name":      o.modelName,
		"api_key_env_var": o.apiKeyEnvVar,
		"base_url":        o.baseURL,
		"max_tokens":      o.maxTokens,
	}
	if o.dimensions > 0 {
		cfg["dimensions"] = o.dimensions
	}
	return cfg
}

func (o *OpenAIEmbeddingFunction) BuildFromConfig(cfg Config) (EmbeddingFunction, error) {
	if err := checkKeys(o.Name(), cfg, "model_name", "api_key_env_var", "base_url", "dimensions", "max_tokens"); err != nil {
		return nil, err
	}

	next := *o
	for key, field := range map[string]*string{
		"model_name":      &next.modelName,
		"api_key_env_var": &next.apiKeyEnvVar,
		"base_url":        &next.baseURL,
	} {
		if !cfg.Has(key) {
			continue
		}
		v, err := cfg.String(key)
		if err != nil {
			return nil, err
		}
		*field = v
	}
	for key, field := range map[string]*int{
		"dimensions": &next.dimensions,
		"max_tokens": &next.maxTokens,
	} {
		if !cfg.Has(key) {
			continue
		}
		v, err := cfg.Int(key)
		if err != nil {
			return nil, err
		}
		*field = v
	}
	if cfg.Has("dimensions") && next.dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidConfigValue, next.dimensions)
	}
	return &next, nil
}

// ModifiableVariables covers credentials and endpoint. max_tokens is excluded:
// truncating differently changes the vectors of long documents.
func (o *OpenAIEmbeddingFunction) ModifiableVariables() []string {
	return []string{"api_key_env_var", "base_url"}
}
