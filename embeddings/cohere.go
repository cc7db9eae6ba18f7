package embeddings

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/snow-ghost/embedcfg/pkg/limiter"
)

const (
	CohereProviderName   = "cohere"
	defaultCohereBaseURL = "https://api.cohere.com"
	defaultCohereKeyEnv  = "COHERE_API_KEY"
	defaultCohereInput   = "search_document"
)

var cohereModels = modelTable{
	"large": {metric: Cosine, dimension: 1024, apiModel: "embed-english-v3.0"},
	"small": {metric: L2, dimension: 384, apiModel: "embed-english-light-v3.0"},
}

// CohereOptions configures the Cohere embedding function
type CohereOptions struct {
	ModelName    string
	APIKeyEnvVar string
	BaseURL      string
	InputType    string
	Timeout      time.Duration
}

// CohereEmbeddingFunction embeds documents through Cohere's embed endpoint. The API
// key is read from the environment variable named by api_key_env_var at call time,
// so the key itself never appears in the configuration.
type CohereEmbeddingFunction struct {
	modelName    string
	apiKeyEnvVar string
	baseURL      string
	inputType    string
	client       *resty.Client
}

var (
	_ EmbeddingFunction = (*CohereEmbeddingFunction)(nil)
	_ Dimensioned       = (*CohereEmbeddingFunction)(nil)
)

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type cohereEmbedResponse struct {
	ID         string      `json:"id"`
	Embeddings [][]float32 `json:"embeddings"`
}

type cohereErrorResponse struct {
	Message string `json:"message"`
}

// NewCohereEmbeddingFunction creates a Cohere embedding function
func NewCohereEmbeddingFunction(opts CohereOptions) *CohereEmbeddingFunction {
	if opts.APIKeyEnvVar == "" {
		opts.APIKeyEnvVar = defaultCohereKeyEnv
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultCohereBaseURL
	}
	if opts.InputType == "" {
		opts.InputType = defaultCohereInput
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	return &CohereEmbeddingFunction{
		modelName:    opts.ModelName,
		apiKeyEnvVar: opts.APIKeyEnvVar,
		baseURL:      opts.BaseURL,
		inputType:    opts.InputType,
		client:       resty.New().SetTimeout(opts.Timeout),
	}
}

func (c *CohereEmbeddingFunction) Name() string {
	return CohereProviderName
}

// GenerateEmbeddings sends every document in one request
func (c *CohereEmbeddingFunction) GenerateEmbeddings(ctx context.Context, input Embeddable) (Embeddings, error) {
	docs, err := requireDocuments(c.Name(), input)
	if err != nil {
		return nil, err
	}
	spec, err := cohereModels.lookup(c.Name(), c.modelName)
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv(c.apiKeyEnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", ErrIncompleteConfiguration, c.apiKeyEnvVar)
	}

	var result cohereEmbedResponse
	var apiErr cohereErrorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(cohereEmbedRequest{
			Texts:     docs,
			Model:     spec.upstream(c.modelName),
			InputType: c.inputType,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(c.baseURL + "/v1/embed")
	if err != nil {
		return nil, fmt.Errorf("cohere embed request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cohere embed failed: %w", limiter.NewHTTPError(resp.StatusCode(), apiErr.Message, resp.String()))
	}

	vectors := make(Embeddings, len(result.Embeddings))
	for i, v := range result.Embeddings {
		vectors[i] = v
	}
	if err := checkShape(c.Name(), vectors, len(docs), spec.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *CohereEmbeddingFunction) DefaultMetric() (DistanceMetric, error) {
	return cohereModels.metric(c.Name(), c.modelName)
}

// Dimension returns the vector length of the configured model, or 0 if unknown
func (c *CohereEmbeddingFunction) Dimension() int {
	return cohereModels[c.modelName].dimension
}

func (c *CohereEmbeddingFunction) GetConfig() Config {
	return Config{
		"model_name":      c.modelName,
		"api_key_env_var": c.apiKeyEnvVar,
		"base_url":        c.baseURL,
		"input_type":      c.inputType,
	}
}

func (c *CohereEmbeddingFunction) BuildFromConfig(cfg Config) (EmbeddingFunction, error) {
	if err := checkKeys(c.Name(), cfg, "model_name", "api_key_env_var", "base_url", "input_type"); err != nil {
		return nil, err
	}

	next := *c
	fields := map[string]*string{
		"model_name":      &next.modelName,
		"api_key_env_var": &next.apiKeyEnvVar,
		"base_url":        &next.baseURL,
		"input_type":      &next.inputType,
	}
	for key, field := range fields {
		if !cfg.Has(key) {
			continue
		}
		v, err := cfg.String(key)
		if err != nil {
			return nil, err
		}
		*field = v
	}
	return &next, nil
}

func (c *CohereEmbeddingFunction) ModifiableVariables() []string {
	return []string{"api_key_env_var", "base_url"}
}
