package embeddings

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultProviderName = "default"
	DefaultModelName    = "all-MiniLM-L6-v2"
)

var defaultModels = modelTable{
	DefaultModelName: {metric: Cosine, dimension: 384},
}

// DefaultOptions configures the local embedding function
type DefaultOptions struct {
	ModelName string
}

// DefaultEmbeddingFunction is a local, deterministic text embedder. Tokens are
// hashed into a fixed number of buckets with log-scaled term frequencies and the
// result is normalized to unit length. It needs no network access.
//
// It does not run the all-MiniLM-L6-v2 model. It stands in for it with the same
// name, dimension and metric, so configs and collection metadata match those of
// the real model, but its vectors only capture token overlap and are not
// interchangeable with MiniLM output.
type DefaultEmbeddingFunction struct {
	modelName string
}

var (
	_ EmbeddingFunction = (*DefaultEmbeddingFunction)(nil)
	_ Dimensioned       = (*DefaultEmbeddingFunction)(nil)
)

// NewDefaultEmbeddingFunction creates the local embedding function
func NewDefaultEmbeddingFunction(opts DefaultOptions) *DefaultEmbeddingFunction {
	if opts.ModelName == "" {
		opts.ModelName = DefaultModelName
	}
	return &DefaultEmbeddingFunction{modelName: opts.ModelName}
}

func (d *DefaultEmbeddingFunction) Name() string {
	return DefaultProviderName
}

// GenerateEmbeddings hashes each document into a normalized vector
func (d *DefaultEmbeddingFunction) GenerateEmbeddings(ctx context.Context, input Embeddable) (Embeddings, error) {
	docs, err := requireDocuments(d.Name(), input)
	if err != nil {
		return nil, err
	}
	spec, err := defaultModels.lookup(d.Name(), d.modelName)
	if err != nil {
		return nil, err
	}

	result := make(Embeddings, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result[i] = embedTokens(tokenize(doc), spec.dimension)
	}
	return result, nil
}

func (d *DefaultEmbeddingFunction) DefaultMetric() (DistanceMetric, error) {
	return defaultModels.metric(d.Name(), d.modelName)
}

// Dimension returns the vector length of the configured model, or 0 if unknown
func (d *DefaultEmbeddingFunction) Dimension() int {
	return defaultModels[d.modelName].dimension
}

func (d *DefaultEmbeddingFunction) GetConfig() Config {
	return Config{"model_name": d.modelName}
}

func (d *DefaultEmbeddingFunction) BuildFromConfig(cfg Config) (EmbeddingFunction, error) {
	if err := checkKeys(d.Name(), cfg, "model_name"); err != nil {
		return nil, err
	}
	next := *d
	if cfg.Has("model_name") {
		model, err := cfg.String("model_name")
		if err != nil {
			return nil, err
		}
		next.modelName = model
	}
	return &next, nil
}

// ModifiableVariables is empty: the model is the only setting and changing it
// changes the vector space
func (d *DefaultEmbeddingFunction) ModifiableVariables() []string {
	return []string{}
}

// embedTokens builds a signed hashing-trick vector from term frequencies
func embedTokens(tokens []string, dimension int) Embedding {
	tf := make(map[string]int)
	for _, token := range tokens {
		tf[token]++
	}

	vector := make(Embedding, dimension)
	for token, freq := range tf {
		h := xxhash.Sum64String(token)
		idx := h % uint64(dimension)
		weight := 1.0 + math.Log(float64(freq))
		if h>>63 == 1 {
			weight = -weight
		}
		vector[idx] += float32(weight)
	}

	normalize(vector)
	return vector
}

// tokenize lowercases text and splits it on anything that is not a letter or digit
func tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

// normalize scales a vector to unit length in place
func normalize(vector Embedding) {
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vector {
			vector[i] = float32(float64(vector[i]) / norm)
		}
	}
}
