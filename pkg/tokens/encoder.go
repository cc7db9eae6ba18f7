package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder represents a token encoder for a specific model
type Encoder interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
	Count(text string) (int, error)
}

// TiktokenEncoder implements Encoder using tiktoken-go
type TiktokenEncoder struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEncoder creates a new tiktoken encoder
func NewTiktokenEncoder(encodingName string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}

	return &TiktokenEncoder{
		encoding: encoding,
	}, nil
}

// Encode converts text to tokens
func (e *TiktokenEncoder) Encode(text string) ([]int, error) {
	return e.encoding.Encode(text, nil, nil), nil
}

// Decode converts tokens to text
func (e *TiktokenEncoder) Decode(tokens []int) (string, error) {
	return e.encoding.Decode(tokens), nil
}

// Count returns the number of tokens in text
func (e *TiktokenEncoder) Count(text string) (int, error) {
	tokens := e.encoding.Encode(text, nil, nil)
	return len(tokens), nil
}

// MockEncoder implements Encoder with simple character-based counting
type MockEncoder struct{}

// NewMockEncoder creates a new mock encoder
func NewMockEncoder() *MockEncoder {
	return &MockEncoder{}
}

// Encode converts text to mock tokens (character-based)
func (e *MockEncoder) Encode(text string) ([]int, error) {
	count := len(text) / 4
	if count < 1 && len(text) > 0 {
		count = 1
	}

	tokens := make([]int, count)
	for i := 0; i < count; i++ {
		tokens[i] = i
	}
	return tokens, nil
}

// Decode is not supported: mock tokens carry no text
func (e *MockEncoder) Decode(tokens []int) (string, error) {
	return "", fmt.Errorf("mock decoder not implemented")
}

// Count returns the number of tokens in text (~4 characters per token)
func (e *MockEncoder) Count(text string) (int, error) {
	count := len(text) / 4
	if count < 1 {
		count = 1
	}
	return count, nil
}

// Truncate shortens text to at most maxTokens tokens. Encoders that cannot decode
// fall back to cutting at roughly four characters per token on a word boundary.
func Truncate(enc Encoder, text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}

	count, err := enc.Count(text)
	if err != nil || count <= maxTokens {
		return text, false
	}

	if toks, err := enc.Encode(text); err == nil && len(toks) > maxTokens {
		if decoded, err := enc.Decode(toks[:maxTokens]); err == nil {
			return decoded, true
		}
	}

	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text, false
	}

	truncated := text[:maxChars]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return truncated, true
}

// EncoderRegistry manages model-to-encoder mappings
type EncoderRegistry struct {
	mu       sync.RWMutex
	encoders map[string]Encoder
	fallback Encoder
}

// NewEncoderRegistry creates a new encoder registry
func NewEncoderRegistry() *EncoderRegistry {
	return &EncoderRegistry{
		encoders: make(map[string]Encoder),
		fallback: NewMockEncoder(),
	}
}

// RegisterEncoder registers an encoder for a model
func (r *EncoderRegistry) RegisterEncoder(modelID string, encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.encoders[modelID] = encoder
}

// GetEncoder returns the encoder for a model, or fallback if not found
func (r *EncoderRegistry) GetEncoder(modelID string) Encoder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if encoder, exists := r.encoders[modelID]; exists {
		return encoder
	}
	return r.fallback
}

// CountTokens counts tokens in text using the appropriate encoder
func (r *EncoderRegistry) CountTokens(modelID, text string) (int, error) {
	encoder := r.GetEncoder(modelID)
	return encoder.Count(text)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *EncoderRegistry
)

// EmbeddingModels lists the OpenAI embedding models sharing the cl100k_base encoding
var EmbeddingModels = []string{
	"text-embedding-3-small",
	"text-embedding-3-large",
	"text-embedding-ada-002",
}

// GetDefaultRegistry returns a lazily built registry with the embedding model
// encoders. Models whose encoding cannot be loaded use the mock fallback.
func GetDefaultRegistry() *EncoderRegistry {
	defaultOnce.Do(func() {
		defaultRegistry = NewEncoderRegistry()
		encoder, err := NewTiktokenEncoder("cl100k_base")
		if err != nil {
			return
		}
		for _, model := range EmbeddingModels {
			defaultRegistry.RegisterEncoder(model, encoder)
		}
	})
	return defaultRegistry
}
