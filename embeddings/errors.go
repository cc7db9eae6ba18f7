package embeddings

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedConfiguration indicates a config value with no mapped behavior
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrUnsupportedModel indicates the configured model is unset or unknown
	ErrUnsupportedModel = fmt.Errorf("%w: unsupported model", ErrUnsupportedConfiguration)

	// ErrIncompleteConfiguration indicates a required field is missing
	ErrIncompleteConfiguration = errors.New("incomplete configuration")

	// ErrUnknownConfigKey indicates BuildFromConfig received an undeclared key
	ErrUnknownConfigKey = errors.New("unknown config key")

	// ErrInvalidConfigValue indicates a known key carrying a value of the wrong type
	// or out of range
	ErrInvalidConfigValue = errors.New("invalid config value")

	// ErrInvalidInput indicates empty, mixed or unsupported input
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates a provider returned vectors of unexpected shape
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrProviderNotFound indicates a registry lookup miss
	ErrProviderNotFound = errors.New("embedding function not registered")

	// ErrIncompatibleEmbeddingFunction indicates a replacement would invalidate stored vectors
	ErrIncompatibleEmbeddingFunction = errors.New("incompatible embedding function")
)
