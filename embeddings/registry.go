package embeddings

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/snow-ghost/embedcfg/pkg/logging"
	"github.com/snow-ghost/embedcfg/pkg/metrics"
	"go.uber.org/zap"
)

// Registry maps provider names to live embedding functions. Entries are added by
// Register and never removed; registering a name again replaces the previous entry.
// A Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]EmbeddingFunction
	logger    *logging.Logger
	metrics   *metrics.PrometheusMetrics
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger logs every registration
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithRegistryMetrics reports the registry size
func WithRegistryMetrics(m *metrics.PrometheusMetrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		functions: make(map[string]EmbeddingFunction),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts ef under ef.Name(), replacing any previous registration.
// A replaced entry that holds resources is closed.
func (r *Registry) Register(ef EmbeddingFunction) error {
	if ef == nil {
		return fmt.Errorf("cannot register nil embedding function")
	}
	name := ef.Name()
	if name == "" {
		return fmt.Errorf("cannot register embedding function with empty name")
	}

	r.mu.Lock()
	previous, replaced := r.functions[name]
	r.functions[name] = ef
	size := len(r.functions)
	r.mu.Unlock()

	if closer, ok := previous.(Closer); ok && previous != ef {
		if err := closer.Close(context.Background()); err != nil {
			r.logger.Warn("failed to close replaced embedding function", zap.String("provider", name), zap.Error(err))
		}
	}
	r.logger.LogRegistration(name, replaced)
	if r.metrics != nil {
		r.metrics.SetRegisteredProviders(size)
	}
	return nil
}

// Get returns the embedding function registered under name
func (r *Registry) Get(name string) (EmbeddingFunction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ef, exists := r.functions[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return ef, nil
}

// Names returns registered provider names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.functions))
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.functions)
}

// Build reconstructs an embedding function from its stored form. The registered
// function for stored.Name serves as the base the stored keys are applied to.
func (r *Registry) Build(stored StoredConfig) (EmbeddingFunction, error) {
	base, err := r.Get(stored.Name)
	if err != nil {
		return nil, err
	}

	ef, err := base.BuildFromConfig(stored.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s embedding function: %w", stored.Name, err)
	}
	return ef, nil
}

// BuildAll reconstructs and registers every stored config in order
func (r *Registry) BuildAll(stored []StoredConfig) error {
	for _, sc := range stored {
		ef, err := r.Build(sc)
		if err != nil {
			return err
		}
		if err := r.Register(ef); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every registered function that holds resources
func (r *Registry) Close(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, ef := range r.functions {
		if closer, ok := ef.(Closer); ok {
			errs = append(errs, closer.Close(ctx))
		}
	}
	return errors.Join(errs...)
}

// Register inserts ef into r. It is the free-function form of Registry.Register.
func Register(r *Registry, ef EmbeddingFunction) error {
	return r.Register(ef)
}

// RegistryOptions tunes the prototypes installed by NewDefaultRegistry
type RegistryOptions struct {
	Default DefaultOptions
	Cohere  CohereOptions
	OpenAI  OpenAIOptions
	Ollama  OllamaOptions
	Wasm    WasmOptions
}

// NewDefaultRegistry returns a registry holding one prototype of every built-in
// provider. Only the default prototype has a model; Build applies stored configs
// over the others.
func NewDefaultRegistry(opts RegistryOptions, ropts ...RegistryOption) *Registry {
	r := NewRegistry(ropts...)
	for _, ef := range []EmbeddingFunction{
		NewDefaultEmbeddingFunction(opts.Default),
		NewCohereEmbeddingFunction(opts.Cohere),
		NewOpenAIEmbeddingFunction(opts.OpenAI),
		NewOllamaEmbeddingFunction(opts.Ollama),
		NewWasmEmbeddingFunction(opts.Wasm),
	} {
		// Built-in names are non-empty, so registration cannot fail
		_ = r.Register(ef)
	}
	return r
}
