package embeddings

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// DistanceMetric is the similarity function an index uses to compare vectors
type DistanceMetric string

const (
	Cosine       DistanceMetric = "cosine"
	L2           DistanceMetric = "l2"
	InnerProduct DistanceMetric = "inner_product"
)

// AllMetrics lists every distance metric the vector engine understands
func AllMetrics() []DistanceMetric {
	return []DistanceMetric{Cosine, L2, InnerProduct}
}

// ParseDistanceMetric converts a string into a DistanceMetric
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	m := DistanceMetric(strings.ToLower(strings.TrimSpace(s)))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// Validate reports whether m is one of the known metrics
func (m DistanceMetric) Validate() error {
	if slices.Contains(AllMetrics(), m) {
		return nil
	}
	return fmt.Errorf("%w: distance metric %q", ErrUnsupportedConfiguration, string(m))
}

func (m DistanceMetric) String() string {
	return string(m)
}

// EmbeddingFunction is the contract every embedding provider implements.
//
// Implementations are configured through a flat Config mapping. GetConfig and
// BuildFromConfig round-trip: f.BuildFromConfig(f.GetConfig()) yields a function
// whose GetConfig equals f.GetConfig().
type EmbeddingFunction interface {
	// Name returns the stable provider identifier used as the registry key
	Name() string

	// GenerateEmbeddings returns one vector per input item, in input order.
	// Either every vector is returned or the call fails.
	GenerateEmbeddings(ctx context.Context, input Embeddable) (Embeddings, error)

	// DefaultMetric returns the distance metric the configured model is meant for.
	// Fails with ErrUnsupportedConfiguration when the model has no mapped metric.
	DefaultMetric() (DistanceMetric, error)

	// GetConfig returns every field needed to reconstruct an equivalent function
	GetConfig() Config

	// BuildFromConfig returns a new function with the keys present in cfg applied
	// over the receiver's configuration. The receiver is left untouched.
	// Keys the provider does not declare fail with ErrUnknownConfigKey.
	BuildFromConfig(cfg Config) (EmbeddingFunction, error)

	// ModifiableVariables lists config keys that can change without invalidating
	// previously generated embeddings
	ModifiableVariables() []string
}

// MetricAdvertiser is implemented by providers that can serve more than one metric
type MetricAdvertiser interface {
	SupportedMetrics() []DistanceMetric
}

// Dimensioned is implemented by providers that know their output dimensionality
// before generating anything
type Dimensioned interface {
	Dimension() int
}

// Closer is implemented by providers that hold resources across calls
type Closer interface {
	Close(ctx context.Context) error
}

// Wrapper is implemented by decorators that add behavior around another function
type Wrapper interface {
	Unwrap() EmbeddingFunction
}

// Base strips every decorator from ef
func Base(ef EmbeddingFunction) EmbeddingFunction {
	for {
		w, ok := ef.(Wrapper)
		if !ok {
			return ef
		}
		ef = w.Unwrap()
	}
}

// DimensionOf returns the output size ef declares, or 0 when it does not know
func DimensionOf(ef EmbeddingFunction) int {
	if d, ok := Base(ef).(Dimensioned); ok {
		return d.Dimension()
	}
	return 0
}

// SupportsMetric reports whether ef can be indexed under metric m. Providers that
// do not advertise their metrics only support their default one.
func SupportsMetric(ef EmbeddingFunction, m DistanceMetric) bool {
	if adv, ok := Base(ef).(MetricAdvertiser); ok {
		return slices.Contains(adv.SupportedMetrics(), m)
	}
	def, err := ef.DefaultMetric()
	if err != nil {
		return false
	}
	return def == m
}

// CheckCompatible reports whether next can replace current without invalidating
// vectors current already produced. Only keys listed in current's
// ModifiableVariables may differ.
func CheckCompatible(current, next EmbeddingFunction) error {
	if current == nil || next == nil {
		return nil
	}
	current, next = Base(current), Base(next)
	if current.Name() != next.Name() {
		return fmt.Errorf("%w: provider %q cannot replace %q", ErrIncompatibleEmbeddingFunction, next.Name(), current.Name())
	}

	modifiable := current.ModifiableVariables()
	before := current.GetConfig()
	after := next.GetConfig()

	for _, key := range mergeKeys(before, after) {
		if slices.Contains(modifiable, key) {
			continue
		}
		if !sameValue(before[key], after[key]) {
			return fmt.Errorf("%w: %s.%s changed from %v to %v", ErrIncompatibleEmbeddingFunction, current.Name(), key, before[key], after[key])
		}
	}
	return nil
}

func mergeKeys(a, b Config) []string {
	keys := a.Keys()
	for _, k := range b.Keys() {
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func sameValue(a, b any) bool {
	if ai, ok := asInt(a); ok {
		bi, ok := asInt(b)
		return ok && ai == bi
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
