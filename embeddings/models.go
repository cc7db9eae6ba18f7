package embeddings

import (
	"fmt"
	"maps"
	"slices"
)

// modelSpec describes what a provider knows about one of its models
type modelSpec struct {
	metric    DistanceMetric
	dimension int
	// apiModel is the identifier sent upstream when it differs from the config name
	apiModel string
}

type modelTable map[string]modelSpec

func (t modelTable) lookup(provider, model string) (modelSpec, error) {
	if model == "" {
		return modelSpec{}, fmt.Errorf("%w: %s model_name is not set", ErrUnsupportedModel, provider)
	}
	spec, ok := t[model]
	if !ok {
		return modelSpec{}, fmt.Errorf("%w: %s model %q (known: %v)", ErrUnsupportedModel, provider, model, t.names())
	}
	return spec, nil
}

// metric maps a model to its default metric, failing with
// ErrUnsupportedConfiguration for anything outside the table
func (t modelTable) metric(provider, model string) (DistanceMetric, error) {
	spec, ok := t[model]
	if !ok {
		return "", fmt.Errorf("%w: %s model %q has no default metric", ErrUnsupportedConfiguration, provider, model)
	}
	return spec.metric, nil
}

func (t modelTable) names() []string {
	return slices.Sorted(maps.Keys(t))
}

func (s modelSpec) upstream(model string) string {
	if s.apiModel != "" {
		return s.apiModel
	}
	return model
}
