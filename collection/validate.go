package collection

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/snow-ghost/embedcfg/embeddings"
)

// ErrInvalidConfig is returned when a record holds values the engine rejects
var ErrInvalidConfig = errors.New("invalid collection config")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil function
	_ = v.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
		return embeddings.DistanceMetric(fl.Field().String()).Validate() == nil
	})
	return v
}

func validateStruct(record any) error {
	err := validate.Struct(record)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = describe(fe)
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "metric":
		return fmt.Sprintf("%s: unknown distance metric %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

func (c HNSWConfig) Validate() error       { return validateStruct(c) }
func (c HNSWCreateConfig) Validate() error { return validateStruct(c) }
func (c RuntimeConfig) Validate() error    { return validateStruct(c) }

// Validate checks every field and that the embedding function can serve the
// index metric
func (c CreateCollectionConfig) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	return checkMetric(c.EmbeddingFunction, c.HNSW.DistanceMetric)
}

func (c UpdateCollectionConfig) Validate() error { return validateStruct(c) }

func (c QueryCollectionConfig) Validate() error { return validateStruct(c) }

// checkMetric only rejects functions that advertise their metrics and leave m out
func checkMetric(ef embeddings.EmbeddingFunction, m embeddings.DistanceMetric) error {
	if ef == nil {
		return nil
	}
	adv, ok := embeddings.Base(ef).(embeddings.MetricAdvertiser)
	if !ok {
		return nil
	}
	if !slices.Contains(adv.SupportedMetrics(), m) {
		return fmt.Errorf("%w: %s embeddings do not support the %s metric", ErrInvalidConfig, ef.Name(), m)
	}
	return nil
}
