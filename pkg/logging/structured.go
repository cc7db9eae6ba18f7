package logging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured zap logger with helpers for embedding operations
type Logger struct {
	zap *zap.Logger
}

// Config holds logging configuration
type Config struct {
	Level     string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format    string `yaml:"format" validate:"omitempty,oneof=json console"`
	Output    string `yaml:"output"` // "stdout", "stderr" or a file path
	AddCaller bool   `yaml:"add_caller"`
	AddStack  bool   `yaml:"add_stack"`
}

// DefaultConfig logs info and above as JSON to stderr
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stderr"}
}

// NewLogger creates a new structured logger
func NewLogger(config Config) (*Logger, error) {
	if config.Format == "" {
		config.Format = "json"
	}
	if config.Output == "" {
		config.Output = "stderr"
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(ParseLevel(config.Level))
	zapConfig.Encoding = config.Format
	zapConfig.OutputPaths = []string{config.Output}
	zapConfig.ErrorOutputPaths = []string{config.Output}
	zapConfig.DisableCaller = !config.AddCaller
	zapConfig.DisableStacktrace = !config.AddStack
	if config.Format == "console" {
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{zap: zapLogger}, nil
}

// New wraps an existing zap logger
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{zap: z}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return New(zap.NewNop())
}

// ParseLevel parses a level name, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// With returns a logger carrying extra fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// WithFields adds fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zapFields = append(zapFields, zap.Any(key, value))
	}
	return l.With(zapFields...)
}

// WithContext attaches the trace and span IDs of the active span, if any
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// LogEmbedding logs one GenerateEmbeddings call
func (l *Logger) LogEmbedding(ctx context.Context, provider, model string, items, dimension int, duration time.Duration, err error) {
	logger := l.WithContext(ctx).With(
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Int("items", items),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	)
	if err != nil {
		logger.Error("Embedding request failed", zap.Error(err))
		return
	}
	logger.Debug("Embedding request completed", zap.Int("dimension", dimension))
}

// LogRegistration logs a provider being added to a registry
func (l *Logger) LogRegistration(provider string, replaced bool) {
	l.Info("Embedding function registered",
		zap.String("provider", provider),
		zap.Bool("replaced", replaced),
	)
}

// LogCacheOperation logs the outcome of a cache lookup for a batch
func (l *Logger) LogCacheOperation(ctx context.Context, provider string, hits, misses int) {
	l.WithContext(ctx).Debug("Embedding cache lookup",
		zap.String("provider", provider),
		zap.Int("hits", hits),
		zap.Int("misses", misses),
	)
}

// LogCollection logs a collection lifecycle operation against a vector store
func (l *Logger) LogCollection(ctx context.Context, backend, operation, collection string, err error) {
	logger := l.WithContext(ctx).With(
		zap.String("backend", backend),
		zap.String("operation", operation),
		zap.String("collection", collection),
	)
	if err != nil {
		logger.Error("Collection operation failed", zap.Error(err))
		return
	}
	logger.Info("Collection operation completed")
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// GetZap returns the zap logger
func (l *Logger) GetZap() *zap.Logger {
	return l.zap
}
