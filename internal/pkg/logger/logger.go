package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with risk-pipeline specific helpers
type Logger struct {
	*zap.Logger
	serviceName string
}

// ContextKey for request context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	AnalystIDKey ContextKey = "analyst_id"
	TraceIDKey   ContextKey = "trace_id"
	GrantIDKey   ContextKey = "grant_id"
)

// New creates a new logger instance
func New(serviceName, environment string, debug bool) (*Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
		"pid":     os.Getpid(),
	}

	zapLogger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), serviceName: "nop"}
}

// Named returns a named sub-logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.Named(name),
		serviceName: l.serviceName,
	}
}

// WithContext returns a logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if analystID, ok := ctx.Value(AnalystIDKey).(string); ok && analystID != "" {
		fields = append(fields, zap.String("analyst_id", analystID))
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if grantID, ok := ctx.Value(GrantIDKey).(string); ok && grantID != "" {
		fields = append(fields, zap.String("grant_id", grantID))
	}

	return &Logger{
		Logger:      l.With(fields...),
		serviceName: l.serviceName,
	}
}

// FeaturesComputed logs a completed feature computation
func (l *Logger) FeaturesComputed(grantID string, txCount int, durationMs int64) {
	l.Info("features computed",
		zap.String("grant_id", grantID),
		zap.Int("tx_count", txCount),
		zap.Int64("duration_ms", durationMs),
	)
}

// RulesEvaluated logs the rules that fired for a subject
func (l *Logger) RulesEvaluated(grantID string, triggered []string) {
	l.Info("rules evaluated",
		zap.String("grant_id", grantID),
		zap.Strings("triggered_rules", triggered),
	)
}

// ScoreComputed logs a risk score
func (l *Logger) ScoreComputed(grantID string, score float64, tier string) {
	l.Info("score computed",
		zap.String("grant_id", grantID),
		zap.Float64("risk_score", score),
		zap.String("risk_tier", tier),
	)
}

// AlertMaterialized logs the first assembly of an alert
func (l *Logger) AlertMaterialized(grantID string, tier string, timelineLen int) {
	l.Warn("alert materialized",
		zap.String("grant_id", grantID),
		zap.String("risk_tier", tier),
		zap.Int("timeline_len", timelineLen),
	)
}

// EntityResolved logs an entity resolution outcome
func (l *Logger) EntityResolved(partyID, canonicalID string, confidence float64, cached bool) {
	l.Debug("entity resolved",
		zap.String("party_id", partyID),
		zap.String("canonical_id", canonicalID),
		zap.Float64("confidence", confidence),
		zap.Bool("cached", cached),
	)
}

// GeneratorFallback logs a deterministic fallback taken after the text
// generator failed
func (l *Logger) GeneratorFallback(purpose string, err error) {
	l.Warn("text generation failed, using fallback",
		zap.String("purpose", purpose),
		zap.Error(err),
	)
}

// TriageRecorded logs an analyst decision
func (l *Logger) TriageRecorded(grantID, disposition, analystID string) {
	l.Info("triage recorded",
		zap.String("grant_id", grantID),
		zap.String("disposition", disposition),
		zap.String("analyst_id", analystID),
	)
}

// RecordsIngested logs an ingestion batch
func (l *Logger) RecordsIngested(collection string, count int) {
	l.Info("records ingested",
		zap.String("collection", collection),
		zap.Int("count", count),
	)
}

// LatencyWarning logs when a stage exceeds expected latency
func (l *Logger) LatencyWarning(stage string, durationMs, thresholdMs int64) {
	l.Warn("latency threshold exceeded",
		zap.String("stage", stage),
		zap.Int64("duration_ms", durationMs),
		zap.Int64("threshold_ms", thresholdMs),
	)
}

// Helper field functions

// ErrorField creates an error field
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// StringField creates a string field
func StringField(key, value string) zap.Field {
	return zap.String(key, value)
}

// IntField creates an int field
func IntField(key string, value int) zap.Field {
	return zap.Int(key, value)
}
