// Package logger provides structured logging with run/trace ID support.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through a run.
type ContextKey string

const (
	// TraceIDKey is the context key for the current run's trace ID.
	TraceIDKey ContextKey = "trace_id"
	// NetworkKey is the context key for the network a log line pertains to.
	NetworkKey ContextKey = "network"
	// JobKey is the context key for the job a log line pertains to.
	JobKey ContextKey = "job"
)

// Logger wraps logrus.Logger with service/trace tagging.
type Logger struct {
	*logrus.Logger
	service string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Service    string `mapstructure:"service"`
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePrefix string `mapstructure:"file_prefix"`
}

// New creates a new logger instance.
func New(cfg LoggingConfig) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "deployengine"
		}
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			logger.Errorf("failed to create logs directory: %v", err)
		} else {
			logPath := filepath.Join(logDir, prefix+".log")
			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				logger.Errorf("failed to open log file: %v", err)
			} else {
				logger.SetOutput(io.MultiWriter(os.Stdout, file))
			}
		}
	default:
		logger.SetOutput(os.Stdout)
	}

	return &Logger{Logger: logger, service: cfg.Service}
}

// NewDefault creates a new logger instance with default configuration.
func NewDefault(service string) *Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables. Defaults to "info" and "text" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "text"
	}
	output := strings.TrimSpace(os.Getenv("LOG_OUTPUT"))
	return New(LoggingConfig{Service: service, Level: level, Format: format, Output: output})
}

// WithField returns a new log entry with a field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a new log entry with multiple fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithContext returns a log entry tagged with the run's trace ID, network,
// and job, when present in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{}
	if l.service != "" {
		fields["service"] = l.service
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		fields["trace_id"] = traceID
	}
	if network, ok := ctx.Value(NetworkKey).(string); ok && network != "" {
		fields["network"] = network
	}
	if job, ok := ctx.Value(JobKey).(string); ok && job != "" {
		fields["job"] = job
	}
	return l.Logger.WithFields(fields)
}

// WithTraceID returns a log entry tagged with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *logrus.Entry {
	fields := logrus.Fields{"trace_id": traceID}
	if l.service != "" {
		fields["service"] = l.service
	}
	return l.Logger.WithFields(fields)
}

// NewTraceID generates a new run-scoped trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from ctx, if any.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithNetwork attaches a network name to ctx.
func WithNetwork(ctx context.Context, network string) context.Context {
	return context.WithValue(ctx, NetworkKey, network)
}

// WithJob attaches a job name to ctx.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, JobKey, job)
}
