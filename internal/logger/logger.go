// Package logger provides structured logging using Zap.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "crmaudit-api"

var (
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Init initializes the global logger for the given environment.
// For "production", it uses a JSON encoder. For all other environments,
// it uses a human-readable console encoder. Both stamp ISO-8601 times so
// log lines line up with audit record timestamps.
func Init(env string) {
	once.Do(func() {
		base, err := newConfig(env).Build(zap.Fields(zap.String("service", serviceName)))
		if err != nil {
			// Fallback to nop logger if initialization fails.
			base = zap.NewNop()
		}
		sugar = base.Sugar()
	})
}

func newConfig(env string) zap.Config {
	cfg := zap.NewDevelopmentConfig()
	if env == "production" {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// Get returns the global sugared logger.
// If Init has not been called, it initializes a development logger.
func Get() *zap.SugaredLogger {
	if sugar == nil {
		Init("development")
	}
	return sugar
}

// Sync flushes any buffered log entries. Call this before application exit.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}

// Named returns a child of the global logger tagged with name.
func Named(name string) *zap.SugaredLogger {
	return Get().Named(name)
}

// NewJSONFile builds a JSON logger that writes to path in addition to
// stderr. An empty path returns a child of the global logger. Sampling is
// off: every line written here stands in for an audit record.
func NewJSONFile(name, path string) (*zap.SugaredLogger, error) {
	if path == "" {
		return Named(name), nil
	}
	cfg := newConfig("production")
	cfg.OutputPaths = []string{"stderr", path}
	cfg.Sampling = nil
	base, err := cfg.Build(zap.Fields(zap.String("service", serviceName)))
	if err != nil {
		return nil, err
	}
	return base.Sugar().Named(name), nil
}
