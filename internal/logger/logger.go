package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	EnvDevelopment = "dev"
	EnvProduction  = "prod"
)

// Logger accepts a message and alternating key-value pairs
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

// Sync flushes buffered entries. Call before exit
func (l *zapLogger) Sync() error { return l.s.Sync() }

func New(env string, level string) (Logger, error) {
	var cfg zap.Config

	switch env {
	case EnvDevelopment:
		cfg = zap.NewDevelopmentConfig()
	case EnvProduction:
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.Fields(
		zap.String("service", "washpay"),
		zap.String("env", env),
	))
	if err != nil {
		return nil, err
	}

	return &zapLogger{s: l.Sugar()}, nil
}

// Logger that drops everything. Useful in tests
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}
