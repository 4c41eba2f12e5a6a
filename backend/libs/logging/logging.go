package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	output   string
	encoding string
}

// Option customizes NewLogger.
type Option func(*options)

// WithOutput sends log lines to the given zap sink ("stdout", "stderr" or a file path).
func WithOutput(path string) Option {
	return func(o *options) {
		if strings.TrimSpace(path) != "" {
			o.output = path
		}
	}
}

// WithConsoleEncoding switches from JSON to zap's human readable console encoder.
func WithConsoleEncoding() Option {
	return func(o *options) {
		o.encoding = "console"
	}
}

// NewLogger configures a zap logger with level controlled by LOG_LEVEL env variable.
func NewLogger(opts ...Option) (*zap.Logger, error) {
	o := options{output: "stdout", encoding: "json"}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(levelFromEnv()),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         o.encoding,
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{o.output},
		ErrorOutputPaths: []string{"stderr"},
	}

	return cfg.Build()
}

func levelFromEnv() zapcore.Level {
	levelStr := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	var level zapcore.Level
	if err := level.Set(levelStr); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.UTC().Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
