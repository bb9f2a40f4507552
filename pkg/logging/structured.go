package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the level and format of the process logger.
type Options struct {
	Level  string
	JSON   bool
	Output zapcore.WriteSyncer
}

// FromEnv reads RNR_LOG_LEVEL and RNR_JSON_LOGS on top of o.
func FromEnv(o Options) Options {
	if lvl := os.Getenv("RNR_LOG_LEVEL"); lvl != "" {
		o.Level = lvl
	}
	if os.Getenv("RNR_JSON_LOGS") == "true" {
		o.JSON = true
	}
	return o
}

// ParseLevel accepts debug, info, warn, error and fatal in any case. The
// empty string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// New builds a logger. The returned level can be changed at runtime.
func New(o Options) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := ParseLevel(o.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	var enc zapcore.Encoder
	if o.JSON {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.RFC3339TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.RFC3339TimeEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	out := o.Output
	if out == nil {
		out = zapcore.Lock(os.Stdout)
	}
	core := zapcore.NewCore(enc, out, level)
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))), level, nil
}
