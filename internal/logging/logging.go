// Package logging builds the zap logger shared by the CLI and libraries.
package logging

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidLevel indicates an unknown log level name.
var ErrInvalidLevel = errors.New("invalid log level")

// New returns a console logger writing to w at the given level
// ("debug", "info", "warn", "error"). An empty level means info.
func New(level string, w io.Writer) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", level, ErrInvalidLevel)
		}
		lvl = parsed
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// NewRunID returns a unique identifier for one CLI invocation.
func NewRunID() string {
	return uuid.New().String()
}

// WithRunID tags every entry of l with run_id.
func WithRunID(l *zap.Logger, id string) *zap.Logger {
	return l.With(zap.String("run_id", id))
}
