// Package logger builds the zap loggers used by the converter.
package logger

import (
	"fmt"
	"io"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects log format and level.
type Config struct {
	Format string        `json:"format" yaml:"format"`
	Level  zapcore.Level `json:"level" yaml:"level"`
}

// NewConfig returns a Config with defaults.
func NewConfig() Config {
	return Config{
		Format: "console",
		Level:  zapcore.InfoLevel,
	}
}

// New returns a logger writing to w in the configured format.
func (c Config) New(w io.Writer) (*zap.Logger, error) {
	encoder, err := newEncoder(c.Format)
	if err != nil {
		return nil, err
	}
	return zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		c.Level,
	)), nil
}

// New returns a console logger at debug level.
func New(w io.Writer) *zap.Logger {
	log, _ := Config{Format: "console", Level: zapcore.DebugLevel}.New(w)
	return log
}

func newEncoder(format string) (zapcore.Encoder, error) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}

	switch format {
	case "", "console":
		return zapcore.NewConsoleEncoder(config), nil
	case "json":
		return zapcore.NewJSONEncoder(config), nil
	case "logfmt":
		return zaplogfmt.NewEncoder(config), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
