package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the logging backend and its output.
type Options struct {
	// Backend is "slog" (default) or "zap".
	Backend string
	// Format is "json" (default) or "text"; only slog honours "text".
	Format string
	Level  string
	// File, when set, redirects output to a size-rotated file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newWriter(o Options) (io.Writer, io.Closer) {
	if o.File == "" {
		return os.Stdout, nopCloser{}
	}
	lj := &lumberjack.Logger{
		Filename:   o.File,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}
	return lj, lj
}

// New builds a Logger from o. The returned closer releases the log file.
func New(o Options) (Logger, io.Closer, error) {
	w, closer := newWriter(o)

	switch o.Backend {
	case "", "slog":
		var level slog.Level
		if o.Level != "" {
			if err := level.UnmarshalText([]byte(o.Level)); err != nil {
				return nil, nil, fmt.Errorf("log level: %w", err)
			}
		}
		opts := &slog.HandlerOptions{Level: level}
		var h slog.Handler
		if o.Format == "text" {
			h = slog.NewTextHandler(w, opts)
		} else {
			h = slog.NewJSONHandler(w, opts)
		}
		return NewSlogLogger(slog.New(h)), closer, nil

	case "zap":
		level := zapcore.InfoLevel
		if o.Level != "" {
			l, err := zapcore.ParseLevel(o.Level)
			if err != nil {
				return nil, nil, fmt.Errorf("log level: %w", err)
			}
			level = l
		}
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), level)
		return NewZapLogger(zap.New(core)), closer, nil

	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", o.Backend)
	}
}
