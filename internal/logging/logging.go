// Package logging builds the zap logger used by the ftclient command.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the logger's level, encoding and destination.
type Config struct {
	// Level is a zap level name ("debug", "info", "warn", "error")
	Level string

	// Format is "console", "json" or "auto"; auto picks console on a terminal
	Format string

	// File, when set, receives logs instead of stderr and is rotated
	File string

	// MaxSizeMB caps a log file before rotation; zero uses lumberjack's default
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger for cfg. Logs go to w unless cfg.File is set.
// With the "auto" format, a terminal gets the console encoder and anything
// else gets JSON.
func New(cfg Config, w io.Writer) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = l
	}

	var sink zapcore.WriteSyncer
	var tty bool
	switch {
	case cfg.File != "":
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	case w == nil:
		sink = zapcore.AddSync(io.Discard)
	default:
		if f, ok := w.(*os.File); ok {
			tty = term.IsTerminal(int(f.Fd()))
		}
		sink = zapcore.Lock(zapcore.AddSync(w))
	}

	enc, err := encoder(cfg.Format, tty)
	if err != nil {
		return nil, err
	}
	return zap.New(zapcore.NewCore(enc, sink, level)), nil
}

func encoder(format string, tty bool) (zapcore.Encoder, error) {
	switch format {
	case "", "auto":
		if tty {
			return consoleEncoder(), nil
		}
		return jsonEncoder(), nil
	case "console":
		return consoleEncoder(), nil
	case "json":
		return jsonEncoder(), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func consoleEncoder() zapcore.Encoder {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewConsoleEncoder(ec)
}

func jsonEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(ec)
}
