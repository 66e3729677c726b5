package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog.Logger carrying run and pillar fields.
type Logger struct {
	zlog zerolog.Logger
}

type loggerContextKey struct{}

// NewLogger opens the configured output ("stderr", "stdout" or a file path)
// and returns a logger writing to it.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var w io.Writer
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		w = file
	}
	return NewLoggerWithWriter(cfg, w), nil
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) *Logger {
	consoleTime := time.Kitchen
	switch cfg.TimeFormat {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		consoleTime = zerolog.TimeFormatUnix
	case "unixms":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTime, NoColor: cfg.NoColor}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	return &Logger{zlog: ctx.Logger().Level(ParseLevel(cfg.Level))}
}

// ParseLevel maps a configured level name to a zerolog level. Unknown or
// empty names mean info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}

// Zerolog returns the underlying zerolog logger, which is what the engine
// and adapters accept.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

// NewComponentLogger creates a child logger tagged with component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.WithField("component", component)
}

func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the logger stored in ctx, or a disabled one.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zlog: zerolog.Nop()}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

func (l *Logger) WithRunID(runID string) *Logger {
	return l.WithField("run_id", runID)
}

func (l *Logger) WithPillar(pillar string) *Logger {
	return l.WithField("pillar", pillar)
}

func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

func (l *Logger) Warn(msg string) {
	l.zlog.Warn().Msg(msg)
}
