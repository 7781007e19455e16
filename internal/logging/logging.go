// Package logging wraps zerolog with the Infof/Warnf/Errorf/Debugf
// convenience surface used throughout this codebase.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the CLI's --log-level values.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

var base zerolog.Logger

func init() {
	Configure(LevelInfo, os.Stderr)
}

// Configure sets the global minimum level and output writer. Called
// once at process startup from --log-level.
func Configure(level Level, w io.Writer) {
	zerolog.SetGlobalLevel(parseLevel(level))
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	base = zerolog.New(console).With().Timestamp().Logger()
}

func parseLevel(level Level) zerolog.Level {
	switch Level(strings.ToUpper(string(level))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger is the component-scoped logging handle.
type Logger struct {
	z zerolog.Logger
}

// For returns a Logger tagged with a "component" field.
func For(component string) *Logger {
	return &Logger{z: base.With().Str("component", component).Logger()}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.z.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.z.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.z.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.z.Error().Msgf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.z.Fatal().Msgf(format, args...) }
