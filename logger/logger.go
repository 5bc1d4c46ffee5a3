package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultLogFile is used by Init.
const DefaultLogFile = "compgen.log"

// Init initializes the file logger, writing to compgen.log in the current directory.
// Log level can be configured via LOG_LEVEL environment variable (trace, debug, info, warn, error).
func Init() (zerolog.Logger, error) {
	return InitWithOptions(DefaultLogFile, false)
}

// InitWithOptions initializes the logger with the specified options.
// If logFile is set, JSON logs are appended to it. Otherwise logs go to
// stderr so command output on stdout stays clean; pretty selects the
// human-readable console format.
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, error) {
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))

	var output io.Writer
	switch {
	case logFile != "":
		if dir := filepath.Dir(logFile); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return zerolog.Logger{}, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		output = file
	case pretty:
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		output = os.Stderr
	}

	log := New(output, level)

	switch {
	case logFile != "":
		log.Debug().Str("path", logFile).Str("level", level.String()).Msg("Logger initialized")
	case pretty:
		log.Debug().Str("output", "stderr").Str("format", "pretty").Str("level", level.String()).Msg("Logger initialized")
	default:
		log.Debug().Str("output", "stderr").Str("level", level.String()).Msg("Logger initialized")
	}

	return log, nil
}

// New builds a timestamped logger on w.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
