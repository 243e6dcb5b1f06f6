package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger output
type Options struct {
	Level       string    // zerolog level name; invalid or empty means info
	Development bool      // human-readable console output
	File        string    // optional rotated log file
	Console     io.Writer // defaults to stdout
}

// Setup configures the global zerolog logger and returns it.
// The returned closer flushes the log file, if any.
func Setup(opts Options) (zerolog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	if opts.Console != nil {
		out = opts.Console
	}

	var console io.Writer = out
	if opts.Development {
		console = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}

	var fileErr error
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			fileErr = err
		} else {
			rotator := &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    50, // megabytes
				MaxBackups: 7,
				MaxAge:     7, // days
				LocalTime:  true,
			}
			writers = append(writers, rotator)
			closer = rotator
		}
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()

	if fileErr != nil {
		log.Warn().
			Err(fileErr).
			Str("file", opts.File).
			Msg("Failed to create log directory, logging to console only")
	}

	log.Info().
		Str("level", level.String()).
		Str("file", opts.File).
		Msg("Logger initialized")

	return log.Logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
