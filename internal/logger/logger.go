// Package logger configures the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelWriter splits output by level: warnings and above go to ErrorWriter,
// everything else to InfoWriter.
type LevelWriter struct {
	InfoWriter  io.Writer
	ErrorWriter io.Writer
}

// Write implements io.Writer for events without a level.
func (lw *LevelWriter) Write(p []byte) (int, error) {
	return lw.InfoWriter.Write(p) //nolint:wrapcheck
}

// WriteLevel implements zerolog.LevelWriter.
func (lw *LevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l == zerolog.Disabled {
		return 0, nil
	}

	if l >= zerolog.WarnLevel && l != zerolog.NoLevel {
		return lw.ErrorWriter.Write(p) //nolint:wrapcheck
	}

	return lw.InfoWriter.Write(p) //nolint:wrapcheck
}

// Init sets up the global logger. With no output enabled logging is silent.
func Init(cfg Log) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("log level %s is not supported", cfg.Level))
	}

	if cfg.ServiceName == "" {
		return ErrServiceNameIsEmpty
	}

	if level == zerolog.TraceLevel {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack //nolint:reassign
	}

	zerolog.SetGlobalLevel(level)
	zerolog.ErrorHandler = ErrorHandler

	var writers []io.Writer

	if cfg.Console.Enabled {
		writers = append(writers, NewConsoleWriter(cfg))
	}

	if cfg.File.Enabled {
		w, err := newRollingFile(cfg.File)
		if err != nil {
			return err
		}
		writers = append(writers, w)
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Hook(NewPrometheusHook(cfg.ServiceName)).
		With().Timestamp().Str("service", cfg.ServiceName)

	if cfg.ReportCaller {
		ctx = ctx.Caller()
	}
	if level == zerolog.TraceLevel {
		ctx = ctx.Stack()
	}

	log.Logger = ctx.Logger()

	return nil
}

func newRollingFile(cfg File) (io.Writer, error) {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil { //nolint:mnd
		return nil, errors.Wrapf(err, "can't create log directory %s", cfg.Path)
	}

	return &LevelWriter{
		InfoWriter: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Path, cfg.InfoLog),
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		},
		ErrorWriter: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Path, cfg.ErrorLog),
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		},
	}, nil
}

// NewConsoleWriter writes info to stdout and warnings and errors to stderr.
func NewConsoleWriter(cfg Log) io.Writer {
	if !cfg.Console.Pretty {
		return &LevelWriter{InfoWriter: os.Stdout, ErrorWriter: os.Stderr}
	}

	return &LevelWriter{
		InfoWriter:  zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: zerolog.TimeFieldFormat},
		ErrorWriter: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: zerolog.TimeFieldFormat},
	}
}
