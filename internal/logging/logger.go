package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"scriptreel/internal/config"
)

// Rotation configures size based rotation for file outputs.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
	// FileFormat overrides Format for file paths so the daemon can print
	// console lines while keeping a JSON log file. Empty uses Format.
	FileFormat string
	// Rotation applies to every file path in OutputPaths. Nil appends to the
	// files without rotating them.
	Rotation *Rotation
	// Stream additionally publishes every record to the hub.
	Stream *StreamHub
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	addSource := opts.Development || level <= slog.LevelDebug

	var handler slog.Handler
	fileFormat := strings.TrimSpace(opts.FileFormat)
	if fileFormat == "" || strings.EqualFold(fileFormat, opts.Format) {
		writer, err := openWriters(paths, opts.Rotation)
		if err != nil {
			return nil, err
		}
		if handler, err = formatHandler(opts.Format, writer, levelVar, addSource); err != nil {
			return nil, err
		}
	} else {
		var consolePaths, filePaths []string
		for _, path := range paths {
			if isStdStream(path) {
				consolePaths = append(consolePaths, path)
			} else {
				filePaths = append(filePaths, path)
			}
		}
		var handlers []slog.Handler
		for _, group := range []struct {
			format string
			paths  []string
		}{{opts.Format, consolePaths}, {fileFormat, filePaths}} {
			if len(group.paths) == 0 {
				continue
			}
			writer, err := openWriters(group.paths, opts.Rotation)
			if err != nil {
				return nil, err
			}
			h, err := formatHandler(group.format, writer, levelVar, addSource)
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, h)
		}
		handler = combineHandlers(handlers...)
	}
	if opts.Stream != nil {
		handler = newStreamHandler(handler, opts.Stream)
	}
	return slog.New(handler), nil
}

func formatHandler(format string, w io.Writer, level slog.Leveler, addSource bool) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return newJSONHandler(w, level, addSource), nil
	case "console", "":
		return newPrettyHandler(w, level, addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

func isStdStream(path string) bool {
	switch strings.TrimSpace(path) {
	case "stdout", "stderr":
		return true
	}
	return false
}

// NewFromConfig creates the daemon logger. Stdout follows logging.format;
// the rotating log file is always JSON. A non-empty level overrides
// logging.level.
func NewFromConfig(cfg *config.Config, hub *StreamHub, level string, development bool) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: fallbackLevel(level, "info"), Format: "console", Development: development, Stream: hub})
	}
	outputs := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		outputs = append(outputs, cfg.LogFilePath())
	}
	return New(Options{
		Level:       fallbackLevel(level, cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		FileFormat:  "json",
		OutputPaths: outputs,
		Development: development,
		Rotation: &Rotation{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
		Stream: hub,
	})
}

func fallbackLevel(level, alt string) string {
	if strings.TrimSpace(level) == "" {
		return alt
	}
	return level
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal", "panic":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string, rotation *Rotation) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
				return nil, fmt.Errorf("ensure log directory: %w", err)
			}
			if rotation != nil {
				writers = append(writers, &lumberjack.Logger{
					Filename:   trimmed,
					MaxSize:    rotation.MaxSizeMB,
					MaxBackups: rotation.MaxBackups,
					MaxAge:     rotation.MaxAgeDays,
					Compress:   true,
				})
				continue
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
