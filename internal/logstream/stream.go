package logstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scriptreel/internal/api"
	"scriptreel/internal/ipc"
)

// ErrFiltersRequireAPI is returned when filters are set but only the raw log
// file is available.
var ErrFiltersRequireAPI = errors.New("log filters require the daemon API")

// Source fetches pages of structured log events.
type Source interface {
	Logs(ctx context.Context, q ipc.LogQuery) (*api.LogStreamResponse, error)
}

// Filters narrow API streaming.
type Filters struct {
	Generation string
	Component  string
}

func (f Filters) empty() bool {
	return strings.TrimSpace(f.Generation) == "" && strings.TrimSpace(f.Component) == ""
}

// Options controls stream behavior.
type Options struct {
	Lines   int
	Follow  bool
	Filters Filters
	// LogPath is tailed when the API is unavailable.
	LogPath string
	// PollInterval paces file following.
	PollInterval time.Duration
}

// Stream emits events from src, or raw lines from the log file when src is
// nil or unreachable. It reports whether anything was emitted.
func Stream(ctx context.Context, src Source, opts Options, onEvent func(api.LogEvent), onLine func(string)) (bool, error) {
	if src != nil {
		printed, err := streamAPI(ctx, src, opts, onEvent)
		if err == nil || !ipc.IsUnavailable(err) {
			return printed, err
		}
	}
	if !opts.Filters.empty() {
		return false, ErrFiltersRequireAPI
	}
	if strings.TrimSpace(opts.LogPath) == "" {
		return false, ipc.ErrUnavailable
	}
	return streamFile(ctx, opts, onLine)
}

func streamAPI(ctx context.Context, src Source, opts Options, onEvent func(api.LogEvent)) (bool, error) {
	query := ipc.LogQuery{
		Limit:      opts.Lines,
		Tail:       true,
		Generation: opts.Filters.Generation,
		Component:  opts.Filters.Component,
	}
	if query.Limit <= 0 {
		query.Limit = 200
	}
	printed := false
	for {
		page, err := src.Logs(ctx, query)
		if err != nil {
			if printed && ctx.Err() != nil {
				return printed, nil
			}
			return printed, err
		}
		for _, evt := range page.Events {
			if onEvent != nil {
				onEvent(evt)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		query.Since = page.Next
		query.Limit = 200
		query.Tail = false
		query.Follow = true
	}
}

func streamFile(ctx context.Context, opts Options, onLine func(string)) (bool, error) {
	lines, offset, err := lastLines(opts.LogPath, opts.Lines)
	if err != nil {
		return false, err
	}
	printed := emit(lines, onLine)
	if !opts.Follow {
		return printed, nil
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return printed, nil
		case <-ticker.C:
		}
		lines, offset, err = linesFrom(opts.LogPath, offset)
		if err != nil {
			return printed, fmt.Errorf("follow %s: %w", opts.LogPath, err)
		}
		if emit(lines, onLine) {
			printed = true
		}
	}
}

func emit(lines []string, onLine func(string)) bool {
	for _, line := range lines {
		if onLine != nil {
			onLine(line)
		}
	}
	return len(lines) > 0
}
