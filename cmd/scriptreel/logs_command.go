package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"scriptreel/internal/api"
	"scriptreel/internal/ipc"
	"scriptreel/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines   int
		follow  bool
		filters logstream.Filters
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var src logstream.Source
			if client, err := ctx.client(); err == nil {
				src = client
			}
			out := cmd.OutOrStdout()
			printed, err := logstream.Stream(cmd.Context(), src, logstream.Options{
				Lines:   lines,
				Follow:  follow,
				Filters: filters,
				LogPath: cfg.LogFilePath(),
			}, func(evt api.LogEvent) {
				if ctx.jsonOutput() {
					_ = writeJSON(cmd, evt)
					return
				}
				fmt.Fprintln(out, formatLogEvent(evt))
			}, func(line string) {
				fmt.Fprintln(out, line)
			})
			if errors.Is(err, logstream.ErrFiltersRequireAPI) {
				return wrapDialError(fmt.Errorf("%w: %w", ipc.ErrUnavailable, err))
			}
			if err != nil {
				return wrapDialError(err)
			}
			if !printed && !follow {
				fmt.Fprintln(out, "No log entries")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new entries")
	cmd.Flags().StringVarP(&filters.Generation, "generation", "g", "", "Only entries for this generation")
	cmd.Flags().StringVar(&filters.Component, "component", "", "Only entries from this component")
	return cmd
}

func formatLogEvent(evt api.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp)
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(fallback(evt.Level, "info")))
	if evt.Component != "" {
		b.WriteString(" [" + evt.Component + "]")
	}
	if evt.GenerationID != "" {
		b.WriteString(" gen=" + evt.GenerationID)
	}
	if evt.AssetID != "" {
		b.WriteString(" asset=" + evt.AssetID)
	}
	b.WriteByte(' ')
	b.WriteString(evt.Message)
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, evt.Fields[key])
	}
	return b.String()
}
