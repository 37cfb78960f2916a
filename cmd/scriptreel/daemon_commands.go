package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scriptreel/internal/api"
	"scriptreel/internal/daemonctl"
	"scriptreel/internal/daemonrun"
	"scriptreel/internal/ipc"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scriptreel daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&opts.Development, "development", false, "Human-friendly console logging")
	return cmd
}

func newDaemonControlCommands(ctx *commandContext) []*cobra.Command {
	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			opts := daemonctl.LaunchOptions{ConfigPath: strings.TrimSpace(ctx.flags.config), LogLevel: logLevel}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, opts, 15*time.Second)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d) at %s\n", result.PID, client.BaseURL())
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cmd.Context(), client, ctx.configValue(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not exit in time and was killed\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	return []*cobra.Command{startCmd, stopCmd}
}

// showDaemonStatus prints the daemon, dependency and queue sections. It
// works offline by reading the queue database directly.
func showDaemonStatus(cmd *cobra.Command, ctx *commandContext) error {
	client, err := ctx.client()
	if err != nil && !ipc.IsUnavailable(err) {
		return err
	}
	var source daemonctl.StatusClient = offlineClient{}
	if client != nil {
		source = client
	}
	snap, err := daemonctl.BuildSnapshot(cmd.Context(), source, ctx.configValue())
	if err != nil {
		return err
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, snap)
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if snap.Status == nil {
		fmt.Fprintln(out, renderStatusLine("scriptreeld", statusError, "Not running", colorize))
	} else {
		st := snap.Status
		fmt.Fprintln(out, renderStatusLine("scriptreeld", statusOK, fmt.Sprintf("Running (pid %d)", st.PID), colorize))
		workflowKind := statusOK
		if !st.Workflow.Running {
			workflowKind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine("Workflow", workflowKind, fmt.Sprintf("%d workers, merge lane %s", st.Workflow.Workers, yesNo(st.Workflow.MergeLane)), colorize))
		dbKind := statusOK
		if !st.Database.Healthy {
			dbKind = statusError
		}
		fmt.Fprintln(out, renderStatusLine("Database", dbKind, fallback(st.Database.Detail, st.Database.Driver), colorize))
		for _, h := range st.Workflow.StageHealth {
			kind := statusOK
			if !h.Ready {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine(h.Name+" stage", kind, fallback(h.Detail, "ready"), colorize))
		}
		if st.Workflow.LastError != "" {
			fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, st.Workflow.LastError, colorize))
		}
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(snap.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Generations", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := buildQueueStatusRows(snap.QueueStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No generations")
		return nil
	}
	fmt.Fprint(out, renderTable([]column{{header: "Status"}, {header: "Count", align: alignRight}}, rows))
	return nil
}

// offlineClient stands in when no API address is configured.
type offlineClient struct{}

func (offlineClient) Status(context.Context) (*api.DaemonStatus, error) {
	return nil, ipc.ErrUnavailable
}
