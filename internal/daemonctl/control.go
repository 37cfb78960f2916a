package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"scriptreel/internal/api"
	"scriptreel/internal/config"
	"scriptreel/internal/daemonrun"
	"scriptreel/internal/ipc"
	"scriptreel/internal/preflight"
	"scriptreel/internal/queue"
)

// ErrDaemonNotRunning indicates no daemon answered and no live pid exists.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StatusClient is the API surface the controller needs.
type StatusClient interface {
	Status(ctx context.Context) (*api.DaemonStatus, error)
}

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StartState describes what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached daemon process running `<executable> daemon`.
func Launch(executable string, opts LaunchOptions) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	proc := exec.Command(executable, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// EnsureStarted launches the daemon unless it already answers, then waits up
// to timeout for its API.
func EnsureStarted(ctx context.Context, client StatusClient, executable string, opts LaunchOptions, timeout time.Duration) (StartResult, error) {
	if status, err := client.Status(ctx); err == nil {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	} else if !ipc.IsUnavailable(err) {
		return StartResult{}, err
	}
	if err := Launch(executable, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForAPI(ctx, client, timeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// WaitForAPI polls the daemon status until it answers or timeout passes.
func WaitForAPI(ctx context.Context, client StatusClient, timeout time.Duration) (*api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := client.Status(ctx)
		if err == nil {
			return status, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// Stop sends SIGTERM to the daemon and escalates to SIGKILL when it is still
// alive after grace. The pid comes from the API when reachable, else from
// the pid file.
func Stop(ctx context.Context, client StatusClient, cfg *config.Config, grace time.Duration) (StopResult, error) {
	pid := 0
	if status, err := client.Status(ctx); err == nil {
		pid = status.PID
	}
	if pid <= 0 {
		filePID, err := daemonrun.ReadPID(cfg)
		if err != nil {
			return StopResult{}, err
		}
		pid = filePID
	}
	if pid <= 0 || !Alive(pid) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	if waitForExit(ctx, pid, grace) {
		return result, nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", pid, err)
	}
	result.ForcedKill = true
	_ = os.Remove(cfg.PIDPath())
	return result, nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func waitForExit(ctx context.Context, pid int, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return !Alive(pid)
}

// Snapshot is the status view the CLI renders. Status is nil when the
// daemon is offline; QueueStats and Dependencies are then read locally.
type Snapshot struct {
	Status       *api.DaemonStatus      `json:"status,omitempty"`
	QueueStats   map[string]int         `json:"queueStats"`
	Dependencies []api.DependencyStatus `json:"dependencies"`
	Offline      string                 `json:"offline,omitempty"`
}

// BuildSnapshot asks the daemon for its status and falls back to reading
// the queue database and probing dependencies directly.
func BuildSnapshot(ctx context.Context, client StatusClient, cfg *config.Config) (Snapshot, error) {
	status, err := client.Status(ctx)
	if err == nil {
		return Snapshot{Status: status, QueueStats: status.Workflow.QueueStats, Dependencies: status.Dependencies}, nil
	}
	if !ipc.IsUnavailable(err) {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Offline:      err.Error(),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(cfg)),
	}
	store, openErr := queue.Open(cfg)
	if openErr != nil {
		return snap, nil
	}
	defer store.Close()
	stats, statsErr := store.Stats(ctx)
	if statsErr == nil {
		snap.QueueStats = api.MergeQueueStats(stats)
	}
	return snap, nil
}
