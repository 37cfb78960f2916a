package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"scriptreel/internal/capability"
	"scriptreel/internal/config"
	"scriptreel/internal/deps"
	"scriptreel/internal/services"
)

// CheckVendor verifies that the media gateway answers its health endpoint.
// It uses a 10-second timeout and a single attempt.
func CheckVendor(ctx context.Context, cfg *config.Config) Result {
	const name = "Media gateway"
	if cfg.Vendor.BaseURL == "" {
		return Result{Name: name, Detail: "missing base url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := capability.NewHTTPVendorFromConfig(cfg).Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeVendorError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Vendor.BaseURL)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the binaries the merge renderer shells out to.
// Both the daemon status endpoint and the CLI use it.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	return deps.CheckFFmpeg(cfg.Merge.FFmpegBinary)
}

func summarizeVendorError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (gateway unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (gateway unreachable)"
	}
	if d := services.Details(err); d.Message != "" {
		return d.Message
	}
	return err.Error()
}
