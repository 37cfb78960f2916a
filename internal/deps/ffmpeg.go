package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFmpeg reports the ffmpeg and ffprobe binaries the merge renderer
// will execute. ffprobe is preferred next to a configured ffmpeg path and
// otherwise resolved from PATH.
func CheckFFmpeg(ffmpegCommand string) []Status {
	ffmpeg := strings.TrimSpace(ffmpegCommand)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	results := CheckBinaries([]Requirement{{
		Name:        "FFmpeg",
		Command:     ffmpeg,
		Description: "Required for mixing, lip-sync muxing and concatenation",
	}})

	probe := Status{
		Name:        "FFprobe",
		Description: "Required for measuring clip durations",
	}
	if resolved, err := exec.LookPath(ffmpeg); err == nil {
		candidate := siblingCandidate(resolved, "ffprobe")
		if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
			probe.Command = candidate
			probe.Available = true
			return append(results, probe)
		}
	}
	if path, err := exec.LookPath(executable("ffprobe")); err == nil {
		probe.Command = path
		probe.Available = true
		return append(results, probe)
	}
	probe.Command = "ffprobe"
	probe.Detail = fmt.Sprintf("binary %q not found", "ffprobe")
	return append(results, probe)
}

func siblingCandidate(binaryPath, name string) string {
	return filepath.Join(filepath.Dir(binaryPath), executable(name))
}

func executable(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
