package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// probeFormat is the container section of ffprobe's JSON output.
type probeFormat struct {
	Duration string `json:"duration"`
}

type probeResult struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format probeFormat `json:"format"`
}

// duration returns the container duration, falling back to the longest
// stream, or 0 when ffprobe reported none.
func (r probeResult) duration() float64 {
	if d := parseSeconds(r.Format.Duration); d > 0 {
		return d
	}
	longest := 0.0
	for _, s := range r.Streams {
		longest = max(longest, parseSeconds(s.Duration))
	}
	return longest
}

func parseSeconds(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ProbeDuration runs ffprobe against input and returns its length in seconds.
func ProbeDuration(ctx context.Context, binary, input string) (float64, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, errors.New("ffprobe: empty input")
	}
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", input) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", input, err)
	}
	return decodeDuration(output)
}

func decodeDuration(output []byte) (float64, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result.duration(), nil
}
