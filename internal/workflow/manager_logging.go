package workflow

import (
	"strings"
	"unicode"

	"scriptreel/internal/queue"
)

// deriveStageLabel title-cases a status for progress output, so
// generating_audio becomes "Generating Audio".
func deriveStageLabel(status queue.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
