package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"scriptreel/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", tag)
	if colorize {
		return statusKindColor(kind) + line + ansiReset
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		return []string{ansiBlue + line + ansiReset, ansiBlue + rule + ansiReset}
	}
	return []string{line, rule}
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// dependencyLines renders one line per dependency. Missing required
// dependencies are errors; missing optional ones are warnings.
func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

// statusKindFor classifies a generation status for colouring.
func statusKindFor(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed", "retrieval_failed":
		return statusError
	case "cancelled", "retrying":
		return statusWarn
	default:
		return statusInfo
	}
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildGenerationRows(gens []api.Generation) [][]string {
	sorted := slices.Clone(gens)
	slices.SortStableFunc(sorted, func(a, b api.Generation) int {
		return strings.Compare(b.CreatedAt, a.CreatedAt)
	})
	rows := make([][]string, 0, len(sorted))
	for _, g := range sorted {
		rows = append(rows, []string{
			g.ID,
			fallback(g.ScriptRef, "-"),
			formatStatusLabel(g.Status),
			g.QualityTier,
			formatPercent(g.Progress.Percent),
			formatDisplayTime(g.CreatedAt),
		})
	}
	return rows
}

func buildAssetRows(assets []api.Asset) [][]string {
	rows := make([][]string, 0, len(assets))
	for _, a := range assets {
		scene := "-"
		if a.SceneNumber != nil {
			scene = fmt.Sprintf("%d", *a.SceneNumber)
		}
		detail := a.URL
		if a.Error != "" {
			detail = a.Error
		}
		rows = append(rows, []string{
			a.ID,
			a.Kind,
			a.Category,
			scene,
			fallback(a.Character, "-"),
			formatStatusLabel(a.Status),
			a.Source,
			fmt.Sprintf("%d", a.RetryCount),
			detail,
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	parts := strings.Split(strings.TrimSpace(status), "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.0f%%", p)
}

func fallback(value, alt string) string {
	if strings.TrimSpace(value) == "" {
		return alt
	}
	return value
}
