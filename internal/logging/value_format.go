package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// attrString renders a value without quoting, for prefix slots such as
// the component or generation id.
func attrString(v slog.Value) string {
	return renderValue(v.Resolve())
}

// formatValue renders a value for key=value output, quoting text that
// would break the pair apart.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	text := renderValue(v)
	switch v.Kind() {
	case slog.KindString, slog.KindAny:
		if text == "" || strings.ContainsFunc(text, breaksPair) {
			return strconv.Quote(text)
		}
	}
	return text
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func breaksPair(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
