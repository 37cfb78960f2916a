package queue

import (
	"strconv"
	"strings"
)

// dialect captures the few places where SQLite and Postgres disagree.
// Queries are written with ? placeholders and rebound for Postgres.
type dialect struct {
	name             string
	driver           string
	schema           string
	greatest         string
	tableExistsQuery string
	numbered         bool
}

var sqliteDialect = dialect{
	name:             "sqlite",
	driver:           "sqlite",
	schema:           sqliteSchemaSQL,
	greatest:         "MAX",
	tableExistsQuery: "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?",
}

var postgresDialect = dialect{
	name:             "postgres",
	driver:           "pgx",
	schema:           postgresSchemaSQL,
	greatest:         "GREATEST",
	tableExistsQuery: "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
	numbered:         true,
}

func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
