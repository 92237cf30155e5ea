package sqlbase

import (
	"database/sql"
	"strconv"
	"strings"
)

// PlaceholderStyle selects how positional parameters are written for a driver.
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota // ?, ?, ?
	PlaceholderDollar                           // $1, $2, $3
)

// Dialect captures what differs between the SQL databases the store runs on.
type Dialect struct {
	Name        string
	DriverName  string
	Placeholder PlaceholderStyle
	Migrations  map[int]string

	// IsLockBusy reports whether a driver error is lock contention worth retrying.
	IsLockBusy func(err error) bool

	// IsUniqueViolation reports whether a driver error is a unique constraint violation.
	IsUniqueViolation func(err error) bool

	// Configure tunes a freshly opened handle (pool size, pragmas) before migrations run.
	Configure func(db *sql.DB) error
}

// Rebind rewrites a query written with ? placeholders into the dialect's style.
func (d Dialect) Rebind(query string) string {
	if d.Placeholder != PlaceholderDollar {
		return query
	}

	var builder strings.Builder

	builder.Grow(len(query) + 8)

	n := 0

	for _, r := range query {
		if r != '?' {
			builder.WriteRune(r)

			continue
		}

		n++

		builder.WriteByte('$')
		builder.WriteString(strconv.Itoa(n))
	}

	return builder.String()
}
