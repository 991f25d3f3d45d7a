package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect isolates what differs between the SQL engines the store runs on.
type Dialect interface {
	Name() string
	// Schema returns idempotent DDL statements.
	Schema() []string
	// Rebind rewrites '?' placeholders into the engine's native form.
	Rebind(query string) string
	// TimeArg converts a UTC instant into a bind argument.
	TimeArg(t time.Time) any
	// IsUniqueViolation reports whether err is a uniqueness constraint failure.
	IsUniqueViolation(err error) bool
	// LockSuffix is appended to a SELECT that must hold its row until commit.
	LockSuffix() string
}

// TimeLayout is a fixed-width RFC3339 layout; text timestamps in this layout sort chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RebindDollar turns '?' placeholders into $1..$n.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqlTime scans timestamps stored either as native time values or as TimeLayout text.
type sqlTime struct{ time.Time }

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into time", src)
	}
	return nil
}

func (t *sqlTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("sqlstore: parse time %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}
