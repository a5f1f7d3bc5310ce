package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver ("postgres")
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver ("sqlite3")
	_ "modernc.org/sqlite"          // Pure Go SQLite driver ("sqlite")
)

// dialect captures the differences between the supported databases.
type dialect struct {
	driver string

	// numbered placeholders ($1, $2) instead of ?
	numbered bool

	// unixTime stores post_time as integer seconds.
	unixTime bool

	// pragmas run once after connecting.
	pragmas []string
}

var dialects = map[string]dialect{
	"sqlite": {
		driver:   "sqlite",
		unixTime: true,
		pragmas: []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA foreign_keys = ON",
		},
	},
	"sqlite3": {
		driver:   "sqlite3",
		unixTime: true,
		pragmas: []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA foreign_keys = ON",
		},
	},
	"postgres": {
		driver:   "postgres",
		numbered: true,
	},
}

func lookupDialect(name string) (dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported storage driver %q", name)
	}
	return d, nil
}

// rebind rewrites ? placeholders for databases that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// timeArg converts t to the representation stored in post_time.
func (d dialect) timeArg(t time.Time) any {
	if d.unixTime {
		return t.Unix()
	}
	return t.UTC()
}

// timeColumn is the post_time column type used by EnsureSchema.
func (d dialect) timeColumn() string {
	if d.unixTime {
		return "INTEGER"
	}
	return "TIMESTAMP WITH TIME ZONE"
}

// dbTime scans post_time from any supported representation.
type dbTime struct {
	time.Time
}

// Scan implements sql.Scanner.
func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case int64:
		t.Time = time.Unix(v, 0).UTC()
	case time.Time:
		t.Time = v.UTC()
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into post time", src)
	}
	return nil
}

func (t *dbTime) parse(s string) error {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.Unix(secs, 0).UTC()
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse post time %q", s)
}
