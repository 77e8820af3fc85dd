// internal/db/db.go
package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Dialect selects the placeholder style of the underlying driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Rebind rewrites ? placeholders to $1..$n for postgres. Queries must not
// contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

// Open connects to the database, pings it and applies the schema.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	var (
		conn    *sql.DB
		dialect Dialect
		err     error
	)

	switch driver {
	case "postgres":
		dialect = Postgres
		conn, err = sql.Open("postgres", dsn)
	case "sqlite":
		dialect = SQLite
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, "", fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		conn, err = sql.Open("sqlite", dsn+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err == nil {
			// Writers serialize anyway; one connection avoids SQLITE_BUSY.
			conn.SetMaxOpenConns(1)
		}
	default:
		return nil, "", fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", driver, err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, "", fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := ApplySchema(conn); err != nil {
		_ = conn.Close()
		return nil, "", err
	}
	return conn, dialect, nil
}

// ApplySchema creates missing tables and indexes. It is safe to run on
// every start.
func ApplySchema(conn *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
