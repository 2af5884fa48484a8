// Package repository provides the relational product store on SQLite or
// PostgreSQL, plus an in-memory variant for tests and demos.
package repository

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	driver  string
	pragmas []string
	tables  []string

	// placeholder renders bind parameter n (1-based).
	placeholder func(n int) string
	// categoryText is the expression searched for category tokens.
	categoryText string
	// unfolded, when set, renders a predicate that is true for values LOWER
	// cannot fold completely. Those rows skip the LIKE prefilter.
	unfolded func(expr string) string
	// list converts a string slice to a bind value.
	list func([]string) driver.Valuer
	// scanList returns a scan target for a list column.
	scanList func(*[]string) sql.Scanner
}

var sqliteDialect = dialect{
	driver: "sqlite3",
	pragmas: []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	},
	tables: []string{
		`CREATE TABLE IF NOT EXISTS products (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL,
			description TEXT,
			categories  TEXT NOT NULL DEFAULT '[]',
			price_cents INTEGER NOT NULL DEFAULT 0,
			images      TEXT NOT NULL DEFAULT '[]',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name)`,
	},
	placeholder:  func(int) string { return "?" },
	categoryText: "categories",
	unfolded:     sqliteUnfolded,
	list:         func(v []string) driver.Valuer { return jsonList(v) },
	scanList:     func(v *[]string) sql.Scanner { return (*jsonList)(v) },
}

var postgresDialect = dialect{
	driver: "postgres",
	tables: []string{
		`CREATE TABLE IF NOT EXISTS products (
			id          BIGSERIAL PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT,
			categories  TEXT[] NOT NULL DEFAULT '{}',
			price_cents BIGINT NOT NULL DEFAULT 0,
			images      TEXT[] NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name)`,
	},
	placeholder:  func(n int) string { return "$" + strconv.Itoa(n) },
	categoryText: "array_to_string(categories, ' ')",
	list:         func(v []string) driver.Valuer { return pq.StringArray(v) },
	scanList:     func(v *[]string) sql.Scanner { return (*pq.StringArray)(v) },
}

// sqliteUnfolded matches values holding multibyte characters, which have more
// bytes than characters. SQLite's LOWER and LIKE fold ASCII only.
func sqliteUnfolded(expr string) string {
	return fmt.Sprintf("LENGTH(%s) <> LENGTH(CAST(%s AS BLOB))", expr, expr)
}

func dialectFor(driverName string) (dialect, error) {
	switch driverName {
	case "sqlite3":
		return sqliteDialect, nil
	case "postgres":
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver: %s", driverName)
	}
}

// InitDB opens a database connection, applies driver pragmas and creates the
// products table idempotently.
func InitDB(driverName, dsn string) (*sql.DB, error) {
	d, err := dialectFor(driverName)
	if err != nil {
		return nil, err
	}
	return initDB(d, dsn)
}

func initDB(d dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, p := range d.pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", p, err)
		}
	}

	if err := createTables(db, d.tables); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB, tables []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, ddl := range tables {
		if _, err := tx.Exec(ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return tx.Commit()
}

// jsonList stores a string slice as a JSON array in a TEXT column.
type jsonList []string

func (l jsonList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]string(l)); err != nil {
		return nil, err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func (l *jsonList) Scan(src interface{}) error {
	var text string
	switch v := src.(type) {
	case nil:
		*l = []string{}
		return nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("unsupported list column type %T", src)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		*l = []string{}
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return fmt.Errorf("invalid list column: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}
