package sqlstore

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const articlesTable = "articles"

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name   string
	driver string
	ph     sq.PlaceholderFormat
	schema []string
	// createdAt is the expression used to compare and order by creation time.
	createdAt string
	greatest  string
	like      string
	cutoff    func(time.Time) any
}

// SQLite stores timestamps as text and is accessed through modernc.org/sqlite.
var SQLite = Dialect{
	Name:   "sqlite",
	driver: "sqlite",
	ph:     sq.Question,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT,
			content TEXT,
			summary TEXT,
			source_name TEXT NOT NULL DEFAULT '',
			link TEXT,
			published TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			event_group_id INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_event_group_id ON articles(event_group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at)`,
		`CREATE TABLE IF NOT EXISTS event_group_sequence (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_value INTEGER NOT NULL
		)`,
	},
	createdAt: "datetime(created_at)",
	greatest:  "MAX",
	like:      "LIKE",
	cutoff: func(t time.Time) any {
		return t.UTC().Format("2006-01-02 15:04:05")
	},
}

// Postgres is accessed through the pgx stdlib driver.
var Postgres = Dialect{
	Name:   "postgres",
	driver: "pgx",
	ph:     sq.Dollar,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			content TEXT,
			summary TEXT,
			source_name TEXT NOT NULL DEFAULT '',
			link TEXT,
			published TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			event_group_id BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_event_group_id ON articles(event_group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at)`,
		`CREATE TABLE IF NOT EXISTS event_group_sequence (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_value BIGINT NOT NULL
		)`,
	},
	createdAt: "created_at",
	greatest:  "GREATEST",
	like:      "ILIKE",
	cutoff: func(t time.Time) any {
		return t.UTC()
	},
}

// DialectByName resolves a backend name from configuration.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
	}
}

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.ph)
}

// seedSequence creates the single sequence row, starting above any group id
// already present in the table.
func (d Dialect) seedSequence() string {
	return `INSERT INTO event_group_sequence (id, last_value)
		SELECT 1, COALESCE(MAX(event_group_id), 0) FROM articles WHERE true
		ON CONFLICT (id) DO NOTHING`
}

func (d Dialect) nextGroupID() string {
	return fmt.Sprintf(`UPDATE event_group_sequence
		SET last_value = %s(last_value, (SELECT COALESCE(MAX(event_group_id), 0) FROM articles)) + 1
		WHERE id = 1
		RETURNING last_value`, d.greatest)
}
