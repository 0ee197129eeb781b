// internal/store/sqlite/store.go
package sqlite

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shrimpsizemoose/lussekatt/internal/store"
)

type SQLiteStore struct {
	store.BaseStore
}

func NewSQLiteStore(dsn, migrationsDir string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	// :memory: databases live per-connection, keep the pool at one
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{BaseStore: store.BaseStore{
		DB: db,
		Converter: func(query string) string {
			return query
		},
	}}

	if err := s.ApplyMigrations(migrationsDir, translateToSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return s, nil
}

// translateToSQLite converts Postgres SQL to SQLite dialect
func translateToSQLite(sql string) string {
	replacements := map[string]string{
		"BIGSERIAL PRIMARY KEY": "INTEGER PRIMARY KEY AUTOINCREMENT",
		"BIGINT":                "INTEGER",
		"TIMESTAMPTZ":           "TIMESTAMP",
		"DOUBLE PRECISION":      "REAL",
		"TRUE":                  "1",
		"FALSE":                 "0",
		"RETURNING":             "",
		"now()":                 "CURRENT_TIMESTAMP",
	}
	result := sql
	for from, to := range replacements {
		result = strings.ReplaceAll(result, from, to)
	}
	return result
}

func (s *SQLiteStore) FetchGradebook(courseCanvasID int64) ([]store.GradebookRow, error) {
	query := `
		SELECT
			e.user_name as student,
			e.email,
			a.name as assignment,
			sub.score,
			sub.state
		FROM submissions sub
		JOIN assignments a ON a.id = sub.assignment_id
		JOIN enrollments e ON e.id = sub.enrollment_id
		JOIN courses c ON c.id = a.course_id
		WHERE c.canvas_id = ?
		ORDER BY e.user_name, a.canvas_id
	`

	var rows []store.GradebookRow
	err := s.DB.Select(&rows, query, courseCanvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gradebook: %w", err)
	}

	return rows, nil
}
