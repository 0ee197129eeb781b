package postgres

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/shrimpsizemoose/lussekatt/internal/store"
)

type PostgresStore struct {
	store.BaseStore
}

func NewPostgresStore(dsn, migrationsDir string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{BaseStore: store.BaseStore{
		DB: db,
		Converter: func(query string) string {
			out := query
			for i := 1; strings.Contains(out, "?"); i++ {
				out = strings.Replace(out, "?", fmt.Sprintf("$%d", i), 1)
			}
			return out
		},
	}}

	if err := s.BaseStore.ApplyMigrations(migrationsDir, nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) FetchGradebook(courseCanvasID int64) ([]store.GradebookRow, error) {
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
        WHERE c.canvas_id = $1
        ORDER BY e.user_name, a.canvas_id
    `

	var rows []store.GradebookRow
	err := s.DB.Select(&rows, query, courseCanvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gradebook: %w", err)
	}

	return rows, nil
}
