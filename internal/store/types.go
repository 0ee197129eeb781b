package store

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
)

type DBConfig struct {
	DSN  string
	Type DatabaseType
}

// GradebookRow is one cell of the flattened course gradebook, a
// (student, assignment) pair with the latest synced score.
type GradebookRow struct {
	Student    string   `db:"student"`
	Email      string   `db:"email"`
	Assignment string   `db:"assignment"`
	Score      *float64 `db:"score"`
	State      string   `db:"state"`
}
