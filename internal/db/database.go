package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps SQLite connection
type Database struct {
	db *sql.DB
}

// RunRecord represents a locate run in the database
type RunRecord struct {
	ID             string    `json:"id"`
	Target         string    `json:"target"`
	Model          string    `json:"model"`
	Status         string    `json:"status"`
	X              *int      `json:"x,omitempty"`
	Y              *int      `json:"y,omitempty"`
	Action         string    `json:"action,omitempty"`
	RawResponse    string    `json:"rawResponse,omitempty"`
	ScreenshotPath string    `json:"screenshotPath,omitempty"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Error          string    `json:"error,omitempty"`
	DurationMs     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

// initSchema creates the necessary tables
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		x INTEGER,
		y INTEGER,
		action TEXT NOT NULL DEFAULT '',
		raw_response TEXT NOT NULL DEFAULT '',
		screenshot_path TEXT NOT NULL DEFAULT '',
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// CreateRun inserts a run record
func (d *Database) CreateRun(run *RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO runs (id, target, model, status, x, y, action, raw_response,
			screenshot_path, width, height, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.Exec(query,
		run.ID, run.Target, run.Model, run.Status, nullInt(run.X), nullInt(run.Y), run.Action,
		run.RawResponse, run.ScreenshotPath, run.Width, run.Height, run.Error, run.DurationMs,
		run.CreatedAt,
	)
	return err
}

const selectColumns = `
	SELECT id, target, model, status, x, y, action, raw_response, screenshot_path,
		width, height, error, duration_ms, created_at
	FROM runs
`

// GetRun retrieves a run by ID; it returns nil when the run does not exist
func (d *Database) GetRun(id string) (*RunRecord, error) {
	run, err := scanRun(d.db.QueryRow(selectColumns+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns retrieves runs newest first with optional status filtering
func (d *Database) ListRuns(status string, limit, offset int) ([]RunRecord, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []interface{}{}

	if status != "" && status != "all" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// CountRuns returns the total number of runs
func (d *Database) CountRuns(status string) (int, error) {
	query := `SELECT COUNT(*) FROM runs WHERE 1=1`
	args := []interface{}{}

	if status != "" && status != "all" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	var count int
	err := d.db.QueryRow(query, args...).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var run RunRecord
	var x, y sql.NullInt64

	err := row.Scan(
		&run.ID,
		&run.Target,
		&run.Model,
		&run.Status,
		&x,
		&y,
		&run.Action,
		&run.RawResponse,
		&run.ScreenshotPath,
		&run.Width,
		&run.Height,
		&run.Error,
		&run.DurationMs,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if x.Valid {
		v := int(x.Int64)
		run.X = &v
	}
	if y.Valid {
		v := int(y.Int64)
		run.Y = &v
	}
	return &run, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
