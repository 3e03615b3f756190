package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schedule_runs (
		id UUID PRIMARY KEY,
		quarter VARCHAR(2) NOT NULL,
		fiscal_year INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'DRAFT',
		total_available_slots INTEGER NOT NULL,
		total_scheduled_sessions INTEGER NOT NULL,
		slots_after_scheduling INTEGER NOT NULL,
		utilization_percentage NUMERIC(5,2) NOT NULL,
		created_by VARCHAR(128) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedule_runs_quarter_year ON schedule_runs (fiscal_year, quarter)`,
	`CREATE TABLE IF NOT EXISTS schedule_run_sessions (
		id UUID PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES schedule_runs(id) ON DELETE CASCADE,
		session_date DATE NOT NULL,
		course_title TEXT NOT NULL,
		session_number INTEGER NOT NULL,
		start_time VARCHAR(5) NOT NULL,
		end_time VARCHAR(5) NOT NULL,
		instructor_name TEXT NOT NULL DEFAULT '',
		instructor_email TEXT NOT NULL DEFAULT '',
		UNIQUE (run_id, session_date, start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedule_run_sessions_course ON schedule_run_sessions (run_id, course_title)`,
}

// EnsureSchema creates the schedule run tables when they are missing.
func EnsureSchema(ctx context.Context, db sqlx.ExecerContext) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
