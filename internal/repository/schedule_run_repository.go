package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/quarter-scheduler/internal/models"
)

// QueryObserver receives query timings.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

const scheduleRunColumns = `id, quarter, fiscal_year, status, total_available_slots, total_scheduled_sessions,
slots_after_scheduling, utilization_percentage, created_by, created_at`

const scheduleRunSessionColumns = `id, run_id, to_char(session_date, 'YYYY-MM-DD') AS session_date, course_title,
session_number, start_time, end_time, instructor_name, instructor_email`

// ScheduleRunRepository persists accepted allocation runs and their sessions.
type ScheduleRunRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewScheduleRunRepository constructs the repository. observer may be nil.
func NewScheduleRunRepository(db *sqlx.DB, observer QueryObserver) *ScheduleRunRepository {
	return &ScheduleRunRepository{db: db, observer: observer}
}

func (r *ScheduleRunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *ScheduleRunRepository) observe(label string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveDBQuery(label, time.Since(start))
	}
}

// Create inserts a run header.
func (r *ScheduleRunRepository) Create(ctx context.Context, exec sqlx.ExtContext, run *models.ScheduleRun) error {
	if run == nil {
		return fmt.Errorf("schedule run payload is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.ScheduleRunStatusDraft
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	defer r.observe("schedule_runs.create", time.Now())

	const query = `
INSERT INTO schedule_runs (id, quarter, fiscal_year, status, total_available_slots, total_scheduled_sessions,
slots_after_scheduling, utilization_percentage, created_by, created_at)
VALUES (:id, :quarter, :fiscal_year, :status, :total_available_slots, :total_scheduled_sessions,
:slots_after_scheduling, :utilization_percentage, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, run); err != nil {
		return fmt.Errorf("insert schedule run: %w", err)
	}
	return nil
}

// InsertSessions bulk inserts the sessions of a run.
func (r *ScheduleRunRepository) InsertSessions(ctx context.Context, exec sqlx.ExtContext, sessions []models.ScheduleRunSession) error {
	if len(sessions) == 0 {
		return nil
	}
	for i := range sessions {
		if sessions[i].ID == "" {
			sessions[i].ID = uuid.NewString()
		}
	}
	defer r.observe("schedule_run_sessions.insert", time.Now())

	const query = `
INSERT INTO schedule_run_sessions (id, run_id, session_date, course_title, session_number, start_time, end_time,
instructor_name, instructor_email)
VALUES (:id, :run_id, :session_date, :course_title, :session_number, :start_time, :end_time,
:instructor_name, :instructor_email)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, sessions); err != nil {
		return fmt.Errorf("insert schedule run sessions: %w", err)
	}
	return nil
}

// List returns runs matching filter, newest first, with the total count.
func (r *ScheduleRunRepository) List(ctx context.Context, filter models.ScheduleRunFilter) ([]models.ScheduleRun, int, error) {
	defer r.observe("schedule_runs.list", time.Now())

	var (
		conditions []string
		args       []interface{}
	)
	if filter.Quarter != "" {
		args = append(args, filter.Quarter)
		conditions = append(conditions, fmt.Sprintf("quarter = $%d", len(args)))
	}
	if filter.FiscalYear != 0 {
		args = append(args, filter.FiscalYear)
		conditions = append(conditions, fmt.Sprintf("fiscal_year = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM schedule_runs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule runs: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("SELECT %s FROM schedule_runs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		scheduleRunColumns, where, len(args)-1, len(args))

	runs := make([]models.ScheduleRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule runs: %w", err)
	}
	return runs, total, nil
}

// FindByID loads a run header.
func (r *ScheduleRunRepository) FindByID(ctx context.Context, id string) (*models.ScheduleRun, error) {
	defer r.observe("schedule_runs.find", time.Now())
	query := "SELECT " + scheduleRunColumns + " FROM schedule_runs WHERE id = $1"
	var run models.ScheduleRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListSessions returns a run's sessions in calendar order.
func (r *ScheduleRunRepository) ListSessions(ctx context.Context, runID string) ([]models.ScheduleRunSession, error) {
	defer r.observe("schedule_run_sessions.list", time.Now())
	query := "SELECT " + scheduleRunSessionColumns + " FROM schedule_run_sessions WHERE run_id = $1 ORDER BY session_date, start_time"
	sessions := make([]models.ScheduleRunSession, 0)
	if err := r.db.SelectContext(ctx, &sessions, query, runID); err != nil {
		return nil, fmt.Errorf("list schedule run sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a run; sessions cascade.
func (r *ScheduleRunRepository) Delete(ctx context.Context, id string) error {
	defer r.observe("schedule_runs.delete", time.Now())
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedule_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule run rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateInstructor sets instructor details on matching sessions and returns
// the number of rows updated.
func (r *ScheduleRunRepository) UpdateInstructor(ctx context.Context, runID string, assignment models.InstructorAssignment) (int64, error) {
	defer r.observe("schedule_run_sessions.assign", time.Now())
	query := `UPDATE schedule_run_sessions SET instructor_name = $1, instructor_email = $2 WHERE run_id = $3 AND course_title = $4`
	args := []interface{}{assignment.InstructorName, assignment.InstructorEmail, runID, assignment.CourseTitle}
	if assignment.SessionNumber > 0 {
		query += " AND session_number = $5"
		args = append(args, assignment.SessionNumber)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("assign instructor: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("assign instructor rows affected: %w", err)
	}
	return affected, nil
}
