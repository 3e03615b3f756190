package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quarter-scheduler/internal/models"
)

type observerStub struct {
	labels []string
}

func (o *observerStub) ObserveDBQuery(label string, duration time.Duration) {
	o.labels = append(o.labels, label)
}

func newScheduleRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var scheduleRunRowColumns = []string{"id", "quarter", "fiscal_year", "status", "total_available_slots",
	"total_scheduled_sessions", "slots_after_scheduling", "utilization_percentage", "created_by", "created_at"}

func TestScheduleRunRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	observer := &observerStub{}
	repo := NewScheduleRunRepository(db, observer)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_runs")).
		WithArgs(sqlmock.AnyArg(), "Q1", 2025, string(models.ScheduleRunStatusDraft), 300, 12, 288, 4.0, "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.ScheduleRun{Quarter: "Q1", FiscalYear: 2025, TotalAvailableSlots: 300, TotalScheduledSessions: 12,
		SlotsAfterScheduling: 288, UtilizationPercentage: 4, CreatedBy: "user-1"}
	require.NoError(t, repo.Create(context.Background(), nil, run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
	assert.Equal(t, []string{"schedule_runs.create"}, observer.labels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryInsertSessions(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_run_sessions")).
		WithArgs(
			sqlmock.AnyArg(), "run-1", "2025-01-07", "Leadership Essentials", 1, "09:00", "10:30", "", "",
			sqlmock.AnyArg(), "run-1", "2025-01-09", "Leadership Essentials", 2, "09:00", "10:30", "", "",
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.InsertSessions(context.Background(), nil, []models.ScheduleRunSession{
		{RunID: "run-1", SessionDate: "2025-01-07", CourseTitle: "Leadership Essentials", SessionNumber: 1, StartTime: "09:00", EndTime: "10:30"},
		{RunID: "run-1", SessionDate: "2025-01-09", CourseTitle: "Leadership Essentials", SessionNumber: 2, StartTime: "09:00", EndTime: "10:30"},
	})
	require.NoError(t, err)
	require.NoError(t, repo.InsertSessions(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryList(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schedule_runs WHERE quarter = $1 AND fiscal_year = $2")).
		WithArgs("Q2", 2025).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_runs WHERE quarter = $1 AND fiscal_year = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("Q2", 2025, 10, 20).
		WillReturnRows(sqlmock.NewRows(scheduleRunRowColumns).
			AddRow("run-21", "Q2", 2025, "DRAFT", 300, 5, 295, 1.67, "", time.Now()))

	runs, total, err := repo.List(context.Background(), models.ScheduleRunFilter{Quarter: "Q2", FiscalYear: 2025, Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-21", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryListUnfiltered(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schedule_runs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $1 OFFSET $2")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(scheduleRunRowColumns))

	runs, total, err := repo.List(context.Background(), models.ScheduleRunFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryListSessions(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	rows := sqlmock.NewRows([]string{"id", "run_id", "session_date", "course_title", "session_number", "start_time", "end_time", "instructor_name", "instructor_email"}).
		AddRow("s-1", "run-1", "2025-01-07", "Data Analysis", 1, "08:30", "10:00", "", "")
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_run_sessions WHERE run_id = $1 ORDER BY session_date, start_time")).
		WithArgs("run-1").
		WillReturnRows(rows)

	sessions, err := repo.ListSessions(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "2025-01-07", sessions[0].SessionDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "run-1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryUpdateInstructor(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_run_sessions SET instructor_name = $1, instructor_email = $2 WHERE run_id = $3 AND course_title = $4 AND session_number = $5")).
		WithArgs("Ada Lovelace", "ada@example.com", "run-1", "Data Analysis", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_run_sessions SET instructor_name = $1, instructor_email = $2 WHERE run_id = $3 AND course_title = $4")).
		WithArgs("Ada Lovelace", "ada@example.com", "run-1", "Data Analysis").
		WillReturnResult(sqlmock.NewResult(0, 3))

	assignment := models.InstructorAssignment{CourseTitle: "Data Analysis", SessionNumber: 2, InstructorName: "Ada Lovelace", InstructorEmail: "ada@example.com"}
	updated, err := repo.UpdateInstructor(context.Background(), "run-1", assignment)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	assignment.SessionNumber = 0
	updated, err = repo.UpdateInstructor(context.Background(), "run-1", assignment)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
