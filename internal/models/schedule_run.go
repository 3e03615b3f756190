package models

import "time"

// ScheduleRunStatus tracks the lifecycle of a persisted allocation run.
type ScheduleRunStatus string

const (
	ScheduleRunStatusDraft     ScheduleRunStatus = "DRAFT"
	ScheduleRunStatusPublished ScheduleRunStatus = "PUBLISHED"
)

// ScheduleRun is an accepted allocation proposal stored for later use.
type ScheduleRun struct {
	ID                     string            `db:"id" json:"id"`
	Quarter                string            `db:"quarter" json:"quarter"`
	FiscalYear             int               `db:"fiscal_year" json:"fiscalYear"`
	Status                 ScheduleRunStatus `db:"status" json:"status"`
	TotalAvailableSlots    int               `db:"total_available_slots" json:"totalAvailableSlots"`
	TotalScheduledSessions int               `db:"total_scheduled_sessions" json:"totalScheduledSessions"`
	SlotsAfterScheduling   int               `db:"slots_after_scheduling" json:"slotsAfterScheduling"`
	UtilizationPercentage  float64           `db:"utilization_percentage" json:"utilizationPercentage"`
	CreatedBy              string            `db:"created_by" json:"createdBy"`
	CreatedAt              time.Time         `db:"created_at" json:"createdAt"`
}

// ScheduleRunSession is a ScheduledSession row belonging to a run.
type ScheduleRunSession struct {
	ID              string `db:"id" json:"id"`
	RunID           string `db:"run_id" json:"runId"`
	SessionDate     string `db:"session_date" json:"date"`
	CourseTitle     string `db:"course_title" json:"courseTitle"`
	SessionNumber   int    `db:"session_number" json:"sessionNumber"`
	StartTime       string `db:"start_time" json:"startTime"`
	EndTime         string `db:"end_time" json:"endTime"`
	InstructorName  string `db:"instructor_name" json:"instructorName"`
	InstructorEmail string `db:"instructor_email" json:"instructorEmail"`
}

// ScheduleRunFilter narrows run listings.
type ScheduleRunFilter struct {
	Quarter    string
	FiscalYear int
	Page       int
	PageSize   int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// InstructorAssignment targets the sessions of one course within a run.
// SessionNumber 0 matches every session of the course.
type InstructorAssignment struct {
	CourseTitle     string
	SessionNumber   int
	InstructorName  string
	InstructorEmail string
}
