package dto

import "github.com/noah-isme/quarter-scheduler/internal/models"

// GenerateScheduleRequest asks the engine to allocate courses over one fiscal quarter.
type GenerateScheduleRequest struct {
	Quarter string          `json:"quarter" validate:"required"`
	Year    int             `json:"year" validate:"required"`
	Courses []models.Course `json:"courses" validate:"required,min=1,dive"`
}

// GenerateYearRequest asks for all four quarters of a fiscal year.
type GenerateYearRequest struct {
	Year    int             `json:"year" validate:"required"`
	Courses []models.Course `json:"courses" validate:"required,min=1,dive"`
}

// CalendarEntry is a booked occupant of a calendar cell.
type CalendarEntry struct {
	Course        string `json:"course"`
	SessionNumber int    `json:"sessionNumber"`
}

// CalendarGrid maps date -> start time -> occupants.
type CalendarGrid map[string]map[string][]CalendarEntry

// AllocationCounters exposes how much work the engine did.
type AllocationCounters struct {
	Attempts   int `json:"attempts"`
	Placements int `json:"placements"`
	Rollbacks  int `json:"rollbacks"`
}

// GenerateScheduleResponse is a quarter proposal.
type GenerateScheduleResponse struct {
	ProposalID   string                    `json:"proposalId"`
	Quarter      string                    `json:"quarter"`
	FiscalYear   int                       `json:"fiscalYear"`
	Sessions     []models.ScheduledSession `json:"sessions"`
	Statistics   models.Statistics         `json:"statistics"`
	CalendarGrid CalendarGrid              `json:"calendarGrid"`
	Counters     AllocationCounters        `json:"counters"`
	Cached       bool                      `json:"cached"`
}

// GenerateYearResponse merges four independent quarter proposals.
type GenerateYearResponse struct {
	FiscalYear int                        `json:"fiscalYear"`
	Quarters   []GenerateScheduleResponse `json:"quarters"`
	Sessions   []models.ScheduledSession  `json:"sessions"`
	Statistics models.Statistics          `json:"statistics"`
}

// SaveScheduleRequest persists a stored proposal as a schedule run.
type SaveScheduleRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	Publish    bool   `json:"publish"`
}

// ScheduleRunQuery filters persisted runs.
type ScheduleRunQuery struct {
	Quarter    string `form:"quarter"`
	FiscalYear int    `form:"year" validate:"omitempty,min=1900,max=9999"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
}

// AssignInstructorRequest fills instructor details on a course's sessions.
// SessionNumber limits the update to one session of each instance.
type AssignInstructorRequest struct {
	CourseTitle     string `json:"courseTitle" validate:"required"`
	SessionNumber   int    `json:"sessionNumber" validate:"omitempty,min=1"`
	InstructorName  string `json:"instructorName" validate:"required,max=200"`
	InstructorEmail string `json:"instructorEmail" validate:"required,email"`
}

// ImportIssue describes a rejected course record.
type ImportIssue struct {
	Row    int    `json:"row"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// ImportCoursesResponse returns normalized courses ready for generation.
type ImportCoursesResponse struct {
	Courses  []models.Course `json:"courses"`
	Rejected []ImportIssue   `json:"rejected"`
}

// ExportScheduleRequest selects the rendered format.
type ExportScheduleRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}
