package models

// Course is a normalized course record consumed by the allocation engine.
type Course struct {
	Title        string `json:"title" validate:"required"`
	Cadence      int    `json:"cadence" validate:"required,min=1"`
	SessionCount int    `json:"sessionCount" validate:"required,min=1"`
	Notes        string `json:"notes,omitempty"`
}

// ScheduledSession is one booked meeting of a course instance.
type ScheduledSession struct {
	Date            string `json:"date"`
	CourseTitle     string `json:"courseTitle"`
	SessionNumber   int    `json:"sessionNumber"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	InstructorName  string `json:"instructorName"`
	InstructorEmail string `json:"instructorEmail"`
}

// Statistics summarises grid utilisation after an allocation run.
type Statistics struct {
	TotalAvailableSlots    int      `json:"totalAvailableSlots"`
	TotalScheduledSessions int      `json:"totalScheduledSessions"`
	SlotsAfterScheduling   int      `json:"slotsAfterScheduling"`
	UtilizationPercentage  float64  `json:"utilizationPercentage"`
	FullyBookedDates       []string `json:"fullyBookedDates"`
}
