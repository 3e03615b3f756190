package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/quarter-scheduler/internal/models"
)

func TestSummarizeRoundsUtilization(t *testing.T) {
	rules := uniformRules([]time.Weekday{time.Monday}, slot("09:00", "10:00"), slot("10:00", "11:00"), slot("11:00", "12:00"))
	monday := day(2025, time.January, 6)
	grid := NewGrid(rules, []time.Time{monday})
	grid.Book(monday, MustClock("09:00"), "Intro", 1)

	stats := Summarize(grid, []models.ScheduledSession{{Date: "2025-01-06", CourseTitle: "Intro", SessionNumber: 1, StartTime: "09:00"}})

	assert.Equal(t, 3, stats.TotalAvailableSlots)
	assert.Equal(t, 2, stats.SlotsAfterScheduling)
	assert.Equal(t, 1, stats.TotalScheduledSessions)
	assert.Equal(t, 33.33, stats.UtilizationPercentage)
	assert.Empty(t, stats.FullyBookedDates)
}

func TestSummarizeFullyBookedDatesInGridOrder(t *testing.T) {
	rules := uniformRules(workweek, slot("09:00", "10:00"))
	dates := businessDays(day(2025, time.January, 6), 3)
	grid := NewGrid(rules, dates)
	grid.Book(dates[2], MustClock("09:00"), "A", 1)
	grid.Book(dates[0], MustClock("09:00"), "B", 1)

	stats := Summarize(grid, nil)

	assert.Equal(t, []string{"2025-01-06", "2025-01-08"}, stats.FullyBookedDates)
	assert.Equal(t, 66.67, stats.UtilizationPercentage)
	assert.Zero(t, stats.TotalScheduledSessions)
}

func TestSummarizeEmptyGrid(t *testing.T) {
	grid := NewGrid(DefaultCalendarRules(), []time.Time{day(2025, time.January, 4)})

	stats := Summarize(grid, nil)

	assert.Zero(t, stats.TotalAvailableSlots)
	assert.Zero(t, stats.UtilizationPercentage)
	assert.NotNil(t, stats.FullyBookedDates)
}
