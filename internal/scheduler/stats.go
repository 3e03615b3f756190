package scheduler

import (
	"math"

	"github.com/noah-isme/quarter-scheduler/internal/models"
)

// Summarize derives utilisation statistics from the final grid. The scheduled
// count comes from sessions rather than the grid.
func Summarize(grid *Grid, sessions []models.ScheduledSession) models.Statistics {
	total := grid.TotalSlots()
	free := grid.FreeCount()

	var utilization float64
	if total > 0 {
		utilization = math.Round(float64(total-free)/float64(total)*100*100) / 100
	}

	fullyBooked := make([]string, 0)
	for _, key := range grid.order {
		if grid.IsFullyBooked(grid.days[key].Date) {
			fullyBooked = append(fullyBooked, key)
		}
	}

	return models.Statistics{
		TotalAvailableSlots:    total,
		TotalScheduledSessions: len(sessions),
		SlotsAfterScheduling:   free,
		UtilizationPercentage:  utilization,
		FullyBookedDates:       fullyBooked,
	}
}
