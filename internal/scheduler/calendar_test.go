package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("9:05")
	require.NoError(t, err)
	assert.Equal(t, Clock(545), c)
	assert.Equal(t, "09:05", c.String())

	for _, raw := range []string{"", "0900", "24:00", "10:60", "ab:cd"} {
		_, err := ParseClock(raw)
		assert.Error(t, err, raw)
	}
}

func TestSlotsForDateWeekdayTemplates(t *testing.T) {
	rules := DefaultCalendarRules()

	monday := rules.SlotsForDate(day(2025, time.March, 3))
	friday := rules.SlotsForDate(day(2025, time.March, 7))
	require.NotEmpty(t, monday)
	require.NotEmpty(t, friday)
	assert.Less(t, len(friday), len(monday))

	for wd := time.Monday; wd <= time.Friday; wd++ {
		slots := rules.Templates[wd]
		for i := 1; i < len(slots); i++ {
			assert.LessOrEqual(t, int(slots[i-1].End), int(slots[i].Start), "slots overlap on %s", wd)
		}
	}

	assert.Empty(t, rules.SlotsForDate(day(2025, time.March, 8)))
	assert.Empty(t, rules.SlotsForDate(day(2025, time.March, 9)))
}

func TestSlotsForDateFullDayExclusions(t *testing.T) {
	rules := DefaultCalendarRules()

	assert.Empty(t, rules.SlotsForDate(day(2025, time.January, 1)))
	assert.Empty(t, rules.SlotsForDate(day(2025, time.November, 11)))
	assert.Empty(t, rules.SlotsForDate(day(2025, time.December, 25)))

	// fourth Thursday of November moves every year
	assert.Empty(t, rules.SlotsForDate(day(2025, time.November, 27)))
	assert.Empty(t, rules.SlotsForDate(day(2024, time.November, 28)))
	assert.NotEmpty(t, rules.SlotsForDate(day(2025, time.November, 20)))
	assert.True(t, rules.IsExcluded(day(2026, time.November, 26)))
}

func TestSlotsForDatePartialDayCutoff(t *testing.T) {
	rules := DefaultCalendarRules()

	eve := rules.SlotsForDate(day(2025, time.December, 24))
	require.NotEmpty(t, eve)
	for _, s := range eve {
		assert.Less(t, s.Start.String(), "13:00")
	}
	assert.Less(t, len(eve), len(rules.Templates[time.Wednesday]))
}

func TestSlotsForDateExclusionBeatsPartialDay(t *testing.T) {
	rules := DefaultCalendarRules()
	rules.FixedHolidays = append(rules.FixedHolidays, MonthDay{Month: time.December, Day: 24})

	assert.Empty(t, rules.SlotsForDate(day(2025, time.December, 24)))
}

func TestSlotsForDateReturnsCopy(t *testing.T) {
	rules := DefaultCalendarRules()
	slots := rules.SlotsForDate(day(2025, time.March, 3))
	slots[0].Start = MustClock("23:00")

	assert.Equal(t, "09:00", rules.SlotsForDate(day(2025, time.March, 3))[0].Start.String())
}
