package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarterDatesFiscalOctober(t *testing.T) {
	calc, err := NewQuarterCalculator(FiscalOctober)
	require.NoError(t, err)

	dates, err := calc.QuarterDates(Q2, 2025)
	require.NoError(t, err)
	require.Len(t, dates, 64)
	assert.Equal(t, day(2025, time.January, 1), dates[0])
	assert.Equal(t, day(2025, time.March, 31), dates[len(dates)-1])
	for i, d := range dates {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
		if i > 0 {
			assert.True(t, dates[i-1].Before(d))
		}
	}

	q1, err := calc.QuarterDates(Q1, 2025)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.October, 1), q1[0])
	assert.Equal(t, day(2024, time.December, 31), q1[len(q1)-1])

	assert.Equal(t, day(2024, time.October, 1), calc.FiscalEpoch(2025))
	assert.Equal(t, day(2025, time.September, 30), calc.FiscalYearEnd(2025))
}

func TestQuarterDatesFiscalJulyWrapsIntoNextYear(t *testing.T) {
	calc, err := NewQuarterCalculator(FiscalJuly)
	require.NoError(t, err)

	start, end, err := calc.Bounds(Q3, 2025)
	require.NoError(t, err)
	assert.Equal(t, day(2026, time.January, 1), start)
	assert.Equal(t, day(2026, time.March, 31), end)
	assert.Equal(t, day(2025, time.July, 1), calc.FiscalEpoch(2025))
}

func TestQuarterSpanCrossingYearBoundary(t *testing.T) {
	calc, err := NewQuarterCalculator(QuarterTable{
		Q1: {StartMonth: time.November, YearOffset: -1},
		Q2: {StartMonth: time.February},
		Q3: {StartMonth: time.May},
		Q4: {StartMonth: time.August},
	})
	require.NoError(t, err)

	dates, err := calc.QuarterDates(Q1, 2025)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.November, 1), dates[0])
	assert.Equal(t, day(2025, time.January, 31), dates[len(dates)-1])
}

func TestQuarterDatesInvalidInput(t *testing.T) {
	calc, err := NewQuarterCalculator(CalendarYear)
	require.NoError(t, err)

	_, err = calc.QuarterDates(Quarter("Q5"), 2025)
	assert.ErrorIs(t, err, ErrInvalidQuarter)

	_, err = calc.QuarterDates(Q1, 0)
	assert.ErrorIs(t, err, ErrInvalidYear)

	_, err = ParseQuarter("fourth")
	assert.ErrorIs(t, err, ErrInvalidQuarter)

	q, err := ParseQuarter(" q3 ")
	require.NoError(t, err)
	assert.Equal(t, Q3, q)
}

func TestQuarterTableFor(t *testing.T) {
	table, err := QuarterTableFor("July")
	require.NoError(t, err)
	assert.Equal(t, time.July, table[Q1].StartMonth)

	_, err = QuarterTableFor("march")
	assert.Error(t, err)

	_, err = NewQuarterCalculator(QuarterTable{Q1: {StartMonth: time.January}})
	assert.Error(t, err)
}
