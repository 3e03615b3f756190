package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidQuarter is returned for quarter identifiers outside Q1..Q4.
	ErrInvalidQuarter = errors.New("invalid quarter")
	// ErrInvalidYear is returned for years the calculator cannot represent.
	ErrInvalidYear = errors.New("invalid year")
)

const (
	minYear = 1900
	maxYear = 9999
)

// Quarter identifies one of the four fiscal quarters.
type Quarter string

const (
	Q1 Quarter = "Q1"
	Q2 Quarter = "Q2"
	Q3 Quarter = "Q3"
	Q4 Quarter = "Q4"
)

// Quarters lists the recognized identifiers in fiscal order.
var Quarters = []Quarter{Q1, Q2, Q3, Q4}

// ParseQuarter accepts "Q1".."Q4" case-insensitively.
func ParseQuarter(raw string) (Quarter, error) {
	q := Quarter(strings.ToUpper(strings.TrimSpace(raw)))
	switch q {
	case Q1, Q2, Q3, Q4:
		return q, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidQuarter, raw)
	}
}

// QuarterSpan places a quarter on the calendar: three months starting at
// StartMonth of (fiscal year + YearOffset).
type QuarterSpan struct {
	StartMonth time.Month
	YearOffset int
}

// QuarterTable maps each quarter of a fiscal year to its calendar months.
type QuarterTable map[Quarter]QuarterSpan

var (
	// FiscalOctober is the US federal convention: FY2025 runs Oct 2024 - Sep 2025.
	FiscalOctober = QuarterTable{
		Q1: {StartMonth: time.October, YearOffset: -1},
		Q2: {StartMonth: time.January},
		Q3: {StartMonth: time.April},
		Q4: {StartMonth: time.July},
	}
	// FiscalJuly names the fiscal year after the calendar year it starts in:
	// FY2025 runs Jul 2025 - Jun 2026, so Q3 and Q4 wrap into the next year.
	FiscalJuly = QuarterTable{
		Q1: {StartMonth: time.July},
		Q2: {StartMonth: time.October},
		Q3: {StartMonth: time.January, YearOffset: 1},
		Q4: {StartMonth: time.April, YearOffset: 1},
	}
	// CalendarYear aligns quarters with calendar quarters.
	CalendarYear = QuarterTable{
		Q1: {StartMonth: time.January},
		Q2: {StartMonth: time.April},
		Q3: {StartMonth: time.July},
		Q4: {StartMonth: time.October},
	}
)

// QuarterTableFor resolves a configured fiscal-start name.
func QuarterTableFor(name string) (QuarterTable, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "october", "federal":
		return FiscalOctober, nil
	case "july":
		return FiscalJuly, nil
	case "january", "calendar":
		return CalendarYear, nil
	default:
		return nil, fmt.Errorf("unknown fiscal start %q", name)
	}
}

// QuarterCalculator converts quarter identifiers into business-day date lists.
type QuarterCalculator struct {
	table QuarterTable
}

// NewQuarterCalculator validates that table defines all four quarters.
func NewQuarterCalculator(table QuarterTable) (*QuarterCalculator, error) {
	for _, q := range Quarters {
		span, ok := table[q]
		if !ok {
			return nil, fmt.Errorf("quarter table missing %s", q)
		}
		if span.StartMonth < time.January || span.StartMonth > time.December {
			return nil, fmt.Errorf("quarter table %s has invalid month %d", q, span.StartMonth)
		}
	}
	return &QuarterCalculator{table: table}, nil
}

// Bounds returns the first and last calendar day of the quarter.
func (c *QuarterCalculator) Bounds(q Quarter, year int) (time.Time, time.Time, error) {
	span, ok := c.table[q]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, q)
	}
	if err := validateYear(year); err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(year+span.YearOffset, span.StartMonth, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)
	return start, end, nil
}

// QuarterDates lists every Monday-Friday date of the quarter in ascending order.
func (c *QuarterCalculator) QuarterDates(q Quarter, year int) ([]time.Time, error) {
	start, end, err := c.Bounds(q, year)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, 66)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if isBusinessDay(d) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// FiscalEpoch is the first day of the fiscal year, the origin for cadence dates.
func (c *QuarterCalculator) FiscalEpoch(year int) time.Time {
	span := c.table[Q1]
	return time.Date(year+span.YearOffset, span.StartMonth, 1, 0, 0, 0, 0, time.UTC)
}

// FiscalYearEnd is the last day of the fiscal year.
func (c *QuarterCalculator) FiscalYearEnd(year int) time.Time {
	return c.FiscalEpoch(year).AddDate(1, 0, -1)
}

func validateYear(year int) error {
	if year < minYear || year > maxYear {
		return fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	return nil
}
