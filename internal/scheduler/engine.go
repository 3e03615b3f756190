package scheduler

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/quarter-scheduler/internal/models"
)

// DefaultMinSeparation is the minimum start-time distance between consecutive
// instances of the same course.
const DefaultMinSeparation = 3 * time.Hour

// SpecialRule narrows where matching courses may be placed. A course matches
// when its title contains Keyword, ignoring case.
type SpecialRule struct {
	Keyword           string
	Weekdays          []time.Weekday
	From              Clock
	Until             Clock
	ExemptSameWeekday bool
}

// Matches reports whether title falls under the rule.
func (r SpecialRule) Matches(title string) bool {
	keyword := strings.TrimSpace(r.Keyword)
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(keyword))
}

// Allows reports whether a slot starting at start on weekday is inside the
// rule's window. Both window ends are inclusive.
func (r SpecialRule) Allows(weekday time.Weekday, start Clock) bool {
	if start < r.From || start > r.Until {
		return false
	}
	for _, d := range r.Weekdays {
		if d == weekday {
			return true
		}
	}
	return false
}

// DefaultSpecialRules restricts leadership courses to Tuesday and Thursday
// mornings through early afternoon.
func DefaultSpecialRules() []SpecialRule {
	return []SpecialRule{SpecialRulesFor("leadership")}
}

// SpecialRulesFor builds the standard Tuesday/Thursday 09:00-13:00 rule for keyword.
func SpecialRulesFor(keyword string) SpecialRule {
	return SpecialRule{
		Keyword:           keyword,
		Weekdays:          []time.Weekday{time.Tuesday, time.Thursday},
		From:              MustClock("09:00"),
		Until:             MustClock("13:00"),
		ExemptSameWeekday: true,
	}
}

// Options tunes an Engine.
type Options struct {
	SpecialRules  []SpecialRule
	MinSeparation time.Duration
	Logger        *zap.Logger
}

// Engine allocates course instances onto a quarter's availability grid.
// An Engine holds only immutable configuration; every run owns its own grid.
type Engine struct {
	rules         *CalendarRules
	quarters      *QuarterCalculator
	special       []SpecialRule
	minSeparation Clock
	logger        *zap.Logger
}

// NewEngine wires calendar rules and the quarter calculator.
func NewEngine(rules *CalendarRules, quarters *QuarterCalculator, opts Options) *Engine {
	if rules == nil {
		rules = DefaultCalendarRules()
	}
	if opts.MinSeparation <= 0 {
		opts.MinSeparation = DefaultMinSeparation
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		rules:         rules,
		quarters:      quarters,
		special:       opts.SpecialRules,
		minSeparation: Clock(opts.MinSeparation / time.Minute),
		logger:        opts.Logger,
	}
}

// InstanceStart records session 1 of a booked instance.
type InstanceStart struct {
	Date    time.Time
	Weekday time.Weekday
	Start   Clock
}

// Result is the outcome of one allocation run.
type Result struct {
	Sessions   []models.ScheduledSession
	Statistics models.Statistics
	Grid       *Grid
	History    map[string][]InstanceStart

	Attempts   int
	Placements int
	Rollbacks  int
}

// Plan validates the quarter and year, then runs the allocation over the
// quarter's business days. Only invalid input produces an error.
func (e *Engine) Plan(q Quarter, year int, courses []models.Course) (*Result, error) {
	dates, err := e.quarters.QuarterDates(q, year)
	if err != nil {
		return nil, err
	}
	return e.Run(courses, dates, e.quarters.FiscalEpoch(year), e.quarters.FiscalYearEnd(year)), nil
}

// Run allocates courses, in order, over dates. dates must be ascending.
// epoch and fiscalEnd bound cadence start-date generation.
func (e *Engine) Run(courses []models.Course, dates []time.Time, epoch, fiscalEnd time.Time) *Result {
	run := &allocation{
		engine:  e,
		grid:    NewGrid(e.rules, dates),
		dates:   dates,
		history: make(map[string][]InstanceStart),
	}
	for _, course := range courses {
		before := len(run.sessions)
		run.allocate(e.profile(course), epoch, fiscalEnd)
		e.logger.Debug("course allocated",
			zap.String("course", course.Title),
			zap.Int("cadence", course.Cadence),
			zap.Int("sessions", len(run.sessions)-before),
			zap.Int("instances", len(run.history[course.Title])),
		)
	}

	sort.SliceStable(run.sessions, func(i, j int) bool {
		if run.sessions[i].Date == run.sessions[j].Date {
			return run.sessions[i].StartTime < run.sessions[j].StartTime
		}
		return run.sessions[i].Date < run.sessions[j].Date
	})

	return &Result{
		Sessions:   run.sessions,
		Statistics: Summarize(run.grid, run.sessions),
		Grid:       run.grid,
		History:    run.history,
		Attempts:   run.attempts,
		Placements: run.placements,
		Rollbacks:  run.rollbacks,
	}
}

// courseProfile is a course with its special-rule capability resolved.
type courseProfile struct {
	course  models.Course
	special *SpecialRule
}

func (p courseProfile) exemptSameWeekday() bool {
	return p.special != nil && p.special.ExemptSameWeekday
}

func (e *Engine) profile(course models.Course) courseProfile {
	for i := range e.special {
		if e.special[i].Matches(course.Title) {
			rule := e.special[i]
			return courseProfile{course: course, special: &rule}
		}
	}
	return courseProfile{course: course}
}

type allocation struct {
	engine   *Engine
	grid     *Grid
	dates    []time.Time
	history  map[string][]InstanceStart
	sessions []models.ScheduledSession

	attempts   int
	placements int
	rollbacks  int
}

func (a *allocation) allocate(p courseProfile, epoch, fiscalEnd time.Time) {
	for _, cadenceDate := range a.cadenceDates(p.course.Cadence, epoch, fiscalEnd) {
		for i := a.indexOnOrAfter(cadenceDate); i < len(a.dates); i++ {
			candidate := a.dates[i]
			a.attempts++
			chosen, ok := a.findSlot(p, candidate)
			if !ok {
				continue
			}
			booked, ok := a.bookInstance(p, i, chosen)
			if !ok {
				a.rollbacks++
				continue
			}
			a.sessions = append(a.sessions, booked...)
			a.history[p.course.Title] = append(a.history[p.course.Title], InstanceStart{
				Date:    candidate,
				Weekday: candidate.Weekday(),
				Start:   chosen.Start,
			})
			a.placements++
		}
	}
}

// cadenceDates steps cadence weeks from the first business day on/after the
// epoch through the fiscal year end, keeping dates not after the quarter's end.
func (a *allocation) cadenceDates(cadence int, epoch, fiscalEnd time.Time) []time.Time {
	if len(a.dates) == 0 || cadence < 1 {
		return nil
	}
	last := a.dates[len(a.dates)-1]
	start := epoch
	for !isBusinessDay(start) {
		start = start.AddDate(0, 0, 1)
	}
	var out []time.Time
	for d := start; !d.After(fiscalEnd) && !d.After(last); d = d.AddDate(0, 0, 7*cadence) {
		out = append(out, d)
	}
	return out
}

func (a *allocation) findSlot(p courseProfile, date time.Time) (TimeSlot, bool) {
	weekday := date.Weekday()
	previous, hasHistory := a.lastInstance(p.course.Title)
	for _, s := range a.grid.Slots(date) {
		if !s.Free {
			continue
		}
		if p.special != nil && !p.special.Allows(weekday, s.Start) {
			continue
		}
		if hasHistory {
			if weekday == previous.Weekday && !p.exemptSameWeekday() {
				continue
			}
			if absClock(s.Start-previous.Start) < a.engine.minSeparation {
				continue
			}
		}
		return s.TimeSlot, true
	}
	return TimeSlot{}, false
}

// bookInstance books SessionCount weekly meetings at chosen's start, beginning
// at dates[from]. Any failure releases everything booked by this attempt.
func (a *allocation) bookInstance(p courseProfile, from int, chosen TimeSlot) ([]models.ScheduledSession, bool) {
	title := p.course.Title
	weekday := a.dates[from].Weekday()
	booked := make([]models.ScheduledSession, 0, p.course.SessionCount)
	var bookedDates []time.Time

	cursor := from
	for n := 1; n <= p.course.SessionCount; n++ {
		idx := a.nextWeekday(cursor, weekday)
		if idx < 0 || !a.grid.Book(a.dates[idx], chosen.Start, title, n) {
			for _, d := range bookedDates {
				a.grid.Release(d, chosen.Start)
			}
			return nil, false
		}
		date := a.dates[idx]
		bookedDates = append(bookedDates, date)
		booked = append(booked, models.ScheduledSession{
			Date:          dateKey(date),
			CourseTitle:   title,
			SessionNumber: n,
			StartTime:     chosen.Start.String(),
			EndTime:       chosen.End.String(),
		})
		cursor = idx + 1
	}
	return booked, true
}

func (a *allocation) nextWeekday(from int, weekday time.Weekday) int {
	for i := from; i < len(a.dates); i++ {
		if a.dates[i].Weekday() == weekday {
			return i
		}
	}
	return -1
}

func (a *allocation) indexOnOrAfter(date time.Time) int {
	return sort.Search(len(a.dates), func(i int) bool {
		return !a.dates[i].Before(date)
	})
}

func (a *allocation) lastInstance(title string) (InstanceStart, bool) {
	starts := a.history[title]
	if len(starts) == 0 {
		return InstanceStart{}, false
	}
	return starts[len(starts)-1], true
}

func absClock(c Clock) Clock {
	if c < 0 {
		return -c
	}
	return c
}
