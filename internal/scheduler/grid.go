package scheduler

import "time"

const dateLayout = "2006-01-02"

func dateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// SlotState is one slot of a day together with its occupant, if any.
type SlotState struct {
	TimeSlot
	Free          bool
	Course        string
	SessionNumber int
}

// DayAvailability is the booking table of a single date.
type DayAvailability struct {
	Date  time.Time
	Slots []SlotState
}

// Grid is the per-date, per-slot booking table of one quarter.
type Grid struct {
	days  map[string]*DayAvailability
	order []string
}

// NewGrid seeds one DayAvailability per date from rules with every slot free.
// Duplicate dates are ignored.
func NewGrid(rules *CalendarRules, dates []time.Time) *Grid {
	g := &Grid{
		days:  make(map[string]*DayAvailability, len(dates)),
		order: make([]string, 0, len(dates)),
	}
	for _, date := range dates {
		key := dateKey(date)
		if _, exists := g.days[key]; exists {
			continue
		}
		template := rules.SlotsForDate(date)
		slots := make([]SlotState, len(template))
		for i, s := range template {
			slots[i] = SlotState{TimeSlot: s, Free: true}
		}
		g.days[key] = &DayAvailability{Date: date, Slots: slots}
		g.order = append(g.order, key)
	}
	return g
}

// Book occupies the slot starting at start on date. It fails when the date is
// not part of the grid, the slot does not exist that day, or it is taken.
func (g *Grid) Book(date time.Time, start Clock, course string, sessionNumber int) bool {
	s := g.find(date, start)
	if s == nil || !s.Free {
		return false
	}
	s.Free = false
	s.Course = course
	s.SessionNumber = sessionNumber
	return true
}

// Release frees the slot and clears its occupant. Releasing a free or unknown
// slot is a no-op.
func (g *Grid) Release(date time.Time, start Clock) {
	s := g.find(date, start)
	if s == nil {
		return
	}
	s.Free = true
	s.Course = ""
	s.SessionNumber = 0
}

// IsFullyBooked is true when date has at least one slot and none is free.
func (g *Grid) IsFullyBooked(date time.Time) bool {
	day, ok := g.days[dateKey(date)]
	if !ok || len(day.Slots) == 0 {
		return false
	}
	for _, s := range day.Slots {
		if s.Free {
			return false
		}
	}
	return true
}

// Slots returns a copy of the slot states for date.
func (g *Grid) Slots(date time.Time) []SlotState {
	day, ok := g.days[dateKey(date)]
	if !ok {
		return nil
	}
	out := make([]SlotState, len(day.Slots))
	copy(out, day.Slots)
	return out
}

// Days returns copies of every day in seeding order.
func (g *Grid) Days() []DayAvailability {
	out := make([]DayAvailability, 0, len(g.order))
	for _, key := range g.order {
		day := g.days[key]
		slots := make([]SlotState, len(day.Slots))
		copy(slots, day.Slots)
		out = append(out, DayAvailability{Date: day.Date, Slots: slots})
	}
	return out
}

// TotalSlots counts every slot across the grid.
func (g *Grid) TotalSlots() int {
	total := 0
	for _, day := range g.days {
		total += len(day.Slots)
	}
	return total
}

// FreeCount counts slots still marked free.
func (g *Grid) FreeCount() int {
	free := 0
	for _, day := range g.days {
		for _, s := range day.Slots {
			if s.Free {
				free++
			}
		}
	}
	return free
}

func (g *Grid) find(date time.Time, start Clock) *SlotState {
	day, ok := g.days[dateKey(date)]
	if !ok {
		return nil
	}
	for i := range day.Slots {
		if day.Slots[i].Start == start {
			return &day.Slots[i]
		}
	}
	return nil
}
