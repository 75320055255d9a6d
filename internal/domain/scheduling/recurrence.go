package scheduling

import "time"

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// MaxInterval is the largest accepted recurrence interval. It keeps the
// date arithmetic of a series far from integer overflow.
const MaxInterval = 1000

// RecurrenceSpec describes a repeating booking. EndDate is inclusive.
type RecurrenceSpec struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`
	EndDate   Date      `json:"end_date"`
}

func (r RecurrenceSpec) Validate(start time.Time) error {
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return invalidf("frequency must be daily, weekly or monthly, got %q", r.Frequency)
	}
	if r.Interval < 0 || r.Interval > MaxInterval {
		return invalidf("interval must be between 1 and %d, got %d", MaxInterval, r.Interval)
	}
	if r.EndDate.IsZero() {
		return invalidf("end_date is required")
	}
	if r.EndDate.Before(DateOf(start)) {
		return invalidf("end_date %s is before start %s", r.EndDate, DateOf(start))
	}
	return nil
}

// Expander yields the occurrences of a recurrence one at a time. It is
// single-pass; create a new one with Expand to start over.
type Expander struct {
	anchor time.Time
	spec   RecurrenceSpec
	n      int
	done   bool
}

// Expand returns the occurrences of spec starting at start. Each occurrence
// is derived from the anchor rather than the previous occurrence, so a
// monthly series on the 31st keeps returning to the 31st when the month has
// one. The interval is clamped to [1, MaxInterval].
func Expand(start time.Time, spec RecurrenceSpec) *Expander {
	if spec.Interval < 1 {
		spec.Interval = 1
	}
	if spec.Interval > MaxInterval {
		spec.Interval = MaxInterval
	}
	return &Expander{anchor: start, spec: spec}
}

// Next returns the next occurrence, or false once the sequence has passed
// the end date.
func (e *Expander) Next() (time.Time, bool) {
	if e.done {
		return time.Time{}, false
	}
	t := e.at(e.n)
	if DateOf(t).After(e.spec.EndDate) {
		e.done = true
		return time.Time{}, false
	}
	e.n++
	return t, true
}

// All drains the expander, stopping early with false if more than max
// occurrences would be produced.
func (e *Expander) All(max int) ([]time.Time, bool) {
	var out []time.Time
	for {
		t, ok := e.Next()
		if !ok {
			return out, true
		}
		if len(out) == max {
			return out, false
		}
		out = append(out, t)
	}
}

func (e *Expander) at(n int) time.Time {
	step := n * e.spec.Interval
	switch e.spec.Frequency {
	case FrequencyWeekly:
		return e.anchor.AddDate(0, 0, 7*step)
	case FrequencyMonthly:
		return addMonthsClamped(e.anchor, step)
	default:
		return e.anchor.AddDate(0, 0, step)
	}
}

// addMonthsClamped adds months to t, clamping the day to the last day of
// the target month instead of overflowing into the next one.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := daysIn(first.Year(), first.Month())
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
