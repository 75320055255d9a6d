package scheduling

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RuleKind string

const (
	KindWorkingHours       RuleKind = "working_hours"
	KindLunchBreak         RuleKind = "lunch_break"
	KindHoliday            RuleKind = "holiday"
	KindDailyLimit         RuleKind = "daily_limit"
	KindMinInterval        RuleKind = "min_interval"
	KindAdvancedValidation RuleKind = "advanced_validation_toggle"
)

// RuleBody is the kind-specific part of a Rule. Exactly one concrete type
// exists per RuleKind.
type RuleBody interface {
	Kind() RuleKind
	validate() error
}

// WorkingHours opens a weekday between Start and End for up to Capacity
// concurrent appointments.
type WorkingHours struct {
	Weekday  time.Weekday
	Start    TimeOfDay
	End      TimeOfDay
	Capacity int
}

func (WorkingHours) Kind() RuleKind { return KindWorkingHours }

func (w WorkingHours) capacity() int {
	if w.Capacity < 1 {
		return 1
	}
	return w.Capacity
}

func (w WorkingHours) validate() error {
	if err := validateWeekday(w.Weekday); err != nil {
		return err
	}
	if w.Capacity < 1 {
		return invalidf("simultaneous_capacity must be at least 1")
	}
	return validateSpan(w.Start, w.End)
}

// LunchBreak blocks an interval of a weekday.
type LunchBreak struct {
	Weekday time.Weekday
	Start   TimeOfDay
	End     TimeOfDay
}

func (LunchBreak) Kind() RuleKind { return KindLunchBreak }

func (l LunchBreak) validate() error {
	if err := validateWeekday(l.Weekday); err != nil {
		return err
	}
	return validateSpan(l.Start, l.End)
}

// Holiday closes a whole calendar date.
type Holiday struct {
	Date Date
}

func (Holiday) Kind() RuleKind { return KindHoliday }

func (h Holiday) validate() error {
	if h.Date.IsZero() {
		return invalidf("specific_date is required for holiday rules")
	}
	return nil
}

// DailyLimit caps the number of appointments on one calendar date.
type DailyLimit struct {
	Max int
}

func (DailyLimit) Kind() RuleKind { return KindDailyLimit }

func (d DailyLimit) validate() error {
	if d.Max < 1 {
		return invalidf("numeric_value must be at least 1 for daily_limit")
	}
	return nil
}

// MinInterval is the step, in minutes, between bookable slot starts.
type MinInterval struct {
	Minutes int
}

func (MinInterval) Kind() RuleKind { return KindMinInterval }

func (m MinInterval) validate() error {
	if m.Minutes < 1 {
		return invalidf("numeric_value must be at least 1 for min_interval")
	}
	return nil
}

// AdvancedValidation carries no data; the owning rule's Active flag is the
// switch.
type AdvancedValidation struct{}

func (AdvancedValidation) Kind() RuleKind { return KindAdvancedValidation }

func (AdvancedValidation) validate() error { return nil }

func validateWeekday(wd time.Weekday) error {
	if wd < time.Sunday || wd > time.Saturday {
		return invalidf("weekday must be between 0 and 6, got %d", wd)
	}
	return nil
}

func validateSpan(start, end TimeOfDay) error {
	if !start.Valid() || !end.Valid() {
		return invalidf("start_time and end_time must be within the day")
	}
	if end <= start {
		return invalidf("end_time %s must be after start_time %s", end, start)
	}
	return nil
}

// Rule is one configuration rule row.
type Rule struct {
	ID          uuid.UUID
	Active      bool
	Description string
	Body        RuleBody
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *Rule) Kind() RuleKind {
	if r.Body == nil {
		return ""
	}
	return r.Body.Kind()
}

func (r *Rule) Validate() error {
	if r.Body == nil {
		return invalidf("rule kind is required")
	}
	return r.Body.validate()
}

// ruleFields is the flat shape of a rule shared by the JSON API and the
// config_rule table. Only the fields of the rule's kind are set.
type ruleFields struct {
	ID                   uuid.UUID  `json:"id"`
	Kind                 RuleKind   `json:"kind"`
	Weekday              *int       `json:"weekday,omitempty"`
	SpecificDate         *Date      `json:"specific_date,omitempty"`
	StartTime            *TimeOfDay `json:"start_time,omitempty"`
	EndTime              *TimeOfDay `json:"end_time,omitempty"`
	SimultaneousCapacity *int       `json:"simultaneous_capacity,omitempty"`
	NumericValue         *int       `json:"numeric_value,omitempty"`
	Active               *bool      `json:"active,omitempty"`
	Description          string     `json:"description"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (r Rule) fields() ruleFields {
	active := r.Active
	f := ruleFields{
		ID:          r.ID,
		Kind:        r.Kind(),
		Active:      &active,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	switch b := r.Body.(type) {
	case WorkingHours:
		wd, start, end, capacity := int(b.Weekday), b.Start, b.End, b.Capacity
		f.Weekday, f.StartTime, f.EndTime, f.SimultaneousCapacity = &wd, &start, &end, &capacity
	case LunchBreak:
		wd, start, end := int(b.Weekday), b.Start, b.End
		f.Weekday, f.StartTime, f.EndTime = &wd, &start, &end
	case Holiday:
		d := b.Date
		f.SpecificDate = &d
	case DailyLimit:
		v := b.Max
		f.NumericValue = &v
	case MinInterval:
		v := b.Minutes
		f.NumericValue = &v
	}
	return f
}

// requireSpan checks the fields shared by working_hours and lunch_break.
func (f ruleFields) requireSpan() error {
	switch {
	case f.Weekday == nil:
		return invalidf("weekday is required for %s rules", f.Kind)
	case f.StartTime == nil:
		return invalidf("start_time is required for %s rules", f.Kind)
	case f.EndTime == nil:
		return invalidf("end_time is required for %s rules", f.Kind)
	}
	return nil
}

// toRule builds the variant for f.Kind. Missing kind-specific fields are an
// input error; fields belonging to other kinds are ignored.
func (f ruleFields) toRule() (Rule, error) {
	r := Rule{
		ID:          f.ID,
		Active:      f.Active == nil || *f.Active,
		Description: f.Description,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}

	switch f.Kind {
	case KindWorkingHours:
		if err := f.requireSpan(); err != nil {
			return Rule{}, err
		}
		capacity := 1
		if f.SimultaneousCapacity != nil {
			capacity = *f.SimultaneousCapacity
		}
		r.Body = WorkingHours{Weekday: time.Weekday(*f.Weekday), Start: *f.StartTime, End: *f.EndTime, Capacity: capacity}
	case KindLunchBreak:
		if err := f.requireSpan(); err != nil {
			return Rule{}, err
		}
		r.Body = LunchBreak{Weekday: time.Weekday(*f.Weekday), Start: *f.StartTime, End: *f.EndTime}
	case KindHoliday:
		if f.SpecificDate == nil {
			return Rule{}, invalidf("specific_date is required for holiday rules")
		}
		r.Body = Holiday{Date: *f.SpecificDate}
	case KindDailyLimit:
		if f.NumericValue == nil {
			return Rule{}, invalidf("numeric_value is required for daily_limit rules")
		}
		r.Body = DailyLimit{Max: *f.NumericValue}
	case KindMinInterval:
		if f.NumericValue == nil {
			return Rule{}, invalidf("numeric_value is required for min_interval rules")
		}
		r.Body = MinInterval{Minutes: *f.NumericValue}
	case KindAdvancedValidation:
		r.Body = AdvancedValidation{}
	default:
		return Rule{}, invalidf("unknown rule kind %q", f.Kind)
	}

	return r, nil
}

func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields())
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var f ruleFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	parsed, err := f.toRule()
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
