package scheduling

import "time"

const defaultMinInterval = 30

// RuleSet is an immutable snapshot of a shop's rules in store order. When
// several active rules of one kind apply, the first wins.
type RuleSet struct {
	rules []Rule
}

func NewRuleSet(rules []Rule) RuleSet {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return RuleSet{rules: cp}
}

func (rs RuleSet) Rules() []Rule {
	cp := make([]Rule, len(rs.rules))
	copy(cp, rs.rules)
	return cp
}

func (rs RuleSet) Len() int { return len(rs.rules) }

func firstActive[T RuleBody](rs RuleSet, match func(T) bool) (T, bool) {
	for _, r := range rs.rules {
		if !r.Active {
			continue
		}
		if b, ok := r.Body.(T); ok && match(b) {
			return b, true
		}
	}
	var zero T
	return zero, false
}

// ValidationEnabled is false only when the first toggle rule is inactive.
// A shop without a toggle rule is validated.
func (rs RuleSet) ValidationEnabled() bool {
	for _, r := range rs.rules {
		if _, ok := r.Body.(AdvancedValidation); ok {
			return r.Active
		}
	}
	return true
}

func (rs RuleSet) WorkingHoursFor(wd time.Weekday) (WorkingHours, bool) {
	return firstActive(rs, func(w WorkingHours) bool { return w.Weekday == wd })
}

func (rs RuleSet) LunchBreakFor(wd time.Weekday) (LunchBreak, bool) {
	return firstActive(rs, func(l LunchBreak) bool { return l.Weekday == wd })
}

func (rs RuleSet) HolidayOn(d Date) bool {
	_, ok := firstActive(rs, func(h Holiday) bool { return h.Date == d })
	return ok
}

func (rs RuleSet) DailyLimit() (int, bool) {
	l, ok := firstActive(rs, func(DailyLimit) bool { return true })
	return l.Max, ok
}

// MinInterval is the slot step in minutes, 30 when no rule is active.
func (rs RuleSet) MinInterval() int {
	if m, ok := firstActive(rs, func(MinInterval) bool { return true }); ok && m.Minutes > 0 {
		return m.Minutes
	}
	return defaultMinInterval
}
