package scheduling

// Evaluate decides whether a candidate slot is bookable given the rules and
// the appointments already on the candidate's day. Dates and weekdays are
// taken in the location of c.Start; existing must be expressed in the same
// location. Checks run in a fixed order and the first failure is reported.
func Evaluate(c Candidate, rules RuleSet, existing []Appointment) Outcome {
	if !rules.ValidationEnabled() {
		return accept()
	}

	loc := c.Start.Location()
	day := DateOf(c.Start)
	start, end := c.Start, c.End()

	if rules.HolidayOn(day) {
		return reject(ReasonOnHoliday)
	}

	// No working-hours rule for the weekday means the shop is closed.
	hours, ok := rules.WorkingHoursFor(day.Weekday())
	if !ok {
		return reject(ReasonOutsideWorkingHours)
	}
	opens, closes := hours.Start.On(day, loc), hours.End.On(day, loc)
	if start.Before(opens) || end.After(closes) {
		return reject(ReasonOutsideWorkingHours)
	}

	if brk, ok := rules.LunchBreakFor(day.Weekday()); ok {
		bs, be := brk.Start.On(day, loc), brk.End.On(day, loc)
		if start.Before(be) && bs.Before(end) {
			return reject(ReasonDuringBreak)
		}
	}

	if CountOverlapping(start, end, existing) >= hours.capacity() {
		return reject(ReasonOverCapacity)
	}

	if limit, ok := rules.DailyLimit(); ok && CountOnDate(day, existing) >= limit {
		return reject(ReasonOverDailyLimit)
	}

	return accept()
}
