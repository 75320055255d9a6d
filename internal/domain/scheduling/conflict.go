package scheduling

import "time"

// CountOverlapping counts non-cancelled appointments whose [start, end)
// intersects the given half-open interval.
func CountOverlapping(start, end time.Time, existing []Appointment) int {
	n := 0
	for i := range existing {
		a := &existing[i]
		if a.IsCancelled() {
			continue
		}
		if a.StartTime.Before(end) && start.Before(a.EndTime()) {
			n++
		}
	}
	return n
}

// CountOnDate counts non-cancelled appointments starting on d. The date of
// each appointment is taken in the location of its start time.
func CountOnDate(d Date, existing []Appointment) int {
	n := 0
	for i := range existing {
		a := &existing[i]
		if !a.IsCancelled() && DateOf(a.StartTime) == d {
			n++
		}
	}
	return n
}
