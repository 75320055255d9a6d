package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldBatch_OccurrencesCountAgainstLaterOnes(t *testing.T) {
	rules := NewRuleSet(append(weekRules(1), rule(DailyLimit{Max: 1})))
	tmpl := *newAppointment(time.Time{}, 60)
	tmpl.Recompute()

	// Two starts on the same day: the first fills the daily limit.
	starts := []time.Time{at("2026-03-02", "14:00"), at("2026-03-02", "09:00"), at("2026-03-03", "09:00")}
	res := foldBatch(starts, tmpl, rules, map[Date][]Appointment{})

	require.Len(t, res.Accepted, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, at("2026-03-02", "09:00"), res.Accepted[0].StartTime, "starts are folded in chronological order")
	assert.Equal(t, at("2026-03-03", "09:00"), res.Accepted[1].StartTime)
	assert.Equal(t, ReasonOverDailyLimit, res.Skipped[0].Reason)
	assert.Equal(t, at("2026-03-02", "14:00"), res.Skipped[0].Start)
}

func TestFoldBatch_CapacityAcrossOccurrences(t *testing.T) {
	rules := NewRuleSet(weekRules(2))
	tmpl := *newAppointment(time.Time{}, 60)
	tmpl.Recompute()
	buckets := bucketByDate([]Appointment{booked(at("2026-03-02", "09:00"), 60)})

	starts := []time.Time{at("2026-03-02", "09:00"), at("2026-03-02", "09:30")}
	res := foldBatch(starts, tmpl, rules, buckets)

	require.Len(t, res.Accepted, 1)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ReasonOverCapacity, res.Skipped[0].Reason)
	assert.Len(t, buckets[mustDate("2026-03-02")], 2)
}

func TestFoldBatch_CopiesServices(t *testing.T) {
	tmpl := *newAppointment(time.Time{}, 30)
	tmpl.Recompute()
	res := foldBatch([]time.Time{at("2026-03-02", "09:00"), at("2026-03-03", "09:00")}, tmpl, NewRuleSet(weekRules(1)), map[Date][]Appointment{})

	require.Len(t, res.Accepted, 2)
	res.Accepted[0].Services[0].Price = 1
	assert.NotEqual(t, 1.0, res.Accepted[1].Services[0].Price)
	assert.NotEqual(t, 1.0, tmpl.Services[0].Price)
}

func TestBatchResult_Summary(t *testing.T) {
	res := &BatchResult{Accepted: make([]Appointment, 3)}
	assert.Equal(t, "all 3 dates accepted", res.summarize())

	res.Skipped = []SkippedDate{
		{Reason: ReasonOverCapacity},
		{Reason: ReasonOnHoliday},
		{Reason: ReasonOverCapacity},
	}
	assert.Equal(t, 6, res.Total())
	assert.Equal(t, "3 of 6 dates skipped: 1 on holiday, 2 over capacity", res.summarize())
}
