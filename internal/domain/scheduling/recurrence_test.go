package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = DateOf(t).String()
	}
	return out
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		spec  RecurrenceSpec
		want  []string
	}{
		{
			"daily", at("2026-03-02", "09:00"),
			RecurrenceSpec{Frequency: FrequencyDaily, Interval: 1, EndDate: mustDate("2026-03-05")},
			[]string{"2026-03-02", "2026-03-03", "2026-03-04", "2026-03-05"},
		},
		{
			"every third day", at("2026-03-02", "09:00"),
			RecurrenceSpec{Frequency: FrequencyDaily, Interval: 3, EndDate: mustDate("2026-03-10")},
			[]string{"2026-03-02", "2026-03-05", "2026-03-08"},
		},
		{
			"weekly", at("2026-03-02", "09:00"),
			RecurrenceSpec{Frequency: FrequencyWeekly, Interval: 1, EndDate: mustDate("2026-03-23")},
			[]string{"2026-03-02", "2026-03-09", "2026-03-16", "2026-03-23"},
		},
		{
			"biweekly", at("2026-03-02", "09:00"),
			RecurrenceSpec{Frequency: FrequencyWeekly, Interval: 2, EndDate: mustDate("2026-03-29")},
			[]string{"2026-03-02", "2026-03-16"},
		},
		{
			"monthly clamps to month end", at("2026-01-31", "09:00"),
			RecurrenceSpec{Frequency: FrequencyMonthly, Interval: 1, EndDate: mustDate("2026-05-31")},
			[]string{"2026-01-31", "2026-02-28", "2026-03-31", "2026-04-30", "2026-05-31"},
		},
		{
			"monthly leap year", at("2028-01-30", "09:00"),
			RecurrenceSpec{Frequency: FrequencyMonthly, Interval: 1, EndDate: mustDate("2028-03-30")},
			[]string{"2028-01-30", "2028-02-29", "2028-03-30"},
		},
		{
			"quarterly", at("2026-01-15", "09:00"),
			RecurrenceSpec{Frequency: FrequencyMonthly, Interval: 3, EndDate: mustDate("2026-12-31")},
			[]string{"2026-01-15", "2026-04-15", "2026-07-15", "2026-10-15"},
		},
		{
			"zero interval means one", at("2026-03-02", "09:00"),
			RecurrenceSpec{Frequency: FrequencyDaily, EndDate: mustDate("2026-03-03")},
			[]string{"2026-03-02", "2026-03-03"},
		},
		{
			"end date same day", at("2026-03-02", "09:00"),
			RecurrenceSpec{Frequency: FrequencyWeekly, Interval: 1, EndDate: mustDate("2026-03-02")},
			[]string{"2026-03-02"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Expand(tt.start, tt.spec).All(100)
			require.True(t, ok)
			assert.Equal(t, tt.want, dates(got))
			for _, occ := range got {
				assert.Equal(t, tt.start.Hour(), occ.Hour())
				assert.Equal(t, tt.start.Minute(), occ.Minute())
			}
		})
	}
}

func TestExpand_KeepsWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// DST begins 2026-03-08 in New York.
	start := time.Date(2026, 3, 6, 9, 0, 0, 0, ny)
	got, ok := Expand(start, RecurrenceSpec{Frequency: FrequencyDaily, Interval: 1, EndDate: Date{2026, time.March, 10}}).All(10)
	require.True(t, ok)
	require.Len(t, got, 5)
	for _, occ := range got {
		assert.Equal(t, 9, occ.Hour(), "occurrence %s", occ)
	}
}

func TestExpander_Next(t *testing.T) {
	e := Expand(at("2026-03-02", "09:00"), RecurrenceSpec{Frequency: FrequencyWeekly, Interval: 1, EndDate: mustDate("2026-03-09")})

	first, ok := e.Next()
	require.True(t, ok)
	assert.Equal(t, "2026-03-02", DateOf(first).String())

	second, ok := e.Next()
	require.True(t, ok)
	assert.Equal(t, "2026-03-09", DateOf(second).String())

	_, ok = e.Next()
	assert.False(t, ok)
	_, ok = e.Next()
	assert.False(t, ok, "exhausted expander stays exhausted")
}

func TestExpander_AllCap(t *testing.T) {
	spec := RecurrenceSpec{Frequency: FrequencyDaily, Interval: 1, EndDate: mustDate("2026-03-31")}

	got, ok := Expand(at("2026-03-02", "09:00"), spec).All(5)
	assert.False(t, ok)
	assert.Len(t, got, 5)

	got, ok = Expand(at("2026-03-02", "09:00"), spec).All(30)
	assert.True(t, ok)
	assert.Len(t, got, 30)
}

func TestRecurrenceSpec_Validate(t *testing.T) {
	start := at("2026-03-02", "09:00")
	tests := []struct {
		name string
		spec RecurrenceSpec
		ok   bool
	}{
		{"valid", RecurrenceSpec{Frequency: FrequencyMonthly, Interval: 1, EndDate: mustDate("2026-06-01")}, true},
		{"zero interval allowed", RecurrenceSpec{Frequency: FrequencyDaily, EndDate: mustDate("2026-03-02")}, true},
		{"unknown frequency", RecurrenceSpec{Frequency: "hourly", Interval: 1, EndDate: mustDate("2026-06-01")}, false},
		{"negative interval", RecurrenceSpec{Frequency: FrequencyDaily, Interval: -2, EndDate: mustDate("2026-06-01")}, false},
		{"largest interval", RecurrenceSpec{Frequency: FrequencyMonthly, Interval: MaxInterval, EndDate: mustDate("2026-06-01")}, true},
		{"interval too large", RecurrenceSpec{Frequency: FrequencyDaily, Interval: MaxInterval + 1, EndDate: mustDate("2026-06-01")}, false},
		{"overflowing interval", RecurrenceSpec{Frequency: FrequencyWeekly, Interval: 1<<61 + 1, EndDate: mustDate("2026-06-01")}, false},
		{"missing end date", RecurrenceSpec{Frequency: FrequencyDaily, Interval: 1}, false},
		{"end before start", RecurrenceSpec{Frequency: FrequencyDaily, Interval: 1, EndDate: mustDate("2026-03-01")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate(start)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestExpand_ClampsHugeInterval(t *testing.T) {
	start := at("2026-03-02", "09:00")
	for _, f := range []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly} {
		got, ok := Expand(start, RecurrenceSpec{Frequency: f, Interval: 1<<61 + 1, EndDate: mustDate("2026-12-31")}).All(400)
		require.True(t, ok, f)
		assert.Equal(t, []time.Time{start}, got, "%s: only the anchor falls before the end date", f)
	}
}
