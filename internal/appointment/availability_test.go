package appointment

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func labels(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.Format("2006-01-02 15:04"))
	}
	return out
}

// 2025-06-01 is a Sunday.
var sundayNoon = utc("2025-06-01T12:00")

func TestSlotSearchFind(t *testing.T) {
	hours := DefaultBusinessHours(time.UTC)

	tests := []struct {
		name   string
		start  time.Time
		now    time.Time
		limit  int
		booked []time.Time
		want   []string
	}{
		{
			name:   "skips the booked slot at the start",
			start:  utc("2025-06-02T09:00"),
			now:    sundayNoon,
			limit:  3,
			booked: []time.Time{utc("2025-06-02T09:00")},
			want:   []string{"2025-06-02 09:30", "2025-06-02 10:00", "2025-06-02 10:30"},
		},
		{
			name:  "rounds an off-grid start up",
			start: utc("2025-06-02T09:10"),
			now:   sundayNoon,
			limit: 2,
			want:  []string{"2025-06-02 09:30", "2025-06-02 10:00"},
		},
		{
			name:  "starts at opening when asked before it",
			start: utc("2025-06-02T05:00"),
			now:   sundayNoon,
			limit: 1,
			want:  []string{"2025-06-02 07:00"},
		},
		{
			name:  "rolls over to the next business day",
			start: utc("2025-06-02T18:00"),
			now:   sundayNoon,
			limit: 3,
			want:  []string{"2025-06-02 18:00", "2025-06-02 18:30", "2025-06-03 07:00"},
		},
		{
			name:  "skips the weekend",
			start: utc("2025-06-07T10:00"),
			now:   sundayNoon,
			limit: 2,
			want:  []string{"2025-06-09 07:00", "2025-06-09 07:30"},
		},
		{
			name:  "clamps a past start to now",
			start: utc("2025-06-02T09:00"),
			now:   utc("2025-06-03T10:05"),
			limit: 3,
			want:  []string{"2025-06-03 10:30", "2025-06-03 11:00", "2025-06-03 11:30"},
		},
		{
			name:   "off-grid booking blocks both slots it overlaps",
			start:  utc("2025-06-02T09:00"),
			now:    sundayNoon,
			limit:  3,
			booked: []time.Time{utc("2025-06-02T09:15")},
			want:   []string{"2025-06-02 10:00", "2025-06-02 10:30", "2025-06-02 11:00"},
		},
		{
			name:  "zero limit uses the default",
			start: utc("2025-06-02T07:00"),
			now:   sundayNoon,
			want:  []string{"2025-06-02 07:00", "2025-06-02 07:30", "2025-06-02 08:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := SlotSearch{Hours: hours, Start: tt.start, Now: tt.now, Limit: tt.limit}
			assert.Equal(t, tt.want, labels(search.Find(tt.booked)))
		})
	}
}

func TestSlotSearchFullyBookedDay(t *testing.T) {
	hours := DefaultBusinessHours(time.UTC)

	var booked []time.Time
	for _, label := range hours.TimeLabels() {
		booked = append(booked, utc("2025-06-02T"+label))
	}

	search := SlotSearch{Hours: hours, Start: utc("2025-06-02T07:00"), Now: sundayNoon, Limit: 1}
	assert.Equal(t, []string{"2025-06-03 07:00"}, labels(search.Find(booked)))
}

func TestSlotSearchExhaustedHorizonIsEmpty(t *testing.T) {
	hours := DefaultBusinessHours(time.UTC)
	search := SlotSearch{Hours: hours, Start: sundayNoon, Now: sundayNoon, Limit: 3}

	from, to := search.Window()
	var booked []time.Time
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, label := range hours.TimeLabels() {
			booked = append(booked, utc(day.Format(time.DateOnly)+"T"+label))
		}
	}

	slots := search.Find(booked)
	require.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSlotSearchHorizonStartsOnSuggestedDay(t *testing.T) {
	search := SlotSearch{Hours: DefaultBusinessHours(time.UTC), Start: utc("2025-06-02T23:45"), Now: sundayNoon, Limit: 1}

	from, to := search.Window()
	assert.Equal(t, utc("2025-06-02T00:00"), from)
	assert.Equal(t, utc("2025-06-16T00:00"), to)
	assert.Equal(t, []string{"2025-06-03 07:00"}, labels(search.Find(nil)))
}

func TestSlotSearchLimitIsCapped(t *testing.T) {
	search := SlotSearch{Hours: DefaultBusinessHours(time.UTC), Start: utc("2025-06-02T07:00"), Now: sundayNoon, Limit: 500}
	assert.Len(t, search.Find(nil), MaxSlotLimit)
}

func TestSlotSearchInvariants(t *testing.T) {
	hours := DefaultBusinessHours(time.UTC)
	booked := []time.Time{
		utc("2025-06-02T07:00"),
		utc("2025-06-02T11:45"),
		utc("2025-06-04T18:30"),
		utc("2025-06-06T13:00"),
	}
	taken := SlotSearch{Hours: hours}.occupied(booked)
	validLabels := map[string]bool{}
	for _, l := range hours.TimeLabels() {
		validLabels[l] = true
	}

	now := utc("2025-06-02T08:20")
	for start := utc("2025-06-01T00:00"); start.Before(utc("2025-06-09T00:00")); start = start.Add(37 * time.Minute) {
		search := SlotSearch{Hours: hours, Start: start, Now: now, Limit: 10}
		slots := search.Find(booked)
		require.Len(t, slots, 10, "start %s", start)

		for i, s := range slots {
			assert.True(t, hours.IsBusinessDay(s.Start), "weekend slot %s", s.Start)
			assert.True(t, validLabels[s.Label], "slot %s outside business hours", s.Start)
			assert.False(t, s.Start.Before(now), "slot %s before now", s.Start)
			assert.False(t, s.Start.Before(search.EffectiveStart()), "slot %s before start", s.Start)
			_, busy := taken[s.Start.Unix()]
			assert.False(t, busy, "slot %s is booked", s.Start)
			if i > 0 {
				assert.True(t, s.Start.After(slots[i-1].Start))
			}
		}
	}
}

func TestSlotSearchKeepsWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	hours := DefaultBusinessHours(ny)

	// clocks move forward on Sunday 2025-03-09
	start := time.Date(2025, 3, 7, 18, 30, 0, 0, ny)
	search := SlotSearch{Hours: hours, Start: start, Now: start.Add(-time.Hour), Limit: 3}

	slots := search.Find(nil)
	require.Len(t, slots, 3)
	assert.Equal(t, "18:30", slots[0].Label)
	assert.Equal(t, "07:00", slots[1].Label)
	assert.Equal(t, time.Monday, slots[1].Start.In(ny).Weekday())
	assert.Equal(t, "07:30", slots[2].Label)
}

func TestBusinessHoursRounding(t *testing.T) {
	h := DefaultBusinessHours(time.UTC)

	assert.Equal(t, utc("2025-06-02T09:30"), h.RoundUp(utc("2025-06-02T09:01")))
	assert.Equal(t, utc("2025-06-02T09:00"), h.RoundUp(utc("2025-06-02T09:00")))
	assert.Equal(t, utc("2025-06-02T09:30"), h.RoundUp(utc("2025-06-02T09:00").Add(time.Millisecond)))
	assert.Equal(t, utc("2025-06-03T00:00"), h.RoundUp(utc("2025-06-02T23:45")))
	assert.Equal(t, utc("2025-06-02T09:00"), h.RoundDown(utc("2025-06-02T09:29")))
}

func TestTimeLabels(t *testing.T) {
	l := DefaultBusinessHours(time.UTC).TimeLabels()
	require.Len(t, l, 24)
	assert.Equal(t, "07:00", l[0])
	assert.Equal(t, "18:30", l[len(l)-1])
}
