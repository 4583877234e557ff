package appointment

import (
	"time"
)

const (
	// AvailabilityHorizonDays bounds how far ahead a slot search looks.
	AvailabilityHorizonDays = 14
	DefaultSlotLimit        = 3
	MaxSlotLimit            = 50
)

// BusinessHours is the clinic opening policy. Open and Close are wall-clock
// offsets from local midnight.
type BusinessHours struct {
	Location *time.Location
	Open     time.Duration
	Close    time.Duration
	Slot     time.Duration
}

// DefaultBusinessHours is Monday to Friday, 07:00 to 19:00, in 30 minute slots.
func DefaultBusinessHours(loc *time.Location) BusinessHours {
	if loc == nil {
		loc = time.UTC
	}
	return BusinessHours{
		Location: loc,
		Open:     7 * time.Hour,
		Close:    19 * time.Hour,
		Slot:     30 * time.Minute,
	}
}

func (h BusinessHours) IsBusinessDay(t time.Time) bool {
	switch t.In(h.Location).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// DayStart returns local midnight of the day containing t.
func (h BusinessHours) DayStart(t time.Time) time.Time {
	y, m, d := t.In(h.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, h.Location)
}

// at returns the wall-clock offset on day, which survives DST shifts.
func (h BusinessHours) at(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.In(h.Location).Date()
	return time.Date(y, m, d, 0, 0, int(offset/time.Second), 0, h.Location)
}

func (h BusinessHours) secondsIntoDay(t time.Time) int {
	local := t.In(h.Location)
	return local.Hour()*3600 + local.Minute()*60 + local.Second()
}

// RoundUp moves t forward to the next slot boundary; aligned times are kept.
func (h BusinessHours) RoundUp(t time.Time) time.Time {
	slot := int(h.Slot / time.Second)
	secs := h.secondsIntoDay(t)
	if t.Nanosecond() > 0 {
		secs++
	}
	k := (secs + slot - 1) / slot
	return h.at(h.DayStart(t), time.Duration(k*slot)*time.Second)
}

// RoundDown moves t back to the slot boundary at or before it.
func (h BusinessHours) RoundDown(t time.Time) time.Time {
	slot := int(h.Slot / time.Second)
	k := h.secondsIntoDay(t) / slot
	return h.at(h.DayStart(t), time.Duration(k*slot)*time.Second)
}

// TimeLabels lists every bookable slot start of a business day as HH:MM.
func (h BusinessHours) TimeLabels() []string {
	var labels []string
	for off := h.Open; off+h.Slot <= h.Close; off += h.Slot {
		labels = append(labels, formatOffset(off))
	}
	return labels
}

func formatOffset(off time.Duration) string {
	return time.Date(2000, 1, 1, 0, 0, int(off/time.Second), 0, time.UTC).Format("15:04")
}

type Slot struct {
	Start time.Time
	Label string
}

// SlotSearch describes one availability lookup. Now is injected so the search
// is deterministic.
type SlotSearch struct {
	Hours BusinessHours
	Start time.Time
	Now   time.Time
	Limit int
}

// anchor is Start clamped to Now, before any rounding.
func (s SlotSearch) anchor() time.Time {
	if s.Start.IsZero() || s.Start.Before(s.Now) {
		return s.Now
	}
	return s.Start
}

// EffectiveStart clamps Start to Now and rounds it up to a slot boundary.
func (s SlotSearch) EffectiveStart() time.Time {
	return s.Hours.RoundUp(s.anchor())
}

// Window is the [from, to) range whose bookings the search must know about.
// The horizon counts from the suggested day even when rounding rolls the
// first slot into the next one.
func (s SlotSearch) Window() (time.Time, time.Time) {
	from := s.Hours.DayStart(s.anchor())
	return from, from.AddDate(0, 0, AvailabilityHorizonDays)
}

func (s SlotSearch) limit() int {
	switch {
	case s.Limit <= 0:
		return DefaultSlotLimit
	case s.Limit > MaxSlotLimit:
		return MaxSlotLimit
	}
	return s.Limit
}

// occupied marks every slot a booking overlaps; a booking off the slot grid
// blocks the two slots it straddles.
func (s SlotSearch) occupied(booked []time.Time) map[int64]struct{} {
	set := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		floor := s.Hours.RoundDown(b)
		set[floor.Unix()] = struct{}{}
		if !floor.Equal(b) {
			set[floor.Add(s.Hours.Slot).Unix()] = struct{}{}
		}
	}
	return set
}

// Find walks business days from the effective start and returns up to Limit
// free slots inside the horizon. An empty result is not an error.
func (s SlotSearch) Find(booked []time.Time) []Slot {
	h := s.Hours
	limit := s.limit()
	start := s.EffectiveStart()
	first, end := s.Window()
	taken := s.occupied(booked)

	slots := make([]Slot, 0, limit)
	for day := first; day.Before(end) && len(slots) < limit; day = day.AddDate(0, 0, 1) {
		if !h.IsBusinessDay(day) {
			continue
		}

		open := h.at(day, h.Open)
		closing := h.at(day, h.Close)

		cursor := open
		if day.Equal(first) && start.After(open) {
			cursor = start
		}

		for t := cursor; !t.Add(h.Slot).After(closing); t = t.Add(h.Slot) {
			if t.Before(start) || t.Before(s.Now) || !t.Before(end) {
				continue
			}
			if _, busy := taken[t.Unix()]; busy {
				continue
			}

			slots = append(slots, Slot{Start: t, Label: t.In(h.Location).Format("15:04")})
			if len(slots) >= limit {
				break
			}
		}
	}

	return slots
}
