package appointment

import (
	"time"
)

const workWeekDays = 5

// WeekSpan is Monday 00:00 up to (not including) Saturday 00:00.
type WeekSpan struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the working week containing ref. Sunday belongs to the week
// that ended the day before.
func (h BusinessHours) WeekOf(ref time.Time) WeekSpan {
	local := ref.In(h.Location)
	offset := int(time.Monday - local.Weekday())
	if local.Weekday() == time.Sunday {
		offset = -6
	}
	y, m, d := local.Date()
	monday := time.Date(y, m, d+offset, 0, 0, 0, 0, h.Location)
	return WeekSpan{Start: monday, End: monday.AddDate(0, 0, workWeekDays)}
}

type AgendaDay struct {
	Date       string
	Weekday    string
	DayOfMonth int
}

type WeeklyAgenda struct {
	Doctor     Doctor
	Days       []AgendaDay
	TimeLabels []string
	// Grid is keyed by date (YYYY-MM-DD) then slot label (HH:MM).
	Grid      map[string]map[string][]AppointmentDetail
	WeekStart string
	WeekEnd   string
}

// BuildWeeklyAgenda projects a doctor's bookings onto the day by half-hour
// grid. Cancelled appointments are dropped.
func BuildWeeklyAgenda(h BusinessHours, doctor Doctor, span WeekSpan, bookings []AppointmentDetail) WeeklyAgenda {
	agenda := WeeklyAgenda{
		Doctor:     doctor,
		TimeLabels: h.TimeLabels(),
		Grid:       make(map[string]map[string][]AppointmentDetail),
		WeekStart:  span.Start.Format(time.DateOnly),
		WeekEnd:    span.End.AddDate(0, 0, -1).Format(time.DateOnly),
	}

	for i := 0; i < workWeekDays; i++ {
		day := span.Start.AddDate(0, 0, i)
		agenda.Days = append(agenda.Days, AgendaDay{
			Date:       day.Format(time.DateOnly),
			Weekday:    day.Weekday().String(),
			DayOfMonth: day.Day(),
		})
	}

	for _, b := range bookings {
		if b.Status == StatusCancelled || b.ScheduledAt.Before(span.Start) || !b.ScheduledAt.Before(span.End) {
			continue
		}

		slot := h.RoundDown(b.ScheduledAt).In(h.Location)
		date := slot.Format(time.DateOnly)
		label := slot.Format("15:04")

		if agenda.Grid[date] == nil {
			agenda.Grid[date] = make(map[string][]AppointmentDetail)
		}
		agenda.Grid[date][label] = append(agenda.Grid[date][label], b)
	}

	return agenda
}
