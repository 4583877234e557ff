package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// SchedulingRequest is the wire envelope of POST /v1/scheduling. Which of the
// optional sections matter depends on Action.
type SchedulingRequest struct {
	Action             string                `json:"action"`
	TenantID           string                `json:"tenant_id"`
	Patient            *PatientPayload       `json:"patient,omitempty"`
	Appointment        *AppointmentPayload   `json:"appointment,omitempty"`
	Filters            *FiltersPayload       `json:"filters,omitempty"`
	WeeklyAgendaParams *WeeklyAgendaPayload  `json:"weekly_agenda_params,omitempty"`
	PatientSearch      *PatientSearchPayload `json:"patient_search,omitempty"`
}

type PatientPayload struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date"`
}

type AppointmentPayload struct {
	ID          string  `json:"id,omitempty"`
	DoctorID    string  `json:"doctor_id,omitempty"`
	DoctorName  string  `json:"doctor_name,omitempty"`
	Procedure   string  `json:"procedure"`
	ScheduledAt string  `json:"scheduled_at"`
	Notes       *string `json:"notes,omitempty"`
}

type FiltersPayload struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	DoctorID  string `json:"doctor_id,omitempty"`
	PatientID string `json:"patient_id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type WeeklyAgendaPayload struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date,omitempty"`
}

type PatientSearchPayload struct {
	Search string `json:"search,omitempty"`
}

// Response is the envelope of every answer, success or not.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type PatientSummaryResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
}

type DoctorSummaryResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type AppointmentResponse struct {
	ID          uuid.UUID              `json:"id"`
	PatientID   uuid.UUID              `json:"patient_id"`
	DoctorID    *uuid.UUID             `json:"doctor_id"`
	Procedure   string                 `json:"procedure"`
	ScheduledAt time.Time              `json:"scheduled_at"`
	Notes       *string                `json:"notes"`
	Status      string                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Patient     PatientSummaryResponse `json:"patient"`
	Doctor      *DoctorSummaryResponse `json:"doctor"`
}

type PatientResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	BirthDate string    `json:"birth_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DoctorResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type SlotResponse struct {
	Date time.Time `json:"date"`
	Time string    `json:"time"`
}

type AgendaDayResponse struct {
	Date       string `json:"date"`
	Weekday    string `json:"weekday"`
	DayOfMonth int    `json:"day_of_month"`
}

type WeeklyAgendaResponse struct {
	Doctor       DoctorResponse                              `json:"doctor"`
	Days         []AgendaDayResponse                         `json:"days"`
	TimeLabels   []string                                    `json:"time_labels"`
	Appointments map[string]map[string][]AppointmentResponse `json:"appointments"`
	WeekStart    string                                      `json:"week_start"`
	WeekEnd      string                                      `json:"week_end"`
}

func toAppointmentResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := AppointmentResponse{
		ID:          d.ID,
		PatientID:   d.PatientID,
		DoctorID:    d.DoctorID,
		Procedure:   d.Procedure,
		ScheduledAt: d.ScheduledAt,
		Notes:       d.Notes,
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Patient: PatientSummaryResponse{
			ID:    d.Patient.ID,
			Name:  d.Patient.Name,
			Phone: d.Patient.Phone,
		},
	}
	if d.Doctor != nil {
		resp.Doctor = &DoctorSummaryResponse{ID: d.Doctor.ID, Name: d.Doctor.Name}
	}
	return resp
}

func toAppointmentResponses(rows []appointment.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toAppointmentResponse(r))
	}
	return out
}

func toPatientResponse(p appointment.Patient) PatientResponse {
	return PatientResponse{
		ID:        p.ID,
		Name:      p.Name,
		Phone:     p.Phone,
		BirthDate: p.BirthDate.Format(time.DateOnly),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toDoctorResponse(d appointment.Doctor) DoctorResponse {
	return DoctorResponse{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt}
}

func toSlotResponses(slots []appointment.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{Date: s.Start, Time: s.Label})
	}
	return out
}

func toWeeklyAgendaResponse(a appointment.WeeklyAgenda) WeeklyAgendaResponse {
	resp := WeeklyAgendaResponse{
		Doctor:       toDoctorResponse(a.Doctor),
		TimeLabels:   a.TimeLabels,
		Appointments: make(map[string]map[string][]AppointmentResponse, len(a.Grid)),
		WeekStart:    a.WeekStart,
		WeekEnd:      a.WeekEnd,
	}
	for _, d := range a.Days {
		resp.Days = append(resp.Days, AgendaDayResponse{Date: d.Date, Weekday: d.Weekday, DayOfMonth: d.DayOfMonth})
	}
	for date, byLabel := range a.Grid {
		cells := make(map[string][]AppointmentResponse, len(byLabel))
		for label, rows := range byLabel {
			cells[label] = toAppointmentResponses(rows)
		}
		resp.Appointments[date] = cells
	}
	return resp
}
