package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
)

// ParseStatus accepts only the closed set of statuses.
func ParseStatus(s string) (AppointmentStatus, bool) {
	switch st := AppointmentStatus(s); st {
	case StatusScheduled, StatusRescheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:   {StatusRescheduled, StatusConfirmed, StatusCancelled},
	StatusRescheduled: {StatusRescheduled, StatusConfirmed, StatusCancelled},
	StatusConfirmed:   {StatusRescheduled, StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an appointment may move from one status to another.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Patient struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Phone     string
	BirthDate time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	PatientID   uuid.UUID
	DoctorID    *uuid.UUID
	Procedure   string
	ScheduledAt time.Time
	Notes       *string
	Status      AppointmentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type PatientSummary struct {
	ID    uuid.UUID
	Name  string
	Phone string
}

type DoctorSummary struct {
	ID   uuid.UUID
	Name string
}

// AppointmentDetail is an appointment enriched for presentation.
type AppointmentDetail struct {
	Appointment
	Patient PatientSummary
	Doctor  *DoctorSummary
}

type EventLog struct {
	ID            int64
	TenantID      uuid.UUID
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type NewPatient struct {
	Name      string
	Phone     string
	BirthDate time.Time
}

type NewAppointment struct {
	PatientID   uuid.UUID
	DoctorID    *uuid.UUID
	Procedure   string
	ScheduledAt time.Time
	Notes       *string
}

// AppointmentFilter narrows a tenant's appointment listing. Every set field
// is ANDed.
type AppointmentFilter struct {
	From      *time.Time
	To        *time.Time
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *AppointmentStatus
}
