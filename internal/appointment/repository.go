package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTenantNotFound      = errors.New("clinic not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is returned when the (doctor, scheduled_at) uniqueness
	// constraint rejects a write.
	ErrSlotTaken = errors.New("time slot already booked for this doctor")
	// ErrPhoneInUse is returned when another patient of the tenant owns the phone.
	ErrPhoneInUse = errors.New("phone already used by another patient")
	// ErrDoctorExists is returned when a doctor with the same name exists.
	ErrDoctorExists = errors.New("doctor already exists")
)

// Repository contains all DB interactions needed by the service. Every method
// is scoped by tenant; there is no unscoped query.
type Repository interface {
	TenantExists(ctx context.Context, tenantID uuid.UUID) (bool, error)

	// Directory
	FindPatientByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Patient, error)
	GetPatient(ctx context.Context, tenantID, id uuid.UUID) (*Patient, error)
	// InsertPatient returns ErrPhoneInUse when the phone already exists.
	InsertPatient(ctx context.Context, tenantID uuid.UUID, p NewPatient) (*Patient, error)
	UpdatePatient(ctx context.Context, tenantID uuid.UUID, p Patient) (*Patient, error)
	ListPatients(ctx context.Context, tenantID uuid.UUID, search string) ([]Patient, error)

	FindDoctorByName(ctx context.Context, tenantID uuid.UUID, name string) (*Doctor, error)
	GetDoctor(ctx context.Context, tenantID, id uuid.UUID) (*Doctor, error)
	// InsertDoctor returns ErrDoctorExists when the name is already taken
	// (case-insensitive).
	InsertDoctor(ctx context.Context, tenantID uuid.UUID, name string) (*Doctor, error)
	ListDoctors(ctx context.Context, tenantID uuid.UUID, search string) ([]Doctor, error)

	// Appointments
	CreateAppointment(ctx context.Context, tenantID uuid.UUID, a NewAppointment) (*Appointment, error)
	GetAppointment(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, tenantID, id uuid.UUID) (*AppointmentDetail, error)
	RescheduleAppointment(ctx context.Context, tenantID, id uuid.UUID, from AppointmentStatus, at time.Time, notes *string) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, tenantID, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListAppointments(ctx context.Context, tenantID uuid.UUID, f AppointmentFilter) ([]AppointmentDetail, error)
	// ListDoctorBookings returns non-cancelled appointments of a doctor with
	// scheduled_at in [from, to).
	ListDoctorBookings(ctx context.Context, tenantID, doctorID uuid.UUID, from, to time.Time) ([]AppointmentDetail, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
