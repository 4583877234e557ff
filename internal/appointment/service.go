package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/validation"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventPatientUpdated         = "PATIENT_UPDATED"
)

var (
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrConcurrentUpdate means the row changed between read and guarded write.
	ErrConcurrentUpdate = errors.New("appointment was modified concurrently, please retry")
)

var tracer = otel.Tracer("github.com/hackgods/clinic-scheduling/internal/appointment")

type Service struct {
	repo   Repository
	locker redisclient.Locker
	hours  BusinessHours
	now    func() time.Time
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		hours:  DefaultBusinessHours(cfg.Location),
		now:    time.Now,
		log:    logger.With().Str("component", "appointment").Logger(),
	}
}

// WithClock replaces the time source; tests use it to pin "now".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Hours() BusinessHours {
	return s.hours
}

type PatientInput struct {
	Name      string
	Phone     string
	BirthDate string
}

type CreateInput struct {
	Patient     PatientInput
	DoctorID    *uuid.UUID
	DoctorName  string
	Procedure   string
	ScheduledAt string
	Notes       *string
}

type QueryInput struct {
	StartDate string
	EndDate   string
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Phone     string
	Status    string
}

func startSpan(ctx context.Context, name string, tenantID uuid.UUID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("tenant_id", tenantID.String())))
}

// EnsureTenant is the guard every request passes before any other work.
func (s *Service) EnsureTenant(ctx context.Context, tenantID uuid.UUID) error {
	ok, err := s.repo.TenantExists(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("check tenant: %w", err)
	}
	if !ok {
		return ErrTenantNotFound
	}
	return nil
}

type validatedPatient struct {
	name      string
	phone     string
	birthDate time.Time
}

func (s *Service) validatePatient(in PatientInput, now time.Time) (validatedPatient, error) {
	phone, err := validation.ValidatePhone(in.Phone)
	if err != nil {
		return validatedPatient{}, err
	}
	birth, err := validation.ValidateBirthDate(in.BirthDate, now)
	if err != nil {
		return validatedPatient{}, err
	}
	birthDate, _ := time.Parse(time.DateOnly, birth)

	return validatedPatient{name: strings.TrimSpace(in.Name), phone: phone, birthDate: birthDate}, nil
}

// withSlotLock runs fn under the Redis slot lock when the appointment has a doctor.
func (s *Service) withSlotLock(ctx context.Context, doctorID *uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	if doctorID == nil {
		return fn(ctx)
	}
	err := s.locker.WithSlotLock(ctx, *doctorID, at, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

// CreateAppointment validates every input before resolving the patient and
// doctor, then books the slot with status scheduled.
func (s *Service) CreateAppointment(ctx context.Context, tenantID uuid.UUID, in CreateInput) (*AppointmentDetail, error) {
	ctx, span := startSpan(ctx, "appointment.Create", tenantID)
	defer span.End()

	now := s.now()
	patient, err := s.validatePatient(in.Patient, now)
	if err != nil {
		return nil, err
	}
	scheduledAt, err := validation.ValidateAppointmentDate(in.ScheduledAt, now, s.hours.Location)
	if err != nil {
		return nil, err
	}

	patientID, err := s.ResolvePatient(ctx, tenantID, patient.name, patient.phone, patient.birthDate)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	doctorID, err := s.ResolveDoctor(ctx, tenantID, in.DoctorID, in.DoctorName)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}

	var created *Appointment
	err = s.withSlotLock(ctx, doctorID, scheduledAt, func(lockCtx context.Context) error {
		appt, err := s.repo.CreateAppointment(lockCtx, tenantID, NewAppointment{
			PatientID:   patientID,
			DoctorID:    doctorID,
			Procedure:   strings.TrimSpace(in.Procedure),
			ScheduledAt: scheduledAt,
			Notes:       in.Notes,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"patient_id":   patientID.String(),
		"scheduled_at": scheduledAt,
		"procedure":    created.Procedure,
	}
	if doctorID != nil {
		payload["doctor_id"] = doctorID.String()
	}
	s.logEvent(ctx, tenantID, &created.ID, EventAppointmentCreated, payload)

	return s.detail(ctx, tenantID, created.ID)
}

// RescheduleAppointment moves an owned, non-terminal appointment to a new
// time and marks it rescheduled. Notes are replaced only when given.
func (s *Service) RescheduleAppointment(ctx context.Context, tenantID, id uuid.UUID, newScheduledAt string, notes *string) (*AppointmentDetail, error) {
	ctx, span := startSpan(ctx, "appointment.Reschedule", tenantID)
	defer span.End()

	scheduledAt, err := validation.ValidateAppointmentDate(newScheduledAt, s.now(), s.hours.Location)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !CanTransition(appt.Status, StatusRescheduled) {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStatusTransition, appt.Status)
	}

	var updated *Appointment
	err = s.withSlotLock(ctx, appt.DoctorID, scheduledAt, func(lockCtx context.Context) error {
		u, err := s.repo.RescheduleAppointment(lockCtx, tenantID, id, appt.Status, scheduledAt, notes)
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrConcurrentUpdate
		}
		if err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, tenantID, &updated.ID, EventAppointmentRescheduled, map[string]any{
		"previous_scheduled_at": appt.ScheduledAt,
		"scheduled_at":          updated.ScheduledAt,
		"previous_status":       appt.Status,
	})

	return s.detail(ctx, tenantID, updated.ID)
}

// CancelAppointment marks an owned appointment cancelled. Cancelling an
// already cancelled appointment succeeds without writing. A completed
// appointment is terminal and cannot be cancelled.
func (s *Service) CancelAppointment(ctx context.Context, tenantID, id uuid.UUID) (*AppointmentDetail, error) {
	ctx, span := startSpan(ctx, "appointment.Cancel", tenantID)
	defer span.End()

	appt, err := s.repo.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status == StatusCancelled {
		return s.detail(ctx, tenantID, id)
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidStatusTransition, appt.Status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, tenantID, id, appt.Status, StatusCancelled)
	if errors.Is(err, ErrAppointmentNotFound) {
		// lost a race; fine if the winner also cancelled
		current, getErr := s.repo.GetAppointment(ctx, tenantID, id)
		if getErr == nil && current.Status == StatusCancelled {
			return s.detail(ctx, tenantID, id)
		}
		return nil, ErrConcurrentUpdate
	}
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, tenantID, &updated.ID, EventAppointmentCancelled, map[string]any{
		"previous_status": appt.Status,
		"scheduled_at":    updated.ScheduledAt,
	})

	return s.detail(ctx, tenantID, updated.ID)
}

// QueryAppointments lists the tenant's appointments matching every given
// filter, ordered by scheduled time. An unknown phone yields no rows.
func (s *Service) QueryAppointments(ctx context.Context, tenantID uuid.UUID, in QueryInput) ([]AppointmentDetail, error) {
	ctx, span := startSpan(ctx, "appointment.Query", tenantID)
	defer span.End()

	f := AppointmentFilter{DoctorID: in.DoctorID, PatientID: in.PatientID}

	if in.StartDate != "" {
		from, err := s.parseBound(in.StartDate, false)
		if err != nil {
			return nil, err
		}
		f.From = &from
	}
	if in.EndDate != "" {
		to, err := s.parseBound(in.EndDate, true)
		if err != nil {
			return nil, err
		}
		f.To = &to
	}
	if in.Status != "" {
		st, ok := ParseStatus(in.Status)
		if !ok {
			return nil, &validation.Error{Field: "status", Reason: fmt.Sprintf("unknown status %q", in.Status)}
		}
		f.Status = &st
	}

	if strings.TrimSpace(in.Phone) != "" {
		p, err := s.repo.FindPatientByPhone(ctx, tenantID, validation.NormalizePhone(in.Phone))
		if errors.Is(err, ErrPatientNotFound) {
			return []AppointmentDetail{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find patient by phone: %w", err)
		}
		if f.PatientID != nil && *f.PatientID != p.ID {
			return []AppointmentDetail{}, nil
		}
		f.PatientID = &p.ID
	}

	rows, err := s.repo.ListAppointments(ctx, tenantID, f)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return rows, nil
}

// parseBound reads a date or timestamp; a date-only end bound covers the
// whole day.
func (s *Service) parseBound(raw string, end bool) (time.Time, error) {
	if day, err := validation.ParseDay(raw, s.hours.Location); err == nil {
		if end {
			return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return day, nil
	}
	t, err := validation.ParseTimestamp(raw, s.hours.Location)
	if err != nil {
		field := "start_date"
		if end {
			field = "end_date"
		}
		return time.Time{}, &validation.Error{Field: field, Reason: "invalid date, use YYYY-MM-DD or ISO 8601"}
	}
	return t, nil
}

func (s *Service) ListDoctors(ctx context.Context, tenantID uuid.UUID, search string) ([]Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx, tenantID, search)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) ListPatients(ctx context.Context, tenantID uuid.UUID, search string) ([]Patient, error) {
	patients, err := s.repo.ListPatients(ctx, tenantID, search)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// EditPatient updates an owned patient. A phone already held by another
// patient of the tenant is a conflict.
func (s *Service) EditPatient(ctx context.Context, tenantID, id uuid.UUID, in PatientInput) (*Patient, error) {
	ctx, span := startSpan(ctx, "patient.Edit", tenantID)
	defer span.End()

	patient, err := s.validatePatient(in, s.now())
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetPatient(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if patient.phone != current.Phone {
		other, err := s.repo.FindPatientByPhone(ctx, tenantID, patient.phone)
		switch {
		case err == nil && other.ID != id:
			return nil, ErrPhoneInUse
		case err != nil && !errors.Is(err, ErrPatientNotFound):
			return nil, fmt.Errorf("check phone: %w", err)
		}
	}

	updated, err := s.repo.UpdatePatient(ctx, tenantID, Patient{
		ID:        id,
		TenantID:  tenantID,
		Name:      patient.name,
		Phone:     patient.phone,
		BirthDate: patient.birthDate,
	})
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}

	s.logEvent(ctx, tenantID, nil, EventPatientUpdated, map[string]any{
		"patient_id":    id.String(),
		"phone_changed": patient.phone != current.Phone,
	})

	return updated, nil
}

// Availability returns up to limit free slots of an owned doctor starting at
// suggestedStart (now when empty). No free slot in the horizon is not an error.
func (s *Service) Availability(ctx context.Context, tenantID, doctorID uuid.UUID, suggestedStart string, limit int) ([]Slot, error) {
	ctx, span := startSpan(ctx, "appointment.Availability", tenantID)
	defer span.End()

	now := s.now()
	start := now
	if strings.TrimSpace(suggestedStart) != "" {
		t, err := validation.ParseTimestamp(suggestedStart, s.hours.Location)
		if err != nil {
			if day, dayErr := validation.ParseDay(suggestedStart, s.hours.Location); dayErr == nil {
				t = day
			} else {
				return nil, &validation.Error{Field: "start_date", Reason: "invalid start date, use ISO 8601"}
			}
		}
		start = t
	}

	if _, err := s.repo.GetDoctor(ctx, tenantID, doctorID); err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	search := SlotSearch{Hours: s.hours, Start: start, Now: now, Limit: limit}
	from, to := search.Window()

	bookings, err := s.repo.ListDoctorBookings(ctx, tenantID, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load doctor bookings: %w", err)
	}

	booked := make([]time.Time, 0, len(bookings))
	for _, b := range bookings {
		booked = append(booked, b.ScheduledAt)
	}

	slots := search.Find(booked)
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

// WeeklyAgenda renders the Monday to Friday agenda of an owned doctor for the
// week containing date (today when empty).
func (s *Service) WeeklyAgenda(ctx context.Context, tenantID, doctorID uuid.UUID, date string) (*WeeklyAgenda, error) {
	ctx, span := startSpan(ctx, "appointment.WeeklyAgenda", tenantID)
	defer span.End()

	ref := s.now()
	if strings.TrimSpace(date) != "" {
		day, err := validation.ParseDay(date, s.hours.Location)
		if err != nil {
			return nil, err
		}
		ref = day
	}

	doctor, err := s.repo.GetDoctor(ctx, tenantID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	week := s.hours.WeekOf(ref)
	bookings, err := s.repo.ListDoctorBookings(ctx, tenantID, doctorID, week.Start, week.End)
	if err != nil {
		return nil, fmt.Errorf("load weekly bookings: %w", err)
	}

	agenda := BuildWeeklyAgenda(s.hours, *doctor, week, bookings)
	return &agenda, nil
}

func (s *Service) detail(ctx context.Context, tenantID, id uuid.UUID) (*AppointmentDetail, error) {
	d, err := s.repo.GetAppointmentDetail(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment detail: %w", err)
	}
	return d, nil
}

func (s *Service) logEvent(ctx context.Context, tenantID uuid.UUID, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		TenantID:      tenantID,
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("tenant_id", tenantID.String()).
			Str("event_type", eventType).
			Msg("failed to insert event log")
	}
}
