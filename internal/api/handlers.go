package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/validation"
)

const maxBodyBytes = 1 << 20

// SchedulingService is what the dispatcher needs from appointment.Service.
type SchedulingService interface {
	EnsureTenant(ctx context.Context, tenantID uuid.UUID) error
	CreateAppointment(ctx context.Context, tenantID uuid.UUID, in appointment.CreateInput) (*appointment.AppointmentDetail, error)
	RescheduleAppointment(ctx context.Context, tenantID, id uuid.UUID, newScheduledAt string, notes *string) (*appointment.AppointmentDetail, error)
	CancelAppointment(ctx context.Context, tenantID, id uuid.UUID) (*appointment.AppointmentDetail, error)
	QueryAppointments(ctx context.Context, tenantID uuid.UUID, in appointment.QueryInput) ([]appointment.AppointmentDetail, error)
	ListDoctors(ctx context.Context, tenantID uuid.UUID, search string) ([]appointment.Doctor, error)
	ListPatients(ctx context.Context, tenantID uuid.UUID, search string) ([]appointment.Patient, error)
	EditPatient(ctx context.Context, tenantID, id uuid.UUID, in appointment.PatientInput) (*appointment.Patient, error)
	Availability(ctx context.Context, tenantID, doctorID uuid.UUID, suggestedStart string, limit int) ([]appointment.Slot, error)
	WeeklyAgenda(ctx context.Context, tenantID, doctorID uuid.UUID, date string) (*appointment.WeeklyAgenda, error)
}

type SchedulingHandler struct {
	svc     SchedulingService
	metrics *metrics.SchedulingMetrics
	logger  zerolog.Logger
}

func NewSchedulingHandler(svc SchedulingService, m *metrics.SchedulingMetrics, logger zerolog.Logger) *SchedulingHandler {
	return &SchedulingHandler{svc: svc, metrics: m, logger: logger}
}

var (
	errTenantRequired = errors.New("tenant_id is required")
	errBadBody        = errors.New("request body must be a JSON object")
)

func (h *SchedulingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SchedulingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.fail(w, r, "unknown", uuid.Nil, errBadBody, start)
		return
	}
	action := metricAction(req.Action)

	if blank(req.TenantID) {
		h.fail(w, r, action, uuid.Nil, errTenantRequired, start)
		return
	}
	// a malformed id cannot name an existing clinic
	tenantID, err := uuid.Parse(strings.TrimSpace(req.TenantID))
	if err != nil {
		h.fail(w, r, action, uuid.Nil, appointment.ErrTenantNotFound, start)
		return
	}
	if err := h.svc.EnsureTenant(r.Context(), tenantID); err != nil {
		h.fail(w, r, action, tenantID, err, start)
		return
	}

	cmd, err := decodeCommand(req)
	if err != nil {
		h.fail(w, r, action, tenantID, err, start)
		return
	}

	message, data, err := h.dispatch(r.Context(), tenantID, cmd)
	if err != nil {
		h.fail(w, r, action, tenantID, err, start)
		return
	}

	h.metrics.ObserveRequest(action, "success", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func (h *SchedulingHandler) dispatch(ctx context.Context, tenantID uuid.UUID, cmd command) (string, any, error) {
	switch c := cmd.(type) {
	case createCommand:
		d, err := h.svc.CreateAppointment(ctx, tenantID, c.input)
		if err != nil {
			return "", nil, err
		}
		return "Appointment created successfully", toAppointmentResponse(*d), nil

	case rescheduleCommand:
		d, err := h.svc.RescheduleAppointment(ctx, tenantID, c.id, c.scheduledAt, c.notes)
		if err != nil {
			return "", nil, err
		}
		return "Appointment rescheduled successfully", toAppointmentResponse(*d), nil

	case cancelCommand:
		d, err := h.svc.CancelAppointment(ctx, tenantID, c.id)
		if err != nil {
			return "", nil, err
		}
		return "Appointment cancelled successfully", toAppointmentResponse(*d), nil

	case queryCommand:
		rows, err := h.svc.QueryAppointments(ctx, tenantID, c.input)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d appointment(s) found", len(rows)), toAppointmentResponses(rows), nil

	case availabilityCommand:
		slots, err := h.svc.Availability(ctx, tenantID, c.doctorID, c.start, c.limit)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d available slot(s) found", len(slots)), toSlotResponses(slots), nil

	case listDoctorsCommand:
		doctors, err := h.svc.ListDoctors(ctx, tenantID, c.search)
		if err != nil {
			return "", nil, err
		}
		out := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			out = append(out, toDoctorResponse(d))
		}
		return fmt.Sprintf("%d doctor(s) found", len(out)), out, nil

	case listPatientsCommand:
		patients, err := h.svc.ListPatients(ctx, tenantID, c.search)
		if err != nil {
			return "", nil, err
		}
		out := make([]PatientResponse, 0, len(patients))
		for _, p := range patients {
			out = append(out, toPatientResponse(p))
		}
		return fmt.Sprintf("%d patient(s) found", len(out)), out, nil

	case weeklyAgendaCommand:
		agenda, err := h.svc.WeeklyAgenda(ctx, tenantID, c.doctorID, c.date)
		if err != nil {
			return "", nil, err
		}
		return "Weekly agenda loaded", toWeeklyAgendaResponse(*agenda), nil

	case editPatientCommand:
		p, err := h.svc.EditPatient(ctx, tenantID, c.id, c.input)
		if err != nil {
			return "", nil, err
		}
		return "Patient updated successfully", toPatientResponse(*p), nil
	}

	return "", nil, fmt.Errorf("no handler for action %q", cmd.action())
}

// failure is how one error is presented to the caller.
type failure struct {
	status  int
	code    string
	outcome string
	message string
}

func classify(err error) failure {
	var verr *validation.Error

	switch {
	case errors.Is(err, errTenantRequired):
		return failure{http.StatusBadRequest, "tenant_required", "validation", err.Error()}
	case errors.Is(err, errBadBody):
		return failure{http.StatusBadRequest, "invalid_request_body", "validation", err.Error()}
	case errors.Is(err, ErrUnknownAction):
		return failure{http.StatusBadRequest, "unknown_action", "validation", err.Error()}
	case errors.As(err, &verr):
		return failure{http.StatusBadRequest, "validation_error", "validation", verr.Error()}
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		return failure{http.StatusBadRequest, "invalid_status_transition", "validation", err.Error()}

	case errors.Is(err, appointment.ErrTenantNotFound):
		return notFound("tenant_not_found", appointment.ErrTenantNotFound)
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return notFound("appointment_not_found", appointment.ErrAppointmentNotFound)
	case errors.Is(err, appointment.ErrDoctorNotFound):
		return notFound("doctor_not_found", appointment.ErrDoctorNotFound)
	case errors.Is(err, appointment.ErrPatientNotFound):
		return notFound("patient_not_found", appointment.ErrPatientNotFound)

	case errors.Is(err, appointment.ErrSlotTaken):
		return conflict("slot_taken", appointment.ErrSlotTaken)
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		return conflict("slot_being_booked", appointment.ErrSlotBeingBooked)
	case errors.Is(err, appointment.ErrPhoneInUse):
		return conflict("phone_in_use", appointment.ErrPhoneInUse)
	case errors.Is(err, appointment.ErrConcurrentUpdate):
		return conflict("concurrent_update", appointment.ErrConcurrentUpdate)
	}

	return failure{http.StatusInternalServerError, "internal_error", "internal", "internal server error"}
}

func notFound(code string, sentinel error) failure {
	return failure{http.StatusNotFound, code, "not_found", sentinel.Error()}
}

// Conflicts answer 400; the code tells callers to pick another slot or retry.
func conflict(code string, sentinel error) failure {
	return failure{http.StatusBadRequest, code, "conflict", sentinel.Error()}
}

func (h *SchedulingHandler) fail(w http.ResponseWriter, r *http.Request, action string, tenantID uuid.UUID, err error, start time.Time) {
	f := classify(err)

	evt := h.logger.Info()
	if f.status == http.StatusInternalServerError {
		evt = h.logger.Error()
	}
	evt.Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("action", action).
		Str("tenant_id", tenantID.String()).
		Str("code", f.code).
		Msg("scheduling request failed")

	h.metrics.ObserveRequest(action, f.outcome, time.Since(start).Seconds())
	writeJSON(w, f.status, Response{Success: false, Error: f.message, Code: f.code})
}

// metricAction keeps the action label bounded.
func metricAction(action string) string {
	for _, a := range actions {
		if a == action {
			return a
		}
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
