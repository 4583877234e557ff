package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/validation"
)

const (
	ActionCreate       = "create"
	ActionQuery        = "query"
	ActionReschedule   = "reschedule"
	ActionCancel       = "cancel"
	ActionAvailability = "availability"
	ActionListDoctors  = "list_doctors"
	ActionWeeklyAgenda = "weekly_agenda"
	ActionListPatients = "list_patients"
	ActionEditPatient  = "edit_patient"
)

var actions = []string{
	ActionCreate, ActionQuery, ActionReschedule, ActionCancel, ActionAvailability,
	ActionListDoctors, ActionWeeklyAgenda, ActionListPatients, ActionEditPatient,
}

var ErrUnknownAction = errors.New("unknown action")

// command is one decoded request variant; each carries only the fields its
// action uses.
type command interface {
	action() string
}

type createCommand struct {
	input appointment.CreateInput
}

type rescheduleCommand struct {
	id          uuid.UUID
	scheduledAt string
	notes       *string
}

type cancelCommand struct {
	id uuid.UUID
}

type queryCommand struct {
	input appointment.QueryInput
}

type availabilityCommand struct {
	doctorID uuid.UUID
	start    string
	limit    int
}

type listDoctorsCommand struct {
	search string
}

type listPatientsCommand struct {
	search string
}

type weeklyAgendaCommand struct {
	doctorID uuid.UUID
	date     string
}

type editPatientCommand struct {
	id    uuid.UUID
	input appointment.PatientInput
}

func (createCommand) action() string       { return ActionCreate }
func (rescheduleCommand) action() string   { return ActionReschedule }
func (cancelCommand) action() string       { return ActionCancel }
func (queryCommand) action() string        { return ActionQuery }
func (availabilityCommand) action() string { return ActionAvailability }
func (listDoctorsCommand) action() string  { return ActionListDoctors }
func (listPatientsCommand) action() string { return ActionListPatients }
func (weeklyAgendaCommand) action() string { return ActionWeeklyAgenda }
func (editPatientCommand) action() string  { return ActionEditPatient }

func required(field string) error {
	return &validation.Error{Field: field, Reason: "is required"}
}

func parseID(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, required(field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &validation.Error{Field: field, Reason: "must be a valid UUID"}
	}
	return id, nil
}

func parseOptionalID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// decodeCommand validates the sections the action needs and builds its
// variant. Field level rules (phone, dates) stay with the service.
func decodeCommand(req SchedulingRequest) (command, error) {
	switch req.Action {
	case ActionCreate:
		return decodeCreate(req)

	case ActionReschedule:
		a := req.Appointment
		if a == nil {
			return nil, required("appointment")
		}
		id, err := parseID("appointment.id", a.ID)
		if err != nil {
			return nil, err
		}
		if blank(a.ScheduledAt) {
			return nil, required("appointment.scheduled_at")
		}
		return rescheduleCommand{id: id, scheduledAt: a.ScheduledAt, notes: a.Notes}, nil

	case ActionCancel:
		if req.Appointment == nil {
			return nil, required("appointment")
		}
		id, err := parseID("appointment.id", req.Appointment.ID)
		if err != nil {
			return nil, err
		}
		return cancelCommand{id: id}, nil

	case ActionQuery:
		f := req.Filters
		if f == nil {
			return queryCommand{}, nil
		}
		doctorID, err := parseOptionalID("filters.doctor_id", f.DoctorID)
		if err != nil {
			return nil, err
		}
		patientID, err := parseOptionalID("filters.patient_id", f.PatientID)
		if err != nil {
			return nil, err
		}
		return queryCommand{input: appointment.QueryInput{
			StartDate: strings.TrimSpace(f.StartDate),
			EndDate:   strings.TrimSpace(f.EndDate),
			DoctorID:  doctorID,
			PatientID: patientID,
			Phone:     f.Phone,
			Status:    strings.TrimSpace(f.Status),
		}}, nil

	case ActionAvailability:
		if req.Filters == nil {
			return nil, required("filters.doctor_id")
		}
		doctorID, err := parseID("filters.doctor_id", req.Filters.DoctorID)
		if err != nil {
			return nil, err
		}
		if req.Filters.Limit < 0 {
			return nil, &validation.Error{Field: "filters.limit", Reason: "limit must be positive"}
		}
		return availabilityCommand{doctorID: doctorID, start: req.Filters.StartDate, limit: req.Filters.Limit}, nil

	case ActionListDoctors:
		return listDoctorsCommand{search: searchTerm(req)}, nil

	case ActionListPatients:
		return listPatientsCommand{search: searchTerm(req)}, nil

	case ActionWeeklyAgenda:
		p := req.WeeklyAgendaParams
		if p == nil {
			return nil, required("weekly_agenda_params.doctor_id")
		}
		doctorID, err := parseID("weekly_agenda_params.doctor_id", p.DoctorID)
		if err != nil {
			return nil, err
		}
		return weeklyAgendaCommand{doctorID: doctorID, date: p.Date}, nil

	case ActionEditPatient:
		p := req.Patient
		if p == nil {
			return nil, required("patient")
		}
		id, err := parseID("patient.id", p.ID)
		if err != nil {
			return nil, err
		}
		if err := requirePatientFields(p); err != nil {
			return nil, err
		}
		return editPatientCommand{id: id, input: appointment.PatientInput{
			Name:      p.Name,
			Phone:     p.Phone,
			BirthDate: p.BirthDate,
		}}, nil
	}

	return nil, fmt.Errorf("%w %q, use one of: %s", ErrUnknownAction, req.Action, strings.Join(actions, ", "))
}

func decodeCreate(req SchedulingRequest) (command, error) {
	if req.Patient == nil {
		return nil, required("patient")
	}
	if err := requirePatientFields(req.Patient); err != nil {
		return nil, err
	}

	a := req.Appointment
	if a == nil {
		return nil, required("appointment")
	}
	if blank(a.Procedure) {
		return nil, required("appointment.procedure")
	}
	if blank(a.ScheduledAt) {
		return nil, required("appointment.scheduled_at")
	}
	doctorID, err := parseOptionalID("appointment.doctor_id", a.DoctorID)
	if err != nil {
		return nil, err
	}

	return createCommand{input: appointment.CreateInput{
		Patient: appointment.PatientInput{
			Name:      req.Patient.Name,
			Phone:     req.Patient.Phone,
			BirthDate: req.Patient.BirthDate,
		},
		DoctorID:    doctorID,
		DoctorName:  a.DoctorName,
		Procedure:   a.Procedure,
		ScheduledAt: a.ScheduledAt,
		Notes:       a.Notes,
	}}, nil
}

func requirePatientFields(p *PatientPayload) error {
	switch {
	case blank(p.Name):
		return required("patient.name")
	case blank(p.Phone):
		return required("patient.phone")
	case blank(p.BirthDate):
		return required("patient.birth_date")
	}
	return nil
}

func searchTerm(req SchedulingRequest) string {
	if req.PatientSearch == nil {
		return ""
	}
	return strings.TrimSpace(req.PatientSearch.Search)
}
