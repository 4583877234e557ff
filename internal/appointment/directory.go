package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResolvePatient finds the tenant's patient by normalized phone, creating it
// on first contact. A concurrent insert of the same phone is absorbed by
// re-reading, so repeated calls never duplicate the patient.
func (s *Service) ResolvePatient(ctx context.Context, tenantID uuid.UUID, name, phone string, birthDate time.Time) (uuid.UUID, error) {
	existing, err := s.repo.FindPatientByPhone(ctx, tenantID, phone)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return uuid.Nil, fmt.Errorf("find patient: %w", err)
	}

	created, err := s.repo.InsertPatient(ctx, tenantID, NewPatient{
		Name:      strings.TrimSpace(name),
		Phone:     phone,
		BirthDate: birthDate,
	})
	if err == nil {
		s.log.Info().
			Str("tenant_id", tenantID.String()).
			Str("patient_id", created.ID.String()).
			Msg("patient created")
		return created.ID, nil
	}
	if !errors.Is(err, ErrPhoneInUse) {
		return uuid.Nil, fmt.Errorf("create patient: %w", err)
	}

	existing, err = s.repo.FindPatientByPhone(ctx, tenantID, phone)
	if err != nil {
		return uuid.Nil, fmt.Errorf("find patient after conflict: %w", err)
	}
	return existing.ID, nil
}

// ResolveDoctor trusts an explicit id (the store rejects ids of other
// tenants) and otherwise finds or creates the doctor by case-insensitive name.
// It returns nil when neither is given.
func (s *Service) ResolveDoctor(ctx context.Context, tenantID uuid.UUID, doctorID *uuid.UUID, doctorName string) (*uuid.UUID, error) {
	if doctorID != nil {
		return doctorID, nil
	}

	name := strings.TrimSpace(doctorName)
	if name == "" {
		return nil, nil
	}

	existing, err := s.repo.FindDoctorByName(ctx, tenantID, name)
	if err == nil {
		return &existing.ID, nil
	}
	if !errors.Is(err, ErrDoctorNotFound) {
		return nil, fmt.Errorf("find doctor: %w", err)
	}

	created, err := s.repo.InsertDoctor(ctx, tenantID, name)
	if err == nil {
		s.log.Info().
			Str("tenant_id", tenantID.String()).
			Str("doctor_id", created.ID.String()).
			Msg("doctor created")
		return &created.ID, nil
	}
	if !errors.Is(err, ErrDoctorExists) {
		return nil, fmt.Errorf("create doctor: %w", err)
	}

	existing, err = s.repo.FindDoctorByName(ctx, tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("find doctor after conflict: %w", err)
	}
	return &existing.ID, nil
}
