package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/validation"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintPatientPhone = "patients_tenant_phone_key"
	constraintDoctorName   = "doctors_tenant_lower_name_idx"
	constraintDoctorSlot   = "appointments_doctor_slot_idx"
	constraintPatientFK    = "appointments_patient_fk"
	constraintDoctorFK     = "appointments_doctor_fk"
)

// pgxQuerier is the subset of *pgxpool.Pool the repository needs.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool pgxQuerier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func newPgRepositoryWithQuerier(q pgxQuerier) *PgRepository {
	return &PgRepository{pool: q}
}

// Helpers

const appointmentColumns = `id, tenant_id, patient_id, doctor_id, procedure, scheduled_at, notes, status, created_at, updated_at`

const detailSelect = `
	SELECT a.id, a.tenant_id, a.patient_id, a.doctor_id, a.procedure, a.scheduled_at, a.notes, a.status,
	       a.created_at, a.updated_at, p.name, p.phone, d.name
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id AND p.tenant_id = $1
	LEFT JOIN doctors d ON d.id = a.doctor_id AND d.tenant_id = $1
	WHERE a.tenant_id = $1`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.Phone,
		&p.BirthDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.Name,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.PatientID,
		&a.DoctorID,
		&a.Procedure,
		&a.ScheduledAt,
		&a.Notes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var doctorName *string

	err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.PatientID,
		&d.DoctorID,
		&d.Procedure,
		&d.ScheduledAt,
		&d.Notes,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.Patient.Name,
		&d.Patient.Phone,
		&doctorName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.Patient.ID = d.PatientID
	if d.DoctorID != nil && doctorName != nil {
		d.Doctor = &DoctorSummary{ID: *d.DoctorID, Name: *doctorName}
	}
	return &d, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// mapConstraintError translates integrity violations into domain errors.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintDoctorSlot:
		return ErrSlotTaken
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintPatientPhone:
		return ErrPhoneInUse
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintDoctorName:
		return ErrDoctorExists
	case pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == constraintDoctorFK:
		return ErrDoctorNotFound
	case pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == constraintPatientFK:
		return ErrPatientNotFound
	}
	return err
}

func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(search)) + "%"
}

// Interface methods

func (r *PgRepository) TenantExists(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clinics WHERE id = $1)`, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check clinic: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) FindPatientByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, phone, birth_date, created_at, updated_at
		FROM patients
		WHERE tenant_id = $1 AND phone = $2
	`, tenantID, phone)
	return scanPatient(row)
}

func (r *PgRepository) GetPatient(ctx context.Context, tenantID, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, phone, birth_date, created_at, updated_at
		FROM patients
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanPatient(row)
}

func (r *PgRepository) InsertPatient(ctx context.Context, tenantID uuid.UUID, p NewPatient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, tenant_id, name, phone, birth_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (tenant_id, phone) DO NOTHING
		RETURNING id, tenant_id, name, phone, birth_date, created_at, updated_at
	`, uuid.New(), tenantID, p.Name, p.Phone, p.BirthDate)

	created, err := scanPatient(row)
	if errors.Is(err, ErrPatientNotFound) {
		return nil, ErrPhoneInUse
	}
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdatePatient(ctx context.Context, tenantID uuid.UUID, p Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET name = $3,
		    phone = $4,
		    birth_date = $5,
		    updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING id, tenant_id, name, phone, birth_date, created_at, updated_at
	`, tenantID, p.ID, p.Name, p.Phone, p.BirthDate)

	updated, err := scanPatient(row)
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return updated, nil
}

func (r *PgRepository) ListPatients(ctx context.Context, tenantID uuid.UUID, search string) ([]Patient, error) {
	query := `
		SELECT id, tenant_id, name, phone, birth_date, created_at, updated_at
		FROM patients
		WHERE tenant_id = $1`
	args := []any{tenantID}

	if strings.TrimSpace(search) != "" {
		phoneSearch := validation.NormalizePhone(search)
		if phoneSearch == "" {
			phoneSearch = search
		}
		query += ` AND (name ILIKE $2 OR phone LIKE $3)`
		args = append(args, likePattern(search), likePattern(phoneSearch))
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return collect(rows, scanPatient)
}

func (r *PgRepository) FindDoctorByName(ctx context.Context, tenantID uuid.UUID, name string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, created_at, updated_at
		FROM doctors
		WHERE tenant_id = $1 AND lower(name) = lower($2)
	`, tenantID, strings.TrimSpace(name))
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctor(ctx context.Context, tenantID, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, created_at, updated_at
		FROM doctors
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanDoctor(row)
}

func (r *PgRepository) InsertDoctor(ctx context.Context, tenantID uuid.UUID, name string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, tenant_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT DO NOTHING
		RETURNING id, tenant_id, name, created_at, updated_at
	`, uuid.New(), tenantID, strings.TrimSpace(name))

	created, err := scanDoctor(row)
	if errors.Is(err, ErrDoctorNotFound) {
		return nil, ErrDoctorExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return created, nil
}

func (r *PgRepository) ListDoctors(ctx context.Context, tenantID uuid.UUID, search string) ([]Doctor, error) {
	query := `
		SELECT id, tenant_id, name, created_at, updated_at
		FROM doctors
		WHERE tenant_id = $1`
	args := []any{tenantID}

	if strings.TrimSpace(search) != "" {
		query += ` AND name ILIKE $2`
		args = append(args, likePattern(search))
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return collect(rows, scanDoctor)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, tenantID uuid.UUID, a NewAppointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, tenant_id, patient_id, doctor_id, procedure, scheduled_at, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(), tenantID, a.PatientID, a.DoctorID, a.Procedure, a.ScheduledAt, a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, tenantID, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` AND a.id = $2`, tenantID, id)
	return scanDetail(row)
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, tenantID, id uuid.UUID, from AppointmentStatus, at time.Time, notes *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $4,
		    status = 'rescheduled',
		    notes = COALESCE($5, notes),
		    updated_at = now()
		WHERE tenant_id = $1
		  AND id = $2
		  AND status = $3
		RETURNING `+appointmentColumns,
		tenantID, id, from, at, notes)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, tenantID, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $4,
		    updated_at = now()
		WHERE tenant_id = $1
		  AND id = $2
		  AND status = $3
		RETURNING `+appointmentColumns,
		tenantID, id, from, to)

	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, tenantID uuid.UUID, f AppointmentFilter) ([]AppointmentDetail, error) {
	query := detailSelect
	args := []any{tenantID}

	add := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}

	if f.From != nil {
		add("a.scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("a.scheduled_at <= $%d", *f.To)
	}
	if f.DoctorID != nil {
		add("a.doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("a.status = $%d", *f.Status)
	}
	query += ` ORDER BY a.scheduled_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows, scanDetail)
}

func (r *PgRepository) ListDoctorBookings(ctx context.Context, tenantID, doctorID uuid.UUID, from, to time.Time) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+`
		  AND a.doctor_id = $2
		  AND a.scheduled_at >= $3
		  AND a.scheduled_at < $4
		  AND a.status <> 'cancelled'
		ORDER BY a.scheduled_at ASC
	`, tenantID, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doctor bookings: %w", err)
	}
	return collect(rows, scanDetail)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (tenant_id, event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.TenantID, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
