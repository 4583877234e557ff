package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepository mirrors the constraints of the Postgres schema: tenant scoped
// lookups, unique phone and doctor name per tenant, tenant scoped doctor
// references and one live appointment per (doctor, scheduled_at).
type memRepository struct {
	mu           sync.Mutex
	tenants      map[uuid.UUID]bool
	patients     map[uuid.UUID]*Patient
	doctors      map[uuid.UUID]*Doctor
	appointments map[uuid.UUID]*Appointment
	events       []EventLog

	patientInserts int
	doctorInserts  int
	writes         int

	failWith error
}

func newMemRepository(tenants ...uuid.UUID) *memRepository {
	r := &memRepository{
		tenants:      map[uuid.UUID]bool{},
		patients:     map[uuid.UUID]*Patient{},
		doctors:      map[uuid.UUID]*Doctor{},
		appointments: map[uuid.UUID]*Appointment{},
	}
	for _, t := range tenants {
		r.tenants[t] = true
	}
	return r
}

func (r *memRepository) addDoctor(tenantID uuid.UUID, name string) Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &Doctor{ID: uuid.New(), TenantID: tenantID, Name: name}
	r.doctors[d.ID] = d
	return *d
}

func (r *memRepository) addPatient(tenantID uuid.UUID, name, phone string) Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &Patient{ID: uuid.New(), TenantID: tenantID, Name: name, Phone: phone}
	r.patients[p.ID] = p
	return *p
}

func (r *memRepository) addAppointment(tenantID, patientID uuid.UUID, doctorID *uuid.UUID, at time.Time, status AppointmentStatus) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := &Appointment{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PatientID:   patientID,
		DoctorID:    doctorID,
		Procedure:   "consulta",
		ScheduledAt: at,
		Status:      status,
	}
	r.appointments[a.ID] = a
	return *a
}

func (r *memRepository) TenantExists(_ context.Context, tenantID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	return r.tenants[tenantID], nil
}

func (r *memRepository) FindPatientByPhone(_ context.Context, tenantID uuid.UUID, phone string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, p := range r.patients {
		if p.TenantID == tenantID && p.Phone == phone {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *memRepository) GetPatient(_ context.Context, tenantID, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.TenantID != tenantID {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepository) InsertPatient(_ context.Context, tenantID uuid.UUID, np NewPatient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.TenantID == tenantID && p.Phone == np.Phone {
			return nil, ErrPhoneInUse
		}
	}
	r.patientInserts++
	r.writes++
	p := &Patient{ID: uuid.New(), TenantID: tenantID, Name: np.Name, Phone: np.Phone, BirthDate: np.BirthDate}
	r.patients[p.ID] = p
	cp := *p
	return &cp, nil
}

func (r *memRepository) UpdatePatient(_ context.Context, tenantID uuid.UUID, up Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[up.ID]
	if !ok || p.TenantID != tenantID {
		return nil, ErrPatientNotFound
	}
	for _, other := range r.patients {
		if other.ID != up.ID && other.TenantID == tenantID && other.Phone == up.Phone {
			return nil, ErrPhoneInUse
		}
	}
	r.writes++
	p.Name, p.Phone, p.BirthDate = up.Name, up.Phone, up.BirthDate
	cp := *p
	return &cp, nil
}

func (r *memRepository) ListPatients(_ context.Context, tenantID uuid.UUID, search string) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Patient{}
	needle := strings.ToLower(strings.TrimSpace(search))
	for _, p := range r.patients {
		if p.TenantID != tenantID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(p.Phone, needle) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepository) FindDoctorByName(_ context.Context, tenantID uuid.UUID, name string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if d.TenantID == tenantID && strings.EqualFold(d.Name, strings.TrimSpace(name)) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *memRepository) GetDoctor(_ context.Context, tenantID, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok || d.TenantID != tenantID {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepository) InsertDoctor(_ context.Context, tenantID uuid.UUID, name string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if d.TenantID == tenantID && strings.EqualFold(d.Name, name) {
			return nil, ErrDoctorExists
		}
	}
	r.doctorInserts++
	r.writes++
	d := &Doctor{ID: uuid.New(), TenantID: tenantID, Name: name}
	r.doctors[d.ID] = d
	cp := *d
	return &cp, nil
}

func (r *memRepository) ListDoctors(_ context.Context, tenantID uuid.UUID, search string) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Doctor{}
	needle := strings.ToLower(strings.TrimSpace(search))
	for _, d := range r.doctors {
		if d.TenantID == tenantID && strings.Contains(strings.ToLower(d.Name), needle) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// slotTakenLocked reports a live appointment other than self on the same
// doctor and time. Caller holds mu.
func (r *memRepository) slotTakenLocked(self uuid.UUID, doctorID *uuid.UUID, at time.Time) bool {
	if doctorID == nil {
		return false
	}
	for _, a := range r.appointments {
		if a.ID == self || a.DoctorID == nil || a.Status == StatusCancelled {
			continue
		}
		if *a.DoctorID == *doctorID && a.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

func (r *memRepository) CreateAppointment(_ context.Context, tenantID uuid.UUID, na NewAppointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	if p, ok := r.patients[na.PatientID]; !ok || p.TenantID != tenantID {
		return nil, ErrPatientNotFound
	}
	if na.DoctorID != nil {
		if d, ok := r.doctors[*na.DoctorID]; !ok || d.TenantID != tenantID {
			return nil, ErrDoctorNotFound
		}
	}
	if r.slotTakenLocked(uuid.Nil, na.DoctorID, na.ScheduledAt) {
		return nil, ErrSlotTaken
	}
	r.writes++
	a := &Appointment{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PatientID:   na.PatientID,
		DoctorID:    na.DoctorID,
		Procedure:   na.Procedure,
		ScheduledAt: na.ScheduledAt,
		Notes:       na.Notes,
		Status:      StatusScheduled,
	}
	r.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (r *memRepository) GetAppointment(_ context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.TenantID != tenantID {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepository) detailLocked(a *Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: *a}
	if p, ok := r.patients[a.PatientID]; ok {
		d.Patient = PatientSummary{ID: p.ID, Name: p.Name, Phone: p.Phone}
	}
	if a.DoctorID != nil {
		if doc, ok := r.doctors[*a.DoctorID]; ok {
			d.Doctor = &DoctorSummary{ID: doc.ID, Name: doc.Name}
		}
	}
	return d
}

func (r *memRepository) GetAppointmentDetail(_ context.Context, tenantID, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.TenantID != tenantID {
		return nil, ErrAppointmentNotFound
	}
	d := r.detailLocked(a)
	return &d, nil
}

func (r *memRepository) RescheduleAppointment(_ context.Context, tenantID, id uuid.UUID, from AppointmentStatus, at time.Time, notes *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.TenantID != tenantID || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	if r.slotTakenLocked(id, a.DoctorID, at) {
		return nil, ErrSlotTaken
	}
	r.writes++
	a.ScheduledAt = at
	a.Status = StatusRescheduled
	if notes != nil {
		a.Notes = notes
	}
	cp := *a
	return &cp, nil
}

func (r *memRepository) UpdateAppointmentStatus(_ context.Context, tenantID, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.TenantID != tenantID || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	r.writes++
	a.Status = to
	cp := *a
	return &cp, nil
}

func (r *memRepository) ListAppointments(_ context.Context, tenantID uuid.UUID, f AppointmentFilter) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []AppointmentDetail{}
	for _, a := range r.appointments {
		switch {
		case a.TenantID != tenantID:
			continue
		case f.From != nil && a.ScheduledAt.Before(*f.From):
			continue
		case f.To != nil && a.ScheduledAt.After(*f.To):
			continue
		case f.DoctorID != nil && (a.DoctorID == nil || *a.DoctorID != *f.DoctorID):
			continue
		case f.PatientID != nil && a.PatientID != *f.PatientID:
			continue
		case f.Status != nil && a.Status != *f.Status:
			continue
		}
		out = append(out, r.detailLocked(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *memRepository) ListDoctorBookings(_ context.Context, tenantID, doctorID uuid.UUID, from, to time.Time) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []AppointmentDetail{}
	for _, a := range r.appointments {
		if a.TenantID != tenantID || a.DoctorID == nil || *a.DoctorID != doctorID || a.Status == StatusCancelled {
			continue
		}
		if a.ScheduledAt.Before(from) || !a.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, r.detailLocked(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *memRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
