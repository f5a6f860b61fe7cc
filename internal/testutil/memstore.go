// Package testutil provides an in-memory booking store for service and
// HTTP tests. It implements the appointment, employee and patient
// repositories over one shared data set.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/employee"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

type storedSession struct {
	appointment.Session
	employeeID uuid.UUID
}

type data struct {
	employees    map[uuid.UUID]employee.Employee
	patients     map[uuid.UUID]patient.Patient
	records      map[uuid.UUID]patient.ClinicalRecord
	appointments map[uuid.UUID]appointment.Appointment
	order        []uuid.UUID
	sessions     map[uuid.UUID]storedSession
	events       []appointment.EventLog
}

func newData() *data {
	return &data{
		employees:    map[uuid.UUID]employee.Employee{},
		patients:     map[uuid.UUID]patient.Patient{},
		records:      map[uuid.UUID]patient.ClinicalRecord{},
		appointments: map[uuid.UUID]appointment.Appointment{},
		sessions:     map[uuid.UUID]storedSession{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.employees {
		c.employees[k] = v
	}
	for k, v := range d.patients {
		c.patients[k] = v
	}
	for k, v := range d.records {
		c.records[k] = v
	}
	for k, v := range d.appointments {
		c.appointments[k] = v
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	c.order = append([]uuid.UUID(nil), d.order...)
	c.events = append([]appointment.EventLog(nil), d.events...)
	return c
}

// overlapping reports whether two live sessions of one employee intersect,
// the same rule the database enforces with its exclusion constraint.
func (d *data) overlapping() bool {
	live := make([]storedSession, 0, len(d.sessions))
	for _, s := range d.sessions {
		if s.Status != appointment.StatusCancelled {
			live = append(live, s)
		}
	}
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			a, b := live[i], live[j]
			if a.employeeID == b.employeeID &&
				calendar.Overlaps(a.AppointmentDate, a.EndsAt(), b.AppointmentDate, b.EndsAt()) {
				return true
			}
		}
	}
	return false
}

func (d *data) sessionsOf(appointmentID uuid.UUID) []appointment.Session {
	var out []appointment.Session
	for _, s := range d.sessions {
		if s.AppointmentID == appointmentID {
			out = append(out, s.Session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.Before(out[j].AppointmentDate)
		}
		return out[i].SessionNumber < out[j].SessionNumber
	})
	return out
}

func (d *data) deleteAppointment(id uuid.UUID) {
	delete(d.appointments, id)
	for sid, s := range d.sessions {
		if s.AppointmentID == id {
			delete(d.sessions, sid)
		}
	}
	for i, a := range d.order {
		if a == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// MemStore is safe for concurrent use. Transactions hold the store lock for
// their whole duration, roll back on error and run the overlap check on
// commit.
type MemStore struct {
	mu  sync.Mutex
	d   *data
	Now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{d: newData(), Now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemStore) Appointments() appointment.Repository { return &apptRepo{s: s} }
func (s *MemStore) Employees() employee.Repository       { return &employeeRepo{s: s} }
func (s *MemStore) Patients() patient.Repository         { return &patientRepo{s: s} }

func (s *MemStore) view(inTx bool, fn func(d *data) error) error {
	if inTx {
		return fn(s.d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.d)
}

func (s *MemStore) tx(conflict error, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.d.clone()
	if err := fn(); err != nil {
		s.d = snap
		return err
	}
	if s.d.overlapping() {
		s.d = snap
		return conflict
	}
	return nil
}

// Events returns a copy of the event log.
func (s *MemStore) Events() []appointment.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appointment.EventLog(nil), s.d.events...)
}

func (s *MemStore) AppointmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.appointments)
}

func (s *MemStore) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.sessions)
}

// SeedEmployee stores an employee with generated name and email. hash may
// be empty when the test never logs in.
func (s *MemStore) SeedEmployee(admin bool, hash string) employee.Employee {
	now := s.Now()
	e := employee.Employee{
		ID:           uuid.New(),
		Name:         gofakeit.Name(),
		Email:        strings.ToLower(gofakeit.Username()) + "." + uuid.NewString()[:8] + "@clinic.test",
		PasswordHash: hash,
		IsAdmin:      admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.mu.Lock()
	s.d.employees[e.ID] = e
	s.mu.Unlock()
	return e
}

// SeedPatient stores a generated patient with one clinical record.
func (s *MemStore) SeedPatient() (patient.Patient, patient.ClinicalRecord) {
	now := s.Now()
	p := patient.Patient{
		ID:        uuid.New(),
		Name:      gofakeit.Name(),
		CPF:       gofakeit.Numerify("###########"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec := patient.ClinicalRecord{
		ID:         uuid.New(),
		PatientID:  p.ID,
		CID:        "M54.5",
		Allegation: fmt.Sprintf("pain for %d weeks", gofakeit.Number(1, 12)),
		Diagnosis:  "low back pain",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.mu.Lock()
	s.d.patients[p.ID] = p
	s.d.records[rec.ID] = rec
	s.mu.Unlock()
	return p, rec
}

// InsertCourse stores a course and its sessions as given, bypassing every
// scheduling rule.
func (s *MemStore) InsertCourse(a appointment.Appointment, sessions ...appointment.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.TotalSessions = len(sessions)
	s.d.appointments[a.ID] = a
	s.d.order = append(s.d.order, a.ID)
	for _, sess := range sessions {
		if sess.ID == uuid.Nil {
			sess.ID = uuid.New()
		}
		sess.AppointmentID = a.ID
		s.d.sessions[sess.ID] = storedSession{Session: sess, employeeID: a.EmployeeID}
	}
}

// apptRepo implements appointment.Repository.
type apptRepo struct {
	s    *MemStore
	inTx bool
}

func (r *apptRepo) WithTx(ctx context.Context, fn func(ctx context.Context, repo appointment.Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.s.tx(appointment.ErrSchedulingConflict, func() error {
		return fn(ctx, &apptRepo{s: r.s, inTx: true})
	})
}

func (r *apptRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.PatientSummary, error) {
	var out *appointment.PatientSummary
	err := r.s.view(r.inTx, func(d *data) error {
		p, ok := d.patients[id]
		if !ok {
			return appointment.ErrPatientNotFound
		}
		out = &appointment.PatientSummary{ID: p.ID, Name: p.Name, Phone: p.Phone, Email: p.Email}
		return nil
	})
	return out, err
}

func (r *apptRepo) GetEmployeeByID(_ context.Context, id uuid.UUID) (*appointment.EmployeeSummary, error) {
	var out *appointment.EmployeeSummary
	err := r.s.view(r.inTx, func(d *data) error {
		e, ok := d.employees[id]
		if !ok {
			return appointment.ErrEmployeeNotFound
		}
		out = &appointment.EmployeeSummary{ID: e.ID, Name: e.Name}
		return nil
	})
	return out, err
}

func (r *apptRepo) GetClinicalRecordByID(_ context.Context, id uuid.UUID) (*appointment.ClinicalRecordSummary, error) {
	var out *appointment.ClinicalRecordSummary
	err := r.s.view(r.inTx, func(d *data) error {
		c, ok := d.records[id]
		if !ok {
			return appointment.ErrClinicalRecordNotFound
		}
		out = recordSummary(c)
		return nil
	})
	return out, err
}

func recordSummary(c patient.ClinicalRecord) *appointment.ClinicalRecordSummary {
	return &appointment.ClinicalRecordSummary{
		ID:         c.ID,
		PatientID:  c.PatientID,
		CID:        c.CID,
		Allegation: c.Allegation,
		Diagnosis:  c.Diagnosis,
	}
}

func (r *apptRepo) CreateAppointment(_ context.Context, a *appointment.Appointment) error {
	return r.s.view(r.inTx, func(d *data) error {
		if _, dup := d.appointments[a.ID]; dup {
			return fmt.Errorf("appointment %s already exists", a.ID)
		}
		now := r.s.Now()
		a.CreatedAt, a.UpdatedAt = now, now
		d.appointments[a.ID] = *a
		d.order = append(d.order, a.ID)
		return nil
	})
}

func (r *apptRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var out *appointment.Appointment
	err := r.s.view(r.inTx, func(d *data) error {
		a, ok := d.appointments[id]
		if !ok {
			return appointment.ErrAppointmentNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func detail(d *data, a appointment.Appointment) appointment.AppointmentDetail {
	det := appointment.AppointmentDetail{Appointment: a}
	if p, ok := d.patients[a.PatientID]; ok {
		det.Patient = &appointment.PatientSummary{ID: p.ID, Name: p.Name, Phone: p.Phone, Email: p.Email}
	}
	if e, ok := d.employees[a.EmployeeID]; ok {
		det.Employee = &appointment.EmployeeSummary{ID: e.ID, Name: e.Name}
	}
	if c, ok := d.records[a.ClinicalRecordID]; ok {
		det.ClinicalRecord = recordSummary(c)
	}
	det.Sessions = d.sessionsOf(a.ID)
	sort.SliceStable(det.Sessions, func(i, j int) bool {
		return det.Sessions[i].SessionNumber < det.Sessions[j].SessionNumber
	})
	return det
}

func (r *apptRepo) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error) {
	var out *appointment.AppointmentDetail
	err := r.s.view(r.inTx, func(d *data) error {
		a, ok := d.appointments[id]
		if !ok {
			return appointment.ErrAppointmentNotFound
		}
		det := detail(d, a)
		out = &det
		return nil
	})
	return out, err
}

func (r *apptRepo) ListAppointments(_ context.Context, f appointment.ListFilter) ([]appointment.AppointmentDetail, error) {
	var out []appointment.AppointmentDetail
	err := r.s.view(r.inTx, func(d *data) error {
		for _, id := range d.order {
			a := d.appointments[id]
			if f.EmployeeID != nil && a.EmployeeID != *f.EmployeeID {
				continue
			}
			if f.PatientID != nil && a.PatientID != *f.PatientID {
				continue
			}
			if (f.From != nil || f.To != nil) && !anyInWindow(d.sessionsOf(id), f.From, f.To) {
				continue
			}
			out = append(out, detail(d, a))
		}
		return nil
	})
	return out, err
}

func anyInWindow(sessions []appointment.Session, from, to *time.Time) bool {
	for _, s := range sessions {
		if from != nil && s.AppointmentDate.Before(*from) {
			continue
		}
		if to != nil && !s.AppointmentDate.Before(*to) {
			continue
		}
		return true
	}
	return false
}

func (r *apptRepo) UpdateAppointmentEmployee(_ context.Context, id, employeeID uuid.UUID) error {
	return r.s.view(r.inTx, func(d *data) error {
		a, ok := d.appointments[id]
		if !ok {
			return appointment.ErrAppointmentNotFound
		}
		a.EmployeeID = employeeID
		a.UpdatedAt = r.s.Now()
		d.appointments[id] = a
		for sid, s := range d.sessions {
			if s.AppointmentID == id {
				s.employeeID = employeeID
				d.sessions[sid] = s
			}
		}
		return nil
	})
}

func (r *apptRepo) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	return r.s.view(r.inTx, func(d *data) error {
		if _, ok := d.appointments[id]; !ok {
			return appointment.ErrAppointmentNotFound
		}
		d.deleteAppointment(id)
		return nil
	})
}

func (r *apptRepo) CreateSession(_ context.Context, employeeID uuid.UUID, sess *appointment.Session) error {
	return r.s.view(r.inTx, func(d *data) error {
		if _, ok := d.appointments[sess.AppointmentID]; !ok {
			return fmt.Errorf("%w: appointment %s", appointment.ErrValidation, sess.AppointmentID)
		}
		now := r.s.Now()
		sess.CreatedAt, sess.UpdatedAt = now, now
		d.sessions[sess.ID] = storedSession{Session: *sess, employeeID: employeeID}
		return nil
	})
}

func (r *apptRepo) GetSessionByID(_ context.Context, id uuid.UUID) (*appointment.Session, error) {
	var out *appointment.Session
	err := r.s.view(r.inTx, func(d *data) error {
		s, ok := d.sessions[id]
		if !ok {
			return appointment.ErrSessionNotFound
		}
		sess := s.Session
		out = &sess
		return nil
	})
	return out, err
}

func (r *apptRepo) ListSessions(_ context.Context, appointmentID uuid.UUID) ([]appointment.Session, error) {
	var out []appointment.Session
	err := r.s.view(r.inTx, func(d *data) error {
		out = d.sessionsOf(appointmentID)
		return nil
	})
	return out, err
}

func (r *apptRepo) UpdateSession(_ context.Context, sess *appointment.Session) error {
	return r.s.view(r.inTx, func(d *data) error {
		cur, ok := d.sessions[sess.ID]
		if !ok {
			return appointment.ErrSessionNotFound
		}
		sess.UpdatedAt = r.s.Now()
		cur.Session = *sess
		d.sessions[sess.ID] = cur
		return nil
	})
}

func (r *apptRepo) RenumberSessions(_ context.Context, appointmentID uuid.UUID) error {
	return r.s.view(r.inTx, func(d *data) error {
		for i, sess := range d.sessionsOf(appointmentID) {
			stored := d.sessions[sess.ID]
			stored.SessionNumber = i + 1
			d.sessions[sess.ID] = stored
		}
		return nil
	})
}

func (r *apptRepo) FindOverlappingSession(_ context.Context, employeeID uuid.UUID, dayStart, dayEnd, start, end time.Time, excludeID *uuid.UUID) (*appointment.Session, error) {
	var out *appointment.Session
	err := r.s.view(r.inTx, func(d *data) error {
		for _, s := range d.sessions {
			if s.employeeID != employeeID || s.Status == appointment.StatusCancelled {
				continue
			}
			if excludeID != nil && s.ID == *excludeID {
				continue
			}
			if s.AppointmentDate.Before(dayStart) || s.AppointmentDate.After(dayEnd) {
				continue
			}
			if !calendar.Overlaps(s.AppointmentDate, s.EndsAt(), start, end) {
				continue
			}
			if out == nil || s.AppointmentDate.Before(out.AppointmentDate) {
				sess := s.Session
				out = &sess
			}
		}
		return nil
	})
	return out, err
}

func (r *apptRepo) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	return r.s.view(r.inTx, func(d *data) error {
		ev.ID = int64(len(d.events) + 1)
		d.events = append(d.events, ev)
		return nil
	})
}

// employeeRepo implements employee.Repository.
type employeeRepo struct {
	s    *MemStore
	inTx bool
}

func (r *employeeRepo) WithTx(ctx context.Context, fn func(ctx context.Context, repo employee.Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.s.tx(employee.ErrReassignConflict, func() error {
		return fn(ctx, &employeeRepo{s: r.s, inTx: true})
	})
}

func emailTaken(d *data, email string, self uuid.UUID) bool {
	for _, e := range d.employees {
		if e.ID != self && e.Email == email {
			return true
		}
	}
	return false
}

func (r *employeeRepo) Create(_ context.Context, e *employee.Employee) error {
	return r.s.view(r.inTx, func(d *data) error {
		if emailTaken(d, e.Email, e.ID) {
			return employee.ErrEmailTaken
		}
		now := r.s.Now()
		e.CreatedAt, e.UpdatedAt = now, now
		d.employees[e.ID] = *e
		return nil
	})
}

func (r *employeeRepo) GetByID(_ context.Context, id uuid.UUID) (*employee.Employee, error) {
	var out *employee.Employee
	err := r.s.view(r.inTx, func(d *data) error {
		e, ok := d.employees[id]
		if !ok {
			return employee.ErrEmployeeNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *employeeRepo) GetByEmail(_ context.Context, email string) (*employee.Employee, error) {
	var out *employee.Employee
	err := r.s.view(r.inTx, func(d *data) error {
		for _, e := range d.employees {
			if e.Email == email {
				e := e
				out = &e
				return nil
			}
		}
		return employee.ErrEmployeeNotFound
	})
	return out, err
}

func (r *employeeRepo) List(_ context.Context) ([]employee.Employee, error) {
	var out []employee.Employee
	err := r.s.view(r.inTx, func(d *data) error {
		for _, e := range d.employees {
			out = append(out, e)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Name != out[j].Name {
				return out[i].Name < out[j].Name
			}
			return out[i].ID.String() < out[j].ID.String()
		})
		return nil
	})
	return out, err
}

func (r *employeeRepo) Update(_ context.Context, e *employee.Employee) error {
	return r.s.view(r.inTx, func(d *data) error {
		cur, ok := d.employees[e.ID]
		if !ok {
			return employee.ErrEmployeeNotFound
		}
		if emailTaken(d, e.Email, e.ID) {
			return employee.ErrEmailTaken
		}
		e.CreatedAt = cur.CreatedAt
		e.UpdatedAt = r.s.Now()
		d.employees[e.ID] = *e
		return nil
	})
}

func (r *employeeRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.s.view(r.inTx, func(d *data) error {
		if _, ok := d.employees[id]; !ok {
			return employee.ErrEmployeeNotFound
		}
		for _, a := range d.appointments {
			if a.EmployeeID == id {
				return errors.New("employee still has appointments")
			}
		}
		delete(d.employees, id)
		return nil
	})
}

func (r *employeeRepo) ReassignAppointments(_ context.Context, from, to uuid.UUID) (int64, error) {
	var n int64
	err := r.s.view(r.inTx, func(d *data) error {
		now := r.s.Now()
		for id, a := range d.appointments {
			if a.EmployeeID == from {
				a.EmployeeID = to
				a.UpdatedAt = now
				d.appointments[id] = a
				n++
			}
		}
		for id, s := range d.sessions {
			if s.employeeID == from {
				s.employeeID = to
				d.sessions[id] = s
			}
		}
		return nil
	})
	return n, err
}

// patientRepo implements patient.Repository.
type patientRepo struct {
	s *MemStore
}

func cpfTaken(d *data, cpf string, self uuid.UUID) bool {
	for _, p := range d.patients {
		if p.ID != self && p.CPF == cpf {
			return true
		}
	}
	return false
}

func (r *patientRepo) CreatePatient(_ context.Context, p *patient.Patient) error {
	return r.s.view(false, func(d *data) error {
		if cpfTaken(d, p.CPF, p.ID) {
			return patient.ErrCPFTaken
		}
		now := r.s.Now()
		p.CreatedAt, p.UpdatedAt = now, now
		d.patients[p.ID] = *p
		return nil
	})
}

func (r *patientRepo) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	var out *patient.Patient
	err := r.s.view(false, func(d *data) error {
		p, ok := d.patients[id]
		if !ok {
			return patient.ErrPatientNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *patientRepo) ListPatients(_ context.Context, search string) ([]patient.Patient, error) {
	var out []patient.Patient
	needle := strings.ToLower(search)
	err := r.s.view(false, func(d *data) error {
		for _, p := range d.patients {
			if needle == "" || strings.Contains(strings.ToLower(p.Name), needle) || strings.HasPrefix(p.CPF, search) {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

func (r *patientRepo) UpdatePatient(_ context.Context, p *patient.Patient) error {
	return r.s.view(false, func(d *data) error {
		if _, ok := d.patients[p.ID]; !ok {
			return patient.ErrPatientNotFound
		}
		if cpfTaken(d, p.CPF, p.ID) {
			return patient.ErrCPFTaken
		}
		p.UpdatedAt = r.s.Now()
		d.patients[p.ID] = *p
		return nil
	})
}

func (r *patientRepo) DeletePatient(_ context.Context, id uuid.UUID) error {
	return r.s.view(false, func(d *data) error {
		if _, ok := d.patients[id]; !ok {
			return patient.ErrPatientNotFound
		}
		delete(d.patients, id)
		for rid, rec := range d.records {
			if rec.PatientID == id {
				delete(d.records, rid)
			}
		}
		for aid, a := range d.appointments {
			if a.PatientID == id {
				d.deleteAppointment(aid)
			}
		}
		return nil
	})
}

func (r *patientRepo) CreateRecord(_ context.Context, rec *patient.ClinicalRecord) error {
	return r.s.view(false, func(d *data) error {
		if _, ok := d.patients[rec.PatientID]; !ok {
			return patient.ErrPatientNotFound
		}
		now := r.s.Now()
		rec.CreatedAt, rec.UpdatedAt = now, now
		d.records[rec.ID] = *rec
		return nil
	})
}

func (r *patientRepo) GetRecord(_ context.Context, id uuid.UUID) (*patient.ClinicalRecord, error) {
	var out *patient.ClinicalRecord
	err := r.s.view(false, func(d *data) error {
		c, ok := d.records[id]
		if !ok {
			return patient.ErrRecordNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *patientRepo) ListRecords(_ context.Context, patientID uuid.UUID) ([]patient.ClinicalRecord, error) {
	var out []patient.ClinicalRecord
	err := r.s.view(false, func(d *data) error {
		for _, c := range d.records {
			if c.PatientID == patientID {
				out = append(out, c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r *patientRepo) DeleteRecord(_ context.Context, id uuid.UUID) error {
	return r.s.view(false, func(d *data) error {
		if _, ok := d.records[id]; !ok {
			return patient.ErrRecordNotFound
		}
		delete(d.records, id)
		for aid, a := range d.appointments {
			if a.ClinicalRecordID == id {
				d.deleteAppointment(aid)
			}
		}
		return nil
	})
}
