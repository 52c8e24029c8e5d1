package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo is an in-memory Repository for service tests. InTx serializes
// whole transaction bodies under one mutex, which is exactly the guarantee
// the serializable Postgres transaction gives the booking path, so the
// concurrency tests exercise the same interleaving rules as production.
type memoryRepo struct {
	store *memStore
	inTx  bool
}

type memStore struct {
	mu sync.Mutex

	hospitals    map[uuid.UUID]*Hospital
	doctors      map[uuid.UUID]*Doctor
	users        map[uuid.UUID]bool
	sessions     map[uuid.UUID]*Session
	appointments map[uuid.UUID]*Appointment
	events       []EventLog

	// conflictsLeft forces that many InTx calls to fail with ErrConflict
	// before letting one through, to exercise the retry loop.
	conflictsLeft int

	seq int // creation order stand-in for created_at ties
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{store: &memStore{
		hospitals:    make(map[uuid.UUID]*Hospital),
		doctors:      make(map[uuid.UUID]*Doctor),
		users:        make(map[uuid.UUID]bool),
		sessions:     make(map[uuid.UUID]*Session),
		appointments: make(map[uuid.UUID]*Appointment),
	}}
}

func (m *memoryRepo) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.store.mu.Lock()
	return m.store.mu.Unlock
}

func (m *memoryRepo) InTx(ctx context.Context, fn func(r Repository) error) error {
	if m.inTx {
		return fn(m)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if m.store.conflictsLeft > 0 {
		m.store.conflictsLeft--
		return ErrConflict
	}

	return fn(&memoryRepo{store: m.store, inTx: true})
}

func (m *memoryRepo) GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	defer m.lock()()
	s, ok := m.store.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	defer m.lock()()
	d, ok := m.store.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memoryRepo) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	defer m.lock()()
	return m.store.users[id], nil
}

func (m *memoryRepo) HasConfirmedAppointment(ctx context.Context, sessionID uuid.UUID, nic string) (bool, error) {
	defer m.lock()()
	for _, a := range m.store.appointments {
		if a.SessionID == sessionID && a.Patient.NIC == nic && a.Status == StatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) CountAppointmentsByNIC(ctx context.Context, nic string) (int, error) {
	defer m.lock()()
	count := 0
	for _, a := range m.store.appointments {
		if a.Patient.NIC == nic {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) MaxQueuePosition(ctx context.Context, sessionID uuid.UUID) (int, error) {
	defer m.lock()()
	max := 0
	for _, a := range m.store.appointments {
		if a.SessionID == sessionID && a.QueuePosition > max {
			max = a.QueuePosition
		}
	}
	return max, nil
}

func (m *memoryRepo) CreateAppointment(ctx context.Context, params CreateAppointmentParams) (*Appointment, error) {
	defer m.lock()()

	for _, a := range m.store.appointments {
		if a.AppointmentNumber == params.AppointmentNumber {
			return nil, ErrConflict
		}
		if a.SessionID == params.SessionID && a.QueuePosition == params.QueuePosition {
			return nil, ErrConflict
		}
	}

	m.store.seq++
	now := time.Now()
	appt := &Appointment{
		ID:                params.ID,
		AppointmentNumber: params.AppointmentNumber,
		SessionID:         params.SessionID,
		BookedBy:          params.BookedBy,
		Patient:           params.Patient,
		IsNewPatient:      params.IsNewPatient,
		Status:            StatusConfirmed,
		ConsultationFee:   params.ConsultationFee,
		TotalAmount:       params.TotalAmount,
		PaymentStatus:     PaymentPending,
		QueuePosition:     params.QueuePosition,
		MedicalReportURL:  params.MedicalReportURL,
		CreatedAt:         now.Add(time.Duration(m.store.seq) * time.Microsecond),
		UpdatedAt:         now,
	}
	m.store.appointments[appt.ID] = appt

	cp := *appt
	return &cp, nil
}

func (m *memoryRepo) GetAppointmentByNumber(ctx context.Context, number string) (*Appointment, error) {
	defer m.lock()()
	for _, a := range m.store.appointments {
		if a.AppointmentNumber == number {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memoryRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer m.lock()()
	a, ok := m.store.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	defer m.lock()()
	a, ok := m.store.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if patch.PatientName != nil {
		a.Patient.Name = *patch.PatientName
	}
	if patch.PatientEmail != nil {
		a.Patient.Email = *patch.PatientEmail
	}
	if patch.PatientPhone != nil {
		a.Patient.Phone = *patch.PatientPhone
	}
	if patch.PatientAge != nil {
		a.Patient.Age = *patch.PatientAge
	}
	if patch.MedicalReportURL != nil {
		a.MedicalReportURL = patch.MedicalReportURL
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) CompletePayment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer m.lock()()
	a, ok := m.store.appointments[id]
	if !ok || a.PaymentStatus != PaymentPending {
		return nil, ErrAlreadyPaid
	}
	a.PaymentStatus = PaymentCompleted
	a.Status = StatusConfirmed
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer m.lock()()
	a, ok := m.store.appointments[id]
	if !ok || a.Status == StatusCancelled {
		return nil, ErrAppointmentNotFound
	}
	now := time.Now()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) GetReceiptDetails(ctx context.Context, appointmentID uuid.UUID) (*Receipt, error) {
	defer m.lock()()
	a, ok := m.store.appointments[appointmentID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	session := m.store.sessions[a.SessionID]
	doctor := m.store.doctors[session.DoctorID]
	hospital := m.store.hospitals[session.HospitalID]

	cp := *a
	return &Receipt{
		Appointment:  cp,
		DoctorName:   doctor.Name,
		HospitalName: hospital.Name,
		ScheduledAt:  session.ScheduledAt,
		StartTime:    session.StartTime,
	}, nil
}

func (m *memoryRepo) FindRunningStatuses(ctx context.Context, phoneVariants []string) ([]RunningStatus, error) {
	defer m.lock()()

	variant := make(map[string]bool, len(phoneVariants))
	for _, p := range phoneVariants {
		variant[p] = true
	}

	var matched []*Appointment
	for _, a := range m.store.appointments {
		session := m.store.sessions[a.SessionID]
		if a.Status == StatusConfirmed && variant[a.Patient.Phone] && session.Status == SessionOngoing {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	var result []RunningStatus
	for _, a := range matched {
		session := m.store.sessions[a.SessionID]
		doctor := m.store.doctors[session.DoctorID]
		hospital := m.store.hospitals[session.HospitalID]
		result = append(result, RunningStatus{
			AppointmentNumber:    a.AppointmentNumber,
			PatientName:          a.Patient.Name,
			DoctorName:           doctor.Name,
			HospitalName:         hospital.Name,
			CurrentRunningNumber: session.CurrentRunningNumber,
			YourNumber:           a.QueuePosition,
		})
	}
	return result, nil
}

func (m *memoryRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	defer m.lock()()
	m.store.events = append(m.store.events, ev)
	return nil
}

// Fixture helpers

func (m *memoryRepo) addHospital(name string) uuid.UUID {
	id := uuid.New()
	m.store.hospitals[id] = &Hospital{ID: id, Name: name}
	return id
}

func (m *memoryRepo) addDoctor(hospitalID uuid.UUID, name string, fee float64) uuid.UUID {
	id := uuid.New()
	m.store.doctors[id] = &Doctor{ID: id, HospitalID: hospitalID, Name: name, ConsultationFee: fee}
	return id
}

func (m *memoryRepo) addUser() uuid.UUID {
	id := uuid.New()
	m.store.users[id] = true
	return id
}

func (m *memoryRepo) addSession(doctorID, hospitalID uuid.UUID, capacity int, status SessionStatus, runningNumber int) uuid.UUID {
	id := uuid.New()
	now := time.Now()
	m.store.sessions[id] = &Session{
		ID:                   id,
		DoctorID:             doctorID,
		HospitalID:           hospitalID,
		Capacity:             capacity,
		Status:               status,
		ScheduledAt:          now,
		StartTime:            now.Add(time.Hour),
		EndTime:              now.Add(4 * time.Hour),
		CurrentRunningNumber: runningNumber,
	}
	return id
}

func (m *memoryRepo) setDoctorFee(id uuid.UUID, fee float64) {
	m.store.doctors[id].ConsultationFee = fee
}

func (m *memoryRepo) setSessionStatus(id uuid.UUID, status SessionStatus) {
	m.store.sessions[id].Status = status
}

func (m *memoryRepo) injectConflicts(n int) {
	m.store.conflictsLeft = n
}
