package booking

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionOngoing   SessionStatus = "ONGOING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

type AppointmentStatus string

const (
	StatusConfirmed   AppointmentStatus = "CONFIRMED"
	StatusCancelled   AppointmentStatus = "CANCELLED"
	StatusCompleted   AppointmentStatus = "COMPLETED"
	StatusNoShow      AppointmentStatus = "NO_SHOW"
	StatusRescheduled AppointmentStatus = "RESCHEDULED"
	StatusUnpaid      AppointmentStatus = "UNPAID"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentUnpaid    PaymentStatus = "UNPAID"
)

type Hospital struct {
	ID        uuid.UUID
	Name      string
	City      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID              uuid.UUID
	HospitalID      uuid.UUID
	Name            string
	Specialty       *string
	ConsultationFee float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type User struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is one clinical slot run by one doctor at one hospital. Bookings may
// only be created or mutated while the session is SCHEDULED. The current
// running number is advanced by staff-facing operations elsewhere; this
// service only reads it.
type Session struct {
	ID                   uuid.UUID
	DoctorID             uuid.UUID
	HospitalID           uuid.UUID
	Capacity             int
	Status               SessionStatus
	ScheduledAt          time.Time
	StartTime            time.Time
	EndTime              time.Time
	CurrentRunningNumber int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// BookedBy distinguishes guest bookings from bookings made by a registered
// user, so callers cannot forget to handle the guest case.
type BookedBy struct {
	userID uuid.UUID
	valid  bool
}

func GuestBooking() BookedBy {
	return BookedBy{}
}

func AuthenticatedBooking(userID uuid.UUID) BookedBy {
	return BookedBy{userID: userID, valid: true}
}

// UserID reports the booking user, if any.
func (b BookedBy) UserID() (uuid.UUID, bool) {
	return b.userID, b.valid
}

type Patient struct {
	Name   string
	Email  string
	Phone  string
	NIC    string
	Age    int
	Gender string
}

type Appointment struct {
	ID                uuid.UUID
	AppointmentNumber string
	SessionID         uuid.UUID
	BookedBy          BookedBy
	Patient           Patient
	IsNewPatient      bool
	Status            AppointmentStatus
	ConsultationFee   float64
	TotalAmount       float64
	PaymentStatus     PaymentStatus
	QueuePosition     int
	MedicalReportURL  *string
	CancelledAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppointmentPatch carries a partial update. Nil fields are left untouched.
type AppointmentPatch struct {
	PatientName      *string
	PatientEmail     *string
	PatientPhone     *string
	PatientAge       *int
	MedicalReportURL *string
}

func (p AppointmentPatch) Empty() bool {
	return p.PatientName == nil &&
		p.PatientEmail == nil &&
		p.PatientPhone == nil &&
		p.PatientAge == nil &&
		p.MedicalReportURL == nil
}

// Receipt is the denormalized view returned after payment completion, used by
// the caller to render a receipt.
type Receipt struct {
	Appointment  Appointment
	DoctorName   string
	HospitalName string
	ScheduledAt  time.Time
	StartTime    time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// RunningStatus is one live queue entry for a phone number lookup.
type RunningStatus struct {
	AppointmentNumber    string
	PatientName          string
	DoctorName           string
	HospitalName         string
	CurrentRunningNumber int
	YourNumber           int
}
