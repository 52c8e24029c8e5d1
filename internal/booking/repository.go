package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	ErrSessionUnavailable     = errors.New("session is not open for booking")
	ErrSessionClosed          = errors.New("session is no longer accepting payment")
	ErrDuplicateActiveBooking = errors.New("patient already has a confirmed booking for this session")
	ErrCapacityExceeded       = errors.New("session queue is full")
	ErrAlreadyPaid            = errors.New("payment already completed")

	// ErrConflict marks a serialization failure or unique-constraint race on
	// the read-max-then-insert sequence. The service retries it a bounded
	// number of times before surfacing it.
	ErrConflict = errors.New("concurrent booking conflict, retry")
)

type CreateAppointmentParams struct {
	ID                uuid.UUID
	AppointmentNumber string
	SessionID         uuid.UUID
	BookedBy          BookedBy
	Patient           Patient
	IsNewPatient      bool
	ConsultationFee   float64
	TotalAmount       float64
	QueuePosition     int
	MedicalReportURL  *string
}

// Repository contains all DB interactions needed by the service. InTx runs fn
// against a transaction-scoped repository; the booking path depends on its
// isolation level to keep queue positions dense and unique, so fakes used in
// tests must serialize InTx bodies the same way.
type Repository interface {
	InTx(ctx context.Context, fn func(r Repository) error) error

	GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)

	// Booking engine reads, all inside the InTx isolation boundary.
	HasConfirmedAppointment(ctx context.Context, sessionID uuid.UUID, nic string) (bool, error)
	CountAppointmentsByNIC(ctx context.Context, nic string) (int, error)
	MaxQueuePosition(ctx context.Context, sessionID uuid.UUID) (int, error)

	CreateAppointment(ctx context.Context, params CreateAppointmentParams) (*Appointment, error)

	GetAppointmentByNumber(ctx context.Context, number string) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error)

	// Compare-and-set operations, single-row atomicity.
	CompletePayment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	GetReceiptDetails(ctx context.Context, appointmentID uuid.UUID) (*Receipt, error)
	FindRunningStatuses(ctx context.Context, phoneVariants []string) ([]RunningStatus, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
