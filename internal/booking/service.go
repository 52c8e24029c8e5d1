package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/medilink/session-booking/internal/config"
)

const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventPaymentCompleted = "PAYMENT_COMPLETED"
	EventBookingCancelled = "BOOKING_CANCELLED"
)

var ErrInvalidStatusTransition = errors.New("invalid status transition")

type Service struct {
	repo Repository
	cfg  config.Config
}

func NewService(repo Repository, cfg config.Config) *Service {
	return &Service{
		repo: repo,
		cfg:  cfg,
	}
}

type CreateBookingInput struct {
	SessionID        uuid.UUID
	Patient          Patient
	BookedBy         BookedBy
	MedicalReportURL *string
}

// CreateBooking allocates the next queue position for a session and persists
// the appointment. The whole read-validate-insert sequence runs inside one
// serializable transaction so two concurrent requests can never observe the
// same maximum position; conflicts are retried a bounded number of times.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*Appointment, error) {
	// A registered user must exist before any transaction is opened.
	if userID, ok := in.BookedBy.UserID(); ok {
		exists, err := s.repo.UserExists(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return nil, ErrUserNotFound
		}
	}

	var created *Appointment
	var lastErr error

	for attempt := 0; attempt <= s.cfg.BookingMaxRetries; attempt++ {
		created, lastErr = s.tryCreateBooking(ctx, in)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, ErrConflict) {
			return nil, lastErr
		}
		log.Printf("booking conflict on session=%s attempt=%d, retrying", in.SessionID, attempt+1)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	s.logEvent(ctx, created.ID, EventBookingCreated, map[string]any{
		"session_id":     created.SessionID.String(),
		"queue_position": created.QueuePosition,
		"new_patient":    created.IsNewPatient,
	})

	return created, nil
}

func (s *Service) tryCreateBooking(ctx context.Context, in CreateBookingInput) (*Appointment, error) {
	var created *Appointment

	err := s.repo.InTx(ctx, func(tx Repository) error {
		session, err := tx.GetSessionByID(ctx, in.SessionID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return ErrSessionUnavailable
			}
			return fmt.Errorf("load session: %w", err)
		}
		if session.Status != SessionScheduled {
			return ErrSessionUnavailable
		}

		dup, err := tx.HasConfirmedAppointment(ctx, session.ID, in.Patient.NIC)
		if err != nil {
			return fmt.Errorf("check duplicate booking: %w", err)
		}
		if dup {
			return ErrDuplicateActiveBooking
		}

		priorCount, err := tx.CountAppointmentsByNIC(ctx, in.Patient.NIC)
		if err != nil {
			return fmt.Errorf("count patient history: %w", err)
		}

		maxPos, err := tx.MaxQueuePosition(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("read max queue position: %w", err)
		}
		position := maxPos + 1
		if position > session.Capacity {
			// Hard rejection; the rolled-back transaction consumes no number.
			return ErrCapacityExceeded
		}

		// Price is fixed at booking time, immune to later fee changes.
		doctor, err := tx.GetDoctorByID(ctx, session.DoctorID)
		if err != nil {
			return fmt.Errorf("load doctor: %w", err)
		}

		appt, err := tx.CreateAppointment(ctx, CreateAppointmentParams{
			ID:                uuid.New(),
			AppointmentNumber: NewAppointmentNumber(s.cfg.AppointmentNumberPrefix, time.Now()),
			SessionID:         session.ID,
			BookedBy:          in.BookedBy,
			Patient:           in.Patient,
			IsNewPatient:      priorCount == 0,
			ConsultationFee:   doctor.ConsultationFee,
			TotalAmount:       doctor.ConsultationFee,
			QueuePosition:     position,
			MedicalReportURL:  in.MedicalReportURL,
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

	return created, nil
}

// CompletePayment moves an appointment's payment exactly once from PENDING to
// COMPLETED. Gateways retry callbacks, so a duplicate completion is rejected
// rather than silently accepted.
func (s *Service) CompletePayment(ctx context.Context, appointmentNumber string) (*Receipt, error) {
	appt, err := s.repo.GetAppointmentByNumber(ctx, appointmentNumber)
	if err != nil {
		return nil, err
	}

	session, err := s.repo.GetSessionByID(ctx, appt.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.Status != SessionScheduled {
		return nil, ErrSessionClosed
	}

	if appt.PaymentStatus == PaymentCompleted {
		return nil, ErrAlreadyPaid
	}
	if !ValidPaymentTransition(appt.PaymentStatus, PaymentCompleted) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.CompletePayment(ctx, appt.ID)
	if err != nil {
		// A concurrent completion won the compare-and-set.
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventPaymentCompleted, map[string]any{
		"total_amount": updated.TotalAmount,
	})

	receipt, err := s.repo.GetReceiptDetails(ctx, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("load receipt details: %w", err)
	}
	return receipt, nil
}

// UpdateBooking merges the supplied fields into an appointment. An empty
// patch is a plain fetch, used by the cancellation flow to resolve the
// appointment before acting on it.
func (s *Service) UpdateBooking(ctx context.Context, appointmentNumber string, patch AppointmentPatch) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByNumber(ctx, appointmentNumber)
	if err != nil {
		return nil, err
	}

	if patch.Empty() {
		return appt, nil
	}

	session, err := s.repo.GetSessionByID(ctx, appt.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.Status != SessionScheduled {
		return nil, ErrSessionUnavailable
	}

	updated, err := s.repo.UpdateAppointment(ctx, appt.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return updated, nil
}

// CancelBooking marks an appointment CANCELLED with a cancellation timestamp.
// The queue position stays consumed; later patients never shift forward.
func (s *Service) CancelBooking(ctx context.Context, appointmentNumber string) (*Appointment, error) {
	appt, err := s.UpdateBooking(ctx, appointmentNumber, AppointmentPatch{})
	if err != nil {
		return nil, err
	}
	return s.CancelAppointment(ctx, appt.ID)
}

// CancelAppointment cancels by internal id.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ValidAppointmentTransition(appt.Status, StatusCancelled) {
		return nil, ErrInvalidStatusTransition
	}

	cancelled, err := s.repo.CancelAppointment(ctx, appt.ID)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, cancelled.ID, EventBookingCancelled, map[string]any{
		"queue_position": cancelled.QueuePosition,
	})

	return cancelled, nil
}

// GetRunningStatus resolves a phone number to live queue entries. The number
// is expanded to every equivalent stored representation because entry points
// have stored phones inconsistently. An empty result is not an error.
func (s *Service) GetRunningStatus(ctx context.Context, phone string) ([]RunningStatus, error) {
	variants := PhoneVariants(phone, s.cfg.CountryCallingCode)
	if len(variants) == 0 {
		return []RunningStatus{}, nil
	}

	statuses, err := s.repo.FindRunningStatuses(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("find running statuses: %w", err)
	}
	if statuses == nil {
		statuses = []RunningStatus{}
	}
	return statuses, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
