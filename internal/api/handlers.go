package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medilink/session-booking/internal/booking"
	"github.com/medilink/session-booking/internal/metrics"
)

// BookingService is the slice of the booking core the handlers need; tests
// substitute a fake.
type BookingService interface {
	CreateBooking(ctx context.Context, in booking.CreateBookingInput) (*booking.Appointment, error)
	CompletePayment(ctx context.Context, appointmentNumber string) (*booking.Receipt, error)
	UpdateBooking(ctx context.Context, appointmentNumber string, patch booking.AppointmentPatch) (*booking.Appointment, error)
	CancelBooking(ctx context.Context, appointmentNumber string) (*booking.Appointment, error)
	GetRunningStatus(ctx context.Context, phone string) ([]booking.RunningStatus, error)
}

func createBookingHandler(svc BookingService, m *metrics.BookingMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		sessionID, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "session_id must be a valid UUID")
			return
		}

		bookedBy := booking.GuestBooking()
		if req.UserID != nil {
			userID, err := uuid.Parse(*req.UserID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
				return
			}
			bookedBy = booking.AuthenticatedBooking(userID)
		}

		appt, err := svc.CreateBooking(r.Context(), booking.CreateBookingInput{
			SessionID: sessionID,
			Patient: booking.Patient{
				Name:   req.PatientName,
				Email:  req.PatientEmail,
				Phone:  req.PatientPhone,
				NIC:    req.PatientNIC,
				Age:    req.PatientAge,
				Gender: req.PatientGender,
			},
			BookedBy:         bookedBy,
			MedicalReportURL: req.MedicalReportURL,
		})
		if err != nil {
			m.ObserveBooking(outcomeOf(err))
			handleCreateError(w, err)
			return
		}

		m.ObserveBooking("created")
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func updateBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")
		if !booking.ValidAppointmentNumber(number) {
			writeError(w, http.StatusBadRequest, "invalid_appointment_number", "malformed appointment number")
			return
		}

		var req UpdateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		appt, err := svc.UpdateBooking(r.Context(), number, req.Patch())
		if err != nil {
			handleMutationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")
		if !booking.ValidAppointmentNumber(number) {
			writeError(w, http.StatusBadRequest, "invalid_appointment_number", "malformed appointment number")
			return
		}

		appt, err := svc.CancelBooking(r.Context(), number)
		if err != nil {
			handleMutationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			AppointmentNumber: appt.AppointmentNumber,
			Status:            string(appt.Status),
			CancellationDate:  appt.CancelledAt,
		})
	}
}

func completePaymentHandler(svc BookingService, m *metrics.BookingMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")
		if !booking.ValidAppointmentNumber(number) {
			writeError(w, http.StatusBadRequest, "invalid_appointment_number", "malformed appointment number")
			return
		}

		receipt, err := svc.CompletePayment(r.Context(), number)
		if err != nil {
			m.ObservePayment(outcomeOf(err))
			handlePaymentError(w, err)
			return
		}

		m.ObservePayment("completed")
		a := receipt.Appointment
		writeJSON(w, http.StatusOK, PaymentResponse{
			AppointmentNumber: a.AppointmentNumber,
			Status:            string(a.Status),
			PaymentStatus:     string(a.PaymentStatus),
			TotalAmount:       a.TotalAmount,
			PatientName:       a.Patient.Name,
			DoctorName:        receipt.DoctorName,
			HospitalName:      receipt.HospitalName,
			ScheduledAt:       receipt.ScheduledAt,
			StartTime:         receipt.StartTime,
			QueuePosition:     a.QueuePosition,
		})
	}
}

func runningStatusHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if !phonePattern.MatchString(phone) {
			writeError(w, http.StatusBadRequest, "invalid_phone", "phone must be 10-15 digits with an optional leading +")
			return
		}

		statuses, err := svc.GetRunningStatus(r.Context(), phone)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]RunningStatusResponse, 0, len(statuses))
		for _, s := range statuses {
			resp = append(resp, RunningStatusResponse{
				AppointmentNumber:    s.AppointmentNumber,
				PatientName:          s.PatientName,
				DoctorName:           s.DoctorName,
				HospitalName:         s.HospitalName,
				CurrentRunningNumber: s.CurrentRunningNumber,
				YourNumber:           s.YourNumber,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSessionUnavailable):
		writeError(w, http.StatusConflict, "session_unavailable", err.Error())
	case errors.Is(err, booking.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, booking.ErrDuplicateActiveBooking):
		writeError(w, http.StatusConflict, "duplicate_active_booking", err.Error())
	case errors.Is(err, booking.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "capacity_exceeded", err.Error())
	case errors.Is(err, booking.ErrConflict):
		writeError(w, http.StatusConflict, "booking_conflict", "session is being booked concurrently, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSessionUnavailable):
		writeError(w, http.StatusConflict, "session_unavailable", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handlePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSessionClosed):
		writeError(w, http.StatusConflict, "session_closed", err.Error())
	case errors.Is(err, booking.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "already_paid", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, booking.ErrSessionUnavailable):
		return "session_unavailable"
	case errors.Is(err, booking.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, booking.ErrDuplicateActiveBooking):
		return "duplicate"
	case errors.Is(err, booking.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, booking.ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, booking.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
