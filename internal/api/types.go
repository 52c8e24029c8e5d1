package api

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medilink/session-booking/internal/booking"
)

var (
	nicPattern   = regexp.MustCompile(`^\d{9}[VvXx]$|^\d{12}$`)
	phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)
)

var validGenders = map[string]bool{
	"male":   true,
	"female": true,
	"other":  true,
}

type CreateBookingRequest struct {
	SessionID        string  `json:"session_id"`
	PatientName      string  `json:"patient_name"`
	PatientEmail     string  `json:"patient_email"`
	PatientPhone     string  `json:"patient_phone"`
	PatientNIC       string  `json:"patient_nic"`
	PatientAge       int     `json:"patient_age"`
	PatientGender    string  `json:"patient_gender"`
	UserID           *string `json:"user_id,omitempty"`
	MedicalReportURL *string `json:"medical_report_url,omitempty"`
}

// Validate rejects malformed input before any transaction is opened. The
// first applicable violation is returned, not an aggregate.
func (r CreateBookingRequest) Validate() error {
	if strings.TrimSpace(r.PatientName) == "" {
		return errors.New("patient_name is required")
	}
	if r.PatientEmail != "" && !strings.Contains(r.PatientEmail, "@") {
		return errors.New("patient_email is not a valid email address")
	}
	if !phonePattern.MatchString(r.PatientPhone) {
		return errors.New("patient_phone must be 10-15 digits with an optional leading +")
	}
	if !nicPattern.MatchString(r.PatientNIC) {
		return errors.New("patient_nic must be 9 digits followed by V/X, or 12 digits")
	}
	if r.PatientAge < 1 || r.PatientAge > 120 {
		return errors.New("patient_age must be between 1 and 120")
	}
	if !validGenders[strings.ToLower(r.PatientGender)] {
		return errors.New("patient_gender must be one of male, female, other")
	}
	return nil
}

type UpdateBookingRequest struct {
	PatientName      *string `json:"patient_name,omitempty"`
	PatientEmail     *string `json:"patient_email,omitempty"`
	PatientPhone     *string `json:"patient_phone,omitempty"`
	PatientAge       *int    `json:"patient_age,omitempty"`
	MedicalReportURL *string `json:"medical_report_url,omitempty"`
}

func (r UpdateBookingRequest) Validate() error {
	if r.PatientName != nil && strings.TrimSpace(*r.PatientName) == "" {
		return errors.New("patient_name must not be empty")
	}
	if r.PatientEmail != nil && !strings.Contains(*r.PatientEmail, "@") {
		return errors.New("patient_email is not a valid email address")
	}
	if r.PatientPhone != nil && !phonePattern.MatchString(*r.PatientPhone) {
		return errors.New("patient_phone must be 10-15 digits with an optional leading +")
	}
	if r.PatientAge != nil && (*r.PatientAge < 1 || *r.PatientAge > 120) {
		return errors.New("patient_age must be between 1 and 120")
	}
	return nil
}

func (r UpdateBookingRequest) Patch() booking.AppointmentPatch {
	return booking.AppointmentPatch{
		PatientName:      r.PatientName,
		PatientEmail:     r.PatientEmail,
		PatientPhone:     r.PatientPhone,
		PatientAge:       r.PatientAge,
		MedicalReportURL: r.MedicalReportURL,
	}
}

type AppointmentResponse struct {
	ID                uuid.UUID  `json:"appointment_id"`
	AppointmentNumber string     `json:"appointment_number"`
	SessionID         uuid.UUID  `json:"session_id"`
	BookedByUserID    *uuid.UUID `json:"booked_by_user_id,omitempty"`
	PatientName       string     `json:"patient_name"`
	PatientEmail      string     `json:"patient_email"`
	PatientPhone      string     `json:"patient_phone"`
	PatientNIC        string     `json:"patient_nic"`
	PatientAge        int        `json:"patient_age"`
	PatientGender     string     `json:"patient_gender"`
	IsNewPatient      bool       `json:"is_new_patient"`
	Status            string     `json:"status"`
	ConsultationFee   float64    `json:"consultation_fee"`
	TotalAmount       float64    `json:"total_amount"`
	PaymentStatus     string     `json:"payment_status"`
	QueuePosition     int        `json:"queue_position"`
	MedicalReportURL  *string    `json:"medical_report_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                a.ID,
		AppointmentNumber: a.AppointmentNumber,
		SessionID:         a.SessionID,
		PatientName:       a.Patient.Name,
		PatientEmail:      a.Patient.Email,
		PatientPhone:      a.Patient.Phone,
		PatientNIC:        a.Patient.NIC,
		PatientAge:        a.Patient.Age,
		PatientGender:     a.Patient.Gender,
		IsNewPatient:      a.IsNewPatient,
		Status:            string(a.Status),
		ConsultationFee:   a.ConsultationFee,
		TotalAmount:       a.TotalAmount,
		PaymentStatus:     string(a.PaymentStatus),
		QueuePosition:     a.QueuePosition,
		MedicalReportURL:  a.MedicalReportURL,
		CreatedAt:         a.CreatedAt,
	}
	if userID, ok := a.BookedBy.UserID(); ok {
		id := userID
		resp.BookedByUserID = &id
	}
	return resp
}

type CancelResponse struct {
	AppointmentNumber string     `json:"appointment_number"`
	Status            string     `json:"status"`
	CancellationDate  *time.Time `json:"cancellation_date"`
}

type PaymentResponse struct {
	AppointmentNumber string    `json:"appointment_number"`
	Status            string    `json:"status"`
	PaymentStatus     string    `json:"payment_status"`
	TotalAmount       float64   `json:"total_amount"`
	PatientName       string    `json:"patient_name"`
	DoctorName        string    `json:"doctor_name"`
	HospitalName      string    `json:"hospital_name"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	StartTime         time.Time `json:"start_time"`
	QueuePosition     int       `json:"queue_position"`
}

type RunningStatusResponse struct {
	AppointmentNumber    string `json:"appointment_number"`
	PatientName          string `json:"patient_name"`
	DoctorName           string `json:"doctor_name"`
	HospitalName         string `json:"hospital_name"`
	CurrentRunningNumber int    `json:"current_running_number"`
	YourNumber           int    `json:"your_number"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
