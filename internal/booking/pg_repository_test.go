package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var appointmentColumnNames = []string{
	"id", "appointment_number", "session_id", "booked_by_user_id",
	"patient_name", "patient_email", "patient_phone", "patient_nic", "patient_age", "patient_gender",
	"is_new_patient", "status", "consultation_fee", "total_amount", "payment_status",
	"queue_position", "medical_report_url", "cancelled_at", "created_at", "updated_at",
}

func appointmentRow(id uuid.UUID, number string, sessionID uuid.UUID, status AppointmentStatus, payment PaymentStatus, position int) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(appointmentColumnNames).AddRow(
		id, number, sessionID, nil,
		"Nimal Silva", "nimal@example.com", "0771234567", "912345678V", 34, "male",
		true, status, 2500.0, 2500.0, payment,
		position, nil, nil, now, now,
	)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPgRepositoryWithConn(mock)
}

func TestPgGetSessionByID(t *testing.T) {
	mock, repo := newMockRepo(t)

	sessionID := uuid.New()
	doctorID := uuid.New()
	hospitalID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, doctor_id, hospital_id").
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "doctor_id", "hospital_id", "capacity", "status", "scheduled_at",
			"start_time", "end_time", "current_running_number", "created_at", "updated_at",
		}).AddRow(sessionID, doctorID, hospitalID, 40, SessionOngoing, now, now, now, 7, now, now))

	session, err := repo.GetSessionByID(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSessionByID: %v", err)
	}
	if session.Capacity != 40 || session.Status != SessionOngoing || session.CurrentRunningNumber != 7 {
		t.Fatalf("unexpected session: %+v", session)
	}

	mock.ExpectQuery("SELECT id, doctor_id, hospital_id").
		WithArgs(sessionID).
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetSessionByID(context.Background(), sessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgGetAppointmentByNumberNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("SELECT(.|\n)+FROM appointments").
		WithArgs("APT-20260830-XJK2M4").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetAppointmentByNumber(context.Background(), "APT-20260830-XJK2M4"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgCompletePaymentCompareAndSet(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	sessionID := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id).
		WillReturnRows(appointmentRow(id, "APT-20260830-XJK2M4", sessionID, StatusConfirmed, PaymentCompleted, 3))

	appt, err := repo.CompletePayment(context.Background(), id)
	if err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}
	if appt.PaymentStatus != PaymentCompleted || appt.Status != StatusConfirmed {
		t.Fatalf("unexpected appointment after payment: %+v", appt)
	}

	// A second completion matches no row: the status predicate already moved
	// the row off PENDING.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.CompletePayment(context.Background(), id); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgCancelAppointmentAlreadyCancelled(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.CancelAppointment(context.Background(), id); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgMaxQueuePosition(t *testing.T) {
	mock, repo := newMockRepo(t)

	sessionID := uuid.New()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(queue_position\), 0\)`).
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(12))

	max, err := repo.MaxQueuePosition(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("MaxQueuePosition: %v", err)
	}
	if max != 12 {
		t.Fatalf("expected max 12, got %d", max)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgCreateAppointmentGuestBooking(t *testing.T) {
	mock, repo := newMockRepo(t)

	params := CreateAppointmentParams{
		ID:                uuid.New(),
		AppointmentNumber: "APT-20260830-XJK2M4",
		SessionID:         uuid.New(),
		BookedBy:          GuestBooking(),
		Patient: Patient{
			Name: "Nimal Silva", Email: "nimal@example.com", Phone: "0771234567",
			NIC: "912345678V", Age: 34, Gender: "male",
		},
		IsNewPatient:    true,
		ConsultationFee: 2500,
		TotalAmount:     2500,
		QueuePosition:   1,
	}

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(
			params.ID, params.AppointmentNumber, params.SessionID, (*uuid.UUID)(nil),
			params.Patient.Name, params.Patient.Email, params.Patient.Phone,
			params.Patient.NIC, params.Patient.Age, params.Patient.Gender,
			params.IsNewPatient, params.ConsultationFee, params.TotalAmount,
			params.QueuePosition, (*string)(nil),
		).
		WillReturnRows(appointmentRow(params.ID, params.AppointmentNumber, params.SessionID, StatusConfirmed, PaymentPending, 1))

	appt, err := repo.CreateAppointment(context.Background(), params)
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if _, ok := appt.BookedBy.UserID(); ok {
		t.Fatalf("guest booking should carry no user id")
	}
	if appt.QueuePosition != 1 || appt.PaymentStatus != PaymentPending {
		t.Fatalf("unexpected appointment: %+v", appt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgFindRunningStatuses(t *testing.T) {
	mock, repo := newMockRepo(t)

	variants := []string{"0771234567", "94771234567", "+94771234567"}
	mock.ExpectQuery("SELECT a.appointment_number").
		WithArgs(variants).
		WillReturnRows(pgxmock.NewRows([]string{
			"appointment_number", "patient_name", "name", "name", "current_running_number", "queue_position",
		}).AddRow("APT-20260830-XJK2M4", "Nimal Silva", "Dr. Perera", "Lakeside General", 7, 12))

	statuses, err := repo.FindRunningStatuses(context.Background(), variants)
	if err != nil {
		t.Fatalf("FindRunningStatuses: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected one status, got %d", len(statuses))
	}
	if statuses[0].CurrentRunningNumber != 7 || statuses[0].YourNumber != 12 {
		t.Fatalf("unexpected status: %+v", statuses[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMapConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrConflict},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrConflict},
		{"other pg error", &pgconn.PgError{Code: "23503"}, nil},
		{"plain error", errors.New("boom"), nil},
	}
	for _, tt := range tests {
		got := mapConflict(tt.err)
		if tt.want != nil {
			if !errors.Is(got, tt.want) {
				t.Errorf("%s: mapConflict = %v, want %v", tt.name, got, tt.want)
			}
			continue
		}
		if !errors.Is(got, tt.err) && got.Error() != tt.err.Error() {
			t.Errorf("%s: mapConflict = %v, want original error", tt.name, got)
		}
	}
}
