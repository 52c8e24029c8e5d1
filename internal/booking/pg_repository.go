package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `
	id, appointment_number, session_id, booked_by_user_id,
	patient_name, patient_email, patient_phone, patient_nic, patient_age, patient_gender,
	is_new_patient, status, consultation_fee, total_amount, payment_status,
	queue_position, medical_report_url, cancelled_at, created_at, updated_at`

type dbConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool *pgxpool.Pool // nil when scoped to a transaction
	db   dbConn
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, db: pool}
}

// NewPgRepositoryWithConn allows injecting a mock connection in tests.
func NewPgRepositoryWithConn(conn dbConn) *PgRepository {
	return &PgRepository{db: conn}
}

// InTx runs fn against a serializable transaction. Serializable isolation is
// what makes the read-max-then-insert queue assignment safe; the unique
// constraint on (session_id, queue_position) is the backstop. Both failure
// modes are surfaced as ErrConflict so the service can retry.
func (r *PgRepository) InTx(ctx context.Context, fn func(r Repository) error) error {
	if r.pool == nil {
		// Already inside a transaction; nested InTx joins it.
		return fn(r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&PgRepository{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return mapConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapConflict(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001": // serialization_failure
			return ErrConflict
		case "23505": // unique_violation
			return ErrConflict
		}
	}
	return err
}

// Scan helpers

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.HospitalID,
		&s.Capacity,
		&s.Status,
		&s.ScheduledAt,
		&s.StartTime,
		&s.EndTime,
		&s.CurrentRunningNumber,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.HospitalID,
		&d.Name,
		&d.Specialty,
		&d.ConsultationFee,
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
	var bookedByUserID *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.AppointmentNumber,
		&a.SessionID,
		&bookedByUserID,
		&a.Patient.Name,
		&a.Patient.Email,
		&a.Patient.Phone,
		&a.Patient.NIC,
		&a.Patient.Age,
		&a.Patient.Gender,
		&a.IsNewPatient,
		&a.Status,
		&a.ConsultationFee,
		&a.TotalAmount,
		&a.PaymentStatus,
		&a.QueuePosition,
		&a.MedicalReportURL,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if bookedByUserID != nil {
		a.BookedBy = AuthenticatedBooking(*bookedByUserID)
	} else {
		a.BookedBy = GuestBooking()
	}
	return &a, nil
}

// Interface methods

func (r *PgRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, hospital_id, capacity, status, scheduled_at,
		       start_time, end_time, current_running_number, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, hospital_id, name, specialty, consultation_fee, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) HasConfirmedAppointment(ctx context.Context, sessionID uuid.UUID, nic string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE session_id = $1 AND patient_nic = $2 AND status = 'CONFIRMED'
		)
	`, sessionID, nic).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) CountAppointmentsByNIC(ctx context.Context, nic string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments WHERE patient_nic = $1
	`, nic).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) MaxQueuePosition(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var max int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_position), 0) FROM appointments WHERE session_id = $1
	`, sessionID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, params CreateAppointmentParams) (*Appointment, error) {
	var bookedByUserID *uuid.UUID
	if id, ok := params.BookedBy.UserID(); ok {
		bookedByUserID = &id
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, appointment_number, session_id, booked_by_user_id,
			patient_name, patient_email, patient_phone, patient_nic, patient_age, patient_gender,
			is_new_patient, status, consultation_fee, total_amount, payment_status,
			queue_position, medical_report_url, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, 'CONFIRMED', $12, $13, 'PENDING', $14, $15, now(), now())
		RETURNING `+appointmentColumns+`
	`,
		params.ID, params.AppointmentNumber, params.SessionID, bookedByUserID,
		params.Patient.Name, params.Patient.Email, params.Patient.Phone,
		params.Patient.NIC, params.Patient.Age, params.Patient.Gender,
		params.IsNewPatient, params.ConsultationFee, params.TotalAmount,
		params.QueuePosition, params.MedicalReportURL,
	)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByNumber(ctx context.Context, number string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_number = $1
	`, number)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// UpdateAppointment merges only the supplied fields; NULL parameters leave the
// stored value untouched.
func (r *PgRepository) UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET patient_name       = COALESCE($2, patient_name),
		    patient_email      = COALESCE($3, patient_email),
		    patient_phone      = COALESCE($4, patient_phone),
		    patient_age        = COALESCE($5, patient_age),
		    medical_report_url = COALESCE($6, medical_report_url),
		    updated_at         = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, patch.PatientName, patch.PatientEmail, patch.PatientPhone, patch.PatientAge, patch.MedicalReportURL)
	return scanAppointment(row)
}

// CompletePayment flips PENDING to COMPLETED. The status predicate makes the
// update safe against gateway callback retries: a second call matches no row
// and the caller reports AlreadyPaid.
func (r *PgRepository) CompletePayment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET payment_status = 'COMPLETED',
		    status         = 'CONFIRMED',
		    updated_at     = now()
		WHERE id = $1
		  AND payment_status = 'PENDING'
		RETURNING `+appointmentColumns+`
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrAlreadyPaid
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status       = 'CANCELLED',
		    cancelled_at = now(),
		    updated_at   = now()
		WHERE id = $1
		  AND status <> 'CANCELLED'
		RETURNING `+appointmentColumns+`
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetReceiptDetails(ctx context.Context, appointmentID uuid.UUID) (*Receipt, error) {
	var rc Receipt
	var bookedByUserID *uuid.UUID
	a := &rc.Appointment

	err := r.db.QueryRow(ctx, `
		SELECT a.id, a.appointment_number, a.session_id, a.booked_by_user_id,
		       a.patient_name, a.patient_email, a.patient_phone, a.patient_nic, a.patient_age, a.patient_gender,
		       a.is_new_patient, a.status, a.consultation_fee, a.total_amount, a.payment_status,
		       a.queue_position, a.medical_report_url, a.cancelled_at, a.created_at, a.updated_at,
		       d.name, h.name, s.scheduled_at, s.start_time
		FROM appointments a
		JOIN sessions s ON s.id = a.session_id
		JOIN doctors d ON d.id = s.doctor_id
		JOIN hospitals h ON h.id = s.hospital_id
		WHERE a.id = $1
	`, appointmentID).Scan(
		&a.ID, &a.AppointmentNumber, &a.SessionID, &bookedByUserID,
		&a.Patient.Name, &a.Patient.Email, &a.Patient.Phone, &a.Patient.NIC, &a.Patient.Age, &a.Patient.Gender,
		&a.IsNewPatient, &a.Status, &a.ConsultationFee, &a.TotalAmount, &a.PaymentStatus,
		&a.QueuePosition, &a.MedicalReportURL, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt,
		&rc.DoctorName, &rc.HospitalName, &rc.ScheduledAt, &rc.StartTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if bookedByUserID != nil {
		a.BookedBy = AuthenticatedBooking(*bookedByUserID)
	} else {
		a.BookedBy = GuestBooking()
	}
	return &rc, nil
}

// FindRunningStatuses returns live queue entries for any of the given phone
// representations. Only ONGOING sessions have a meaningful running number.
func (r *PgRepository) FindRunningStatuses(ctx context.Context, phoneVariants []string) ([]RunningStatus, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.appointment_number, a.patient_name, d.name, h.name,
		       s.current_running_number, a.queue_position
		FROM appointments a
		JOIN sessions s ON s.id = a.session_id
		JOIN doctors d ON d.id = s.doctor_id
		JOIN hospitals h ON h.id = s.hospital_id
		WHERE a.patient_phone = ANY($1)
		  AND a.status = 'CONFIRMED'
		  AND s.status = 'ONGOING'
		ORDER BY a.created_at DESC
	`, phoneVariants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RunningStatus
	for rows.Next() {
		var rs RunningStatus
		err := rows.Scan(
			&rs.AppointmentNumber,
			&rs.PatientName,
			&rs.DoctorName,
			&rs.HospitalName,
			&rs.CurrentRunningNumber,
			&rs.YourNumber,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, rs)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO booking_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
