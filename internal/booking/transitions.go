package booking

// Allowed status transitions, in one place instead of scattered across call
// sites. Cancellation is reachable from any state for sessions and refunds
// are reachable from any state for payments.

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled: {SessionOngoing, SessionCancelled},
	SessionOngoing:   {SessionCompleted, SessionCancelled},
	SessionCompleted: {SessionCancelled},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed, PaymentRefunded},
	PaymentCompleted: {PaymentRefunded},
	PaymentFailed:    {PaymentRefunded},
	PaymentUnpaid:    {PaymentRefunded},
	PaymentCancelled: {PaymentRefunded},
}

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow, StatusRescheduled},
	StatusUnpaid:    {StatusConfirmed, StatusCancelled},
}

// validSessionTransition documents the session lifecycle. Sessions are moved
// between states by staff-facing operations outside this service, which only
// reads them, so nothing here calls it outside tests.
func validSessionTransition(from, to SessionStatus) bool {
	return contains(sessionTransitions[from], to)
}

func ValidPaymentTransition(from, to PaymentStatus) bool {
	return contains(paymentTransitions[from], to)
}

func ValidAppointmentTransition(from, to AppointmentStatus) bool {
	return contains(appointmentTransitions[from], to)
}

func contains[T comparable](allowed []T, v T) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
