package booking

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"
)

// Appointment numbers are read out over the phone, so the alphabet drops the
// visually ambiguous 0/O and 1/I/L.
const numberAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const numberSuffixLen = 6

var appointmentNumberPattern = regexp.MustCompile(`^[A-Z]{2,5}-\d{8}-[2-9A-HJKMNP-Z]{6}$`)

// NewAppointmentNumber produces a PREFIX-YYYYMMDD-XXXXXX identifier. All six
// suffix characters come from crypto/rand rather than a global counter, so
// concurrent generators need no coordination and requests landing on the same
// clock reading stay independent. Uniqueness is still enforced by the
// appointment_number unique constraint; creation retries on the (very
// unlikely) collision.
func NewAppointmentNumber(prefix string, now time.Time) string {
	suffix := make([]byte, numberSuffixLen)

	buf := make([]byte, numberSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the
		// clock so generation stays non-blocking.
		for i := range buf {
			buf[i] = byte(now.UnixNano() >> (8 * i))
		}
	}

	n := len(numberAlphabet)
	for i, b := range buf {
		suffix[i] = numberAlphabet[int(b)%n]
	}

	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}

// ValidAppointmentNumber reports whether s has the public identifier format.
func ValidAppointmentNumber(s string) bool {
	return appointmentNumberPattern.MatchString(s)
}
