package tuition

import "time"

// SetNow replaces the service clock and returns a func restoring it.
func SetNow(now func() time.Time) (restore func()) {
	prev := nowFunc
	nowFunc = now
	return func() { nowFunc = prev }
}

func StampPaymentDate(date, now time.Time) time.Time { return stampPaymentDate(date, now) }
