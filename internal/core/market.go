package core

import "time"

// KST is the fixed civil time zone for quota resets and market hours.
// A fixed zone avoids depending on the host tzdata.
var KST = time.FixedZone("KST", 9*60*60)

// MarketOpen reports whether the KRX regular session is open at t
// (Mon–Fri 09:00–15:30 KST).
func MarketOpen(t time.Time) bool {
	kt := t.In(KST)
	switch kt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := kt.Hour()*60 + kt.Minute()
	return mins >= 9*60 && mins <= 15*60+30
}

// NextMidnightKST returns the next KST midnight strictly after t.
func NextMidnightKST(t time.Time) time.Time {
	kt := t.In(KST)
	next := time.Date(kt.Year(), kt.Month(), kt.Day(), 0, 0, 0, 0, KST).AddDate(0, 0, 1)
	return next
}
