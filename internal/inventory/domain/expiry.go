package domain

import "time"

// DefaultNearExpiryDays is the default upper bound of the near-expiry window
const DefaultNearExpiryDays = 90

const day = 24 * time.Hour

// ExpiryClassifier derives a batch's ExpiryStatus from its expiry date
type ExpiryClassifier struct {
	NearExpiryDays int
}

// NewExpiryClassifier returns a classifier with the given window. A negative
// window falls back to the default.
func NewExpiryClassifier(nearExpiryDays int) ExpiryClassifier {
	if nearExpiryDays < 0 {
		nearExpiryDays = DefaultNearExpiryDays
	}
	return ExpiryClassifier{NearExpiryDays: nearExpiryDays}
}

// DaysToExpiry is ceil((expiry - now) / 24h). A batch expiring in five hours
// has 1 day left; one that expired five hours ago rounds up to 0.
func DaysToExpiry(expiry, now time.Time) int {
	d := expiry.Sub(now)
	days := d / day
	// Division truncates toward zero, which is already the ceiling for negatives
	if d%day > 0 {
		days++
	}
	return int(days)
}

// Classify returns expired below zero days, nearExpiry up to and including
// the window, available beyond it.
func (c ExpiryClassifier) Classify(expiry, now time.Time) ExpiryStatus {
	return c.ClassifyDays(DaysToExpiry(expiry, now))
}

// ClassifyDays classifies an already computed day count
func (c ExpiryClassifier) ClassifyDays(days int) ExpiryStatus {
	switch {
	case days < 0:
		return StatusExpired
	case days <= c.NearExpiryDays:
		return StatusNearExpiry
	default:
		return StatusAvailable
	}
}

// ExpiryRange is the set of expiry instants that classify to one status at a
// given now: After < expiry <= NotAfter, with nil meaning unbounded.
type ExpiryRange struct {
	After    *time.Time
	NotAfter *time.Time
}

// Contains reports whether expiry falls inside the range
func (r ExpiryRange) Contains(expiry time.Time) bool {
	if r.After != nil && !expiry.After(*r.After) {
		return false
	}
	if r.NotAfter != nil && expiry.After(*r.NotAfter) {
		return false
	}
	return true
}

// Range translates a status into expiry bounds so that list queries can
// filter on the derived status without storing it.
//
//	expired:    expiry <= now-1d
//	nearExpiry: now-1d < expiry <= now+N d
//	available:  expiry > now+N d
func (c ExpiryClassifier) Range(status ExpiryStatus, now time.Time) ExpiryRange {
	expiredEdge := now.Add(-day)
	nearEdge := now.Add(time.Duration(c.NearExpiryDays) * day)

	switch status {
	case StatusExpired:
		return ExpiryRange{NotAfter: &expiredEdge}
	case StatusNearExpiry:
		return ExpiryRange{After: &expiredEdge, NotAfter: &nearEdge}
	case StatusAvailable:
		return ExpiryRange{After: &nearEdge}
	}
	return ExpiryRange{}
}
