package utils

import "time"

func Now() time.Time {
	return time.Now().UTC()
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

// MaxTime returns the later of two timestamps, tolerating nil.
func MaxTime(a *time.Time, b time.Time) time.Time {
	if a == nil || a.Before(b) {
		return b
	}
	return *a
}
