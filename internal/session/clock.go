package session

import "time"

// Timer es el handle de un callback programado.
type Timer interface {
	Stop() bool
}

// Clock abstrae el tiempo para poder simularlo en tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
