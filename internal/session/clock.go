package session

import "time"

// Clock is the time source of an engine. Real clocks read the monotonic clock,
// so wall-clock adjustments do not move an exam deadline.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the engine uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock returns the process clock.
func RealClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
