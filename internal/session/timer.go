package session

import (
	"sync"
	"time"
)

const (
	// WarningLead es cuanto antes del cierre se muestra el aviso.
	WarningLead     = 5 * time.Minute
	minWarningDelay = time.Minute
)

// WarningDelay devuelve max(T-5min, 1min).
func WarningDelay(timeout time.Duration) time.Duration {
	delay := timeout - WarningLead
	if delay < minWarningDelay {
		return minWarningDelay
	}
	return delay
}

// TimerEngine mantiene los dos callbacks programados (aviso y expiración).
// Cada Arm abre una generación nueva; los callbacks reciben la suya para que
// quien los consume descarte disparos de un armado anterior.
type TimerEngine struct {
	clock     Clock
	onWarning func(gen uint64)
	onExpire  func(gen uint64)

	mu            sync.Mutex
	timeout       time.Duration
	gen           uint64
	armed         bool
	warning       Timer
	expiry        Timer
	nextWarningAt time.Time
	expiresAt     time.Time
}

func NewTimerEngine(clock Clock, timeoutMinutes int, onWarning, onExpire func(gen uint64)) *TimerEngine {
	if clock == nil {
		clock = RealClock{}
	}
	e := &TimerEngine{
		clock:     clock,
		onWarning: onWarning,
		onExpire:  onExpire,
	}
	e.SetTimeoutMinutes(timeoutMinutes)
	return e
}

// SetTimeoutMinutes aplica desde el próximo Arm. Valores no positivos usan el default de 30.
func (e *TimerEngine) SetTimeoutMinutes(minutes int) {
	if minutes <= 0 {
		minutes = 30
	}
	e.mu.Lock()
	e.timeout = time.Duration(minutes) * time.Minute
	e.mu.Unlock()
}

func (e *TimerEngine) Timeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeout
}

// Arm cancela lo pendiente y programa el aviso desde ahora. Gana el último Arm.
func (e *TimerEngine) Arm() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.gen++
	gen := e.gen
	delay := WarningDelay(e.timeout)
	now := e.clock.Now()
	e.armed = true
	e.nextWarningAt = now.Add(delay)
	e.expiresAt = e.nextWarningAt.Add(WarningLead)
	e.warning = e.clock.AfterFunc(delay, func() { e.fireWarning(gen) })
	return gen
}

func (e *TimerEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.gen++
	e.armed = false
	e.nextWarningAt = time.Time{}
	e.expiresAt = time.Time{}
}

// IsCurrent indica si gen corresponde al armado vigente.
func (e *TimerEngine) IsCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed && e.gen == gen
}

func (e *TimerEngine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// NextWarningAt es cero si no hay aviso pendiente.
func (e *TimerEngine) NextWarningAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.warning == nil {
		return time.Time{}
	}
	return e.nextWarningAt
}

func (e *TimerEngine) ExpiresAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expiresAt
}

func (e *TimerEngine) fireWarning(gen uint64) {
	e.mu.Lock()
	if !e.armed || gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.warning = nil
	e.expiresAt = e.clock.Now().Add(WarningLead)
	e.expiry = e.clock.AfterFunc(WarningLead, func() { e.fireExpire(gen) })
	cb := e.onWarning
	e.mu.Unlock()

	if cb != nil {
		cb(gen)
	}
}

func (e *TimerEngine) fireExpire(gen uint64) {
	e.mu.Lock()
	if !e.armed || gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.expiry = nil
	cb := e.onExpire
	e.mu.Unlock()

	if cb != nil {
		cb(gen)
	}
}

func (e *TimerEngine) stopLocked() {
	if e.warning != nil {
		e.warning.Stop()
		e.warning = nil
	}
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
}
