package session

import (
	"sync"
	"time"
)

// ActivityThrottle es fijo: eventos más seguidos no rearman los timers.
const ActivityThrottle = 30 * time.Second

type ActivityKind string

const (
	ActivityPointerDown ActivityKind = "pointerdown"
	ActivityPointerMove ActivityKind = "pointermove"
	ActivityKeyDown     ActivityKind = "keydown"
	ActivityScroll      ActivityKind = "scroll"
	ActivityTouchStart  ActivityKind = "touchstart"
	ActivityClick       ActivityKind = "click"
)

var trackedActivity = map[ActivityKind]struct{}{
	ActivityPointerDown: {},
	ActivityPointerMove: {},
	ActivityKeyDown:     {},
	ActivityScroll:      {},
	ActivityTouchStart:  {},
	ActivityClick:       {},
}

func (k ActivityKind) Tracked() bool {
	_, ok := trackedActivity[k]
	return ok
}

// ActivityTracker reduce los eventos de interacción a un único timestamp de última actividad.
type ActivityTracker struct {
	clock Clock

	mu           sync.Mutex
	lastActivity time.Time
	visible      bool
}

func NewActivityTracker(clock Clock) *ActivityTracker {
	if clock == nil {
		clock = RealClock{}
	}
	return &ActivityTracker{
		clock:        clock,
		lastActivity: clock.Now(),
		visible:      true,
	}
}

// Record devuelve true cuando el evento cuenta como actividad nueva y hay que rearmar.
func (t *ActivityTracker) Record(kind ActivityKind) bool {
	if !kind.Tracked() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.visible {
		return false
	}
	now := t.clock.Now()
	if now.Sub(t.lastActivity) < ActivityThrottle {
		return false
	}
	t.lastActivity = now
	return true
}

// Touch marca actividad sin pasar por el throttle (se usa en cada Arm).
func (t *ActivityTracker) Touch() {
	t.mu.Lock()
	t.lastActivity = t.clock.Now()
	t.mu.Unlock()
}

// SetVisible devuelve true si la página paso de oculta a visible.
func (t *ActivityTracker) SetVisible(visible bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	becameVisible := visible && !t.visible
	t.visible = visible
	return becameVisible
}

func (t *ActivityTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}
