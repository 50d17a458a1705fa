package location

import (
	"errors"
	"log"
	"sync"
	"time"

	"bus-tracker/internal/transit"
)

type Status string

const (
	Idle        Status = "idle"
	Asking      Status = "asking"
	Granted     Status = "granted"
	Denied      Status = "denied"
	Unsupported Status = "unsupported"
)

// State is one immutable snapshot of the tracker. Coord is non-nil only when
// Status is Granted.
type State struct {
	Status          Status            `json:"status"`
	Coord           *transit.GeoPoint `json:"coord,omitempty"`
	AccuracyM       float64           `json:"accuracy,omitempty"`
	Err             transit.ErrorKind `json:"error,omitempty"`
	NoticeDismissed bool              `json:"noticeDismissed"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Notice is the location status text to show, empty when there is none or
// it was dismissed.
func (s State) Notice() string {
	if s.NoticeDismissed {
		return ""
	}
	return s.Err.Message()
}

type Metrics interface {
	LocationEventInc(event string)
}

type Options struct {
	Watch    WatchOptions
	Metrics  Metrics
	OnChange func(State)
}

// Tracker owns the permission/subscription state machine. Every watch is
// tagged with a generation; callbacks from an older generation are dropped,
// so nothing delivered after StopTracking or Close can change state.
type Tracker struct {
	provider Provider
	opts     WatchOptions
	metrics  Metrics
	onChange func(State)

	mu       sync.Mutex
	state    State
	gen      uint64
	watchID  WatchID
	watching bool
	timer    *time.Timer
	closed   bool
	version  uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// NewTracker returns an Idle tracker. A nil provider makes every request end
// in Unsupported.
func NewTracker(p Provider, opts Options) *Tracker {
	return &Tracker{
		provider: p,
		opts:     opts.Watch,
		metrics:  opts.Metrics,
		onChange: opts.OnChange,
		state:    State{Status: Idle, UpdatedAt: time.Now()},
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// RequestLocation starts the watch. It is a no-op unless the tracker is Idle.
func (t *Tracker) RequestLocation() {
	t.mu.Lock()
	if t.closed || t.state.Status != Idle {
		t.mu.Unlock()
		return
	}
	if t.provider == nil {
		t.gen++
		t.setLocked(State{Status: Unsupported, Err: transit.ErrLocationUnsupported})
		t.deliverUnlock()
		t.event("unsupported")
		return
	}
	t.gen++
	gen := t.gen
	t.setLocked(State{Status: Asking})
	if t.opts.Timeout > 0 {
		t.timer = time.AfterFunc(t.opts.Timeout, func() { t.expire(gen) })
	}
	t.deliverUnlock()

	id, err := t.provider.Watch(t.opts,
		func(p Position) { t.position(gen, p) },
		func(e *PositionError) { t.failure(gen, e) },
	)

	t.mu.Lock()
	if err != nil {
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		if !errors.Is(err, ErrUnsupported) {
			log.Printf("location watch: %v", err)
		}
		t.releaseLocked()
		t.setLocked(State{Status: Unsupported, Err: transit.ErrLocationUnsupported})
		t.deliverUnlock()
		t.event("unsupported")
		return
	}
	if t.gen != gen {
		// Stopped, closed or failed while Watch was running.
		t.mu.Unlock()
		t.provider.ClearWatch(id)
		return
	}
	t.watchID = id
	t.watching = true
	t.mu.Unlock()
}

// StopTracking cancels the watch and returns to Idle.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	if t.closed || t.state.Status == Idle {
		t.mu.Unlock()
		return
	}
	id, watching := t.releaseLocked()
	t.setLocked(State{Status: Idle})
	t.deliverUnlock()
	if watching {
		t.provider.ClearWatch(id)
	}
}

// DismissNotice hides the current location notice without changing status.
func (t *Tracker) DismissNotice() {
	t.mu.Lock()
	if t.state.NoticeDismissed || t.state.Err == transit.ErrNone {
		t.mu.Unlock()
		return
	}
	s := t.state
	s.NoticeDismissed = true
	t.setLocked(s)
	t.deliverUnlock()
}

// Close releases the watch. The tracker ignores every call afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	id, watching := t.releaseLocked()
	t.state = State{Status: Idle, UpdatedAt: time.Now()}
	t.mu.Unlock()
	if watching {
		t.provider.ClearWatch(id)
	}
}

func (t *Tracker) position(gen uint64, p Position) {
	t.mu.Lock()
	if t.gen != gen || (t.state.Status != Asking && t.state.Status != Granted) {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	coord := p.Coord
	t.setLocked(State{Status: Granted, Coord: &coord, AccuracyM: p.AccuracyM})
	t.deliverUnlock()
	t.event("fix")
}

func (t *Tracker) failure(gen uint64, e *PositionError) {
	if e == nil {
		return
	}
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	var next State
	switch {
	case e.Code == PermissionDenied:
		next = State{Status: Denied, Err: transit.ErrLocationPermissionDenied}
	case t.state.Status == Asking && e.Code == Timeout:
		next = State{Status: Unsupported, Err: transit.ErrLocationTimeout}
	case t.state.Status == Asking:
		next = State{Status: Unsupported, Err: transit.ErrLocationUnsupported}
	default:
		// A granted watch survives transient read failures.
		t.mu.Unlock()
		log.Printf("location: %v", e)
		return
	}
	id, watching := t.releaseLocked()
	t.setLocked(next)
	t.deliverUnlock()
	if watching {
		t.provider.ClearWatch(id)
	}
	if next.Err == transit.ErrLocationTimeout {
		t.event("timeout")
	} else {
		t.event(string(next.Status))
	}
}

func (t *Tracker) expire(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || t.state.Status != Asking {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	id, watching := t.releaseLocked()
	t.setLocked(State{Status: Unsupported, Err: transit.ErrLocationTimeout})
	t.deliverUnlock()
	if watching {
		t.provider.ClearWatch(id)
	}
	t.event("timeout")
}

// releaseLocked invalidates the current generation and hands back the watch
// the caller must clear once the lock is released.
func (t *Tracker) releaseLocked() (WatchID, bool) {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	id, watching := t.watchID, t.watching
	t.watchID, t.watching = 0, false
	return id, watching
}

func (t *Tracker) setLocked(s State) {
	s.UpdatedAt = time.Now()
	t.state = s
	t.version++
}

// deliverUnlock releases mu and hands the new state to OnChange. Versions
// are delivered in increasing order; a state overtaken by a newer one is
// skipped.
func (t *Tracker) deliverUnlock() {
	s, v := t.state, t.version
	t.mu.Unlock()
	if t.onChange == nil {
		return
	}
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if v <= t.delivered {
		return
	}
	t.delivered = v
	t.onChange(s)
}

func (t *Tracker) event(name string) {
	if t.metrics != nil {
		t.metrics.LocationEventInc(name)
	}
}
