// Package tracking ties the location tracker and the refresh scheduler
// together for one stop and exposes the combined view-model.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/google/uuid"

	"bus-tracker/internal/location"
	"bus-tracker/internal/refresh"
)

var ErrBusIndex = errors.New("bus index out of range")

type Options struct {
	StopID   string
	Fetcher  refresh.Fetcher
	Provider location.Provider
	Watch    location.WatchOptions
	// Refresh configures the scheduler. Its OnChange is replaced.
	Refresh         refresh.Options
	LocationMetrics location.Metrics
	// AutoLocate requests the location as soon as the controller starts.
	AutoLocate bool
}

type Controller struct {
	id         string
	stopID     string
	autoLocate bool
	sched      *refresh.Scheduler
	tracker    *location.Tracker

	mu       sync.Mutex
	selected int
	subs     []func(ViewModel)
	closed   bool

	notifyMu sync.Mutex
}

func New(opts Options) (*Controller, error) {
	if opts.StopID == "" {
		return nil, errors.New("stop id is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	c := &Controller{
		id:         uuid.NewString(),
		stopID:     opts.StopID,
		autoLocate: opts.AutoLocate,
	}
	ro := opts.Refresh
	ro.OnChange = c.refreshChanged
	c.sched = refresh.NewScheduler(opts.Fetcher, ro)
	c.tracker = location.NewTracker(opts.Provider, location.Options{
		Watch:    opts.Watch,
		Metrics:  opts.LocationMetrics,
		OnChange: c.locationChanged,
	})
	return c, nil
}

func (c *Controller) SessionID() string { return c.id }
func (c *Controller) StopID() string    { return c.stopID }

// OnChange registers fn to receive the view after every state change. fn
// runs on the goroutine that caused the change; it must not block or call
// the controller's actions.
func (c *Controller) OnChange(fn func(ViewModel)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

func (c *Controller) Start(ctx context.Context) error {
	if err := c.sched.Start(ctx, c.stopID); err != nil {
		return fmt.Errorf("start refresh for %s: %w", c.stopID, err)
	}
	log.Printf("tracking stop %s session=%s", c.stopID, c.id)
	if c.autoLocate {
		c.tracker.RequestLocation()
	}
	return nil
}

// Close releases the refresh timers and the location watch.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.tracker.Close()
	c.sched.Stop()
	log.Printf("stopped tracking stop %s session=%s", c.stopID, c.id)
}

func (c *Controller) View() ViewModel {
	rs := c.sched.State()
	ls := c.tracker.State()
	c.mu.Lock()
	sel := c.selected
	c.mu.Unlock()
	v := BuildView(rs, ls, sel)
	v.SessionID = c.id
	return v
}

func (c *Controller) RequestLocation()       { c.tracker.RequestLocation() }
func (c *Controller) StopTracking()          { c.tracker.StopTracking() }
func (c *Controller) DismissLocationNotice() { c.tracker.DismissNotice() }
func (c *Controller) ManualRefresh()         { c.sched.ManualRefresh() }

// Retry re-fetches after a fatal error.
func (c *Controller) Retry() { c.sched.ManualRefresh() }

// SelectBus switches the selected bus without fetching.
func (c *Controller) SelectBus(i int) error {
	n := 0
	if d := c.sched.State().Data; d != nil {
		n = len(d.Buses)
	}
	if i < 0 || i >= n {
		return fmt.Errorf("%w: %d of %d", ErrBusIndex, i, n)
	}
	c.mu.Lock()
	c.selected = i
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) refreshChanged(st refresh.State) {
	n := 0
	if st.Data != nil {
		n = len(st.Data.Buses)
	}
	c.mu.Lock()
	c.selected = clampIndex(c.selected, n)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) locationChanged(s location.State) {
	if s.Status == location.Granted {
		c.sched.OnCoordinateChange(s.Coord)
	} else {
		c.sched.OnCoordinateChange(nil)
	}
	c.notify()
}

// notify builds and delivers views one at a time, so subscribers see them
// in the order they were built.
func (c *Controller) notify() {
	c.mu.Lock()
	if c.closed || len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}
	subs := slices.Clone(c.subs)
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	v := c.View()
	for _, fn := range subs {
		fn(v)
	}
}
