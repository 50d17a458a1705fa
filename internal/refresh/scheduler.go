// Package refresh runs the periodic arrivals fetch for one stop together with
// the cosmetic countdown shown until the next fetch.
package refresh

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"bus-tracker/internal/transit"
)

const (
	Period = 10 * time.Second
	Step   = time.Second

	DefaultFetchTimeout = 8 * time.Second
)

type Trigger string

const (
	TriggerScheduled  Trigger = "scheduled"
	TriggerCoordinate Trigger = "coordinate"
	TriggerManual     Trigger = "manual"
)

var (
	ErrStarted = errors.New("scheduler already started")
	ErrStopped = errors.New("scheduler stopped")
)

type Fetcher interface {
	BusesForStop(ctx context.Context, stopID string, passenger *transit.GeoPoint) (*transit.Snapshot, error)
}

type FetcherFunc func(ctx context.Context, stopID string, passenger *transit.GeoPoint) (*transit.Snapshot, error)

func (f FetcherFunc) BusesForStop(ctx context.Context, stopID string, passenger *transit.GeoPoint) (*transit.Snapshot, error) {
	return f(ctx, stopID, passenger)
}

type Metrics interface {
	FetchObserve(trigger string, d time.Duration, err error)
	CountdownSet(seconds int)
	BusesSet(n int)
}

type Options struct {
	Period       time.Duration
	Step         time.Duration
	FetchTimeout time.Duration
	NewTicker    TickerFactory
	Metrics      Metrics

	// OnChange receives every new state on the loop goroutine. It must not
	// block.
	OnChange func(State)
}

// State is an immutable copy of the scheduler state.
type State struct {
	StopID         string            `json:"stopId"`
	Data           *transit.Snapshot `json:"data,omitempty"`
	Countdown      int               `json:"countdown"`
	ManualInFlight bool              `json:"manualInFlight"`
	LastError      transit.ErrorKind `json:"lastError,omitempty"`
	Passenger      *transit.GeoPoint `json:"passenger,omitempty"`

	// LastRefresh is zero until a fetch succeeds.
	LastRefresh time.Time `json:"lastRefresh"`

	// Loading is true until the first fetch completes.
	Loading bool `json:"loading"`

	// Fatal is set when a fetch failed and there is no data to fall back on.
	Fatal bool `json:"fatal"`
}

type command struct {
	manual bool
	coord  *transit.GeoPoint
}

type result struct {
	trigger Trigger
	snap    *transit.Snapshot
	err     error
}

// Scheduler owns the refresh state inside a single loop goroutine. Fetches
// run on their own goroutines and hand results back to the loop; the last one
// to complete wins.
type Scheduler struct {
	fetcher Fetcher
	opts    Options
	steps   int

	cmds    chan command
	results chan result
	done    chan struct{}

	mu      sync.Mutex
	state   State
	seed    *transit.GeoPoint
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(f Fetcher, opts Options) *Scheduler {
	if opts.Period <= 0 {
		opts.Period = Period
	}
	if opts.Step <= 0 {
		opts.Step = Step
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewRealTicker
	}
	steps := max(int(opts.Period/opts.Step), 1)
	return &Scheduler{
		fetcher: f,
		opts:    opts,
		steps:   steps,
		cmds:    make(chan command, 16),
		results: make(chan result),
		done:    make(chan struct{}),
		state:   State{Countdown: steps, Loading: true},
	}
}

// Start fetches immediately and then every period until Stop or until ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context, stopID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrStarted
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state.StopID = stopID
	s.state.Passenger = s.seed
	st := s.state

	fetchT := s.opts.NewTicker(s.opts.Period)
	countT := s.opts.NewTicker(s.opts.Step)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		defer fetchT.Stop()
		defer countT.Stop()
		s.run(ctx, st, fetchT, countT)
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context, st State, fetchT, countT Ticker) {
	manualPending := false
	s.launch(ctx, st.StopID, st.Passenger, TriggerScheduled)
	for {
		select {
		case <-ctx.Done():
			return
		case <-fetchT.C():
			s.launch(ctx, st.StopID, st.Passenger, TriggerScheduled)
		case <-countT.C():
			if st.Countdown <= 1 {
				st.Countdown = s.steps
			} else {
				st.Countdown--
			}
			s.publish(st)
		case c := <-s.cmds:
			if c.manual {
				if manualPending {
					continue
				}
				manualPending = true
				st.ManualInFlight = true
				s.launch(ctx, st.StopID, st.Passenger, TriggerManual)
				s.publish(st)
				continue
			}
			if c.coord == nil {
				if st.Passenger != nil {
					st.Passenger = nil
					s.publish(st)
				}
				continue
			}
			if st.Passenger != nil && *st.Passenger == *c.coord {
				continue
			}
			p := *c.coord
			st.Passenger = &p
			s.launch(ctx, st.StopID, st.Passenger, TriggerCoordinate)
			s.publish(st)
		case r := <-s.results:
			st.Loading = false
			if r.err != nil {
				log.Printf("refresh %s (%s): %v", st.StopID, r.trigger, r.err)
				st.LastError = transit.ErrNetwork
				st.Fatal = st.Data == nil
			} else {
				st.Data = r.snap
				st.LastRefresh = time.Now()
				st.Countdown = s.steps
				st.LastError = transit.ErrNone
				st.Fatal = false
				if s.opts.Metrics != nil {
					s.opts.Metrics.BusesSet(len(r.snap.Buses))
				}
			}
			if r.trigger == TriggerManual {
				manualPending = false
				st.ManualInFlight = false
				st.Countdown = s.steps
			}
			s.publish(st)
		}
	}
}

func (s *Scheduler) launch(ctx context.Context, stopID string, passenger *transit.GeoPoint, trigger Trigger) {
	var coord *transit.GeoPoint
	if passenger != nil {
		p := *passenger
		coord = &p
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
		start := time.Now()
		snap, err := s.fetcher.BusesForStop(fctx, stopID, coord)
		if err == nil && snap == nil {
			err = errors.New("empty response")
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.FetchObserve(string(trigger), time.Since(start), err)
		}
		select {
		case s.results <- result{trigger: trigger, snap: snap, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Scheduler) publish(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.opts.Metrics != nil {
		s.opts.Metrics.CountdownSet(st.Countdown)
	}
	if s.opts.OnChange != nil {
		s.opts.OnChange(st)
	}
}

// OnCoordinateChange sets the passenger coordinate sent with every fetch. A
// coordinate that is new or differs from the current one triggers one
// immediate out-of-band fetch; nil clears it without fetching.
func (s *Scheduler) OnCoordinateChange(coord *transit.GeoPoint) {
	var c *transit.GeoPoint
	if coord != nil {
		p := *coord
		c = &p
	}
	s.mu.Lock()
	if !s.started {
		s.seed = c
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.send(command{coord: c})
}

// ManualRefresh fetches now. It is ignored while a manual fetch is in flight.
func (s *Scheduler) ManualRefresh() {
	s.send(command{manual: true})
}

func (s *Scheduler) send(c command) {
	s.mu.Lock()
	running := s.started && !s.stopped
	s.mu.Unlock()
	if !running {
		return
	}
	select {
	case s.cmds <- c:
	case <-s.done:
	}
}

// Stop cancels both timers and any fetch in flight and waits for them to
// exit. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
