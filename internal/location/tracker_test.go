package location

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/transit"
)

// fakeProvider records watches and lets the test push events at will.
type fakeProvider struct {
	mu      sync.Mutex
	next    WatchID
	watches map[WatchID]fakeWatch
	all     map[WatchID]fakeWatch
	cleared []WatchID
	err     error
}

type fakeWatch struct {
	opts  WatchOptions
	onPos func(Position)
	onErr func(*PositionError)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{watches: make(map[WatchID]fakeWatch), all: make(map[WatchID]fakeWatch)}
}

func (f *fakeProvider) Watch(opts WatchOptions, onPos func(Position), onErr func(*PositionError)) (WatchID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	w := fakeWatch{opts: opts, onPos: onPos, onErr: onErr}
	f.watches[f.next] = w
	f.all[f.next] = w
	return f.next, nil
}

func (f *fakeProvider) ClearWatch(id WatchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watches, id)
	f.cleared = append(f.cleared, id)
}

// latest returns the callbacks of the most recent watch, even if cleared, so
// tests can simulate late deliveries.
func (f *fakeProvider) latest() fakeWatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all[f.next]
}

func (f *fakeProvider) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watches)
}

type eventCounter struct {
	mu     sync.Mutex
	events map[string]int
}

func (c *eventCounter) LocationEventInc(e string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		c.events = make(map[string]int)
	}
	c.events[e]++
}

func (c *eventCounter) count(e string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[e]
}

func pos(lat, lng, acc float64) Position {
	return Position{Coord: transit.GeoPoint{Lat: lat, Lng: lng}, AccuracyM: acc, Timestamp: time.Now()}
}

func TestTracker_GrantAndUpdateInPlace(t *testing.T) {
	fp := newFakeProvider()
	var seen []Status
	var mu sync.Mutex
	tr := NewTracker(fp, Options{
		Watch: WatchOptions{MaximumAge: 5 * time.Second, EnableHighAccuracy: true},
		OnChange: func(s State) {
			mu.Lock()
			seen = append(seen, s.Status)
			mu.Unlock()
		},
	})
	assert.Equal(t, Idle, tr.State().Status)

	tr.RequestLocation()
	assert.Equal(t, Asking, tr.State().Status)
	require.Equal(t, 1, fp.active())
	w := fp.latest()
	assert.Equal(t, 5*time.Second, w.opts.MaximumAge)

	w.onPos(pos(13.05, 80.25, 42.5))
	s := tr.State()
	require.Equal(t, Granted, s.Status)
	require.NotNil(t, s.Coord)
	assert.Equal(t, 13.05, s.Coord.Lat)
	assert.Equal(t, 42.5, s.AccuracyM, "accuracy is surfaced unmodified")

	w.onPos(pos(13.06, 80.26, 1500))
	s = tr.State()
	assert.Equal(t, Granted, s.Status)
	assert.Equal(t, 13.06, s.Coord.Lat)
	assert.Equal(t, 1500.0, s.AccuracyM, "poor accuracy is never filtered")

	mu.Lock()
	assert.Equal(t, []Status{Asking, Granted, Granted}, seen)
	mu.Unlock()
}

func TestTracker_RequestIsNoopUnlessIdle(t *testing.T) {
	fp := newFakeProvider()
	tr := NewTracker(fp, Options{})
	tr.RequestLocation()
	tr.RequestLocation()
	assert.Equal(t, 1, fp.active())

	fp.latest().onPos(pos(1, 2, 3))
	tr.RequestLocation()
	assert.Equal(t, 1, fp.active())
	assert.Equal(t, Granted, tr.State().Status)
}

func TestTracker_DeniedFromAskingAndGranted(t *testing.T) {
	fp := newFakeProvider()
	tr := NewTracker(fp, Options{})
	tr.RequestLocation()
	fp.latest().onErr(&PositionError{Code: PermissionDenied})
	s := tr.State()
	assert.Equal(t, Denied, s.Status)
	assert.Nil(t, s.Coord)
	assert.Equal(t, transit.ErrLocationPermissionDenied, s.Err)
	assert.Equal(t, 0, fp.active(), "denied watch is released")

	tr.StopTracking()
	tr.RequestLocation()
	w := fp.latest()
	w.onPos(pos(1, 2, 3))
	require.Equal(t, Granted, tr.State().Status)
	w.onErr(&PositionError{Code: PermissionDenied})
	assert.Equal(t, Denied, tr.State().Status)
	assert.Nil(t, tr.State().Coord, "only Granted carries a coordinate")
}

func TestTracker_GrantedSurvivesTransientError(t *testing.T) {
	fp := newFakeProvider()
	tr := NewTracker(fp, Options{})
	tr.RequestLocation()
	w := fp.latest()
	w.onPos(pos(1, 2, 3))
	w.onErr(&PositionError{Code: PositionUnavailable})
	w.onErr(&PositionError{Code: Timeout})
	assert.Equal(t, Granted, tr.State().Status)
	assert.Equal(t, 1, fp.active())
}

func TestTracker_Unsupported(t *testing.T) {
	t.Run("nil provider", func(t *testing.T) {
		tr := NewTracker(nil, Options{})
		tr.RequestLocation()
		assert.Equal(t, Unsupported, tr.State().Status)
		assert.Equal(t, transit.ErrLocationUnsupported, tr.State().Err)
	})
	t.Run("provider refuses", func(t *testing.T) {
		fp := newFakeProvider()
		fp.err = ErrUnsupported
		tr := NewTracker(fp, Options{})
		tr.RequestLocation()
		assert.Equal(t, Unsupported, tr.State().Status)
	})
	t.Run("provider fails", func(t *testing.T) {
		fp := newFakeProvider()
		fp.err = errors.New("no gps")
		tr := NewTracker(fp, Options{})
		tr.RequestLocation()
		assert.Equal(t, Unsupported, tr.State().Status)
	})
	t.Run("unavailable while asking", func(t *testing.T) {
		fp := newFakeProvider()
		tr := NewTracker(fp, Options{})
		tr.RequestLocation()
		fp.latest().onErr(&PositionError{Code: PositionUnavailable})
		assert.Equal(t, Unsupported, tr.State().Status)
		assert.Equal(t, transit.ErrLocationUnsupported, tr.State().Err)
	})
}

func TestTracker_TimeoutBecomesUnsupported(t *testing.T) {
	fp := newFakeProvider()
	ec := &eventCounter{}
	tr := NewTracker(fp, Options{Watch: WatchOptions{Timeout: 20 * time.Millisecond}, Metrics: ec})
	tr.RequestLocation()
	w := fp.latest()

	require.Eventually(t, func() bool { return tr.State().Status == Unsupported }, time.Second, 5*time.Millisecond)
	assert.Equal(t, transit.ErrLocationTimeout, tr.State().Err)
	// The watch is cleared and counted right after the state flips.
	require.Eventually(t, func() bool { return fp.active() == 0 && ec.count("timeout") == 1 }, time.Second, 5*time.Millisecond)

	w.onPos(pos(1, 2, 3))
	assert.Equal(t, Unsupported, tr.State().Status, "a fix after the timeout is ignored")
}

func TestTracker_FirstFixCancelsTimeout(t *testing.T) {
	fp := newFakeProvider()
	tr := NewTracker(fp, Options{Watch: WatchOptions{Timeout: 20 * time.Millisecond}})
	tr.RequestLocation()
	fp.latest().onPos(pos(1, 2, 3))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, Granted, tr.State().Status)
}

func TestTracker_StopTrackingDropsLateEvents(t *testing.T) {
	fp := newFakeProvider()
	tr := NewTracker(fp, Options{})
	tr.RequestLocation()
	w := fp.latest()
	w.onPos(pos(1, 2, 3))

	tr.StopTracking()
	s := tr.State()
	assert.Equal(t, Idle, s.Status)
	assert.Nil(t, s.Coord)
	assert.Equal(t, 0, fp.active())
	assert.Len(t, fp.cleared, 1)

	w.onPos(pos(5, 6, 7))
	w.onErr(&PositionError{Code: PermissionDenied})
	assert.Equal(t, Idle, tr.State().Status)
}

func TestTracker_StopWhileAsking(t *testing.T) {
	fp := newFakeProvider()
	tr := NewTracker(fp, Options{Watch: WatchOptions{Timeout: 20 * time.Millisecond}})
	tr.RequestLocation()
	tr.StopTracking()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Idle, tr.State().Status, "timer must not fire after stop")
	assert.Equal(t, 0, fp.active())
}

func TestTracker_CloseReleasesWatch(t *testing.T) {
	fp := newFakeProvider()
	tr := NewTracker(fp, Options{})
	tr.RequestLocation()
	w := fp.latest()
	tr.Close()
	tr.Close()
	assert.Equal(t, 0, fp.active())

	w.onPos(pos(1, 2, 3))
	tr.RequestLocation()
	assert.Equal(t, Idle, tr.State().Status)
	assert.Equal(t, 0, fp.active())
}

func TestTracker_DismissNotice(t *testing.T) {
	fp := newFakeProvider()
	tr := NewTracker(fp, Options{})
	tr.DismissNotice()
	assert.False(t, tr.State().NoticeDismissed, "nothing to dismiss")

	tr.RequestLocation()
	fp.latest().onErr(&PositionError{Code: PermissionDenied})
	assert.NotEmpty(t, tr.State().Notice())

	tr.DismissNotice()
	s := tr.State()
	assert.Equal(t, Denied, s.Status)
	assert.True(t, s.NoticeDismissed)
	assert.Empty(t, s.Notice())

	tr.StopTracking()
	tr.RequestLocation()
	fp.latest().onErr(&PositionError{Code: PermissionDenied})
	assert.False(t, tr.State().NoticeDismissed, "a new error shows again")
}

func TestTracker_StaticProvider(t *testing.T) {
	sp := NewStaticProvider(Position{Coord: transit.GeoPoint{Lat: 13.08, Lng: 80.27}, AccuracyM: 10})
	tr := NewTracker(sp, Options{})
	tr.RequestLocation()

	s := tr.State()
	require.Equal(t, Granted, s.Status)
	assert.Equal(t, 80.27, s.Coord.Lng)
	assert.Equal(t, 1, sp.Active())

	tr.StopTracking()
	assert.Equal(t, 0, sp.Active())

	sp.Err = &PositionError{Code: PermissionDenied}
	tr.RequestLocation()
	assert.Equal(t, Denied, tr.State().Status)
	assert.Equal(t, 0, sp.Active())
}
