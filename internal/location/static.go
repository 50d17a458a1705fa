package location

import (
	"sync"
	"time"
)

// StaticProvider reports a fixed position, or a fixed error when Err is set.
// Each watch receives exactly one delivery, synchronously from Watch.
type StaticProvider struct {
	Position Position
	Err      *PositionError

	mu     sync.Mutex
	next   WatchID
	active map[WatchID]struct{}
}

func NewStaticProvider(p Position) *StaticProvider {
	return &StaticProvider{Position: p}
}

func (s *StaticProvider) Watch(_ WatchOptions, onPosition func(Position), onError func(*PositionError)) (WatchID, error) {
	s.mu.Lock()
	s.next++
	id := s.next
	if s.active == nil {
		s.active = make(map[WatchID]struct{})
	}
	s.active[id] = struct{}{}
	s.mu.Unlock()

	if s.Err != nil {
		onError(s.Err)
		return id, nil
	}
	p := s.Position
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	onPosition(p)
	return id, nil
}

func (s *StaticProvider) ClearWatch(id WatchID) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Active reports the number of watches not yet cleared.
func (s *StaticProvider) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
