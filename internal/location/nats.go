package location

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"bus-tracker/internal/publisher"
	"bus-tracker/internal/transit"
)

// PositionMessage is what a passenger device publishes on
// passengers.<device>.position. Error, when set, is one of
// "permission_denied", "unavailable" or "timeout".
type PositionMessage struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// NATSProvider relays positions a paired device publishes over NATS.
type NATSProvider struct {
	nc      *nats.Conn
	subject string

	mu   sync.Mutex
	last *Position
	next WatchID
	subs map[WatchID]*nats.Subscription
}

func NewNATSProvider(nc *nats.Conn, deviceID string) *NATSProvider {
	return &NATSProvider{
		nc:      nc,
		subject: PositionSubject(deviceID),
		subs:    make(map[WatchID]*nats.Subscription),
	}
}

func PositionSubject(deviceID string) string {
	return fmt.Sprintf("passengers.%s.position", publisher.SubjectToken(deviceID))
}

func (p *NATSProvider) Watch(opts WatchOptions, onPosition func(Position), onError func(*PositionError)) (WatchID, error) {
	if p.nc == nil {
		return 0, ErrUnsupported
	}
	d := &orderedDelivery{onPosition: onPosition}
	sub, err := p.nc.Subscribe(p.subject, func(m *nats.Msg) {
		pos, perr, err := decodePositionMessage(m.Data)
		if err != nil {
			log.Printf("location: bad message on %s: %v", m.Subject, err)
			return
		}
		if perr != nil {
			onError(perr)
			return
		}
		p.mu.Lock()
		if p.last == nil || !pos.Timestamp.Before(p.last.Timestamp) {
			p.last = &pos
		}
		p.mu.Unlock()
		d.deliver(pos)
	})
	if err != nil {
		return 0, fmt.Errorf("subscribe %s: %w", p.subject, err)
	}

	p.mu.Lock()
	p.next++
	id := p.next
	p.subs[id] = sub
	cached := p.fresh(opts.MaximumAge, time.Now())
	p.mu.Unlock()

	if cached != nil {
		d.deliver(*cached)
	}
	return id, nil
}

// orderedDelivery hands fixes to one watch in timestamp order. A fix older
// than one already delivered is dropped, so a cached fix cannot overwrite a
// live one that raced ahead of it.
type orderedDelivery struct {
	mu         sync.Mutex
	latest     time.Time
	onPosition func(Position)
}

func (d *orderedDelivery) deliver(pos Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pos.Timestamp.Before(d.latest) {
		return
	}
	d.latest = pos.Timestamp
	d.onPosition(pos)
}

func (p *NATSProvider) ClearWatch(id WatchID) {
	p.mu.Lock()
	sub := p.subs[id]
	delete(p.subs, id)
	p.mu.Unlock()
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("location: unsubscribe %s: %v", p.subject, err)
		}
	}
}

// fresh returns the cached fix when it is within maxAge. Caller holds mu.
func (p *NATSProvider) fresh(maxAge time.Duration, now time.Time) *Position {
	if p.last == nil || maxAge <= 0 {
		return nil
	}
	if now.Sub(p.last.Timestamp) > maxAge {
		return nil
	}
	c := *p.last
	return &c
}

func decodePositionMessage(data []byte) (Position, *PositionError, error) {
	var m PositionMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Position{}, nil, err
	}
	switch m.Error {
	case "":
	case "permission_denied":
		return Position{}, &PositionError{Code: PermissionDenied}, nil
	case "unavailable":
		return Position{}, &PositionError{Code: PositionUnavailable}, nil
	case "timeout":
		return Position{}, &PositionError{Code: Timeout}, nil
	default:
		return Position{}, &PositionError{Code: PositionUnavailable, Message: m.Error}, nil
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Position{
		Coord:     transit.GeoPoint{Lat: m.Lat, Lng: m.Lng},
		AccuracyM: m.Accuracy,
		Timestamp: ts,
	}, nil, nil
}
