// Package location tracks the passenger's device position through an opt-in
// continuous watch.
package location

import (
	"errors"
	"fmt"
	"time"

	"bus-tracker/internal/transit"
)

// ErrUnsupported is returned by a Provider that cannot supply positions at all.
var ErrUnsupported = errors.New("geolocation unsupported")

type WatchOptions struct {
	// MaximumAge lets a cached fix no older than this satisfy a new watch
	// without a fresh device read.
	MaximumAge time.Duration
	// Timeout bounds the wait for the first fix.
	Timeout            time.Duration
	EnableHighAccuracy bool
}

type WatchID int64

type Position struct {
	Coord     transit.GeoPoint `json:"coord"`
	AccuracyM float64          `json:"accuracy"`
	Timestamp time.Time        `json:"timestamp"`
}

type ErrorCode int

const (
	PermissionDenied ErrorCode = iota + 1
	PositionUnavailable
	Timeout
)

func (c ErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "unavailable"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

type PositionError struct {
	Code    ErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return "position error: " + e.Code.String()
	}
	return fmt.Sprintf("position error: %s: %s", e.Code, e.Message)
}

// Provider is a source of device positions. Callbacks may run on any
// goroutine, including synchronously from inside Watch. After ClearWatch
// returns the provider should stop invoking the callbacks for that watch.
type Provider interface {
	Watch(opts WatchOptions, onPosition func(Position), onError func(*PositionError)) (WatchID, error)
	ClearWatch(id WatchID)
}
