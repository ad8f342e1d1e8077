// Package transport pulls raw train payloads from the live feed and hands
// them to the ingestor as Events. Sources never return transient upstream
// failures to their caller; they report them as Failure events and retry.
package transport

import (
	"context"
	"errors"
	"time"

	"pakrail/internal/domain"
)

// Socket.IO event names used by the live feed.
const (
	EventSnapshot = "all-newtrains"
	EventDelta    = "all-newtrains-delta"
)

var (
	ErrNoData              = errors.New("no train data received")
	ErrConnection          = errors.New("live feed connection error")
	ErrIncompatibleVersion = errors.New("incompatible live feed protocol version")
)

type Kind int

const (
	KindSnapshot Kind = iota
	KindDelta
	KindFailure
	// KindFallback asks the consumer to switch to the secondary source.
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindDelta:
		return "delta"
	case KindFailure:
		return "failure"
	case KindFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the ingestor. Trains carries a raw payload;
// Records is set instead by sources that already deliver canonical records.
type Event struct {
	Kind       Kind
	Trains     domain.RawTrains
	Records    []*domain.LiveTrainRecord
	Err        error
	Source     string
	ReceivedAt time.Time
}

// Source is a live feed transport strategy.
type Source interface {
	Name() string
	// Run emits events until ctx is cancelled or the source gives up, in
	// which case it returns the reason.
	Run(ctx context.Context, events chan<- Event) error
}

// emit delivers ev unless ctx is cancelled first.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
