package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"pakrail/internal/domain"
	"pakrail/pkg/engineio"
)

type PollerConfig struct {
	MaxAttempts  int
	AttemptDelay time.Duration
	Interval     time.Duration
}

// Poller fetches snapshots over plain HTTP requests: handshake, one request
// event, then a bounded series of long-polls.
type Poller struct {
	client *engineio.Client
	cfg    PollerConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewPoller(client *engineio.Client, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 45 * time.Second
	}
	return &Poller{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "poller"),
		now:    time.Now,
	}
}

func (p *Poller) Name() string {
	return "polling"
}

// FetchSnapshot requests all trains on an open session and polls until a
// response carries the snapshot frame, or the attempts run out. AttemptDelay
// is waited before every poll, the first included, so a failed fetch takes
// at least MaxAttempts × AttemptDelay.
func (p *Poller) FetchSnapshot(ctx context.Context, s *engineio.Session) (domain.RawTrains, error) {
	request, err := engineio.EncodeEvent(EventSnapshot)
	if err != nil {
		return nil, err
	}
	if err := p.client.Send(ctx, s, request); err != nil {
		p.logger.Warn("request event failed, polling anyway", "sid", s.ID, "error", err)
	}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if !sleep(ctx, p.cfg.AttemptDelay) {
			return nil, ctx.Err()
		}

		body, err := p.client.Poll(ctx, s)
		if err != nil {
			p.logger.Debug("poll failed", "sid", s.ID, "attempt", attempt, "error", err)
			continue
		}

		raw, ok := engineio.ExtractEvent(body, EventSnapshot)
		if !ok {
			p.logger.Debug("no snapshot frame", "sid", s.ID, "attempt", attempt, "bytes", len(body))
			continue
		}

		var trains domain.RawTrains
		if err := json.Unmarshal(raw, &trains); err != nil {
			p.logger.Warn("undecodable snapshot frame", "sid", s.ID, "attempt", attempt, "error", err)
			continue
		}
		p.logger.Debug("snapshot received", "sid", s.ID, "attempt", attempt, "instances", trains.Len())
		return trains, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrNoData, p.cfg.MaxAttempts)
}

// Cycle runs one handshake and snapshot fetch; the session is discarded after.
func (p *Poller) Cycle(ctx context.Context) (domain.RawTrains, error) {
	s, err := p.client.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer p.client.Close(s)
	return p.FetchSnapshot(ctx, s)
}

// Run repeats Cycle every Interval, emitting a Snapshot or Failure event per cycle.
func (p *Poller) Run(ctx context.Context, events chan<- Event) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if !p.runCycle(ctx, events) {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) runCycle(ctx context.Context, events chan<- Event) bool {
	start := p.now()
	trains, err := p.Cycle(ctx)
	if ctx.Err() != nil {
		return false
	}

	ev := Event{Source: p.Name(), ReceivedAt: p.now()}
	if err != nil {
		p.logger.Warn("polling cycle failed", "error", err, "duration", p.now().Sub(start))
		ev.Kind = KindFailure
		ev.Err = err
	} else {
		ev.Kind = KindSnapshot
		ev.Trains = trains
	}
	return emit(ctx, events, ev)
}
