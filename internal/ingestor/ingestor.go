package ingestor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pakrail/internal/domain"
	"pakrail/internal/fallback"
	"pakrail/internal/hub"
	"pakrail/internal/normalize"
	"pakrail/internal/observability"
	"pakrail/internal/store"
	"pakrail/internal/transport"
)

type Broadcaster interface {
	Broadcast(deltas []domain.RecordDelta)
}

type Options struct {
	// Primary is the live feed transport started first.
	Primary transport.Source
	// Secondary replaces Primary when the feed's protocol version is
	// unsupported. Optional.
	Secondary transport.Source
	// RestartDelay spaces restarts of a source that stopped on its own.
	RestartDelay time.Duration
	ZoomLevel    int
}

// Status is a point-in-time view of the ingestion pipeline.
type Status struct {
	Source      string    `json:"source"`
	LastEvent   time.Time `json:"lastEvent"`
	LastError   string    `json:"lastError,omitempty"`
	Degraded    bool      `json:"degraded"`
	FallenBack  bool      `json:"fallenBack"`
	Snapshots   int64     `json:"snapshots"`
	Deltas      int64     `json:"deltas"`
	Failures    int64     `json:"failures"`
	ParseErrors int64     `json:"parseErrors"`
}

// Ingestor is the only writer of the feed store. It consumes transport
// events, normalizes their payloads, applies them, pushes the resulting
// deltas to the hub and falls back to placeholders while the store is empty.
type Ingestor struct {
	opts        Options
	normalizer  *normalize.Normalizer
	store       *store.Store
	fallback    *fallback.Controller
	broadcaster Broadcaster
	logger      *slog.Logger

	statusMu sync.RWMutex
	status   Status

	ready   bool
	readyMu sync.RWMutex
}

func New(opts Options, normalizer *normalize.Normalizer, store *store.Store, fb *fallback.Controller, broadcaster Broadcaster, logger *slog.Logger) *Ingestor {
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = 5 * time.Second
	}
	return &Ingestor{
		opts:        opts,
		normalizer:  normalizer,
		store:       store,
		fallback:    fb,
		broadcaster: broadcaster,
		logger:      logger.With("component", "ingestor"),
	}
}

func (i *Ingestor) Run(ctx context.Context) {
	events := make(chan transport.Event, 16)
	done := make(chan error, 1)

	source := i.opts.Primary
	start := func(src transport.Source) {
		i.setSource(src.Name())
		i.logger.Info("starting live feed source", "source", src.Name())
		go func() { done <- src.Run(ctx, events) }()
	}
	start(source)

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-events:
			i.Handle(ev)

		case err := <-done:
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, transport.ErrIncompatibleVersion) && i.opts.Secondary != nil && source != i.opts.Secondary {
				i.logger.Warn("switching to secondary source", "from", source.Name(), "to", i.opts.Secondary.Name())
				observability.SourceSwitches.Inc()
				i.updateStatus(func(s *Status) { s.FallenBack = true })
				source = i.opts.Secondary
				start(source)
				continue
			}

			i.logger.Error("live feed source stopped", "source", source.Name(), "error", err, "restart_in", i.opts.RestartDelay)
			i.degrade()
			select {
			case <-ctx.Done():
				return
			case <-time.After(i.opts.RestartDelay):
				start(source)
			}
		}
	}
}

// Handle applies one transport event.
func (i *Ingestor) Handle(ev transport.Event) {
	observability.FeedEvents.WithLabelValues(ev.Source, ev.Kind.String()).Inc()

	switch ev.Kind {
	case transport.KindSnapshot, transport.KindDelta:
		i.apply(ev)
	case transport.KindFailure:
		i.updateStatus(func(s *Status) {
			s.Failures++
			s.LastEvent = ev.ReceivedAt
			if ev.Err != nil {
				s.LastError = ev.Err.Error()
			}
		})
		i.logger.Warn("live feed failure", "source", ev.Source, "error", ev.Err)
		i.degrade()
	case transport.KindFallback:
		i.logger.Warn("live feed requested fallback", "source", ev.Source, "error", ev.Err)
		i.degrade()
	}
}

func (i *Ingestor) apply(ev transport.Event) {
	start := time.Now()
	defer observability.ObserveBatchLatency(start)

	records := ev.Records
	var parseErrs []error
	if ev.Trains != nil {
		records, parseErrs = i.normalizer.NormalizeAll(ev.Trains)
		observability.ParseFailures.Add(float64(len(parseErrs)))
	}
	i.assignTiles(records)

	var deltas []domain.RecordDelta
	if ev.Kind == transport.KindSnapshot {
		deltas = i.store.ReplaceAll(records)
	} else {
		deltas = i.store.ApplyDelta(records)
	}

	observability.RecordsApplied.Add(float64(len(records)))
	observability.RecordsChanged.Add(float64(len(deltas)))
	observability.StoredRecords.Set(float64(i.store.Count()))

	if i.broadcaster != nil {
		i.broadcaster.Broadcast(deltas)
	}

	i.updateStatus(func(s *Status) {
		if ev.Kind == transport.KindSnapshot {
			s.Snapshots++
		} else {
			s.Deltas++
		}
		s.ParseErrors += int64(len(parseErrs))
		s.LastEvent = ev.ReceivedAt
		s.LastError = ""
		s.Degraded = i.store.HasPlaceholders()
	})

	if !i.IsReady() && i.store.Count() > 0 {
		i.setReady(true)
		i.logger.Info("ingestor ready", "source", ev.Source, "records", i.store.Count())
	}

	i.logger.Debug("feed event applied",
		"source", ev.Source,
		"kind", ev.Kind.String(),
		"records", len(records),
		"dropped", len(parseErrs),
		"deltas", len(deltas),
		"total", i.store.Count(),
	)
}

// degrade fills an empty store with placeholders. Existing records, however
// stale, are never replaced.
func (i *Ingestor) degrade() {
	if i.fallback == nil || i.store.Count() > 0 {
		return
	}

	placeholders := i.fallback.Fallback()
	i.assignTiles(placeholders)
	if !i.store.SetPlaceholders(placeholders) {
		return
	}
	observability.PlaceholdersServed.Inc()

	if i.broadcaster != nil {
		deltas := make([]domain.RecordDelta, 0, len(placeholders))
		for _, p := range placeholders {
			deltas = append(deltas, domain.RecordDelta{Type: domain.DeltaUpdate, Record: p, TileID: p.TileID})
		}
		i.broadcaster.Broadcast(deltas)
	}

	i.updateStatus(func(s *Status) { s.Degraded = true })
	if !i.IsReady() {
		i.setReady(true)
	}
	i.logger.Info("serving placeholder trains", "count", len(placeholders))
}

func (i *Ingestor) assignTiles(records []*domain.LiveTrainRecord) {
	for _, r := range records {
		r.TileID = hub.TileID(r.Latitude, r.Longitude, i.opts.ZoomLevel)
	}
}

func (i *Ingestor) Status() Status {
	i.statusMu.RLock()
	defer i.statusMu.RUnlock()
	return i.status
}

func (i *Ingestor) setSource(name string) {
	i.updateStatus(func(s *Status) { s.Source = name })
}

func (i *Ingestor) updateStatus(fn func(*Status)) {
	i.statusMu.Lock()
	defer i.statusMu.Unlock()
	fn(&i.status)
}

func (i *Ingestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *Ingestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}
