package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pakrail/internal/domain"
	"pakrail/pkg/engineio"
)

type SubscriberConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Subscriber holds a websocket session open against the live feed and emits
// every snapshot and delta it pushes. It reconnects forever with capped
// exponential backoff.
type Subscriber struct {
	client *engineio.Client
	cfg    SubscriberConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewSubscriber(client *engineio.Client, cfg SubscriberConfig, logger *slog.Logger) *Subscriber {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 5 * cfg.InitialBackoff
	}
	return &Subscriber{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "subscriber"),
		now:    time.Now,
	}
}

func (s *Subscriber) Name() string {
	return "subscriber"
}

func (s *Subscriber) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.InitialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         s.cfg.MaxBackoff,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Run blocks until ctx is cancelled, returning its error, or until the server
// turns out to speak an incompatible protocol version. In that case a
// Fallback event is emitted and ErrIncompatibleVersion returned.
func (s *Subscriber) Run(ctx context.Context, events chan<- Event) error {
	b := s.newBackOff()

	for {
		delivered, err := s.connect(ctx, events)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, ErrIncompatibleVersion) {
			s.logger.Error("live feed speaks an incompatible protocol version", "error", err)
			emit(ctx, events, Event{Kind: KindFallback, Err: err, Source: s.Name(), ReceivedAt: s.now()})
			return err
		}

		if delivered {
			b.Reset()
		}
		wait := b.NextBackOff()
		s.logger.Warn("live feed connection lost", "error", err, "retry_in", wait)
		if !emit(ctx, events, Event{Kind: KindFailure, Err: err, Source: s.Name(), ReceivedAt: s.now()}) {
			return ctx.Err()
		}
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// connect runs one connection to completion. delivered reports whether any
// train payload was received on it.
func (s *Subscriber) connect(ctx context.Context, events chan<- Event) (delivered bool, err error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	sid := conn.Session().ID
	log := s.logger.With("sid", sid)

	if err := s.join(ctx, conn); err != nil {
		return false, err
	}

	request, err := engineio.EncodeEvent(EventSnapshot)
	if err != nil {
		return false, err
	}
	if err := conn.WriteText(ctx, request); err != nil {
		return false, fmt.Errorf("%w: sending request event: %v", ErrConnection, err)
	}
	log.Info("subscribed to live feed")

	for {
		p, err := s.read(ctx, conn)
		if err != nil {
			return delivered, fmt.Errorf("%w: %v", ErrConnection, err)
		}

		switch p.Type {
		case engineio.PacketPing:
			if err := conn.WriteText(ctx, string(engineio.PacketPong)+p.Data); err != nil {
				return delivered, fmt.Errorf("%w: sending pong: %v", ErrConnection, err)
			}
		case engineio.PacketClose:
			return delivered, fmt.Errorf("%w: server closed the session", ErrConnection)
		case engineio.PacketMessage:
			switch p.Socket {
			case engineio.SocketDisconnect:
				return delivered, fmt.Errorf("%w: server disconnected the socket", ErrConnection)
			case engineio.SocketEvent:
				ev, ok := s.decodeEvent(log, p)
				if !ok {
					continue
				}
				if !emit(ctx, events, ev) {
					return delivered, ctx.Err()
				}
				delivered = true
			}
		}
	}
}

// dial prefers upgrading a polling session; a fresh websocket is opened when
// the polling handshake fails or offers no upgrade.
func (s *Subscriber) dial(ctx context.Context) (*engineio.Conn, error) {
	session, err := s.client.Open(ctx)
	if err != nil {
		if errors.Is(err, engineio.ErrUnsupportedVersion) {
			return nil, fmt.Errorf("%w: %v", ErrIncompatibleVersion, err)
		}
		s.logger.Debug("polling handshake failed, dialing websocket directly", "error", err)
		session = nil
	}

	conn, err := s.client.Dial(ctx, session)
	if err != nil {
		if errors.Is(err, engineio.ErrUnsupportedVersion) {
			return nil, fmt.Errorf("%w: %v", ErrIncompatibleVersion, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return conn, nil
}

// join performs the Socket.IO connect on the default namespace.
func (s *Subscriber) join(ctx context.Context, conn *engineio.Conn) error {
	connect := string(engineio.PacketMessage) + string(engineio.SocketConnect)
	if err := conn.WriteText(ctx, connect); err != nil {
		return fmt.Errorf("%w: sending connect: %v", ErrConnection, err)
	}

	for {
		p, err := s.read(ctx, conn)
		if err != nil {
			return fmt.Errorf("%w: awaiting connect: %v", ErrConnection, err)
		}
		switch {
		case p.Type == engineio.PacketPing:
			if err := conn.WriteText(ctx, string(engineio.PacketPong)+p.Data); err != nil {
				return fmt.Errorf("%w: sending pong: %v", ErrConnection, err)
			}
		case p.Type == engineio.PacketMessage && p.Socket == engineio.SocketConnect:
			return nil
		case p.Type == engineio.PacketMessage && p.Socket == engineio.SocketConnectError:
			if engineio.IsVersionRejection(p.Data) {
				return fmt.Errorf("%w: %s", ErrIncompatibleVersion, p.Data)
			}
			return fmt.Errorf("%w: connect refused: %s", ErrConnection, p.Data)
		case p.Type == engineio.PacketClose:
			return fmt.Errorf("%w: server closed the session", ErrConnection)
		}
	}
}

// read waits for the next packet, bounded by the server's heartbeat period
// when the handshake advertised one.
func (s *Subscriber) read(ctx context.Context, conn *engineio.Conn) (engineio.Packet, error) {
	session := conn.Session()
	if session == nil || session.PingInterval <= 0 {
		return conn.ReadPacket(ctx)
	}
	rctx, cancel := context.WithTimeout(ctx, session.PingInterval+session.PingTimeout)
	defer cancel()
	return conn.ReadPacket(rctx)
}

func (s *Subscriber) decodeEvent(log *slog.Logger, p engineio.Packet) (Event, bool) {
	name, args, err := p.Event()
	if err != nil {
		log.Debug("ignoring malformed event", "error", err)
		return Event{}, false
	}

	var kind Kind
	switch name {
	case EventSnapshot:
		kind = KindSnapshot
	case EventDelta:
		kind = KindDelta
	default:
		log.Debug("ignoring event", "event", name)
		return Event{}, false
	}
	if len(args) == 0 {
		return Event{}, false
	}

	var trains domain.RawTrains
	if err := json.Unmarshal(args[0], &trains); err != nil {
		log.Warn("undecodable train payload", "event", name, "error", err)
		return Event{}, false
	}
	return Event{Kind: kind, Trains: trains, Source: s.Name(), ReceivedAt: s.now()}, true
}
