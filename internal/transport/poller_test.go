package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail/pkg/engineio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pollingServer answers the handshake, accepts the request event and serves
// bodies in order on subsequent polls, repeating the last one.
func pollingServer(t *testing.T, handshake string, bodies ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, `42["all-newtrains"]`, string(body))
			io.WriteString(w, "ok")
		case r.URL.Query().Get("sid") == "":
			io.WriteString(w, handshake)
		default:
			n := int(polls.Add(1)) - 1
			if n >= len(bodies) {
				n = len(bodies) - 1
			}
			io.WriteString(w, bodies[n])
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newTestPoller(srv *httptest.Server, attempts int) *Poller {
	client := engineio.New(srv.URL+"/socket.io/", time.Second)
	return NewPoller(client, PollerConfig{MaxAttempts: attempts, AttemptDelay: time.Millisecond, Interval: time.Hour}, discardLogger())
}

func TestPollerCycle(t *testing.T) {
	srv, polls := pollingServer(t, `{"sid":"abc123"}`,
		"6",
		`42["all-newtrains",{"9900":{"90012":{"lat":"31.5","lon":"74.3","sp":"80","last_updated":"1700000000"}}}]`,
	)
	p := newTestPoller(srv, 5)

	trains, err := p.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Equal(t, "9900", trains[0].OuterKey)
	require.Len(t, trains[0].Instances, 1)
	assert.Equal(t, "90012", trains[0].Instances[0].InnerKey)
	assert.Equal(t, "80", trains[0].Instances[0].Fields.Speed.Value)
	assert.Equal(t, int32(2), polls.Load())
}

func TestPollerNoData(t *testing.T) {
	srv, polls := pollingServer(t, `0{"sid":"abc123"}`, "6")
	p := newTestPoller(srv, 3)

	_, err := p.Cycle(context.Background())
	require.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, int32(3), polls.Load())
}

func TestPollerHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	p := newTestPoller(srv, 3)

	_, err := p.Cycle(context.Background())
	assert.ErrorIs(t, err, engineio.ErrHandshakeFailed)
}

func TestPollerRunEmitsEvents(t *testing.T) {
	srv, _ := pollingServer(t, `{"sid":"abc123"}`, `42["all-newtrains",{"1":{"10":{"lat":"30","lon":"70"}}}]`)
	p := newTestPoller(srv, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event, 1)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, events) }()

	select {
	case ev := <-events:
		assert.Equal(t, KindSnapshot, ev.Kind)
		assert.Equal(t, "polling", ev.Source)
		assert.Equal(t, 1, ev.Trains.Len())
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	srv, polls := pollingServer(t, `{"sid":"abc123"}`, "6")
	client := engineio.New(srv.URL+"/socket.io/", time.Second)
	p := NewPoller(client, PollerConfig{MaxAttempts: 100, AttemptDelay: time.Hour}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Cycle(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// the delay runs before the first poll too
	assert.Zero(t, polls.Load())
}
