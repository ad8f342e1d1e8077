// Package engineio speaks the subset of the Engine.IO v4 / Socket.IO wire
// protocol needed to pull train data from the live feed: the polling
// handshake, event frames over polling and the websocket upgrade.
package engineio

import (
	"errors"
	"time"
)

var (
	// ErrHandshakeFailed is returned when no session id could be obtained.
	ErrHandshakeFailed = errors.New("engine.io handshake failed")
	// ErrUnsupportedVersion is returned when the server rejects the EIO=4 wire version.
	ErrUnsupportedVersion = errors.New("engine.io protocol version not supported by server")
)

// State is the lifecycle state of a session handle
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the handle returned by a successful handshake. It is used for
// one polling cycle or one persistent connection and then discarded.
type Session struct {
	ID           string
	State        State
	CreatedAt    time.Time
	Upgrades     []string
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxPayload   int64
}

// CanUpgrade reports whether the server offered the given transport upgrade.
func (s *Session) CanUpgrade(transport string) bool {
	for _, u := range s.Upgrades {
		if u == transport {
			return true
		}
	}
	return false
}

// handshake is the JSON body of the Engine.IO open packet.
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

func (h handshake) session(now time.Time) *Session {
	return &Session{
		ID:           h.SID,
		State:        StateOpen,
		CreatedAt:    now,
		Upgrades:     h.Upgrades,
		PingInterval: time.Duration(h.PingInterval) * time.Millisecond,
		PingTimeout:  time.Duration(h.PingTimeout) * time.Millisecond,
		MaxPayload:   h.MaxPayload,
	}
}
