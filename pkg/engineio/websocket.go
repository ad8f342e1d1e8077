package engineio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const probe = "probe"

// Conn is an Engine.IO session carried over a websocket.
type Conn struct {
	ws      *websocket.Conn
	session *Session
}

// Session returns the handle the connection belongs to.
func (c *Conn) Session() *Session {
	return c.session
}

// Dial opens a websocket transport. With an open polling session that offers
// the websocket upgrade, the session is upgraded in place (2probe/3probe/5).
// Otherwise a fresh websocket session is opened and its open packet read.
func (c *Client) Dial(ctx context.Context, s *Session) (*Conn, error) {
	upgrading := s != nil && s.State == StateOpen && s.CanUpgrade("websocket")
	sid := ""
	if upgrading {
		sid = s.ID
	}

	header := http.Header{}
	if c.userAgent != "" {
		header.Set("User-Agent", c.userAgent)
	}
	if c.origin != "" {
		header.Set("Origin", c.origin)
	}

	ws, resp, err := websocket.Dial(ctx, websocketURL(c.transportURL("websocket", sid, false)), &websocket.DialOptions{
		HTTPClient: c.dialHTTPClient(),
		HTTPHeader: header,
	})
	if err != nil {
		if !upgrading && rejectsVersion(resp) {
			return nil, fmt.Errorf("dialing websocket: %w: %v", ErrUnsupportedVersion, err)
		}
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}
	ws.SetReadLimit(maxBodyBytes)

	conn := &Conn{ws: ws, session: s}
	if upgrading {
		err = conn.upgrade(ctx)
	} else {
		err = conn.readOpen(ctx, c)
	}
	if err != nil {
		ws.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, err
	}
	return conn, nil
}

func (c *Conn) upgrade(ctx context.Context) error {
	if err := c.WriteText(ctx, string(PacketPing)+probe); err != nil {
		return fmt.Errorf("sending probe: %w", err)
	}
	p, err := c.ReadPacket(ctx)
	if err != nil {
		return fmt.Errorf("reading probe reply: %w", err)
	}
	if p.Type != PacketPong || p.Data != probe {
		return fmt.Errorf("%w: unexpected probe reply %q", ErrHandshakeFailed, string(p.Type)+p.Data)
	}
	if err := c.WriteText(ctx, string(PacketUpgrade)); err != nil {
		return fmt.Errorf("sending upgrade: %w", err)
	}
	return nil
}

func (c *Conn) readOpen(ctx context.Context, client *Client) error {
	p, err := c.ReadPacket(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading open packet: %v", ErrHandshakeFailed, err)
	}
	if p.Type != PacketOpen {
		return fmt.Errorf("%w: expected open packet, got %q", ErrHandshakeFailed, string(p.Type))
	}
	hs, err := parseHandshake(p.Data)
	if err != nil {
		return err
	}
	c.session = hs.session(client.now())
	return nil
}

// ReadPacket blocks for the next text frame and decodes it.
func (c *Conn) ReadPacket(ctx context.Context) (Packet, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return Packet{}, err
		}
		if typ != websocket.MessageText {
			continue
		}
		return DecodePacket(string(data))
	}
}

// WriteText sends one text frame.
func (c *Conn) WriteText(ctx context.Context, frame string) error {
	return c.ws.Write(ctx, websocket.MessageText, []byte(frame))
}

// Close sends an Engine.IO close packet and closes the websocket.
func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = c.WriteText(ctx, string(PacketClose))
	cancel()
	if c.session != nil {
		c.session.State = StateClosed
	}
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// rejectsVersion reports whether a failed upgrade response names the protocol
// version. A bare 400 is not enough: servers and proxies answer 400 for
// unrelated bad requests too.
func rejectsVersion(resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusBadRequest || resp.Body == nil {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false
	}
	return IsVersionRejection(string(body))
}

// dialHTTPClient drops the request timeout; a websocket outlives it.
func (c *Client) dialHTTPClient() *http.Client {
	hc := *c.httpClient
	hc.Timeout = 0
	return &hc
}

func websocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}
