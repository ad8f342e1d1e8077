package engineio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PacketType is the Engine.IO packet type digit
type PacketType byte

const (
	PacketOpen    PacketType = '0'
	PacketClose   PacketType = '1'
	PacketPing    PacketType = '2'
	PacketPong    PacketType = '3'
	PacketMessage PacketType = '4'
	PacketUpgrade PacketType = '5'
	PacketNoop    PacketType = '6'
)

// SocketType is the Socket.IO packet type digit carried inside a message packet
type SocketType byte

const (
	SocketConnect      SocketType = '0'
	SocketDisconnect   SocketType = '1'
	SocketEvent        SocketType = '2'
	SocketAck          SocketType = '3'
	SocketConnectError SocketType = '4'
)

// Packet is a single decoded Engine.IO packet.
type Packet struct {
	Type PacketType
	// Socket is set only for message packets.
	Socket SocketType
	// Data is everything after the type digits.
	Data string
}

var (
	errEmptyPacket  = errors.New("empty packet")
	errNotAnEvent   = errors.New("packet is not a socket.io event")
	errInvalidEvent = errors.New("malformed socket.io event")
)

// DecodePacket splits a text frame into its packet type digits and payload.
func DecodePacket(frame string) (Packet, error) {
	if frame == "" {
		return Packet{}, errEmptyPacket
	}
	p := Packet{Type: PacketType(frame[0]), Data: frame[1:]}
	if p.Type < PacketOpen || p.Type > PacketNoop {
		return Packet{}, fmt.Errorf("unknown packet type %q", frame[0])
	}
	if p.Type == PacketMessage && len(p.Data) > 0 {
		p.Socket = SocketType(p.Data[0])
		p.Data = p.Data[1:]
	}
	return p, nil
}

// Event decodes a Socket.IO EVENT packet into its name and raw arguments.
// A namespace prefix ("/ns,") and an ack id are skipped.
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != PacketMessage || p.Socket != SocketEvent {
		return "", nil, errNotAnEvent
	}
	data := p.Data
	if strings.HasPrefix(data, "/") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 {
			return "", nil, errInvalidEvent
		}
		data = data[comma+1:]
	}
	data = strings.TrimLeft(data, "0123456789")

	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(data), &parts); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	if len(parts) == 0 {
		return "", nil, errInvalidEvent
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", errInvalidEvent, err)
	}
	return name, parts[1:], nil
}

// EncodeEvent builds a Socket.IO EVENT frame, e.g. 42["all-newtrains"].
func EncodeEvent(name string, args ...any) (string, error) {
	parts := make([]any, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(parts); err != nil {
		return "", err
	}
	return string(PacketMessage) + string(SocketEvent) + strings.TrimSuffix(buf.String(), "\n"), nil
}

// ExtractEvent scans a polling response body for the first frame of the
// form 42["<name>",{...}] and returns the object argument. Any framing around
// the packet (v3 length prefixes, v4 record separators, other packets) is
// ignored.
func ExtractEvent(body, name string) (json.RawMessage, bool) {
	re := eventPattern(name)
	for _, loc := range re.FindAllStringIndex(body, -1) {
		start := loc[1] - 1 // position of the opening brace
		dec := json.NewDecoder(strings.NewReader(body[start:]))
		var obj json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		rest := strings.TrimLeft(body[start+int(dec.InputOffset()):], " \t\r\n")
		if strings.HasPrefix(rest, "]") {
			return obj, true
		}
	}
	return nil, false
}

// Patterns for the feed's own events are compiled once; others on demand.
var eventPatterns = map[string]*regexp.Regexp{
	"all-newtrains":       compileEventPattern("all-newtrains"),
	"all-newtrains-delta": compileEventPattern("all-newtrains-delta"),
}

func eventPattern(name string) *regexp.Regexp {
	if re, ok := eventPatterns[name]; ok {
		return re
	}
	return compileEventPattern(name)
}

func compileEventPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`42\["` + regexp.QuoteMeta(name) + `",\s*\{`)
}
