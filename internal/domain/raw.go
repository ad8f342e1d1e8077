package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexString holds an upstream scalar that may arrive as a JSON string or number.
type FlexString struct {
	Value   string
	Present bool
}

func (f *FlexString) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	switch {
	case text == "null":
		*f = FlexString{}
	case strings.HasPrefix(text, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString{Value: s, Present: true}
	case strings.HasPrefix(text, "{"), strings.HasPrefix(text, "["):
		// Structured values carry nothing the normalizer can use.
		*f = FlexString{}
	default:
		*f = FlexString{Value: text, Present: true}
	}
	return nil
}

func (f FlexString) MarshalJSON() ([]byte, error) {
	if !f.Present {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// RawTrain is the per-instance field set of the live feed; field names are
// the upstream's, including its locomitiveNo spelling.
type RawTrain struct {
	Lat            FlexString `json:"lat"`
	Lon            FlexString `json:"lon"`
	Speed          FlexString `json:"sp"`
	LateBy         FlexString `json:"late_by"`
	NextStation    FlexString `json:"next_station"`
	NextStop       FlexString `json:"next_stop"`
	PrevStation    FlexString `json:"prev_station"`
	NextStationETA FlexString `json:"NextStationETA"`
	LastUpdated    FlexString `json:"last_updated"`
	Status         FlexString `json:"st"`
	Icon           FlexString `json:"icon"`
	LocomotiveNo   FlexString `json:"locomitiveNo"`
}

// RawInstance is one inner-key entry of a feed payload.
type RawInstance struct {
	InnerKey string
	Fields   RawTrain
}

// RawGroup is one outer-key entry of a feed payload.
type RawGroup struct {
	OuterKey  string
	Instances []RawInstance
}

// RawTrains is the nested {outerKey: {innerKey: fields}} payload shared by
// the all-newtrains and all-newtrains-delta events. Decoding keeps the
// payload's key order so later duplicates deterministically win.
type RawTrains []RawGroup

// Len counts inner instances across all groups.
func (t RawTrains) Len() int {
	n := 0
	for _, g := range t {
		n += len(g.Instances)
	}
	return n
}

func (t *RawTrains) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*t = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("train payload: %w", err)
	}

	var groups RawTrains
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return fmt.Errorf("train payload: %w", err)
		}
		var inner json.RawMessage
		if err := dec.Decode(&inner); err != nil {
			return fmt.Errorf("train payload %q: %w", key, err)
		}
		instances, err := decodeInstances(inner)
		if err != nil {
			return fmt.Errorf("train payload %q: %w", key, err)
		}
		if instances == nil {
			continue
		}
		groups = append(groups, RawGroup{OuterKey: key, Instances: instances})
	}
	*t = groups
	return nil
}

func (t RawTrains) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(g.OuterKey)
		buf.Write(key)
		buf.WriteString(":{")
		for j, inst := range g.Instances {
			if j > 0 {
				buf.WriteByte(',')
			}
			ik, _ := json.Marshal(inst.InnerKey)
			fields, err := json.Marshal(inst.Fields)
			if err != nil {
				return nil, err
			}
			buf.Write(ik)
			buf.WriteByte(':')
			buf.Write(fields)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeInstances returns nil for values that are not objects; empty keys
// and null or non-object instances are skipped.
func decodeInstances(data json.RawMessage) ([]RawInstance, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	instances := []RawInstance{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if key == "" || !bytes.HasPrefix(bytes.TrimSpace(value), []byte("{")) {
			continue
		}
		var fields RawTrain
		if err := json.Unmarshal(value, &fields); err != nil {
			continue
		}
		instances = append(instances, RawInstance{InnerKey: key, Fields: fields})
	}
	return instances, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}
