package domain

import (
	"encoding/json"
	"math"
	"time"
)

// TimestampLayout is the ISO-8601 form used for every timestamp the API emits.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// LiveTrainRecord is one observed instance of a train at a point in time.
// InnerKey is the merge key; OuterKey groups instances of the same train.
type LiveTrainRecord struct {
	OuterKey         string    `json:"TrainId"`
	InnerKey         string    `json:"InnerKey"`
	LocomotiveNumber string    `json:"LocomotiveNumber,omitempty"`
	Latitude         float64   `json:"Latitude"`
	Longitude        float64   `json:"Longitude"`
	SpeedKmh         int       `json:"Speed"`
	DelayMinutes     int       `json:"LateBy"`
	NextStationID    *string   `json:"NextStationId"`
	NextStationName  *string   `json:"NextStation"`
	PrevStationID    *string   `json:"PrevStationId"`
	NextStationETA   string    `json:"NextStationETA,omitempty"`
	LastUpdated      time.Time `json:"-"`
	Status           string    `json:"Status,omitempty"`
	Icon             string    `json:"Icon,omitempty"`
	IsLive           bool      `json:"IsLive"`

	ResolvedName          *string `json:"TrainName,omitempty"`
	ResolvedNumber        *string `json:"TrainNumber,omitempty"`
	ResolvedNameLocalized *string `json:"TrainNameUrdu,omitempty"`

	TileID string `json:"TileId,omitempty"`
}

type recordAlias LiveTrainRecord

type recordJSON struct {
	*recordAlias
	LastUpdated string `json:"LastUpdated"`
}

func (r LiveTrainRecord) MarshalJSON() ([]byte, error) {
	alias := recordAlias(r)
	return json.Marshal(recordJSON{
		recordAlias: &alias,
		LastUpdated: FormatTimestamp(r.LastUpdated),
	})
}

func (r *LiveTrainRecord) UnmarshalJSON(data []byte) error {
	aux := recordJSON{recordAlias: (*recordAlias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.LastUpdated == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, aux.LastUpdated)
	if err != nil {
		return err
	}
	r.LastUpdated = ts.UTC()
	return nil
}

// HasValidPosition reports whether both coordinates are finite numbers.
func (r *LiveTrainRecord) HasValidPosition() bool {
	return isFinite(r.Latitude) && isFinite(r.Longitude)
}

// Clone returns a deep copy, including the optional string fields.
func (r *LiveTrainRecord) Clone() *LiveTrainRecord {
	c := *r
	c.NextStationID = cloneString(r.NextStationID)
	c.NextStationName = cloneString(r.NextStationName)
	c.PrevStationID = cloneString(r.PrevStationID)
	c.ResolvedName = cloneString(r.ResolvedName)
	c.ResolvedNumber = cloneString(r.ResolvedNumber)
	c.ResolvedNameLocalized = cloneString(r.ResolvedNameLocalized)
	return &c
}

// Equal compares two records by value.
func (r *LiveTrainRecord) Equal(o *LiveTrainRecord) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.OuterKey == o.OuterKey &&
		r.InnerKey == o.InnerKey &&
		r.LocomotiveNumber == o.LocomotiveNumber &&
		r.Latitude == o.Latitude &&
		r.Longitude == o.Longitude &&
		r.SpeedKmh == o.SpeedKmh &&
		r.DelayMinutes == o.DelayMinutes &&
		equalString(r.NextStationID, o.NextStationID) &&
		equalString(r.NextStationName, o.NextStationName) &&
		equalString(r.PrevStationID, o.PrevStationID) &&
		r.NextStationETA == o.NextStationETA &&
		r.LastUpdated.Equal(o.LastUpdated) &&
		r.Status == o.Status &&
		r.Icon == o.Icon &&
		r.IsLive == o.IsLive &&
		equalString(r.ResolvedName, o.ResolvedName) &&
		equalString(r.ResolvedNumber, o.ResolvedNumber) &&
		equalString(r.ResolvedNameLocalized, o.ResolvedNameLocalized) &&
		r.TileID == o.TileID
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DeltaType indicates whether a record was updated or withdrawn
type DeltaType string

const (
	DeltaUpdate DeltaType = "update"
	// DeltaRemove withdraws a placeholder once real data arrives; live
	// records are never removed.
	DeltaRemove DeltaType = "remove"
)

// RecordDelta represents a change in live train state
type RecordDelta struct {
	Type   DeltaType        `json:"type"`
	Record *LiveTrainRecord `json:"record,omitempty"`
	Key    string           `json:"key,omitempty"`
	TileID string           `json:"tileId"`
}

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Contains checks if a point is within the bounding box
func (bb *BoundingBox) Contains(lat, lon float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lon >= bb.MinLon && lon <= bb.MaxLon
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
