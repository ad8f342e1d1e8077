package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CatalogEntry is a reference train from the static timetable mirror
type CatalogEntry struct {
	TrainID            string `json:"TrainId"`
	TrainNumber        string `json:"TrainNumber"`
	TrainName          string `json:"TrainName"`
	TrainNameLocalized string `json:"TrainNameUR"`
}

// UnmarshalJSON accepts numeric or string ids and both spellings of the
// localized name used by the mirror.
func (e *CatalogEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		TrainID       json.RawMessage `json:"TrainId"`
		TrainNumber   json.RawMessage `json:"TrainNumber"`
		TrainName     string          `json:"TrainName"`
		TrainNameUR   string          `json:"TrainNameUR"`
		TrainNameUrdu string          `json:"TrainNameUrdu"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.TrainID = scalarString(raw.TrainID)
	e.TrainNumber = scalarString(raw.TrainNumber)
	e.TrainName = raw.TrainName
	e.TrainNameLocalized = raw.TrainNameUR
	if e.TrainNameLocalized == "" {
		e.TrainNameLocalized = raw.TrainNameUrdu
	}
	return nil
}

// Station is a reference station from the static timetable mirror
type Station struct {
	StationID            string  `json:"StationId"`
	StationName          string  `json:"StationName"`
	StationNameLocalized string  `json:"StationNameUrdu"`
	Latitude             float64 `json:"Latitude"`
	Longitude            float64 `json:"Longitude"`
}

func (s *Station) UnmarshalJSON(data []byte) error {
	var raw struct {
		StationID       json.RawMessage `json:"StationId"`
		StationName     string          `json:"StationName"`
		StationNameUrdu string          `json:"StationNameUrdu"`
		StationNameUR   string          `json:"StationNameUR"`
		Latitude        json.RawMessage `json:"Latitude"`
		Longitude       json.RawMessage `json:"Longitude"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.StationID = scalarString(raw.StationID)
	s.StationName = raw.StationName
	s.StationNameLocalized = raw.StationNameUrdu
	if s.StationNameLocalized == "" {
		s.StationNameLocalized = raw.StationNameUR
	}
	s.Latitude, _ = strconv.ParseFloat(scalarString(raw.Latitude), 64)
	s.Longitude, _ = strconv.ParseFloat(scalarString(raw.Longitude), 64)
	return nil
}

// scalarString renders a JSON string or number as plain text.
func scalarString(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return text
}
