package store

import (
	"strings"
	"sync"
	"time"

	"pakrail/internal/domain"
)

// CatalogStore holds the static train and station catalog. It is replaced
// wholesale on every refresh and read concurrently by the normalizer and
// the HTTP handlers.
type CatalogStore struct {
	mu           sync.RWMutex
	trains       []domain.CatalogEntry
	trainsByID   map[string]int
	stations     []domain.Station
	stationsByID map[string]int

	version    uint64
	lastUpdate time.Time
}

type CatalogStats struct {
	Trains     int       `json:"trains"`
	Stations   int       `json:"stations"`
	Version    uint64    `json:"version"`
	LastUpdate time.Time `json:"lastUpdate"`
}

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		trainsByID:   make(map[string]int),
		stationsByID: make(map[string]int),
	}
}

// UpdateAll swaps in a new catalog. For duplicate ids the first entry wins.
func (s *CatalogStore) UpdateAll(trains []domain.CatalogEntry, stations []domain.Station) {
	trainsByID := make(map[string]int, len(trains))
	for i, t := range trains {
		if _, dup := trainsByID[t.TrainID]; !dup && t.TrainID != "" {
			trainsByID[t.TrainID] = i
		}
	}
	stationsByID := make(map[string]int, len(stations))
	for i, st := range stations {
		if _, dup := stationsByID[st.StationID]; !dup && st.StationID != "" {
			stationsByID[st.StationID] = i
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trains = trains
	s.trainsByID = trainsByID
	s.stations = stations
	s.stationsByID = stationsByID
	s.version++
	s.lastUpdate = time.Now()
}

func (s *CatalogStore) LookupTrain(trainID string) (domain.CatalogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.trainsByID[trainID]
	if !ok {
		return domain.CatalogEntry{}, false
	}
	return s.trains[i], true
}

// Version increments on every UpdateAll; zero means never loaded.
func (s *CatalogStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *CatalogStore) IsLoaded() bool {
	return s.Version() > 0
}

func (s *CatalogStore) Trains() []domain.CatalogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CatalogEntry, len(s.trains))
	copy(result, s.trains)
	return result
}

func (s *CatalogStore) Stations() []domain.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Station, len(s.stations))
	copy(result, s.stations)
	return result
}

func (s *CatalogStore) GetStation(stationID string) (domain.Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.stationsByID[stationID]
	if !ok {
		return domain.Station{}, false
	}
	return s.stations[i], true
}

// FindTrain matches an identifier against train ids, then train numbers
// compared case-insensitively.
func (s *CatalogStore) FindTrain(identifier string) (domain.CatalogEntry, bool) {
	if entry, ok := s.LookupTrain(identifier); ok {
		return entry, true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trains {
		if strings.EqualFold(t.TrainNumber, identifier) {
			return t, true
		}
	}
	return domain.CatalogEntry{}, false
}

// SearchTrains matches number and name without case, and the localized name
// as given.
func (s *CatalogStore) SearchTrains(query string) []domain.CatalogEntry {
	term := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CatalogEntry, 0)
	for _, t := range s.trains {
		if strings.Contains(strings.ToLower(t.TrainNumber), term) ||
			strings.Contains(strings.ToLower(t.TrainName), term) ||
			strings.Contains(t.TrainNameLocalized, query) {
			result = append(result, t)
		}
	}
	return result
}

func (s *CatalogStore) SearchStations(query string) []domain.Station {
	term := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Station, 0)
	for _, st := range s.stations {
		if strings.Contains(strings.ToLower(st.StationName), term) ||
			strings.Contains(st.StationNameLocalized, query) ||
			strings.Contains(strings.ToLower(st.StationID), term) {
			result = append(result, st)
		}
	}
	return result
}

func (s *CatalogStore) Stats() CatalogStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return CatalogStats{
		Trains:     len(s.trains),
		Stations:   len(s.stations),
		Version:    s.version,
		LastUpdate: s.lastUpdate,
	}
}

func (s *CatalogStore) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}
