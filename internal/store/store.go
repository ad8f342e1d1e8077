package store

import (
	"sync"
	"time"

	"pakrail/internal/domain"
)

type ListOptions struct {
	OuterKey string
	LiveOnly bool
	BBox     *domain.BoundingBox
}

// Store is the live feed state keyed by InnerKey. Records are upserted and
// never removed; staleness is judged by readers from LastUpdated.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.LiveTrainRecord
	byTile  map[string]map[string]struct{}
	byOuter map[string]map[string]struct{}

	// placeholders are served only while records is empty.
	placeholders []*domain.LiveTrainRecord

	lastUpdated time.Time
	now         func() time.Time
}

func New() *Store {
	return &Store{
		records: make(map[string]*domain.LiveTrainRecord),
		byTile:  make(map[string]map[string]struct{}),
		byOuter: make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// ReplaceAll applies a full snapshot. A snapshot does not clear prior
// records; it is upserted exactly like a delta.
func (s *Store) ReplaceAll(records []*domain.LiveTrainRecord) []domain.RecordDelta {
	return s.upsert(records)
}

// ApplyDelta upserts an incremental update.
func (s *Store) ApplyDelta(records []*domain.LiveTrainRecord) []domain.RecordDelta {
	return s.upsert(records)
}

func (s *Store) upsert(records []*domain.LiveTrainRecord) []domain.RecordDelta {
	s.mu.Lock()
	defer s.mu.Unlock()

	deltas := make([]domain.RecordDelta, 0, len(records))
	for _, r := range records {
		if r == nil || r.InnerKey == "" || !r.HasValidPosition() {
			continue
		}

		existing, exists := s.records[r.InnerKey]
		if exists && existing.Equal(r) {
			continue
		}
		if exists {
			s.removeFromIndices(existing)
		}

		stored := r.Clone()
		s.records[r.InnerKey] = stored
		s.addToIndices(stored)

		deltas = append(deltas, domain.RecordDelta{
			Type:   domain.DeltaUpdate,
			Record: stored.Clone(),
			TileID: stored.TileID,
		})
	}

	if len(s.records) > 0 && len(s.placeholders) > 0 {
		deltas = append(deltas, s.withdrawPlaceholders()...)
	}
	s.lastUpdated = s.now()
	return deltas
}

// withdrawPlaceholders drops the placeholders and returns remove deltas for
// those whose key is not now held by a real record.
func (s *Store) withdrawPlaceholders() []domain.RecordDelta {
	removes := make([]domain.RecordDelta, 0, len(s.placeholders))
	for _, p := range s.placeholders {
		if _, taken := s.records[p.InnerKey]; taken {
			continue
		}
		removes = append(removes, domain.RecordDelta{
			Type:   domain.DeltaRemove,
			Key:    p.InnerKey,
			TileID: p.TileID,
		})
	}
	s.placeholders = nil
	return removes
}

// SetPlaceholders installs synthetic records for an empty store. It refuses,
// returning false, once any real record exists.
func (s *Store) SetPlaceholders(records []*domain.LiveTrainRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) > 0 {
		return false
	}
	s.placeholders = make([]*domain.LiveTrainRecord, 0, len(records))
	for _, r := range records {
		s.placeholders = append(s.placeholders, r.Clone())
	}
	return true
}

// HasPlaceholders reports whether reads are currently served synthetic data.
func (s *Store) HasPlaceholders() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records) == 0 && len(s.placeholders) > 0
}

func (s *Store) Get(innerKey string) (*domain.LiveTrainRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[innerKey]; ok {
		return r.Clone(), true
	}
	if len(s.records) == 0 {
		for _, p := range s.placeholders {
			if p.InnerKey == innerKey {
				return p.Clone(), true
			}
		}
	}
	return nil, false
}

// SnapshotView returns copies of every current record, or of the
// placeholders while no real record exists.
func (s *Store) SnapshotView() []*domain.LiveTrainRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return cloneAll(s.placeholders)
	}
	result := make([]*domain.LiveTrainRecord, 0, len(s.records))
	for _, r := range s.records {
		result = append(result, r.Clone())
	}
	return result
}

func (s *Store) List(opts ListOptions) []*domain.LiveTrainRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*domain.LiveTrainRecord
	switch {
	case len(s.records) == 0:
		candidates = s.placeholders
	case opts.OuterKey != "":
		for key := range s.byOuter[opts.OuterKey] {
			candidates = append(candidates, s.records[key])
		}
	default:
		candidates = make([]*domain.LiveTrainRecord, 0, len(s.records))
		for _, r := range s.records {
			candidates = append(candidates, r)
		}
	}

	result := make([]*domain.LiveTrainRecord, 0, len(candidates))
	for _, r := range candidates {
		if opts.OuterKey != "" && r.OuterKey != opts.OuterKey {
			continue
		}
		if opts.LiveOnly && !r.IsLive {
			continue
		}
		if opts.BBox != nil && !opts.BBox.Contains(r.Latitude, r.Longitude) {
			continue
		}
		result = append(result, r.Clone())
	}
	return result
}

func (s *Store) SnapshotForTiles(tileIDs []string) []*domain.LiveTrainRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		wanted := make(map[string]struct{}, len(tileIDs))
		for _, id := range tileIDs {
			wanted[id] = struct{}{}
		}
		var result []*domain.LiveTrainRecord
		for _, p := range s.placeholders {
			if _, ok := wanted[p.TileID]; ok {
				result = append(result, p.Clone())
			}
		}
		return result
	}

	seen := make(map[string]struct{})
	var result []*domain.LiveTrainRecord
	for _, tileID := range tileIDs {
		for key := range s.byTile[tileID] {
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, s.records[key].Clone())
		}
	}
	return result
}

// LastUpdatedAt is the time the last batch was applied; zero before the first.
func (s *Store) LastUpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Count returns the number of real records, excluding placeholders.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) CountLive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.IsLive {
			n++
		}
	}
	return n
}

func (s *Store) addToIndices(r *domain.LiveTrainRecord) {
	if s.byTile[r.TileID] == nil {
		s.byTile[r.TileID] = make(map[string]struct{})
	}
	s.byTile[r.TileID][r.InnerKey] = struct{}{}

	if s.byOuter[r.OuterKey] == nil {
		s.byOuter[r.OuterKey] = make(map[string]struct{})
	}
	s.byOuter[r.OuterKey][r.InnerKey] = struct{}{}
}

func (s *Store) removeFromIndices(r *domain.LiveTrainRecord) {
	removeKey(s.byTile, r.TileID, r.InnerKey)
	removeKey(s.byOuter, r.OuterKey, r.InnerKey)
}

func removeKey(index map[string]map[string]struct{}, bucket, key string) {
	if index[bucket] == nil {
		return
	}
	delete(index[bucket], key)
	if len(index[bucket]) == 0 {
		delete(index, bucket)
	}
}

func cloneAll(records []*domain.LiveTrainRecord) []*domain.LiveTrainRecord {
	result := make([]*domain.LiveTrainRecord, 0, len(records))
	for _, r := range records {
		result = append(result, r.Clone())
	}
	return result
}
