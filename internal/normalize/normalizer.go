// Package normalize turns raw live-feed instances into LiveTrainRecords and
// attaches catalog identity where the upstream keys allow it.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"pakrail/internal/domain"
)

// ErrParseFailure marks an instance whose position could not be parsed.
var ErrParseFailure = errors.New("parse failure")

const (
	// syntheticMarker prefixes outer keys the upstream assigns to live-only trains.
	syntheticMarker  = "9900"
	resolveCacheSize = 4096
)

// Catalog is the read side of the static catalog the resolver needs.
// Version changes whenever the catalog is replaced.
type Catalog interface {
	LookupTrain(trainID string) (domain.CatalogEntry, bool)
	Version() uint64
}

type Normalizer struct {
	catalog  Catalog
	resolved gcache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

type resolution struct {
	entry domain.CatalogEntry
	ok    bool
}

func New(catalog Catalog, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		catalog:  catalog,
		resolved: gcache.New(resolveCacheSize).LRU().Build(),
		logger:   logger.With("component", "normalizer"),
		now:      time.Now,
	}
}

// Normalize converts one raw instance. A non-finite latitude or longitude
// yields ErrParseFailure; missing speed or delay default to zero and a
// missing timestamp to the current time.
func (n *Normalizer) Normalize(outerKey, innerKey string, raw domain.RawTrain) (*domain.LiveTrainRecord, error) {
	lat := leadingFloat(raw.Lat.Value)
	lon := leadingFloat(raw.Lon.Value)
	if !finite(lat) || !finite(lon) {
		return nil, fmt.Errorf("%w: train %s/%s position (%q, %q)", ErrParseFailure, outerKey, innerKey, raw.Lat.Value, raw.Lon.Value)
	}

	rec := &domain.LiveTrainRecord{
		OuterKey:         outerKey,
		InnerKey:         innerKey,
		LocomotiveNumber: raw.LocomotiveNo.Value,
		Latitude:         lat,
		Longitude:        lon,
		SpeedKmh:         intOrZero(raw.Speed.Value),
		DelayMinutes:     intOrZero(raw.LateBy.Value),
		NextStationID:    domain.StringPtr(raw.NextStation.Value),
		NextStationName:  domain.StringPtr(raw.NextStop.Value),
		PrevStationID:    domain.StringPtr(raw.PrevStation.Value),
		NextStationETA:   raw.NextStationETA.Value,
		LastUpdated:      n.timestamp(raw.LastUpdated),
		Status:           raw.Status.Value,
		Icon:             raw.Icon.Value,
		IsLive:           true,
	}

	if entry, ok := n.Resolve(outerKey, innerKey); ok {
		rec.ResolvedName = domain.StringPtr(entry.TrainName)
		rec.ResolvedNumber = domain.StringPtr(entry.TrainNumber)
		rec.ResolvedNameLocalized = domain.StringPtr(entry.TrainNameLocalized)
	}
	return rec, nil
}

// NormalizeAll converts a payload in order. Instances that fail to parse are
// left out of the records and reported in errs.
func (n *Normalizer) NormalizeAll(trains domain.RawTrains) (records []*domain.LiveTrainRecord, errs []error) {
	records = make([]*domain.LiveTrainRecord, 0, trains.Len())
	for _, group := range trains {
		for _, inst := range group.Instances {
			rec, err := n.Normalize(group.OuterKey, inst.InnerKey, inst.Fields)
			if err != nil {
				n.logger.Debug("dropping train instance", "error", err)
				errs = append(errs, err)
				continue
			}
			records = append(records, rec)
		}
	}
	return records, errs
}

// Resolve matches upstream keys against the catalog. The outer key with its
// synthetic marker removed is tried first, then the inner key up to its first
// zero digit.
func (n *Normalizer) Resolve(outerKey, innerKey string) (domain.CatalogEntry, bool) {
	if n.catalog == nil {
		return domain.CatalogEntry{}, false
	}
	key := fmt.Sprintf("%d/%s/%s", n.catalog.Version(), outerKey, innerKey)
	if v, err := n.resolved.Get(key); err == nil {
		r := v.(resolution)
		return r.entry, r.ok
	}
	entry, ok := n.lookup(outerKey, innerKey)
	_ = n.resolved.Set(key, resolution{entry: entry, ok: ok})
	return entry, ok
}

func (n *Normalizer) lookup(outerKey, innerKey string) (domain.CatalogEntry, bool) {
	if id := strings.Replace(outerKey, syntheticMarker, "", 1); id != "" {
		if entry, ok := n.catalog.LookupTrain(id); ok {
			return entry, true
		}
	}
	if id := strings.SplitN(innerKey, "0", 2)[0]; id != "" {
		if entry, ok := n.catalog.LookupTrain(id); ok {
			return entry, true
		}
	}
	return domain.CatalogEntry{}, false
}

// timestamp reads epoch seconds.
func (n *Normalizer) timestamp(v domain.FlexString) time.Time {
	secs, ok := leadingInt(v.Value)
	if !ok {
		return n.now().UTC()
	}
	return time.UnixMilli(secs * 1000).UTC()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
