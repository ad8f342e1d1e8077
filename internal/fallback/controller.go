// Package fallback produces placeholder trains for an empty feed store so
// clients always have something to draw. Every record it emits is marked
// not live.
package fallback

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"pakrail/internal/domain"
)

type template struct {
	name   string
	number string
	route  string
	lat    float64
	lon    float64
}

var templates = []template{
	{"Karachi Express", "1UP", "KHI-LHE", 31.5204, 74.3587},
	{"Business Express", "2DN", "LHE-KHI", 24.8607, 67.0011},
	{"Millat Express", "3UP", "KHI-SGD", 30.1575, 71.5249},
	{"Pakistan Express", "4DN", "LHE-KHI", 29.3544, 71.6911},
	{"Awam Express", "5UP", "KHI-PSH", 32.1877, 74.1945},
	{"Green Line Express", "6DN", "ISB-KHI", 33.6844, 73.0479},
	{"Khyber Mail", "7UP", "KHI-PSH", 34.0151, 71.5249},
	{"Tezgam", "8DN", "KHI-RWP", 33.5651, 73.0169},
	{"Allama Iqbal Express", "9UP", "KHI-SKT", 32.4945, 74.5229},
	{"Shalimar Express", "10DN", "KHI-LHE", 31.5497, 74.3436},
	{"Jaffar Express", "11UP", "QTA-PSH", 30.1798, 66.9750},
	{"Bolan Mail", "12DN", "QTA-KHI", 27.7202, 68.4572},
	{"Chiltan Express", "13UP", "QTA-RWP", 30.1798, 66.9750},
	{"Sukkur Express", "14DN", "KHI-JCB", 27.7202, 68.4572},
	{"Ravi Express", "15UP", "LHE-KHI", 31.5204, 74.3587},
}

var routeStations = map[string][]string{
	"KHI-LHE": {"Hyderabad", "Sukkur", "Multan", "Sahiwal"},
	"LHE-KHI": {"Sahiwal", "Multan", "Sukkur", "Hyderabad"},
	"KHI-SGD": {"Hyderabad", "Sukkur", "Jhang"},
	"KHI-PSH": {"Hyderabad", "Multan", "Lahore", "Rawalpindi"},
	"ISB-KHI": {"Rawalpindi", "Lahore", "Multan", "Sukkur"},
	"QTA-PSH": {"Sibi", "Jacobabad", "Multan", "Lahore"},
	"QTA-KHI": {"Sibi", "Jacobabad", "Sukkur"},
}

var statuses = []struct {
	name   string
	weight int
}{
	{"On Time", 35},
	{"Delayed", 30},
	{"Running", 20},
	{"Approaching", 10},
	{"At Platform", 5},
}

const jitterDegrees = 0.08

type Controller struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func New() *Controller {
	return &Controller{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now: time.Now,
	}
}

// Size is the number of records Fallback returns.
func Size() int {
	return len(templates)
}

// Fallback returns one placeholder per representative train. Positions
// drift around each anchor over an hourly cycle.
func (c *Controller) Fallback() []*domain.LiveTrainRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cycle := float64(now.UnixMilli()%3600000) / 3600000

	records := make([]*domain.LiveTrainRecord, 0, len(templates))
	for i, t := range templates {
		phase := cycle + float64(i)*0.15
		stations := stationsFor(t.route)

		records = append(records, &domain.LiveTrainRecord{
			OuterKey:         fmt.Sprintf("990%03d", i+1),
			InnerKey:         fmt.Sprintf("%d0001", i+1),
			LocomotiveNumber: fmt.Sprintf("ENG%03d", i+1),
			Latitude:         round6(t.lat + math.Sin(phase)*jitterDegrees),
			Longitude:        round6(t.lon + math.Cos(phase)*jitterDegrees),
			SpeedKmh:         40 + c.rng.IntN(80),
			DelayMinutes:     c.rng.IntN(61) - 15,
			NextStationName:  domain.StringPtr(stations[c.rng.IntN(len(stations))]),
			PrevStationID:    domain.StringPtr(stations[c.rng.IntN(len(stations))]),
			LastUpdated:      now.Add(-time.Duration(c.rng.Int64N(int64(5 * time.Minute)))).UTC().Truncate(time.Millisecond),
			Status:           c.status(),
			IsLive:           false,
			ResolvedName:     domain.StringPtr(t.name),
			ResolvedNumber:   domain.StringPtr(t.number),
		})
	}
	return records
}

func (c *Controller) status() string {
	roll := c.rng.IntN(100)
	acc := 0
	for _, s := range statuses {
		acc += s.weight
		if roll < acc {
			return s.name
		}
	}
	return statuses[0].name
}

func stationsFor(route string) []string {
	if s, ok := routeStations[route]; ok {
		return s
	}
	return []string{"Next Station"}
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
