package hub

import (
	"fmt"
	"math"

	"pakrail/internal/domain"
)

// MaxSubscribeTiles caps how many tiles one subscribe message may expand to.
const MaxSubscribeTiles = 256

// TileID returns the slippy-map tile "zoom/x/y" holding the position.
// Coordinates outside the projection are clamped to the edge tiles.
func TileID(lat, lon float64, zoom int) string {
	x, y := tileXY(lat, lon, zoom)
	return fmt.Sprintf("%d/%d/%d", zoom, x, y)
}

func tileXY(lat, lon float64, zoom int) (x, y int) {
	n := math.Pow(2, float64(zoom))
	x = int(math.Floor((lon + 180.0) / 360.0 * n))
	latRad := lat * math.Pi / 180.0
	y = int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))

	maxTile := int(n) - 1
	return clamp(x, 0, maxTile), clamp(y, 0, maxTile)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseTileID extracts zoom, x, y from a tile ID string
func ParseTileID(tileID string) (zoom, x, y int, ok bool) {
	n, err := fmt.Sscanf(tileID, "%d/%d/%d", &zoom, &x, &y)
	if err != nil || n != 3 {
		return 0, 0, 0, false
	}
	if zoom < 0 || x < 0 || y < 0 || x >= 1<<zoom || y >= 1<<zoom {
		return 0, 0, 0, false
	}
	if fmt.Sprintf("%d/%d/%d", zoom, x, y) != tileID {
		return 0, 0, 0, false
	}
	return zoom, x, y, true
}

// ValidTiles keeps the well-formed IDs at the given zoom, dropping
// duplicates, up to MaxSubscribeTiles.
func ValidTiles(tileIDs []string, zoom int) []string {
	seen := make(map[string]struct{}, len(tileIDs))
	out := make([]string, 0, len(tileIDs))
	for _, id := range tileIDs {
		z, _, _, ok := ParseTileID(id)
		if !ok || z != zoom {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == MaxSubscribeTiles {
			break
		}
	}
	return out
}

// AdjacentTiles returns the tile holding the position plus its 8 neighbors.
func AdjacentTiles(lat, lon float64, zoom int) []string {
	x, y := tileXY(lat, lon, zoom)
	maxTile := (1 << zoom) - 1
	tiles := make([]string, 0, 9)

	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx > maxTile || ny < 0 || ny > maxTile {
				continue
			}
			tiles = append(tiles, fmt.Sprintf("%d/%d/%d", zoom, nx, ny))
		}
	}
	return tiles
}

// TilesInBBox returns the tiles intersecting the box, or nil when the box
// would expand past MaxSubscribeTiles.
func TilesInBBox(bb domain.BoundingBox, zoom int) []string {
	x1, y1 := tileXY(bb.MaxLat, bb.MinLon, zoom)
	x2, y2 := tileXY(bb.MinLat, bb.MaxLon, zoom)
	if x2 < x1 || y2 < y1 || (x2-x1+1)*(y2-y1+1) > MaxSubscribeTiles {
		return nil
	}

	tiles := make([]string, 0, (x2-x1+1)*(y2-y1+1))
	for x := x1; x <= x2; x++ {
		for y := y1; y <= y2; y++ {
			tiles = append(tiles, fmt.Sprintf("%d/%d/%d", zoom, x, y))
		}
	}
	return tiles
}
