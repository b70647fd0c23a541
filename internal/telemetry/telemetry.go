// Package telemetry defines the boundary to the upstream telemetry storage.
//
// The upstream is an opaque collaborator: it answers "read the latest N
// records for a device" and nothing else. The signed request protocol used
// to reach the managed database stays behind the Source interface.
package telemetry

import (
	"context"

	"biketrack/internal/status"
)

// Point is one raw telemetry record. A point is not necessarily a valid
// fix: receivers report (0,0) or non-finite coordinates before their first
// fix, and those records still count as device contact.
type Point struct {
	Device string  `json:"device"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Speed  float64 `json:"speed"`  // knots
	Course float64 `json:"course"` // degrees
	TS     int64   `json:"ts"`     // epoch milliseconds
}

// ValidFix reports whether the point carries a usable GPS position.
func (p Point) ValidFix() bool {
	return status.ValidFix(p.Lat, p.Lon)
}

// Source reads telemetry records for a device, newest first.
type Source interface {
	Latest(ctx context.Context, device string, limit int) ([]Point, error)
}

// Position is the assembled answer for a position read: the newest valid
// fix plus the freshness of the last contact of any kind.
type Position struct {
	Device       string  `json:"device"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Speed        float64 `json:"speed"`
	Course       float64 `json:"course"`
	TS           int64   `json:"ts"`             // timestamp of the fix shown
	LastUpdateTS int64   `json:"last_update_ts"` // newest contact of any kind
}

// Resolve assembles a Position from records ordered newest first. The fix
// fields come from the newest point with a valid fix; LastUpdateTS comes
// from the newest point regardless of validity. It returns nil when points
// is empty, and a Position with TS zero when no point has a usable fix.
func Resolve(points []Point) *Position {
	if len(points) == 0 {
		return nil
	}

	pos := &Position{
		Device:       points[0].Device,
		LastUpdateTS: points[0].TS,
	}

	for _, p := range points {
		if p.ValidFix() {
			pos.Lat = p.Lat
			pos.Lon = p.Lon
			pos.Speed = p.Speed
			pos.Course = p.Course
			pos.TS = p.TS
			break
		}
	}
	return pos
}
