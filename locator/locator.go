// Package locator answers which ingested point lies closest to a coordinate.
package locator

import (
	"log/slog"
	"math"

	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/kdbush"
)

const (
	defaultSearchRadius float64 = 0.1
	// wide enough to hold the whole lat/lng plane around any query
	maxSearchRadius float64 = 400
)

type Locator struct {
	tree *kdbush.Bush[geomodel.Point]

	searchRadius float64
	logger       *slog.Logger
}

// Match is the point found with its great-circle distance to the query.
type Match struct {
	Point      geomodel.Point `json:"point"`
	DistanceKm float64        `json:"distance_km"`
}

func New(points []geomodel.Point, opts ...Option) *Locator {
	o := loadOptions(opts...)

	items := make([]kdbush.Point[geomodel.Point], len(points))
	for i, p := range points {
		items[i] = kdbush.Point[geomodel.Point]{X: p.Lng, Y: p.Lat, Data: p}
	}
	o.logger.Debug("locator index built", "points", len(items))

	return &Locator{
		tree:         kdbush.New(items, o.nodeSize),
		searchRadius: o.searchRadius,
		logger:       o.logger,
	}
}

func (l *Locator) Len() int {
	return l.tree.Len()
}

// Nearest returns the point closest to (lat, lng) in the lat/lng plane.
// ok is false for an empty locator or an invalid coordinate.
func (l *Locator) Nearest(lat, lng float64) (Match, bool) {
	if l.tree.Len() == 0 || !geo.ValidLatLng(lat, lng) {
		return Match{}, false
	}

	for radius := l.searchRadius; ; radius *= 2 {
		if m, found := l.findInRadius(lat, lng, radius); found {
			return m, true
		}
		if radius >= maxSearchRadius {
			return Match{}, false
		}
	}
}

func (l *Locator) findInRadius(lat, lng, radius float64) (Match, bool) {
	var best geomodel.Point
	bestDist := math.Inf(1)
	l.tree.Within(lng, lat, radius, func(_ int, p kdbush.Point[geomodel.Point]) bool {
		d := distanceSquared(lng, lat, p.X, p.Y)
		// ties go to the smaller id so the answer does not depend on tree order
		if d < bestDist || (d == bestDist && p.Data.ID < best.ID) {
			best = p.Data
			bestDist = d
		}
		return true
	})

	if math.IsInf(bestDist, 1) {
		return Match{}, false
	}
	return Match{Point: best, DistanceKm: geo.Haversine(lat, lng, best.Lat, best.Lng)}, true
}

func distanceSquared(x1, y1, x2, y2 float64) float64 {
	d0 := x1 - x2
	d1 := y1 - y2
	return d0*d0 + d1*d1
}
