package hierarchy

import (
	"math"
	"strconv"
)

// ClusterKey snaps a coordinate onto the grid of the given decimal precision
// inside its country. Grid snapping, not density clustering: two points one
// grid step apart may land in different clusters.
func ClusterKey(country string, lat, lng float64, precision int) string {
	return country + ":" + snap(lat, precision) + ":" + snap(lng, precision)
}

// RegionKey is ClusterKey at the coarser region precision.
func RegionKey(country string, lat, lng float64, precision int) string {
	return ClusterKey(country, lat, lng, precision)
}

func snap(v float64, precision int) string {
	scale := math.Pow10(precision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		// -0.0 and 0.0 share a cell
		r = 0
	}
	return strconv.FormatFloat(r, 'f', precision, 64)
}
