package baseline

import (
	"fmt"

	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
)

// NearestNeighborTour visits every point once, always moving to the nearest
// unvisited one, and closes the loop back to start. Empty start means the
// first point. The tour is a heuristic, not an optimal one.
func NearestNeighborTour(points []geomodel.Point, start string) (geomodel.Route, error) {
	if len(points) == 0 {
		return geomodel.Route{Path: []string{}}, nil
	}

	cur := 0
	if start != "" {
		cur = -1
		for i, p := range points {
			if p.ID == start {
				cur = i
				break
			}
		}
		if cur < 0 {
			return geomodel.Route{}, fmt.Errorf("%s: %w", start, ErrUnknownPoint)
		}
	}

	first := cur
	visited := make([]bool, len(points))
	visited[cur] = true
	path := []string{points[cur].ID}
	var total float64

	for range len(points) - 1 {
		next, nextKm := -1, 0.0
		for i, p := range points {
			if visited[i] {
				continue
			}
			km := geo.Haversine(points[cur].Lat, points[cur].Lng, p.Lat, p.Lng)
			if next < 0 || km < nextKm {
				next, nextKm = i, km
			}
		}
		visited[next] = true
		path = append(path, points[next].ID)
		total += nextKm
		cur = next
	}

	if len(path) > 1 {
		total += geo.Haversine(points[cur].Lat, points[cur].Lng, points[first].Lat, points[first].Lng)
		path = append(path, points[first].ID)
	}

	id := points[first].ID
	return geomodel.Route{Start: id, End: id, Path: path, DistanceKm: total}, nil
}
