package baseline

import (
	"errors"
	"math/rand"
	"time"

	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
)

type KMeansOptions struct {
	// MaxIterations defaults to 100.
	MaxIterations int
	// Rand seeds the initial centroids and the reseeding of empty clusters.
	// Nil uses a time seeded source, results then differ between runs.
	Rand *rand.Rand
}

type centroid struct {
	lat, lng float64
}

// KMeans groups points into at most k clusters of point ids using the
// great-circle distance. A cluster left empty by an iteration gets a random
// point as its new centroid. With fewer points than k every point is its own
// cluster. Only non-empty clusters are returned.
func KMeans(points []geomodel.Point, k int, opts KMeansOptions) ([][]string, error) {
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}
	if len(points) < k {
		out := make([][]string, len(points))
		for i, p := range points {
			out[i] = []string{p.ID}
		}
		return out, nil
	}

	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	iterations := opts.MaxIterations
	if iterations <= 0 {
		iterations = 100
	}

	centroids := make([]centroid, k)
	for i, idx := range rnd.Perm(len(points))[:k] {
		centroids[i] = centroid{points[idx].Lat, points[idx].Lng}
	}

	var clusters [][]int
	for range iterations {
		clusters = assign(points, centroids)

		next := make([]centroid, k)
		for i, members := range clusters {
			if len(members) == 0 {
				p := points[rnd.Intn(len(points))]
				next[i] = centroid{p.Lat, p.Lng}
				continue
			}
			var lat, lng float64
			for _, m := range members {
				lat += points[m].Lat
				lng += points[m].Lng
			}
			next[i] = centroid{lat / float64(len(members)), lng / float64(len(members))}
		}

		if equalCentroids(next, centroids) {
			break
		}
		centroids = next
	}

	var out [][]string
	for _, members := range clusters {
		if len(members) == 0 {
			continue
		}
		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = points[m].ID
		}
		out = append(out, ids)
	}
	return out, nil
}

func assign(points []geomodel.Point, centroids []centroid) [][]int {
	clusters := make([][]int, len(centroids))
	for i, p := range points {
		best, bestKm := 0, -1.0
		for c, ctr := range centroids {
			km := geo.Haversine(p.Lat, p.Lng, ctr.lat, ctr.lng)
			if bestKm < 0 || km < bestKm {
				best, bestKm = c, km
			}
		}
		clusters[best] = append(clusters[best], i)
	}
	return clusters
}

func equalCentroids(a, b []centroid) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
