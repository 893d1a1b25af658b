package locator_test

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/fogleman/poissondisc"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/locator"
)

var cities = []geomodel.Point{
	{ID: "lis", Name: "Lisbon", Lat: 38.72, Lng: -9.14},
	{ID: "opo", Name: "Porto", Lat: 41.16, Lng: -8.63},
	{ID: "mad", Name: "Madrid", Lat: 40.42, Lng: -3.70},
	{ID: "syd", Name: "Sydney", Lat: -33.87, Lng: 151.21},
}

func TestNearest(t *testing.T) {
	l := locator.New(cities, locator.WithSearchRadius(0.01))

	cases := []struct {
		name     string
		lat, lng float64
		want     string
	}{
		{"exact", 38.72, -9.14, "lis"},
		{"suburb", 38.75, -9.2, "lis"},
		{"between, closer to porto", 40.5, -8.4, "opo"},
		{"far away grows the radius", -40, 170, "syd"},
		{"other side of the plane", 60, 179, "syd"},
	}
	for _, c := range cases {
		m, ok := l.Nearest(c.lat, c.lng)
		if !ok {
			t.Fatalf("%s: nothing found", c.name)
		}
		if m.Point.ID != c.want {
			t.Fatalf("%s: expected %s, got %s", c.name, c.want, m.Point.ID)
		}
	}

	m, _ := l.Nearest(38.72, -9.14)
	if m.DistanceKm != 0 {
		t.Fatalf("expected zero distance on exact hit, got %v", m.DistanceKm)
	}
}

func TestNearestInvalid(t *testing.T) {
	if _, ok := locator.New(nil).Nearest(1, 1); ok {
		t.Fatal("empty locator must find nothing")
	}
	if _, ok := locator.New(cities).Nearest(91, 0); ok {
		t.Fatal("latitude out of range must find nothing")
	}
}

func TestNearestMatchesLinearScan(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	samples := poissondisc.Sample(-20, -20, 20, 20, 0.5, 30, rnd)
	points := make([]geomodel.Point, len(samples))
	for i, s := range samples {
		points[i] = geomodel.Point{ID: strconv.Itoa(i), Lat: s.Y, Lng: s.X}
	}
	l := locator.New(points, locator.WithNodeSize(8))
	if l.Len() != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), l.Len())
	}

	for i := 0; i < 200; i++ {
		lat, lng := rnd.Float64()*50-25, rnd.Float64()*50-25
		m, ok := l.Nearest(lat, lng)
		if !ok {
			t.Fatalf("nothing found near %v,%v", lat, lng)
		}

		best := -1.0
		for _, p := range points {
			d := (p.Lat-lat)*(p.Lat-lat) + (p.Lng-lng)*(p.Lng-lng)
			if best < 0 || d < best {
				best = d
			}
		}
		got := (m.Point.Lat-lat)*(m.Point.Lat-lat) + (m.Point.Lng-lng)*(m.Point.Lng-lng)
		if got != best {
			t.Fatalf("near %v,%v: got %s at %v, linear scan found %v", lat, lng, m.Point.ID, got, best)
		}
	}
}

func BenchmarkNearest(b *testing.B) {
	samples := poissondisc.Sample(-180, -80, 180, 80, 0.5, 10, rand.New(rand.NewSource(1)))
	points := make([]geomodel.Point, len(samples))
	for i, s := range samples {
		points[i] = geomodel.Point{ID: strconv.Itoa(i), Lat: s.Y, Lng: s.X}
	}
	l := locator.New(points)
	rnd := rand.New(rand.NewSource(2))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Nearest(rnd.Float64()*160-80, rnd.Float64()*360-180)
	}
}
