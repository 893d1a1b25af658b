package geo_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
)

func TestHaversineKnownDistances(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
	}{
		{"lisbon-madrid", 38.72, -9.14, 40.42, -3.70, 502},
		{"lisbon-porto", 38.72, -9.14, 41.16, -8.63, 274},
		{"paris-london", 48.8566, 2.3522, 51.5074, -0.1278, 344},
	}

	for _, c := range cases {
		got := geo.Haversine(c.lat1, c.lng1, c.lat2, c.lng2)
		if math.Abs(got-c.want) > c.want*0.01 {
			t.Errorf("%s: expected ~%.0f km, got %.2f", c.name, c.want, got)
		}
	}
}

func FuzzHaversineSymmetry(f *testing.F) {
	f.Add(38.72, -9.14, 40.42, -3.70)
	f.Add(-90.0, -180.0, 90.0, 180.0)
	f.Add(0.0, 0.0, 0.0, 0.0)

	f.Fuzz(func(t *testing.T, lat1, lng1, lat2, lng2 float64) {
		if !geo.ValidLatLng(lat1, lng1) || !geo.ValidLatLng(lat2, lng2) {
			t.Skip()
		}

		ab := geo.Haversine(lat1, lng1, lat2, lng2)
		ba := geo.Haversine(lat2, lng2, lat1, lng1)
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("asymmetric distance: %v vs %v", ab, ba)
		}
		if d := geo.Haversine(lat1, lng1, lat1, lng1); d != 0 {
			t.Fatalf("expected zero self distance, got %v", d)
		}
	})
}

func TestBoundValid(t *testing.T) {
	if !geo.BoundValid(geo.NewBound(36.9, 42.1, -9.5, -6.5)) {
		t.Fatal("expected portugal box to be valid")
	}
	if geo.BoundValid(geo.NewBound(42.1, 36.9, -9.5, -6.5)) {
		t.Fatal("expected inverted latitude box to be invalid")
	}
	if geo.BoundValid(geo.NewBound(0, 1, -200, 0)) {
		t.Fatal("expected out of range box to be invalid")
	}
}

func TestCentroid(t *testing.T) {
	c := geo.Centroid([]orb.Point{{0, 0}, {2, 4}})
	if c != (orb.Point{1, 2}) {
		t.Fatalf("expected {1 2}, got %v", c)
	}
	if geo.Centroid(nil) != (orb.Point{}) {
		t.Fatal("expected zero centroid for empty input")
	}
}
