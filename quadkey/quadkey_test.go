package quadkey_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/quadkey"
)

// decoding accumulates a few ulps over the lat/lng rescaling
const boundSlack = 1e-9

func containsWithSlack(b orb.Bound, lat, lng float64) bool {
	return lat >= b.Min.Lat()-boundSlack && lat <= b.Max.Lat()+boundSlack &&
		lng >= b.Min.Lon()-boundSlack && lng <= b.Max.Lon()+boundSlack
}

func TestEncodeQuadrants(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     string
	}{
		{-45, -90, "0"},
		{-45, 90, "1"},
		{45, -90, "2"},
		{45, 90, "3"},
		{90, 180, "333"},
		{-90, -180, "000"},
	}
	for _, c := range cases {
		got := quadkey.Encode(c.lat, c.lng, len(c.want))
		if got != c.want {
			t.Errorf("Encode(%v, %v) expected %s, got %s", c.lat, c.lng, c.want, got)
		}
	}

	if quadkey.Encode(10, 10, 0) != "" {
		t.Fatal("expected empty key for level 0")
	}
}

func TestEncodePrefixes(t *testing.T) {
	deep := quadkey.Encode(38.72, -9.14, 12)
	for level := 1; level <= 12; level++ {
		if got := quadkey.Encode(38.72, -9.14, level); got != deep[:level] {
			t.Fatalf("level %d: expected prefix %s, got %s", level, deep[:level], got)
		}
	}
}

func FuzzDecodeContainsEncoded(f *testing.F) {
	f.Add(38.72, -9.14, 9)
	f.Add(90.0, 180.0, 5)
	f.Add(-90.0, -180.0, 1)
	f.Add(0.0, 0.0, 20)

	f.Fuzz(func(t *testing.T, lat, lng float64, level int) {
		if !geo.ValidLatLng(lat, lng) || level < 1 || level > 30 {
			t.Skip()
		}
		key := quadkey.Encode(lat, lng, level)
		b, err := quadkey.DecodeBound(key)
		if err != nil {
			t.Fatal(err)
		}
		if !containsWithSlack(b, lat, lng) {
			t.Fatalf("bound %v of key %s does not contain (%v, %v)", b, key, lat, lng)
		}
	})
}

func TestDecodeBoundRejectsGarbage(t *testing.T) {
	if _, err := quadkey.DecodeBound("0124"); err == nil {
		t.Fatal("expected error for digit 4")
	}
}

func TestLevelForBound(t *testing.T) {
	cases := []struct {
		b    orb.Bound
		want int
	}{
		{geo.NewBound(51.4, 51.6, -0.2, 0.0), 9},
		{geo.NewBound(36.9, 40.1, -9.5, -6.5), 7},
		{geo.NewBound(35, 55, -10, 10), 3},
		{geo.NewBound(35, 50, -10, 5), 5},
	}
	for _, c := range cases {
		if got := quadkey.LevelForBound(c.b, 9); got != c.want {
			t.Errorf("LevelForBound(%v) expected %d, got %d", c.b, c.want, got)
		}
	}
	if got := quadkey.LevelForBound(geo.NewBound(0, 0.1, 0, 0.1), 6); got != 6 {
		t.Fatalf("expected level capped at 6, got %d", got)
	}
}

func TestCoverKeysEnumeratesEveryCell(t *testing.T) {
	b := geo.NewBound(-10, 10, -10, 10)
	keys, level := quadkey.CoverKeys(b, 1, 0)
	if level != 1 || len(keys) != 4 {
		t.Fatalf("expected 4 level-1 cells, got %v at %d", keys, level)
	}

	keys, level = quadkey.CoverKeys(geo.NewBound(-80, 80, -170, 170), 9, 16)
	if level > 2 || len(keys) > 16 {
		t.Fatalf("expected level lowered to fit 16 cells, got %d cells at %d", len(keys), level)
	}

	for _, key := range keys {
		cell, err := quadkey.DecodeBound(key)
		if err != nil {
			t.Fatal(err)
		}
		if !cell.Intersects(geo.NewBound(-80, 80, -170, 170)) {
			t.Fatalf("cell %s does not intersect the box", key)
		}
	}
}
