package quadkey_test

import (
	"slices"
	"strconv"
	"testing"

	"github.com/fogleman/poissondisc"
	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/quadkey"
)

var cities = []struct {
	id       string
	lat, lng float64
}{
	{"lisbon", 38.72, -9.14},
	{"porto", 41.16, -8.63},
	{"madrid", 40.42, -3.70},
	{"london", 51.51, -0.13},
	{"greenwich", 51.48, 0.0},
	{"paris", 48.86, 2.35},
}

func newCityIndex(t *testing.T) *quadkey.Index {
	t.Helper()
	idx := quadkey.NewIndex(quadkey.DefaultMaxLevel)
	for _, c := range cities {
		if err := idx.Insert(c.id, c.lat, c.lng); err != nil {
			t.Fatal(err)
		}
	}
	return idx
}

func TestIndexInsertWritesEveryLevel(t *testing.T) {
	idx := newCityIndex(t)

	entries := idx.Entries()
	if len(entries) != len(cities)*quadkey.DefaultMaxLevel {
		t.Fatalf("expected %d entries, got %d", len(cities)*quadkey.DefaultMaxLevel, len(entries))
	}

	for level := 1; level <= quadkey.DefaultMaxLevel; level++ {
		key := quadkey.Encode(38.72, -9.14, level)
		if !slices.Contains(idx.Lookup(key), "lisbon") {
			t.Fatalf("lisbon missing from cell %s", key)
		}
	}

	if err := idx.Insert("bad", 91, 0); err == nil {
		t.Fatal("expected error for latitude 91")
	}
}

func TestIndexQueryBound(t *testing.T) {
	idx := newCityIndex(t)

	cases := []struct {
		name string
		b    orb.Bound
		opts quadkey.QueryOptions
		want []string
	}{
		{"london", geo.NewBound(51.4, 51.6, -0.2, 0.1), quadkey.QueryOptions{}, []string{"greenwich", "london"}},
		{"portugal", geo.NewBound(36.9, 42.2, -9.6, -6.1), quadkey.QueryOptions{Strategy: quadkey.StrategyCover}, []string{"lisbon", "porto"}},
		{"iberia", geo.NewBound(35, 44, -10, 4), quadkey.QueryOptions{Strategy: quadkey.StrategyCover}, []string{"lisbon", "madrid", "porto"}},
		{"inverted", geo.NewBound(42, 36, -9, -6), quadkey.QueryOptions{}, nil},
		{"out of range", geo.NewBound(-100, 100, -9, -6), quadkey.QueryOptions{}, nil},
		{"nowhere", geo.NewBound(-10, -9, -10, -9), quadkey.QueryOptions{}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := idx.QueryBound(c.b, c.opts)
			if len(got) == 0 && len(c.want) == 0 {
				return
			}
			if !slices.Equal(got, c.want) {
				t.Fatalf("expected %v, got %v", c.want, got)
			}
		})
	}
}

func TestIndexRemoveAndReinsert(t *testing.T) {
	idx := newCityIndex(t)

	idx.Remove("london")
	if idx.Len() != len(cities)-1 {
		t.Fatalf("expected %d points, got %d", len(cities)-1, idx.Len())
	}
	if got := idx.QueryBound(geo.NewBound(51.4, 51.6, -0.2, 0.1), quadkey.QueryOptions{}); !slices.Equal(got, []string{"greenwich"}) {
		t.Fatalf("expected only greenwich, got %v", got)
	}

	// moving a point drops its old keys
	if err := idx.Insert("greenwich", 38.7, -9.1); err != nil {
		t.Fatal(err)
	}
	if got := idx.QueryBound(geo.NewBound(51.4, 51.6, -0.2, 0.1), quadkey.QueryOptions{}); len(got) != 0 {
		t.Fatalf("expected empty result after move, got %v", got)
	}
}

func TestIndexLoadRestoresEntries(t *testing.T) {
	src := newCityIndex(t)

	coords := map[string]orb.Point{}
	for _, c := range cities {
		coords[c.id] = orb.Point{c.lng, c.lat}
	}

	dst := quadkey.NewIndex(quadkey.DefaultMaxLevel)
	dst.Load(src.Entries(), coords)

	b := geo.NewBound(35, 55, -10, 5)
	want := src.QueryBound(b, quadkey.QueryOptions{Strategy: quadkey.StrategyCover})
	got := dst.QueryBound(b, quadkey.QueryOptions{Strategy: quadkey.StrategyCover})
	if !slices.Equal(got, want) || len(got) != len(cities) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCoverNeverMissesSampledResults(t *testing.T) {
	idx := quadkey.NewIndex(quadkey.DefaultMaxLevel)
	points := poissondisc.Sample(-10, 35, 10, 55, 0.3, 30, nil)
	for i, p := range points {
		if err := idx.Insert(strconv.Itoa(i), p.Y, p.X); err != nil {
			t.Fatal(err)
		}
	}

	boxes := []orb.Bound{
		geo.NewBound(40, 41, -3, -2),
		geo.NewBound(36, 50, -9, 9),
		geo.NewBound(44.5, 45.5, -0.5, 0.5),
	}
	for _, b := range boxes {
		sampled := idx.QueryBound(b, quadkey.QueryOptions{})
		covered := idx.QueryBound(b, quadkey.QueryOptions{Strategy: quadkey.StrategyCover, MaxCells: 4096})
		for _, id := range sampled {
			if !slices.Contains(covered, id) {
				t.Fatalf("box %v: %s found by sampling but not by cover", b, id)
			}
		}
		if len(covered) < len(sampled) {
			t.Fatalf("box %v: cover returned fewer points than sampling", b)
		}
	}
}

func BenchmarkQueryBound(b *testing.B) {
	idx := quadkey.NewIndex(quadkey.DefaultMaxLevel)
	for i, p := range poissondisc.Sample(-180, -90, 180, 90, 1, 30, nil) {
		_ = idx.Insert(strconv.Itoa(i), p.Y, p.X)
	}
	box := geo.NewBound(35, 44, -10, 4)

	b.ResetTimer()
	for range b.N {
		idx.QueryBound(box, quadkey.QueryOptions{})
	}
}
