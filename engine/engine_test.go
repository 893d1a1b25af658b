package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/royalcat/hgeoroute/engine"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/quadkey"
	"github.com/royalcat/hgeoroute/router"
	"github.com/royalcat/hgeoroute/store"
	"github.com/stretchr/testify/require"
)

var cities = []geomodel.Record{
	{ID: "lis", Name: "Lisbon", Country: "Portugal", Lat: 38.72, Lng: -9.14},
	{ID: "set", Name: "Setubal", Country: "Portugal", Lat: 38.52, Lng: -8.89},
	{ID: "opo", Name: "Porto", Country: "Portugal", Lat: 41.16, Lng: -8.63},
	{ID: "mad", Name: "Madrid", Country: "Spain", Lat: 40.42, Lng: -3.70},
	{ID: "bcn", Name: "Barcelona", Country: "Spain", Lat: 41.39, Lng: 2.17},
	{ID: "par", Name: "Paris", Country: "France", Lat: 48.86, Lng: 2.35},
	{ID: "tyo", Name: "Tokyo", Country: "Japan", Lat: 35.68, Lng: 139.69},
}

func newEngine(t *testing.T, cfg engine.Config) (*engine.Engine, *store.Store) {
	t.Helper()
	ctx := context.Background()

	s, err := store.OpenMemory(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := engine.New(ctx, s, cfg)
	require.NoError(t, err)
	return e, s
}

func TestEmptyEngine(t *testing.T) {
	e, _ := newEngine(t, engine.ConfigDefault())
	ctx := context.Background()

	points, err := e.ListPoints(ctx)
	require.NoError(t, err)
	require.Empty(t, points)

	_, ok, err := e.Nearest(ctx, 0, 0)
	require.NoError(t, err)
	require.False(t, ok)

	st, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Empty(t, st.BuildID)
	require.Zero(t, st.Points)
}

func TestRebuildAndQuery(t *testing.T) {
	e, _ := newEngine(t, engine.ConfigDefault())
	ctx := context.Background()

	res, err := e.Rebuild(ctx, cities)
	require.NoError(t, err)
	require.NotEmpty(t, res.BuildID)
	require.Equal(t, len(cities), res.Points)
	require.Equal(t, 1, res.Pairs)

	points, err := e.ListPoints(ctx)
	require.NoError(t, err)
	require.Len(t, points, len(cities))

	iberia, err := e.SearchBound(ctx, geo.NewBound(36, 44, -10, 4))
	require.NoError(t, err)
	ids := make([]string, len(iberia))
	for i, p := range iberia {
		ids[i] = p.ID
	}
	require.Subset(t, []string{"lis", "set", "opo", "mad", "bcn"}, ids)
	require.NotContains(t, ids, "par")

	inverted, err := e.SearchBound(ctx, geo.NewBound(44, 36, -10, 4))
	require.NoError(t, err)
	require.Empty(t, inverted)

	m, ok, err := e.Nearest(ctx, 38.7, -9.1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "lis", m.Point.ID)

	st, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, res.BuildID, st.BuildID)
	require.EqualValues(t, len(cities), st.Points)
	require.EqualValues(t, 4, st.Aggregates["country"])
	require.EqualValues(t, 1, st.Aggregates["global"])
	require.EqualValues(t, 2, st.Precomputed)
	require.Positive(t, st.InMemoryIndexEntries)
	require.Equal(t, len(cities), st.LocatorPoints)
}

func TestCoverSearchMatchesTableScan(t *testing.T) {
	cfg := engine.ConfigDefault()
	cfg.Query = quadkey.QueryOptions{Strategy: quadkey.StrategyCover}
	e, s := newEngine(t, cfg)
	ctx := context.Background()

	_, err := e.Rebuild(ctx, cities)
	require.NoError(t, err)

	for _, b := range []struct{ minLat, maxLat, minLng, maxLng float64 }{
		{36, 44, -10, 4},
		{38, 39, -10, -8},
		{30, 50, -10, 140},
		{-10, 10, -10, 10},
	} {
		bound := geo.NewBound(b.minLat, b.maxLat, b.minLng, b.maxLng)
		got, err := e.SearchBound(ctx, bound)
		require.NoError(t, err)
		want, err := s.PointsInBound(ctx, bound)
		require.NoError(t, err)
		require.ElementsMatch(t, want, []geomodel.Point(got), "bound %v", b)
	}
}

func TestFindRoute(t *testing.T) {
	e, _ := newEngine(t, engine.ConfigDefault())
	ctx := context.Background()
	_, err := e.Rebuild(ctx, cities)
	require.NoError(t, err)

	r, err := e.FindRoute(ctx, "lis", "set", true)
	require.NoError(t, err)
	require.Equal(t, router.SourcePrecomputed, r.Source)
	require.Equal(t, []string{"lis", "set"}, r.Route.Path)
	require.Len(t, r.Points, 2)
	require.Equal(t, "Setubal", r.Points[1].Name)

	r, err = e.FindRoute(ctx, "lis", "mad", false)
	require.NoError(t, err)
	require.Equal(t, router.SourceSearch, r.Source)
	require.Nil(t, r.Points)
	require.InEpsilon(t, geo.Haversine(38.72, -9.14, 40.42, -3.70), r.Route.DistanceKm, 0.01)

	again, err := e.FindRoute(ctx, "lis", "mad", false)
	require.NoError(t, err)
	require.Equal(t, router.SourceMemory, again.Source)

	// a rebuild drops both route tiers
	_, err = e.Rebuild(ctx, cities)
	require.NoError(t, err)
	again, err = e.FindRoute(ctx, "lis", "mad", false)
	require.NoError(t, err)
	require.Equal(t, router.SourceSearch, again.Source)

	_, err = e.FindRoute(ctx, "lis", "atlantis", false)
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestBaselines(t *testing.T) {
	e, _ := newEngine(t, engine.ConfigDefault())
	ctx := context.Background()
	_, err := e.Rebuild(ctx, cities)
	require.NoError(t, err)

	ids := []string{"lis", "opo", "mad", "bcn", "par"}

	sp, err := e.ShortestPath(ctx, ids, "lis", "par")
	require.NoError(t, err)
	require.Equal(t, []string{"lis", "par"}, sp.Path)

	_, err = e.ShortestPath(ctx, ids, "lis", "tyo")
	require.ErrorIs(t, err, engine.ErrNotFound)
	_, err = e.ShortestPath(ctx, []string{"lis", "atlantis"}, "lis", "atlantis")
	require.ErrorIs(t, err, engine.ErrNotFound)

	clusters, err := e.Cluster(ctx, ids, 2, 42)
	require.NoError(t, err)
	var total int
	for _, c := range clusters {
		total += len(c)
	}
	require.Equal(t, len(ids), total)

	again, err := e.Cluster(ctx, ids, 2, 42)
	require.NoError(t, err)
	require.Equal(t, clusters, again)

	tour, err := e.Tour(ctx, ids, "mad")
	require.NoError(t, err)
	require.Len(t, tour.Path, len(ids)+1)
	require.Equal(t, "mad", tour.Path[0])
	require.Equal(t, "mad", tour.Path[len(tour.Path)-1])

	_, err = e.Tour(ctx, nil, "")
	require.ErrorIs(t, err, engine.ErrInvalidInput)
	_, err = e.Cluster(ctx, ids, 0, 1)
	require.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestReopenLoadsBuild(t *testing.T) {
	ctx := context.Background()
	e, s := newEngine(t, engine.ConfigDefault())
	_, err := e.Rebuild(ctx, cities)
	require.NoError(t, err)

	cfg := engine.ConfigDefault()
	cfg.Query.Strategy = quadkey.StrategyCover
	reopened, err := engine.New(ctx, s, cfg)
	require.NoError(t, err)

	m, ok, err := reopened.Nearest(ctx, 35, 139)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tyo", m.Point.ID)

	found, err := reopened.SearchBound(ctx, geo.NewBound(48, 49, 2, 3))
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "par", found[0].ID)
}

func TestBaselinesVisitRepeatedIDsOnce(t *testing.T) {
	e, _ := newEngine(t, engine.ConfigDefault())
	ctx := context.Background()
	_, err := e.Rebuild(ctx, cities)
	require.NoError(t, err)

	tour, err := e.Tour(ctx, []string{"lis", "mad", "lis", "opo"}, "lis")
	require.NoError(t, err)
	require.Len(t, tour.Path, 4)
	require.Equal(t, "lis", tour.Path[0])
	require.Equal(t, "lis", tour.Path[3])
	require.ElementsMatch(t, []string{"lis", "mad", "opo"}, tour.Path[:3])

	clusters, err := e.Cluster(ctx, []string{"lis", "mad", "mad", "opo"}, 2, 5)
	require.NoError(t, err)
	var assigned []string
	for _, c := range clusters {
		assigned = append(assigned, c...)
	}
	require.ElementsMatch(t, []string{"lis", "mad", "opo"}, assigned)

	path, err := e.ShortestPath(ctx, []string{"lis", "opo", "opo", "mad"}, "lis", "mad")
	require.NoError(t, err)
	require.Equal(t, []string{"lis", "mad"}, path.Path)
}

func TestReloadsBuildOfAnotherEngine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "routes.db")
	open := func() *store.Store {
		s, err := store.Open(ctx, path, nil)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}

	builder, err := engine.New(ctx, open(), engine.ConfigDefault())
	require.NoError(t, err)
	first, err := builder.Rebuild(ctx, cities[:4])
	require.NoError(t, err)

	serving, err := engine.New(ctx, open(), engine.ConfigDefault())
	require.NoError(t, err)
	r, err := serving.FindRoute(ctx, "lis", "mad", false)
	require.NoError(t, err)
	require.Equal(t, router.SourceSearch, r.Source)
	r, err = serving.FindRoute(ctx, "lis", "mad", false)
	require.NoError(t, err)
	require.Equal(t, router.SourceMemory, r.Source)

	m, ok, err := serving.Nearest(ctx, 41.4, 2.2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "mad", m.Point.ID)

	second, err := builder.Rebuild(ctx, cities)
	require.NoError(t, err)
	require.NotEqual(t, first.BuildID, second.BuildID)

	// nothing of the first build may answer from here on
	r, err = serving.FindRoute(ctx, "lis", "mad", false)
	require.NoError(t, err)
	require.Equal(t, router.SourceSearch, r.Source)

	m, ok, err = serving.Nearest(ctx, 41.4, 2.2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bcn", m.Point.ID)

	found, err := serving.SearchBound(ctx, geo.NewBound(41, 42, 2, 3))
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "bcn", found[0].ID)

	st, err := serving.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, second.BuildID, st.BuildID)
	require.Equal(t, len(cities), st.LocatorPoints)
}
