package store_test

import (
	"context"
	"testing"

	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/store"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSnapshot() store.Snapshot {
	points := []geomodel.Point{
		{ID: "1", Name: "Lisbon", Country: "Portugal", Lat: 38.72, Lng: -9.14, ClusterID: 1, RegionID: 1, CountryID: 1, TradeBlockID: 1, ContinentID: 1},
		{ID: "2", Name: "Porto", Country: "Portugal", Lat: 41.16, Lng: -8.63, ClusterID: 2, RegionID: 2, CountryID: 1, TradeBlockID: 1, ContinentID: 1},
	}
	aggregates := []geomodel.Aggregate{
		{ID: 1, Tier: geomodel.TierCluster, Label: "Portugal:38.72:-9.14", Lat: 38.72, Lng: -9.14, ParentID: 1},
		{ID: 2, Tier: geomodel.TierCluster, Label: "Portugal:41.16:-8.63", Lat: 41.16, Lng: -8.63, ParentID: 2},
		{ID: 1, Tier: geomodel.TierRegion, Label: "Portugal:38.7:-9.1", Lat: 38.72, Lng: -9.14, ParentID: 1},
		{ID: 2, Tier: geomodel.TierRegion, Label: "Portugal:41.2:-8.6", Lat: 41.16, Lng: -8.63, ParentID: 1},
		{ID: 1, Tier: geomodel.TierCountry, Label: "Portugal", Lat: 39.94, Lng: -8.885, ParentID: 1},
		{ID: 1, Tier: geomodel.TierTradeBlock, Label: "EU:EU", Lat: 39.94, Lng: -8.885, ParentID: 1},
		{ID: 1, Tier: geomodel.TierContinent, Label: "EU", Lat: 39.94, Lng: -8.885, ParentID: 1},
		{ID: 1, Tier: geomodel.TierRoot, Label: "global", Lat: 39.94, Lng: -8.885},
	}
	edges := []geomodel.Edge{
		{Level: "point_to_cluster", SourceID: "1", SourceTier: geomodel.TierPoint, TargetID: "1", TargetTier: geomodel.TierCluster, Bidirectional: true},
		{Level: "point_to_cluster", SourceID: "2", SourceTier: geomodel.TierPoint, TargetID: "2", TargetTier: geomodel.TierCluster, Bidirectional: true},
		{Level: "cluster_to_region", SourceID: "1", SourceTier: geomodel.TierCluster, TargetID: "1", TargetTier: geomodel.TierRegion, Bidirectional: true},
	}
	index := []geomodel.IndexEntry{
		{PointID: "1", Key: "2", Level: 1},
		{PointID: "2", Key: "2", Level: 1},
	}
	return store.Snapshot{Points: points, Aggregates: aggregates, Edges: edges, Index: index}
}

func TestRebuildAndRead(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	buildID, err := s.Rebuild(ctx, testSnapshot())
	require.NoError(t, err)
	require.NotEmpty(t, buildID)

	current, err := s.BuildID(ctx)
	require.NoError(t, err)
	require.Equal(t, buildID, current)

	points, err := s.Points(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "Lisbon", points[0].Name)

	p, err := s.Point(ctx, "2")
	require.NoError(t, err)
	require.Equal(t, int64(2), p.ClusterID)

	_, err = s.Point(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	ordered, err := s.PointsByIDs(ctx, []string{"2", "1"})
	require.NoError(t, err)
	require.Equal(t, "Porto", ordered[0].Name)
	require.Equal(t, "Lisbon", ordered[1].Name)

	_, err = s.PointsByIDs(ctx, []string{"1", "nope"})
	require.ErrorIs(t, err, store.ErrNotFound)

	inBox, err := s.PointsInBound(ctx, geo.NewBound(38, 39, -10, -9))
	require.NoError(t, err)
	require.Len(t, inBox, 1)

	inverted, err := s.PointsInBound(ctx, geo.NewBound(39, 38, -10, -9))
	require.NoError(t, err)
	require.Empty(t, inverted)

	region, err := s.Aggregate(ctx, geomodel.TierRegion, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), region.ParentID)

	_, err = s.Aggregate(ctx, geomodel.TierRegion, 99)
	require.ErrorIs(t, err, store.ErrNotFound)

	clusters, err := s.Aggregates(ctx, geomodel.TierCluster)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	edges, err := s.EdgesOf(ctx, geomodel.AggregateKey(geomodel.TierCluster, 1))
	require.NoError(t, err)
	require.Len(t, edges, 2)
	require.True(t, edges[0].Bidirectional)
	require.Equal(t, geomodel.TierPoint, edges[0].SourceTier)

	entries, err := s.IndexEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestPrecomputedAndRouteCache(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.Rebuild(ctx, testSnapshot())
	require.NoError(t, err)

	require.NoError(t, s.ReplacePrecomputed(ctx, []geomodel.PrecomputedDistance{{A: "1", B: "2", Km: 274.5}}))

	km, ok, err := s.Precomputed(ctx, "2", "1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 274.5, km)

	near, err := s.NearestPrecomputed(ctx, "1", 10)
	require.NoError(t, err)
	require.Equal(t, []geomodel.PrecomputedDistance{{A: "1", B: "2", Km: 274.5}}, near)

	_, ok, err = s.CachedRoute(ctx, "1", "2")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.CacheRoute(ctx, geomodel.Route{Start: "1", End: "2", Path: []string{"1", "2"}, DistanceKm: 274.5}))
	r, ok, err := s.CachedRoute(ctx, "1", "2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"1", "2"}, r.Path)
	require.False(t, r.CreatedAt.IsZero())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Points)
	require.Equal(t, int64(2), stats.Precomputed)
	require.Equal(t, int64(1), stats.CachedRoutes)
	require.Equal(t, int64(2), stats.Aggregates["cluster"])
	require.Equal(t, int64(1), stats.Aggregates["global"])

	require.NoError(t, s.ClearRouteCache(ctx))
	_, ok, err = s.CachedRoute(ctx, "1", "2")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.CacheRoute(ctx, r))

	// a new build invalidates every cached route
	_, err = s.Rebuild(ctx, testSnapshot())
	require.NoError(t, err)
	_, ok, err = s.CachedRoute(ctx, "1", "2")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.Precomputed(ctx, "1", "2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRebuildIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	first, err := s.Rebuild(ctx, testSnapshot())
	require.NoError(t, err)

	broken := testSnapshot()
	// duplicate primary key fails halfway through the points
	broken.Points = append(broken.Points, broken.Points[0])
	_, err = s.Rebuild(ctx, broken)
	require.Error(t, err)

	current, err := s.BuildID(ctx)
	require.NoError(t, err)
	require.Equal(t, first, current)

	points, err := s.Points(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
}

func TestBuildIDEmptyBeforeFirstBuild(t *testing.T) {
	s := openTestStore(t)
	id, err := s.BuildID(context.Background())
	require.NoError(t, err)
	require.Empty(t, id)
}
