// Package engine wires the store, the hierarchy, the router and the
// baseline algorithms into the operations the outer layers call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/baseline"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/hierarchy"
	"github.com/royalcat/hgeoroute/locator"
	"github.com/royalcat/hgeoroute/lookup"
	"github.com/royalcat/hgeoroute/precompute"
	"github.com/royalcat/hgeoroute/quadkey"
	"github.com/royalcat/hgeoroute/router"
	"github.com/royalcat/hgeoroute/store"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned for unknown point ids by every operation.
	ErrNotFound     = router.ErrNotFound
	ErrInvalidInput = errors.New("invalid input")
)

type Engine struct {
	store   *store.Store
	index   *quadkey.Index
	builder *hierarchy.Builder
	router  *router.Router
	locator atomic.Pointer[locator.Locator]

	cfg Config
	log *slog.Logger

	// held for writing by Rebuild and reloads, for reading by everything that
	// must not observe a half swapped build
	mu sync.RWMutex
	// build the in-memory state was loaded from
	buildID string
}

// New opens an engine on top of s and loads the in-memory indexes from
// whatever build s currently holds.
func New(ctx context.Context, s *store.Store, cfg Config) (*Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Tables == nil {
		cfg.Tables = lookup.Default()
	}
	if cfg.KMeansIterations <= 0 {
		cfg.KMeansIterations = 100
	}

	index := quadkey.NewIndex(cfg.Hierarchy.IndexLevel)
	routerOpts := append([]router.Option{router.WithLogger(log)}, cfg.Router...)
	locatorOpts := append([]locator.Option{locator.WithLogger(log)}, cfg.Locator...)
	cfg.Locator = locatorOpts

	e := &Engine{
		store:   s,
		index:   index,
		builder: hierarchy.NewBuilder(s, index, cfg.Tables, cfg.Hierarchy, log),
		router:  router.New(s, s, routerOpts...),
		cfg:     cfg,
		log:     log.With("component", "engine"),
	}

	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load(ctx context.Context) error {
	var (
		buildID string
		entries []geomodel.IndexEntry
		points  []geomodel.Point
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		buildID, err = e.store.BuildID(gctx)
		return err
	})
	g.Go(func() (err error) {
		entries, err = e.store.IndexEntries(gctx)
		return err
	})
	g.Go(func() (err error) {
		points, err = e.store.Points(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load build: %w", err)
	}

	coords := make(map[string]orb.Point, len(points))
	for _, p := range points {
		coords[p.ID] = p.Coord()
	}
	e.index.Load(entries, coords)
	e.locator.Store(locator.New(points, e.cfg.Locator...))
	e.buildID = buildID

	e.log.Debug("build loaded", "build_id", buildID, "points", len(points), "index_entries", len(entries))
	return nil
}

// refresh reloads the in-memory state when the stored build was replaced by
// another engine on the same database, usually a separate build process.
func (e *Engine) refresh(ctx context.Context) error {
	current, err := e.store.BuildID(ctx)
	if err != nil {
		return err
	}
	e.mu.RLock()
	stale := current != e.buildID
	e.mu.RUnlock()
	if !stale {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if current == e.buildID {
		return nil
	}

	old := e.buildID
	e.router.Invalidate()
	if err := e.load(ctx); err != nil {
		return err
	}
	e.log.InfoContext(ctx, "stored build changed, reloaded", "old_build_id", old, "build_id", e.buildID)
	return nil
}

type RebuildResult struct {
	BuildID string `json:"build_id"`
	Points  int    `json:"points"`
	Pairs   int    `json:"precomputed_pairs"`
}

// Rebuild replaces the hierarchy with one built from records, recomputes
// the short hops and drops every cached route.
func (e *Engine) Rebuild(ctx context.Context, records []geomodel.Record) (RebuildResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.builder.Rebuild(ctx, records)
	if err != nil {
		return RebuildResult{}, err
	}
	e.buildID = res.BuildID
	// the route tiers are stale from here on, even if precompute fails
	e.router.Invalidate()
	e.locator.Store(locator.New(res.Snapshot.Points, e.cfg.Locator...))

	pairs, err := precompute.Run(ctx, e.store, e.cfg.Precompute, e.log)
	if err != nil {
		return RebuildResult{BuildID: res.BuildID, Points: len(res.Snapshot.Points)}, fmt.Errorf("precompute: %w", err)
	}

	return RebuildResult{BuildID: res.BuildID, Points: len(res.Snapshot.Points), Pairs: pairs}, nil
}

func (e *Engine) ListPoints(ctx context.Context) (geomodel.PointList, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	points, err := e.store.Points(ctx)
	if err != nil {
		return nil, err
	}
	return geomodel.PointList(points), nil
}

// SearchBound returns the points inside b. Inverted or out of range boxes
// give an empty result.
func (e *Engine) SearchBound(ctx context.Context, b orb.Bound) (geomodel.PointList, error) {
	if !geo.BoundValid(b) {
		return geomodel.PointList{}, nil
	}
	if err := e.refresh(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := e.index.QueryBound(b, e.cfg.Query)
	points, err := e.store.PointsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	out := geomodel.PointList{}
	for _, p := range points {
		if b.Contains(p.Coord()) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Route is a path with the points it passes through.
type Route struct {
	Route      geomodel.Route   `json:"route"`
	Source     router.Source    `json:"source"`
	Expansions int              `json:"expansions,omitempty"`
	Points     []geomodel.Point `json:"points,omitempty"`
}

// FindRoute runs the hierarchical router. With expand set the path points
// are returned in path order.
func (e *Engine) FindRoute(ctx context.Context, start, end string, expand bool) (Route, error) {
	if err := e.refresh(ctx); err != nil {
		return Route{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	res, err := e.router.FindPath(ctx, start, end)
	if err != nil {
		return Route{Expansions: res.Expansions}, err
	}

	r := Route{Route: res.Route, Source: res.Source, Expansions: res.Expansions}
	if expand {
		r.Points, err = e.store.PointsByIDs(ctx, res.Route.Path)
		if err != nil {
			return r, fmt.Errorf("expand path: %w", err)
		}
	}
	return r, nil
}

// points loads the given points in order, repeated ids only once.
func (e *Engine) points(ctx context.Context, ids []string) ([]geomodel.Point, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no points given", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	points, err := e.store.PointsByIDs(ctx, unique)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return points, err
}

// ShortestPath runs Dijkstra over the complete graph of the given points.
func (e *Engine) ShortestPath(ctx context.Context, ids []string, start, end string) (geomodel.Route, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	points, err := e.points(ctx, ids)
	if err != nil {
		return geomodel.Route{}, err
	}
	r, err := baseline.ShortestPath(points, start, end)
	if errors.Is(err, baseline.ErrUnknownPoint) {
		return r, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return r, err
}

// Cluster groups the given points with k-means. A zero seed draws a random
// one.
func (e *Engine) Cluster(ctx context.Context, ids []string, k int, seed int64) ([][]string, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	points, err := e.points(ctx, ids)
	if err != nil {
		return nil, err
	}
	opts := baseline.KMeansOptions{MaxIterations: e.cfg.KMeansIterations}
	if seed != 0 {
		opts.Rand = rand.New(rand.NewSource(seed))
	}
	return baseline.KMeans(points, k, opts)
}

// Tour returns a closed nearest neighbour tour over the given points. An
// empty start begins at the first one.
func (e *Engine) Tour(ctx context.Context, ids []string, start string) (geomodel.Route, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	points, err := e.points(ctx, ids)
	if err != nil {
		return geomodel.Route{}, err
	}
	r, err := baseline.NearestNeighborTour(points, start)
	if errors.Is(err, baseline.ErrUnknownPoint) {
		return r, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return r, err
}

// Nearest returns the stored point closest to a coordinate.
func (e *Engine) Nearest(ctx context.Context, lat, lng float64) (locator.Match, bool, error) {
	if err := e.refresh(ctx); err != nil {
		return locator.Match{}, false, err
	}
	m, ok := e.locator.Load().Nearest(lat, lng)
	return m, ok, nil
}

type Stats struct {
	geomodel.Stats
	InMemoryIndexEntries int `json:"in_memory_index_entries"`
	LocatorPoints        int `json:"locator_points"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	if err := e.refresh(ctx); err != nil {
		return Stats{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var st Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.Stats, err = e.store.Stats(gctx)
		return err
	})
	g.Go(func() error {
		st.InMemoryIndexEntries = e.index.Len()
		st.LocatorPoints = e.locator.Load().Len()
		return nil
	})
	if err := g.Wait(); err != nil {
		return st, fmt.Errorf("collect stats: %w", err)
	}
	return st, nil
}
