// Package router finds paths between points, answering from the route cache
// or the precomputed short hops when it can and running an A* search over the
// union of points and hierarchy aggregates when it cannot.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/kv"
	"github.com/royalcat/hgeoroute/store"
)

var (
	ErrNotFound       = errors.New("point not found")
	ErrNoPath         = errors.New("no path")
	ErrBudgetExceeded = errors.New("search budget exceeded")
)

// Graph is the read side of the store the search runs on.
type Graph interface {
	Point(ctx context.Context, id string) (geomodel.Point, error)
	Aggregate(ctx context.Context, tier geomodel.Tier, id int64) (geomodel.Aggregate, error)
	EdgesOf(ctx context.Context, key geomodel.NodeKey) ([]geomodel.Edge, error)
	Precomputed(ctx context.Context, a, b string) (float64, bool, error)
	NearestPrecomputed(ctx context.Context, id string, limit int) ([]geomodel.PrecomputedDistance, error)
}

// RouteCache is the persisted route tier.
type RouteCache interface {
	CachedRoute(ctx context.Context, start, end string) (geomodel.Route, bool, error)
	CacheRoute(ctx context.Context, r geomodel.Route) error
}

// Source tells which tier answered a query.
type Source string

const (
	SourceMemory      Source = "memory"
	SourceCache       Source = "cache"
	SourcePrecomputed Source = "precomputed"
	SourceSearch      Source = "search"
)

type Result struct {
	Route      geomodel.Route
	Source     Source
	Expansions int
}

type Router struct {
	graph  Graph
	cache  RouteCache
	memory kv.KVS[RouteKey, geomodel.Route]
	nodes  *ttlcache.Cache[geomodel.NodeKey, *node]

	heuristic     Heuristic
	tierPenaltyKm float64
	maxExpansions int
	neighborLimit int

	log *slog.Logger
}

// New builds a router. cache may be nil, then only the in-process tier is used.
func New(graph Graph, cache RouteCache, opts ...Option) *Router {
	o := loadOptions(opts...)
	return &Router{
		graph:  graph,
		cache:  cache,
		memory: o.memory,
		nodes: ttlcache.New[geomodel.NodeKey, *node](
			ttlcache.WithCapacity[geomodel.NodeKey, *node](o.nodeCacheSize),
		),
		heuristic:     o.heuristic,
		tierPenaltyKm: o.tierPenaltyKm,
		maxExpansions: o.maxExpansions,
		neighborLimit: o.neighborLimit,
		log:           o.logger.With("component", "router"),
	}
}

// Invalidate drops the in-process route tier and the node memo. The
// persisted tier is versioned by build id and needs no call.
func (r *Router) Invalidate() {
	r.memory.Clear()
	r.nodes.DeleteAll()
}

// FindPath returns the path from start to end. Unknown ids give ErrNotFound,
// an exhausted search ErrNoPath, a search stopped by the expansion cap or the
// context ErrBudgetExceeded.
func (r *Router) FindPath(ctx context.Context, start, end string) (Result, error) {
	key := RouteKey{Start: start, End: end}
	if route, ok := r.memory.Get(key); ok {
		return Result{Route: cloneRoute(route), Source: SourceMemory}, nil
	}

	if r.cache != nil {
		route, ok, err := r.cache.CachedRoute(ctx, start, end)
		if err != nil {
			return Result{}, fmt.Errorf("read route cache: %w", err)
		}
		if ok {
			r.memory.Set(key, cloneRoute(route))
			return Result{Route: route, Source: SourceCache}, nil
		}
	}

	from, err := r.point(ctx, start)
	if err != nil {
		return Result{}, err
	}
	to, err := r.point(ctx, end)
	if err != nil {
		return Result{}, err
	}

	km, ok, err := r.graph.Precomputed(ctx, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("read precomputed: %w", err)
	}
	if ok {
		route := geomodel.Route{Start: start, End: end, Path: []string{start, end}, DistanceKm: km, CreatedAt: time.Now()}
		r.remember(ctx, key, route)
		return Result{Route: route, Source: SourcePrecomputed}, nil
	}

	path, expansions, err := r.search(ctx, from, to)
	if err != nil {
		return Result{Expansions: expansions}, err
	}

	total, err := r.pathDistance(ctx, path)
	if err != nil {
		return Result{}, err
	}

	route := geomodel.Route{Start: start, End: end, Path: path, DistanceKm: total, CreatedAt: time.Now()}
	r.remember(ctx, key, route)
	return Result{Route: route, Source: SourceSearch, Expansions: expansions}, nil
}

func (r *Router) point(ctx context.Context, id string) (geomodel.Point, error) {
	p, err := r.graph.Point(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return p, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return p, err
}

// remember writes a route through both tiers. A failing persisted write only
// costs a future recomputation.
func (r *Router) remember(ctx context.Context, key RouteKey, route geomodel.Route) {
	r.memory.Set(key, cloneRoute(route))
	if r.cache == nil {
		return
	}
	if err := r.cache.CacheRoute(ctx, route); err != nil {
		r.log.WarnContext(ctx, "caching route failed", "start", key.Start, "end", key.End, "error", err)
	}
}

// cloneRoute copies the path, routes in the memory tier share nothing with
// callers.
func cloneRoute(route geomodel.Route) geomodel.Route {
	route.Path = slices.Clone(route.Path)
	return route
}

// pathDistance sums the precomputed hop of every consecutive pair, falling
// back to the great-circle distance.
func (r *Router) pathDistance(ctx context.Context, path []string) (float64, error) {
	var total float64
	for i := 1; i < len(path); i++ {
		km, ok, err := r.graph.Precomputed(ctx, path[i-1], path[i])
		if err != nil {
			return 0, fmt.Errorf("read precomputed: %w", err)
		}
		if !ok {
			a, err := r.nodeInfo(ctx, geomodel.PointKey(path[i-1]))
			if err != nil {
				return 0, err
			}
			b, err := r.nodeInfo(ctx, geomodel.PointKey(path[i]))
			if err != nil {
				return 0, err
			}
			km = geo.HaversinePoints(a.coord, b.coord)
		}
		total += km
	}
	return total, nil
}
