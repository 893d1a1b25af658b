package router

import (
	"log/slog"

	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/kv"
)

// Heuristic selects the cost model of the search.
type Heuristic uint8

const (
	// HeuristicTierPenalty charges nothing for hierarchy hops and adds
	// TierPenaltyKm per tier to the distance to the goal. It keeps the search
	// local unless climbing is clearly shorter, but may overestimate, so the
	// path found is not guaranteed to be the shortest.
	HeuristicTierPenalty Heuristic = iota
	// HeuristicAdmissible charges hierarchy hops their great-circle length and
	// estimates with the plain distance to the goal, which never
	// overestimates. Equal estimates are expanded lower tier first.
	HeuristicAdmissible
)

// RouteKey identifies a cached route.
type RouteKey struct {
	Start, End string
}

type options struct {
	heuristic      Heuristic
	tierPenaltyKm  float64
	maxExpansions  int
	neighborLimit  int
	nodeCacheSize  uint64
	routeCacheSize uint64
	memory         kv.KVS[RouteKey, geomodel.Route]
	logger         *slog.Logger
}

type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

func loadOptions(opts ...Option) options {
	o := options{
		heuristic:      HeuristicTierPenalty,
		tierPenaltyKm:  100,
		maxExpansions:  200_000,
		neighborLimit:  10,
		nodeCacheSize:  10_000,
		routeCacheSize: 100_000,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.memory == nil {
		if o.routeCacheSize > 0 {
			o.memory = kv.NewLRUMap[RouteKey, geomodel.Route](o.routeCacheSize)
		} else {
			o.memory = kv.NewXMap[RouteKey, geomodel.Route]()
		}
	}
	return o
}

// Default: HeuristicTierPenalty
func WithHeuristic(h Heuristic) Option {
	return optionFunc(func(o *options) { o.heuristic = h })
}

// Default: 100
func WithTierPenaltyKm(km float64) Option {
	return optionFunc(func(o *options) { o.tierPenaltyKm = km })
}

// WithMaxExpansions caps the nodes popped by one search. Zero disables the cap.
// Default: 200000
func WithMaxExpansions(n int) Option {
	return optionFunc(func(o *options) { o.maxExpansions = n })
}

// WithNeighborLimit sets how many precomputed hops a point contributes as
// search edges. Default: 10
func WithNeighborLimit(n int) Option {
	return optionFunc(func(o *options) { o.neighborLimit = n })
}

// Default: 10000
func WithNodeCacheSize(n uint64) Option {
	return optionFunc(func(o *options) { o.nodeCacheSize = n })
}

// WithRouteCacheSize bounds the in-process route tier, least recently used
// routes are evicted first. Zero keeps every route in an unbounded xsync map.
// Default: 100000
func WithRouteCacheSize(n uint64) Option {
	return optionFunc(func(o *options) { o.routeCacheSize = n })
}

// WithRouteMemory replaces the in-process route tier. It takes precedence
// over WithRouteCacheSize.
func WithRouteMemory(m kv.KVS[RouteKey, geomodel.Route]) Option {
	return optionFunc(func(o *options) { o.memory = m })
}

func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = l })
}
