package router

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jellydator/ttlcache/v3"
	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/store"
)

type neighbor struct {
	key geomodel.NodeKey
	// km is the stored cost of the edge: the hop length for precomputed
	// hops, the edge weight for hierarchy links.
	km        float64
	hierarchy bool
}

// node is the memoized view of a search node. It is never mutated once cached.
type node struct {
	coord     orb.Point
	neighbors []neighbor
}

func (r *Router) nodeInfo(ctx context.Context, key geomodel.NodeKey) (*node, error) {
	if item := r.nodes.Get(key); item != nil {
		return item.Value(), nil
	}

	n := &node{}
	if key.Tier == geomodel.TierPoint {
		p, err := r.point(ctx, key.ID)
		if err != nil {
			return nil, err
		}
		n.coord = p.Coord()

		hops, err := r.graph.NearestPrecomputed(ctx, key.ID, r.neighborLimit)
		if err != nil {
			return nil, fmt.Errorf("read hops of %s: %w", key, err)
		}
		for _, h := range hops {
			n.neighbors = append(n.neighbors, neighbor{key: geomodel.PointKey(h.B), km: h.Km})
		}
	} else {
		id, err := strconv.ParseInt(key.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("aggregate id %q: %w", key, err)
		}
		a, err := r.graph.Aggregate(ctx, key.Tier, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("dangling edge to %s: %w", key, err)
		}
		if err != nil {
			return nil, err
		}
		n.coord = a.Coord()
	}

	edges, err := r.graph.EdgesOf(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read edges of %s: %w", key, err)
	}
	for _, e := range edges {
		switch {
		case e.Source() == key:
			n.neighbors = append(n.neighbors, neighbor{key: e.Target(), km: e.Weight, hierarchy: true})
		case e.Target() == key && e.Bidirectional:
			n.neighbors = append(n.neighbors, neighbor{key: e.Source(), km: e.Weight, hierarchy: true})
		}
	}

	r.nodes.Set(key, n, ttlcache.NoTTL)
	return n, nil
}

func (r *Router) estimate(key geomodel.NodeKey, coord, goal orb.Point) float64 {
	km := geo.HaversinePoints(coord, goal)
	if r.heuristic == HeuristicTierPenalty {
		km += r.tierPenaltyKm * float64(key.Tier)
	}
	return km
}

func (r *Router) edgeCost(nb neighbor, from, to *node) float64 {
	if nb.hierarchy && r.heuristic == HeuristicAdmissible {
		return nb.km + geo.HaversinePoints(from.coord, to.coord)
	}
	return nb.km
}

// search runs A* from one point to another and returns the point ids of the
// path found, aggregates dropped.
func (r *Router) search(ctx context.Context, from, to geomodel.Point) ([]string, int, error) {
	if from.ID == to.ID {
		return []string{from.ID}, 0, nil
	}

	startKey, goalKey := geomodel.PointKey(from.ID), geomodel.PointKey(to.ID)
	goal := to.Coord()

	g := map[geomodel.NodeKey]float64{startKey: 0}
	prev := map[geomodel.NodeKey]geomodel.NodeKey{}
	closed := map[geomodel.NodeKey]bool{}

	open := &openSet{}
	open.push(startKey, r.estimate(startKey, from.Coord(), goal))

	expansions := 0
	for open.Len() > 0 {
		if r.maxExpansions > 0 && expansions >= r.maxExpansions {
			return nil, expansions, fmt.Errorf("%w: %d expansions", ErrBudgetExceeded, expansions)
		}
		if err := ctx.Err(); err != nil {
			return nil, expansions, fmt.Errorf("%w: %w", ErrBudgetExceeded, err)
		}

		cur := heap.Pop(open).(openItem).key
		if closed[cur] {
			continue
		}
		closed[cur] = true
		expansions++

		if cur == goalKey {
			return reconstruct(prev, startKey, goalKey), expansions, nil
		}

		curNode, err := r.nodeInfo(ctx, cur)
		if err != nil {
			return nil, expansions, err
		}
		for _, nb := range curNode.neighbors {
			if closed[nb.key] {
				continue
			}
			nbNode, err := r.nodeInfo(ctx, nb.key)
			if err != nil {
				return nil, expansions, err
			}

			ng := g[cur] + r.edgeCost(nb, curNode, nbNode)
			if old, seen := g[nb.key]; seen && ng >= old {
				continue
			}
			g[nb.key] = ng
			prev[nb.key] = cur
			open.push(nb.key, ng+r.estimate(nb.key, nbNode.coord, goal))
		}
	}

	r.log.DebugContext(ctx, "search exhausted", "start", from.ID, "end", to.ID, "expansions", expansions)
	return nil, expansions, fmt.Errorf("%s to %s: %w", from.ID, to.ID, ErrNoPath)
}

func reconstruct(prev map[geomodel.NodeKey]geomodel.NodeKey, start, goal geomodel.NodeKey) []string {
	var path []string
	for cur := goal; ; cur = prev[cur] {
		if cur.Tier == geomodel.TierPoint {
			path = append(path, cur.ID)
		}
		if cur == start {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type openItem struct {
	key geomodel.NodeKey
	f   float64
	seq uint64
}

// openSet is a min-heap on f. Ties go to the lower tier, then to the node
// pushed first, so equal inputs always expand in the same order.
type openSet struct {
	items []openItem
	seq   uint64
}

func (s *openSet) push(key geomodel.NodeKey, f float64) {
	s.seq++
	heap.Push(s, openItem{key: key, f: f, seq: s.seq})
}

func (s *openSet) Len() int { return len(s.items) }

func (s *openSet) Less(i, j int) bool {
	a, b := s.items[i], s.items[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.key.Tier != b.key.Tier {
		return a.key.Tier < b.key.Tier
	}
	return a.seq < b.seq
}

func (s *openSet) Swap(i, j int) { s.items[i], s.items[j] = s.items[j], s.items[i] }

func (s *openSet) Push(x any) { s.items = append(s.items, x.(openItem)) }

func (s *openSet) Pop() any {
	n := len(s.items)
	item := s.items[n-1]
	s.items = s.items[:n-1]
	return item
}
