// Package baseline holds the exact and heuristic algorithms the hierarchical
// router is compared against. They work on small caller supplied point sets.
package baseline

import (
	"container/heap"
	"errors"
	"fmt"
	"math"

	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
)

var (
	ErrUnknownPoint = errors.New("point not in the set")
	ErrNoPath       = errors.New("no path")
)

type Arc struct {
	To     string
	Weight float64
}

// Graph is a weighted adjacency list.
type Graph struct {
	adj map[string][]Arc
}

func NewGraph() *Graph {
	return &Graph{adj: map[string][]Arc{}}
}

func (g *Graph) AddNode(id string) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = nil
	}
}

// AddEdge adds an undirected edge.
func (g *Graph) AddEdge(a, b string, w float64) {
	g.AddArc(a, b, w)
	g.AddArc(b, a, w)
}

func (g *Graph) AddArc(from, to string, w float64) {
	g.AddNode(to)
	g.adj[from] = append(g.adj[from], Arc{To: to, Weight: w})
}

// CompleteGraph links every pair of points by their great-circle distance.
// Intended for small sets only, it holds n*(n-1) arcs.
func CompleteGraph(points []geomodel.Point) *Graph {
	g := NewGraph()
	for _, a := range points {
		g.AddNode(a.ID)
		for _, b := range points {
			if a.ID != b.ID {
				g.AddArc(a.ID, b.ID, geo.Haversine(a.Lat, a.Lng, b.Lat, b.Lng))
			}
		}
	}
	return g
}

// Dijkstra returns the minimum weight path from origin to dest.
func (g *Graph) Dijkstra(origin, dest string) ([]string, float64, error) {
	if _, ok := g.adj[origin]; !ok {
		return nil, 0, fmt.Errorf("%s: %w", origin, ErrUnknownPoint)
	}
	if _, ok := g.adj[dest]; !ok {
		return nil, 0, fmt.Errorf("%s: %w", dest, ErrUnknownPoint)
	}

	dist := map[string]float64{origin: 0}
	prev := map[string]string{}
	pq := &priorityQueue{{id: origin, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if d, ok := dist[item.id]; ok && item.dist > d {
			continue
		}
		if item.id == dest {
			break
		}
		for _, arc := range g.adj[item.id] {
			nd := item.dist + arc.Weight
			if d, ok := dist[arc.To]; !ok || nd < d {
				dist[arc.To] = nd
				prev[arc.To] = item.id
				heap.Push(pq, pqItem{id: arc.To, dist: nd})
			}
		}
	}

	total, ok := dist[dest]
	if !ok || math.IsInf(total, 1) {
		return nil, 0, ErrNoPath
	}

	path := []string{dest}
	for cur := dest; cur != origin; {
		cur = prev[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, total, nil
}

// ShortestPath runs Dijkstra over the complete graph of points.
func ShortestPath(points []geomodel.Point, start, end string) (geomodel.Route, error) {
	path, km, err := CompleteGraph(points).Dijkstra(start, end)
	if err != nil {
		return geomodel.Route{}, err
	}
	return geomodel.Route{Start: start, End: end, Path: path, DistanceKm: km}, nil
}

type pqItem struct {
	id   string
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)      { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)        { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
