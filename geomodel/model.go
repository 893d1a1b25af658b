package geomodel

import (
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

// Tier is a level of the containment hierarchy, Point is 0 and Root is 6.
type Tier uint8

const (
	TierPoint Tier = iota
	TierCluster
	TierRegion
	TierCountry
	TierTradeBlock
	TierContinent
	TierRoot
)

// AggregateTiers lists every tier above Point, leaf first.
var AggregateTiers = []Tier{TierCluster, TierRegion, TierCountry, TierTradeBlock, TierContinent, TierRoot}

var tierNames = [...]string{"point", "cluster", "region", "country", "trade_block", "continent", "global"}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "tier(" + strconv.Itoa(int(t)) + ")"
}

// ParseTier is the inverse of Tier.String.
func ParseTier(s string) (Tier, bool) {
	for i, n := range tierNames {
		if n == s {
			return Tier(i), true
		}
	}
	return 0, false
}

// NodeKey identifies a node of the search space. Aggregate ids are numeric and
// only unique inside their tier, so the tier is part of the key.
type NodeKey struct {
	ID   string
	Tier Tier
}

func (k NodeKey) String() string {
	return k.Tier.String() + ":" + k.ID
}

// PointKey returns the node key of a point id.
func PointKey(id string) NodeKey {
	return NodeKey{ID: id, Tier: TierPoint}
}

// AggregateKey returns the node key of an aggregate.
func AggregateKey(tier Tier, id int64) NodeKey {
	return NodeKey{ID: strconv.FormatInt(id, 10), Tier: tier}
}

// Record is one row handed over by dataset ingestion.
type Record struct {
	ID      string
	Name    string
	Country string
	Lat     float64
	Lng     float64
}

// Point is an ingested city with its ancestor chain.
type Point struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`

	ClusterID    int64 `json:"cluster_id"`
	RegionID     int64 `json:"region_id"`
	CountryID    int64 `json:"country_id"`
	TradeBlockID int64 `json:"trade_block_id"`
	ContinentID  int64 `json:"continent_id"`
}

func (p Point) Coord() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Aggregate is a node of one of the six tiers above Point. ParentID is zero
// for the root.
type Aggregate struct {
	ID       int64
	Tier     Tier
	Label    string
	Lat      float64
	Lng      float64
	ParentID int64
}

func (a Aggregate) Coord() orb.Point {
	return orb.Point{a.Lng, a.Lat}
}

func (a Aggregate) Key() NodeKey {
	return AggregateKey(a.Tier, a.ID)
}

// Edge is a containment link between a child and its parent. Weight is zero
// for every edge the builder emits.
type Edge struct {
	Level         string
	SourceID      string
	SourceTier    Tier
	TargetID      string
	TargetTier    Tier
	Weight        float64
	Bidirectional bool
}

func (e Edge) Source() NodeKey { return NodeKey{ID: e.SourceID, Tier: e.SourceTier} }
func (e Edge) Target() NodeKey { return NodeKey{ID: e.TargetID, Tier: e.TargetTier} }

// EdgeLevel names the boundary crossed by an edge from child to parent tier.
func EdgeLevel(child, parent Tier) string {
	return child.String() + "_to_" + parent.String()
}

// PrecomputedDistance is a short hop between two nearby points.
type PrecomputedDistance struct {
	A  string
	B  string
	Km float64
}

// Route is an ordered list of point ids with its total distance.
type Route struct {
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Path       []string  `json:"path"`
	DistanceKm float64   `json:"distance_km"`
	CreatedAt  time.Time `json:"created_at"`
}

// IndexEntry is a quadrant key of one point at one depth.
type IndexEntry struct {
	PointID string
	Key     string
	Level   int
}

// Stats counts the rows of every table of a build.
type Stats struct {
	BuildID      string           `json:"build_id"`
	BuiltAt      time.Time        `json:"built_at"`
	Points       int64            `json:"points"`
	Aggregates   map[string]int64 `json:"aggregates"`
	Edges        int64            `json:"edges"`
	Precomputed  int64            `json:"precomputed"`
	CachedRoutes int64            `json:"cached_routes"`
	IndexEntries int64            `json:"index_entries"`
}
