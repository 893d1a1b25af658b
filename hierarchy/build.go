// Package hierarchy groups a flat list of points into the seven tier
// containment tree and emits the edges between consecutive tiers.
package hierarchy

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/lookup"
	"github.com/royalcat/hgeoroute/quadkey"
	"github.com/royalcat/hgeoroute/store"
	"github.com/sourcegraph/conc/iter"
)

var ErrEmptyDataset = errors.New("empty dataset")

const rootLabel = "global"

type Config struct {
	Threads          int
	ClusterPrecision int
	RegionPrecision  int
	IndexLevel       int
	Progress         bool
}

func ConfigDefault() Config {
	return Config{
		Threads:          runtime.GOMAXPROCS(-1),
		ClusterPrecision: 2,
		RegionPrecision:  1,
		IndexLevel:       quadkey.DefaultMaxLevel,
		Progress:         false,
	}
}

// keyed is the result of the parallel per-point pass.
type keyed struct {
	cluster   string
	continent string
	bloc      string
	index     []geomodel.IndexEntry
}

// group collects the members of one aggregate in order of first appearance.
type group struct {
	id      int64
	label   string
	parent  string
	members []int
}

type groups struct {
	byKey map[string]*group
	order []*group
}

func newGroups() *groups {
	return &groups{byKey: map[string]*group{}}
}

func (g *groups) add(key, label, parent string, member int) *group {
	gr, ok := g.byKey[key]
	if !ok {
		gr = &group{id: int64(len(g.order) + 1), label: label, parent: parent}
		g.byKey[key] = gr
		g.order = append(g.order, gr)
	}
	gr.members = append(gr.members, member)
	return gr
}

// Build computes the whole hierarchy from records without touching the store.
// Aggregate ids are assigned in order of first appearance so the same input
// always produces the same snapshot.
func Build(records []geomodel.Record, tables *lookup.Tables, cfg Config) (store.Snapshot, error) {
	if len(records) == 0 {
		return store.Snapshot{}, ErrEmptyDataset
	}
	if tables == nil {
		tables = lookup.Default()
	}

	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if _, dup := seen[r.ID]; dup {
			return store.Snapshot{}, fmt.Errorf("record %d: duplicate point id %q", i, r.ID)
		}
		seen[r.ID] = struct{}{}
		if !geo.ValidLatLng(r.Lat, r.Lng) {
			return store.Snapshot{}, fmt.Errorf("record %d (%s): coordinate out of range (%v, %v)", i, r.ID, r.Lat, r.Lng)
		}
	}

	var bar *pb.ProgressBar
	if cfg.Progress {
		bar = pb.Start64(int64(len(records)))
		bar.Set("prefix", "1/2 building hierarchy")
		bar.SetRefreshRate(time.Second)
		defer bar.Finish()
	}

	mapper := iter.Mapper[geomodel.Record, keyed]{MaxGoroutines: max(cfg.Threads, 1)}
	keys := mapper.Map(records, func(r *geomodel.Record) keyed {
		if bar != nil {
			bar.Increment()
		}
		return keyed{
			cluster:   ClusterKey(r.Country, r.Lat, r.Lng, cfg.ClusterPrecision),
			continent: tables.Continent(r.Country),
			bloc:      tables.TradeBloc(r.Country),
			index:     quadkey.BuildEntries(r.ID, r.Lat, r.Lng, cfg.IndexLevel),
		}
	})

	b := &builder{records: records, keys: keys, cfg: cfg}
	return b.build(), nil
}

type builder struct {
	records []geomodel.Record
	keys    []keyed
	cfg     Config

	snap store.Snapshot
}

func (b *builder) build() store.Snapshot {
	clusters := newGroups()
	pointCluster := make([]*group, len(b.records))
	for i, r := range b.records {
		pointCluster[i] = clusters.add(b.keys[i].cluster, b.keys[i].cluster, r.Country, i)
	}

	// regions are keyed from the first member of each cluster
	regions := newGroups()
	clusterRegion := make([]*group, len(clusters.order))
	for ci, c := range clusters.order {
		first := b.records[c.members[0]]
		key := RegionKey(first.Country, first.Lat, first.Lng, b.cfg.RegionPrecision)
		clusterRegion[ci] = regions.add(key, key, first.Country, ci)
	}

	countries := newGroups()
	regionCountry := make([]*group, len(regions.order))
	for ri, r := range regions.order {
		regionCountry[ri] = countries.add(r.parent, r.parent, "", ri)
	}

	blocs := newGroups()
	countryBloc := make([]*group, len(countries.order))
	for ci, c := range countries.order {
		k := b.keys[b.firstPointOfCountry(c, regions, clusters)]
		key := k.bloc + ":" + k.continent
		countryBloc[ci] = blocs.add(key, key, k.continent, ci)
	}

	continents := newGroups()
	blocContinent := make([]*group, len(blocs.order))
	for bi, bl := range blocs.order {
		blocContinent[bi] = continents.add(bl.parent, bl.parent, rootLabel, bi)
	}

	root := &group{id: 1, label: rootLabel}
	for i := range continents.order {
		root.members = append(root.members, i)
	}

	// centroids, leaf first
	clusterCentroids := make([]orb.Point, len(clusters.order))
	for i, c := range clusters.order {
		clusterCentroids[i] = b.pointCentroid(c.members)
	}
	regionCentroids := make([]orb.Point, len(regions.order))
	for i, r := range regions.order {
		var pooled []int
		for _, ci := range r.members {
			pooled = append(pooled, clusters.order[ci].members...)
		}
		regionCentroids[i] = b.pointCentroid(pooled)
	}
	countryCentroids := childCentroids(countries.order, regionCentroids)
	blocCentroids := childCentroids(blocs.order, countryCentroids)
	continentCentroids := childCentroids(continents.order, blocCentroids)
	rootCentroid := childCentroids([]*group{root}, continentCentroids)[0]

	b.emitTier(geomodel.TierCluster, clusters.order, clusterCentroids, func(i int) int64 { return clusterRegion[i].id })
	b.emitTier(geomodel.TierRegion, regions.order, regionCentroids, func(i int) int64 { return regionCountry[i].id })
	b.emitTier(geomodel.TierCountry, countries.order, countryCentroids, func(i int) int64 { return countryBloc[i].id })
	b.emitTier(geomodel.TierTradeBlock, blocs.order, blocCentroids, func(i int) int64 { return blocContinent[i].id })
	b.emitTier(geomodel.TierContinent, continents.order, continentCentroids, func(int) int64 { return root.id })
	b.emitTier(geomodel.TierRoot, []*group{root}, []orb.Point{rootCentroid}, func(int) int64 { return 0 })

	b.snap.Points = make([]geomodel.Point, len(b.records))
	for i, r := range b.records {
		cl := pointCluster[i]
		ci := int(cl.id - 1)
		reg := clusterRegion[ci]
		co := regionCountry[reg.id-1]
		bl := countryBloc[co.id-1]
		cont := blocContinent[bl.id-1]

		b.snap.Points[i] = geomodel.Point{
			ID: r.ID, Name: r.Name, Country: r.Country, Lat: r.Lat, Lng: r.Lng,
			ClusterID:    cl.id,
			RegionID:     reg.id,
			CountryID:    co.id,
			TradeBlockID: bl.id,
			ContinentID:  cont.id,
		}
		b.snap.Edges = append(b.snap.Edges, newEdge(
			geomodel.PointKey(r.ID),
			geomodel.AggregateKey(geomodel.TierCluster, cl.id),
		))
		b.snap.Index = append(b.snap.Index, b.keys[i].index...)
	}

	return b.snap
}

func (b *builder) firstPointOfCountry(c *group, regions, clusters *groups) int {
	firstRegion := regions.order[c.members[0]]
	firstCluster := clusters.order[firstRegion.members[0]]
	return firstCluster.members[0]
}

func (b *builder) pointCentroid(members []int) orb.Point {
	points := make([]orb.Point, len(members))
	for i, m := range members {
		points[i] = orb.Point{b.records[m].Lng, b.records[m].Lat}
	}
	return geo.Centroid(points)
}

func childCentroids(parents []*group, children []orb.Point) []orb.Point {
	out := make([]orb.Point, len(parents))
	for i, p := range parents {
		points := make([]orb.Point, len(p.members))
		for j, m := range p.members {
			points[j] = children[m]
		}
		out[i] = geo.Centroid(points)
	}
	return out
}

func (b *builder) emitTier(tier geomodel.Tier, order []*group, centroids []orb.Point, parent func(int) int64) {
	for i, g := range order {
		a := geomodel.Aggregate{
			ID:       g.id,
			Tier:     tier,
			Label:    g.label,
			Lat:      centroids[i].Lat(),
			Lng:      centroids[i].Lon(),
			ParentID: parent(i),
		}
		b.snap.Aggregates = append(b.snap.Aggregates, a)
		if tier != geomodel.TierRoot {
			b.snap.Edges = append(b.snap.Edges, newEdge(a.Key(), geomodel.AggregateKey(tier+1, a.ParentID)))
		}
	}
}

func newEdge(child, parent geomodel.NodeKey) geomodel.Edge {
	return geomodel.Edge{
		Level:         geomodel.EdgeLevel(child.Tier, parent.Tier),
		SourceID:      child.ID,
		SourceTier:    child.Tier,
		TargetID:      parent.ID,
		TargetTier:    parent.Tier,
		Weight:        0,
		Bidirectional: true,
	}
}
