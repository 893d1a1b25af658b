package quadkey

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/btree"
	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
)

// Strategy selects how the cells of a box are chosen.
type Strategy uint8

const (
	// StrategySample looks up the cells of the corners and the center only.
	StrategySample Strategy = iota
	// StrategyCover looks up every cell the box intersects.
	StrategyCover
)

// defaultCoverCells caps exhaustive enumeration before the level is lowered.
const defaultCoverCells = 256

type entry struct {
	level   int
	key     string
	pointID string
}

func lessEntry(a, b entry) bool {
	if a.level != b.level {
		return a.level < b.level
	}
	if a.key != b.key {
		return a.key < b.key
	}
	return a.pointID < b.pointID
}

// Index stores one entry per point per level, ordered by (level, key), so a
// cell lookup is a short ascending range scan.
type Index struct {
	maxLevel int

	mu     sync.RWMutex
	tree   *btree.BTreeG[entry]
	coords map[string]orb.Point
}

func NewIndex(maxLevel int) *Index {
	if maxLevel <= 0 {
		maxLevel = DefaultMaxLevel
	}
	return &Index{
		maxLevel: maxLevel,
		tree:     btree.NewG(32, lessEntry),
		coords:   map[string]orb.Point{},
	}
}

func (idx *Index) MaxLevel() int {
	return idx.maxLevel
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.coords)
}

// Insert writes the key of every level from 1 to MaxLevel for the point.
func (idx *Index) Insert(pointID string, lat, lng float64) error {
	if !geo.ValidLatLng(lat, lng) {
		return fmt.Errorf("point %s: coordinate out of range (%v, %v)", pointID, lat, lng)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.coords[pointID]; ok {
		idx.removeLocked(pointID, old)
	}
	idx.coords[pointID] = orb.Point{lng, lat}
	full := Encode(lat, lng, idx.maxLevel)
	for level := 1; level <= idx.maxLevel; level++ {
		idx.tree.ReplaceOrInsert(entry{level: level, key: full[:level], pointID: pointID})
	}
	return nil
}

func (idx *Index) Remove(pointID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.coords[pointID]; ok {
		idx.removeLocked(pointID, old)
	}
}

func (idx *Index) removeLocked(pointID string, p orb.Point) {
	full := Encode(p.Lat(), p.Lon(), idx.maxLevel)
	for level := 1; level <= idx.maxLevel; level++ {
		idx.tree.Delete(entry{level: level, key: full[:level], pointID: pointID})
	}
	delete(idx.coords, pointID)
}

// Lookup returns the ids of the points whose key at len(key) equals key.
func (idx *Index) Lookup(key string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.lookupLocked(key, nil)
}

func (idx *Index) lookupLocked(key string, out []string) []string {
	level := len(key)
	idx.tree.AscendGreaterOrEqual(entry{level: level, key: key}, func(e entry) bool {
		if e.level != level || e.key != key {
			return false
		}
		out = append(out, e.pointID)
		return true
	})
	return out
}

// QueryOptions tunes QueryBound. Zero Level means LevelForBound.
type QueryOptions struct {
	Level    int
	Strategy Strategy
	MaxCells int
}

// QueryBound returns the ids of indexed points inside the box, sorted. Invalid
// boxes give an empty result. With StrategySample the result may miss points
// lying in cells that none of the samples fall into.
func (idx *Index) QueryBound(b orb.Bound, opts QueryOptions) []string {
	if !geo.BoundValid(b) {
		return nil
	}

	level := opts.Level
	if level <= 0 || level > idx.maxLevel {
		level = LevelForBound(b, idx.maxLevel)
	}

	var keys []string
	switch opts.Strategy {
	case StrategyCover:
		maxCells := opts.MaxCells
		if maxCells <= 0 {
			maxCells = defaultCoverCells
		}
		keys, _ = CoverKeys(b, level, maxCells)
	default:
		keys = SampleKeys(b, level)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var candidates []string
	for _, key := range keys {
		candidates = idx.lookupLocked(key, candidates)
	}

	result := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if b.Contains(idx.coords[id]) {
			result = append(result, id)
		}
	}
	slices.Sort(result)
	return slices.Compact(result)
}

// Entries returns every stored entry, ordered by level then key.
func (idx *Index) Entries() []geomodel.IndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]geomodel.IndexEntry, 0, idx.tree.Len())
	idx.tree.Ascend(func(e entry) bool {
		out = append(out, geomodel.IndexEntry{PointID: e.pointID, Key: e.key, Level: e.level})
		return true
	})
	return out
}

// Load replaces the content of the index with persisted entries. Entries
// deeper than MaxLevel are ignored, points without coordinates are skipped.
func (idx *Index) Load(entries []geomodel.IndexEntry, coords map[string]orb.Point) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.tree.Clear(false)
	idx.coords = make(map[string]orb.Point, len(coords))
	for _, e := range entries {
		p, ok := coords[e.PointID]
		if !ok || e.Level < 1 || e.Level > idx.maxLevel {
			continue
		}
		idx.coords[e.PointID] = p
		idx.tree.ReplaceOrInsert(entry{level: e.Level, key: e.Key, pointID: e.PointID})
	}
}

// BuildEntries computes the entries of a point without touching an index.
func BuildEntries(pointID string, lat, lng float64, maxLevel int) []geomodel.IndexEntry {
	full := Encode(lat, lng, maxLevel)
	out := make([]geomodel.IndexEntry, maxLevel)
	for level := 1; level <= maxLevel; level++ {
		out[level-1] = geomodel.IndexEntry{PointID: pointID, Key: full[:level], Level: level}
	}
	return out
}
