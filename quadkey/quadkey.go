// Package quadkey maps coordinates to nested quadrant keys of the lat/lng
// plane and keeps an ordered in-memory index of those keys.
//
// A key of length L is a string of base-4 digits. Digit 0 is the south-west
// quadrant of the current cell, 1 south-east, 2 north-west and 3 north-east.
package quadkey

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
)

// DefaultMaxLevel is the deepest level written for every point.
const DefaultMaxLevel = 9

// Encode returns the quadrant key of the coordinate at the given depth.
// Coordinates outside the valid range are clamped onto its border.
func Encode(lat, lng float64, level int) string {
	if level <= 0 {
		return ""
	}

	normLat := clamp01((lat + 90) / 180)
	normLng := clamp01((lng + 180) / 360)

	key := make([]byte, level)
	for i := range level {
		var digit byte
		if normLat >= 0.5 {
			digit |= 2
			normLat -= 0.5
		}
		if normLng >= 0.5 {
			digit |= 1
			normLng -= 0.5
		}
		key[i] = '0' + digit
		normLat *= 2
		normLng *= 2
	}
	return string(key)
}

// DecodeBound returns the cell a key stands for. Every point inside the
// smallest cell shares the key, results must still be filtered by coordinates.
func DecodeBound(key string) (orb.Bound, error) {
	if len(key) > 62 {
		return orb.Bound{}, fmt.Errorf("quadkey too deep: %d levels", len(key))
	}

	var latCell, lngCell uint64
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < '0' || c > '3' {
			return orb.Bound{}, fmt.Errorf("invalid quadkey digit %q at %d", c, i)
		}
		d := uint64(c - '0')
		latCell = latCell<<1 | d>>1
		lngCell = lngCell<<1 | d&1
	}

	cells := math.Ldexp(1, len(key))
	latSize := 180 / cells
	lngSize := 360 / cells

	minLat := float64(latCell)*latSize - 90
	minLng := float64(lngCell)*lngSize - 180
	return geo.NewBound(minLat, minLat+latSize, minLng, minLng+lngSize), nil
}

// LevelForBound picks a search depth from the angular size of the box: larger
// boxes use shallower levels so fewer, coarser keys are unioned.
func LevelForBound(b orb.Bound, maxLevel int) int {
	latDiff := math.Abs(b.Max.Lat() - b.Min.Lat())
	lngDiff := math.Abs(b.Max.Lon() - b.Min.Lon())

	level := 3
	switch {
	case latDiff < 1 && lngDiff < 1:
		level = 9
	case latDiff < 5 && lngDiff < 5:
		level = 7
	case latDiff < 20 && lngDiff < 20:
		level = 5
	}
	return min(level, maxLevel)
}

// SampleKeys encodes the four corners and the center of the box. It is a
// recall heuristic: a cell crossed by the box without holding any sample is
// missed. Use CoverKeys when completeness matters.
func SampleKeys(b orb.Bound, level int) []string {
	samples := []orb.Point{
		b.Min,
		{b.Max.Lon(), b.Min.Lat()},
		{b.Min.Lon(), b.Max.Lat()},
		b.Max,
		b.Center(),
	}

	keys := make([]string, 0, len(samples))
	for _, p := range samples {
		if !geo.ValidLatLng(p.Lat(), p.Lon()) {
			continue
		}
		keys = append(keys, Encode(p.Lat(), p.Lon(), level))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// CoverKeys enumerates every cell intersecting the box. When the box spans more
// than maxCells cells the level is lowered until it fits, the returned level is
// the one the keys were produced at.
func CoverKeys(b orb.Bound, level, maxCells int) ([]string, int) {
	if !geo.BoundValid(b) {
		return nil, level
	}

	for ; level > 0; level-- {
		lat0, lat1 := cellRange((b.Min.Lat()+90)/180, (b.Max.Lat()+90)/180, level)
		lng0, lng1 := cellRange((b.Min.Lon()+180)/360, (b.Max.Lon()+180)/360, level)

		count := (lat1 - lat0 + 1) * (lng1 - lng0 + 1)
		if maxCells > 0 && count > uint64(maxCells) && level > 1 {
			continue
		}

		keys := make([]string, 0, count)
		for i := lat0; i <= lat1; i++ {
			for j := lng0; j <= lng1; j++ {
				keys = append(keys, cellKey(i, j, level))
			}
		}
		slices.Sort(keys)
		return keys, level
	}
	return nil, 0
}

func cellRange(lo, hi float64, level int) (uint64, uint64) {
	n := uint64(1) << level
	return cellIndex(lo, n), cellIndex(hi, n)
}

func cellIndex(norm float64, n uint64) uint64 {
	i := uint64(clamp01(norm) * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

func cellKey(latCell, lngCell uint64, level int) string {
	key := make([]byte, level)
	for i := range level {
		shift := uint(level - 1 - i)
		key[i] = '0' + byte((latCell>>shift&1)<<1|lngCell>>shift&1)
	}
	return string(key)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
