// Package precompute stores direct distances between nearby points so most
// route queries are answered without a graph search.
package precompute

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/store"
	"github.com/sourcegraph/conc/iter"
	"github.com/tidwall/qtree"
)

type Config struct {
	Threads int
	// Window is the half side, in degrees, of the box searched around a point.
	Window        float64
	MaxCandidates int
	MaxRadiusKm   float64
	Progress      bool
}

func ConfigDefault() Config {
	return Config{
		Threads:       runtime.GOMAXPROCS(-1),
		Window:        2,
		MaxCandidates: 20,
		MaxRadiusKm:   200,
	}
}

type candidate struct {
	idx int
	sq  float64
}

// Compute returns every kept pair once, with A < B, sorted. For each point
// the MaxCandidates nearest others inside the window, by squared degrees, are
// measured and those under MaxRadiusKm are kept.
func Compute(points []geomodel.Point, cfg Config) []geomodel.PrecomputedDistance {
	var qt qtree.QTree
	for i, p := range points {
		c := p.Coord()
		qt.Insert(c, c, i)
	}

	var bar *pb.ProgressBar
	if cfg.Progress {
		bar = pb.Start64(int64(len(points)))
		bar.Set("prefix", "2/2 precomputing distances")
		bar.SetRefreshRate(time.Second)
		defer bar.Finish()
	}

	mapper := iter.Mapper[geomodel.Point, []geomodel.PrecomputedDistance]{MaxGoroutines: max(cfg.Threads, 1)}
	perPoint := mapper.Map(points, func(p *geomodel.Point) []geomodel.PrecomputedDistance {
		if bar != nil {
			defer bar.Increment()
		}
		return nearby(&qt, points, p, cfg)
	})

	seen := map[[2]string]struct{}{}
	var out []geomodel.PrecomputedDistance
	for _, pairs := range perPoint {
		for _, d := range pairs {
			if d.B < d.A {
				d.A, d.B = d.B, d.A
			}
			k := [2]string{d.A, d.B}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, d)
		}
	}

	slices.SortFunc(out, func(a, b geomodel.PrecomputedDistance) int {
		return cmp.Or(cmp.Compare(a.A, b.A), cmp.Compare(a.B, b.B))
	})
	return out
}

func nearby(qt *qtree.QTree, points []geomodel.Point, p *geomodel.Point, cfg Config) []geomodel.PrecomputedDistance {
	lo := orb.Point{p.Lng - cfg.Window, p.Lat - cfg.Window}
	hi := orb.Point{p.Lng + cfg.Window, p.Lat + cfg.Window}

	var cands []candidate
	qt.Search(lo, hi, func(_, _ [2]float64, data interface{}) bool {
		i := data.(int)
		o := &points[i]
		if o.ID == p.ID {
			return true
		}
		dlat, dlng := o.Lat-p.Lat, o.Lng-p.Lng
		// the window is open
		if dlat <= -cfg.Window || dlat >= cfg.Window || dlng <= -cfg.Window || dlng >= cfg.Window {
			return true
		}
		cands = append(cands, candidate{idx: i, sq: dlat*dlat + dlng*dlng})
		return true
	})

	slices.SortFunc(cands, func(a, b candidate) int {
		return cmp.Or(cmp.Compare(a.sq, b.sq), cmp.Compare(points[a.idx].ID, points[b.idx].ID))
	})
	if cfg.MaxCandidates > 0 && len(cands) > cfg.MaxCandidates {
		cands = cands[:cfg.MaxCandidates]
	}

	var out []geomodel.PrecomputedDistance
	for _, c := range cands {
		o := &points[c.idx]
		km := geo.Haversine(p.Lat, p.Lng, o.Lat, o.Lng)
		if km < cfg.MaxRadiusKm {
			out = append(out, geomodel.PrecomputedDistance{A: p.ID, B: o.ID, Km: km})
		}
	}
	return out
}

// Run recomputes the distance table of the stored points and replaces it in a
// single transaction.
func Run(ctx context.Context, s *store.Store, cfg Config, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "precompute")
	start := time.Now()

	points, err := s.Points(ctx)
	if err != nil {
		return 0, fmt.Errorf("load points: %w", err)
	}

	pairs := Compute(points, cfg)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ReplacePrecomputed(ctx, pairs); err != nil {
		return 0, fmt.Errorf("store distances: %w", err)
	}

	log.Info("distances precomputed",
		"points", humanize.Comma(int64(len(points))),
		"pairs", humanize.Comma(int64(len(pairs))),
		"took", time.Since(start),
	)
	return len(pairs), nil
}
