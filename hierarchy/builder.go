package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/lookup"
	"github.com/royalcat/hgeoroute/quadkey"
	"github.com/royalcat/hgeoroute/store"
)

// Builder persists a freshly built hierarchy and refreshes the in-memory
// quadrant index from it.
type Builder struct {
	store  *store.Store
	index  *quadkey.Index
	tables *lookup.Tables
	cfg    Config
	log    *slog.Logger
}

func NewBuilder(s *store.Store, index *quadkey.Index, tables *lookup.Tables, cfg Config, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	if tables == nil {
		tables = lookup.Default()
	}
	return &Builder{store: s, index: index, tables: tables, cfg: cfg, log: log.With("component", "hierarchy")}
}

type Result struct {
	BuildID  string
	Snapshot store.Snapshot
}

// Rebuild replaces the stored hierarchy with one built from records. Either
// the whole build lands or the previous one stays untouched.
func (b *Builder) Rebuild(ctx context.Context, records []geomodel.Record) (Result, error) {
	start := time.Now()
	b.log.Info("building hierarchy", "records", humanize.Comma(int64(len(records))))

	snap, err := Build(records, b.tables, b.cfg)
	if err != nil {
		return Result{}, fmt.Errorf("build hierarchy: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	buildID, err := b.store.Rebuild(ctx, snap)
	if err != nil {
		return Result{}, fmt.Errorf("persist hierarchy: %w", err)
	}

	if b.index != nil {
		coords := make(map[string]orb.Point, len(snap.Points))
		for _, p := range snap.Points {
			coords[p.ID] = p.Coord()
		}
		b.index.Load(snap.Index, coords)
	}

	b.log.Info("hierarchy built",
		"build_id", buildID,
		"points", humanize.Comma(int64(len(snap.Points))),
		"aggregates", humanize.Comma(int64(len(snap.Aggregates))),
		"edges", humanize.Comma(int64(len(snap.Edges))),
		"took", time.Since(start),
	)
	return Result{BuildID: buildID, Snapshot: snap}, nil
}
