package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/royalcat/hgeoroute/geomodel"
)

// Snapshot is everything a hierarchy build writes.
type Snapshot struct {
	Points     []geomodel.Point
	Aggregates []geomodel.Aggregate
	Edges      []geomodel.Edge
	Index      []geomodel.IndexEntry
}

var rebuildTables = []string{
	"points",
	"clusters", "regions", "countries", "trade_blocks", "continents", "global_root",
	"hierarchy_edges",
	"precomputed_distances",
	"route_cache",
	"quadtree_index",
	"build_info",
}

// Rebuild replaces the whole dataset in one transaction and returns the new
// build id. Precomputed distances and cached routes of the previous build are
// dropped with it. On error nothing of the previous build is lost.
func (s *Store) Rebuild(ctx context.Context, snap Snapshot) (string, error) {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	for _, table := range rebuildTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return "", fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := insertPoints(ctx, tx, snap.Points); err != nil {
		return "", err
	}
	if err := insertAggregates(ctx, tx, snap.Aggregates); err != nil {
		return "", err
	}
	if err := insertEdges(ctx, tx, snap.Edges); err != nil {
		return "", err
	}
	if err := insertIndex(ctx, tx, snap.Index); err != nil {
		return "", err
	}

	buildID := uuid.NewString()
	_, err = tx.ExecContext(ctx, "INSERT INTO build_info (id, build_id, built_at) VALUES (1, ?, ?)",
		buildID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("stamp build: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit rebuild: %w", err)
	}

	s.log.Info("rebuild committed",
		"build_id", buildID,
		"points", humanize.Comma(int64(len(snap.Points))),
		"aggregates", humanize.Comma(int64(len(snap.Aggregates))),
		"edges", humanize.Comma(int64(len(snap.Edges))),
		"index_entries", humanize.Comma(int64(len(snap.Index))),
		"took", time.Since(start),
	)
	return buildID, nil
}

func insertPoints(ctx context.Context, tx *sql.Tx, points []geomodel.Point) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (id, name, country, lat, lng, cluster_id, region_id, country_id, trade_block_id, continent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare points: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Country, p.Lat, p.Lng,
			p.ClusterID, p.RegionID, p.CountryID, p.TradeBlockID, p.ContinentID)
		if err != nil {
			return fmt.Errorf("insert point %s: %w", p.ID, err)
		}
	}
	return nil
}

func insertAggregates(ctx context.Context, tx *sql.Tx, aggregates []geomodel.Aggregate) error {
	stmts := map[geomodel.Tier]*sql.Stmt{}
	defer func() {
		for _, stmt := range stmts {
			stmt.Close()
		}
	}()

	for _, a := range aggregates {
		stmt, ok := stmts[a.Tier]
		if !ok {
			table, err := aggregateTable(a.Tier)
			if err != nil {
				return err
			}
			stmt, err = tx.PrepareContext(ctx, "INSERT INTO "+table+
				" (id, label, parent_id, centroid_lat, centroid_lng) VALUES (?, ?, ?, ?, ?)")
			if err != nil {
				return fmt.Errorf("prepare %s: %w", table, err)
			}
			stmts[a.Tier] = stmt
		}
		if _, err := stmt.ExecContext(ctx, a.ID, a.Label, a.ParentID, a.Lat, a.Lng); err != nil {
			return fmt.Errorf("insert %s %d: %w", a.Tier, a.ID, err)
		}
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, edges []geomodel.Edge) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hierarchy_edges (level_name, source_id, source_type, target_id, target_type, weight, bidirectional)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edges: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		_, err := stmt.ExecContext(ctx, e.Level, e.SourceID, e.SourceTier.String(),
			e.TargetID, e.TargetTier.String(), e.Weight, e.Bidirectional)
		if err != nil {
			return fmt.Errorf("insert edge %s: %w", e.Level, err)
		}
	}
	return nil
}

func insertIndex(ctx context.Context, tx *sql.Tx, entries []geomodel.IndexEntry) error {
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO quadtree_index (point_id, quadkey, level) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare index: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.PointID, e.Key, e.Level); err != nil {
			return fmt.Errorf("insert index entry %s: %w", e.PointID, err)
		}
	}
	return nil
}

// BuildID returns the id of the last committed rebuild, empty if none.
func (s *Store) BuildID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT build_id FROM build_info WHERE id = 1").Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read build id: %w", err)
	}
	return id, nil
}
