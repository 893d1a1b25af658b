package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/royalcat/hgeoroute/geomodel"
)

func (s *Store) Aggregate(ctx context.Context, tier geomodel.Tier, id int64) (geomodel.Aggregate, error) {
	table, err := aggregateTable(tier)
	if err != nil {
		return geomodel.Aggregate{}, err
	}

	a := geomodel.Aggregate{Tier: tier}
	err = s.db.QueryRowContext(ctx,
		"SELECT id, label, parent_id, centroid_lat, centroid_lng FROM "+table+" WHERE id = ?", id,
	).Scan(&a.ID, &a.Label, &a.ParentID, &a.Lat, &a.Lng)
	if err == sql.ErrNoRows {
		return geomodel.Aggregate{}, fmt.Errorf("%s %d: %w", tier, id, ErrNotFound)
	}
	if err != nil {
		return geomodel.Aggregate{}, fmt.Errorf("read %s %d: %w", tier, id, err)
	}
	return a, nil
}

// Aggregates lists a whole tier ordered by id.
func (s *Store) Aggregates(ctx context.Context, tier geomodel.Tier) ([]geomodel.Aggregate, error) {
	table, err := aggregateTable(tier)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, label, parent_id, centroid_lat, centroid_lng FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []geomodel.Aggregate
	for rows.Next() {
		a := geomodel.Aggregate{Tier: tier}
		if err := rows.Scan(&a.ID, &a.Label, &a.ParentID, &a.Lat, &a.Lng); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EdgesOf returns every hierarchy edge touching the node, in either direction.
func (s *Store) EdgesOf(ctx context.Context, key geomodel.NodeKey) ([]geomodel.Edge, error) {
	tier := key.Tier.String()
	rows, err := s.db.QueryContext(ctx, `
		SELECT level_name, source_id, source_type, target_id, target_type, weight, bidirectional
		FROM hierarchy_edges
		WHERE (source_type = ? AND source_id = ?) OR (target_type = ? AND target_id = ?)
		ORDER BY id`, tier, key.ID, tier, key.ID)
	if err != nil {
		return nil, fmt.Errorf("query edges of %s: %w", key, err)
	}
	defer rows.Close()

	var out []geomodel.Edge
	for rows.Next() {
		var e geomodel.Edge
		var sourceTier, targetTier string
		if err := rows.Scan(&e.Level, &e.SourceID, &sourceTier, &e.TargetID, &targetTier, &e.Weight, &e.Bidirectional); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		var ok bool
		if e.SourceTier, ok = geomodel.ParseTier(sourceTier); !ok {
			return nil, fmt.Errorf("edge with unknown source tier %q", sourceTier)
		}
		if e.TargetTier, ok = geomodel.ParseTier(targetTier); !ok {
			return nil, fmt.Errorf("edge with unknown target tier %q", targetTier)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
