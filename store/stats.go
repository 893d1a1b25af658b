package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/royalcat/hgeoroute/geomodel"
)

// Stats counts the rows of every table.
func (s *Store) Stats(ctx context.Context) (geomodel.Stats, error) {
	st := geomodel.Stats{Aggregates: map[string]int64{}}

	var builtAt sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT build_id, built_at FROM build_info WHERE id = 1").Scan(&st.BuildID, &builtAt)
	if err != nil && err != sql.ErrNoRows {
		return st, fmt.Errorf("read build info: %w", err)
	}
	if builtAt.Valid {
		st.BuiltAt, _ = time.Parse(time.RFC3339Nano, builtAt.String)
	}

	counts := []struct {
		table string
		dst   *int64
	}{
		{"points", &st.Points},
		{"hierarchy_edges", &st.Edges},
		{"precomputed_distances", &st.Precomputed},
		{"route_cache", &st.CachedRoutes},
		{"quadtree_index", &st.IndexEntries},
	}
	for _, c := range counts {
		if err := s.count(ctx, c.table, c.dst); err != nil {
			return st, err
		}
	}

	for _, tier := range geomodel.AggregateTiers {
		var n int64
		if err := s.count(ctx, aggregateTables[tier], &n); err != nil {
			return st, err
		}
		st.Aggregates[tier.String()] = n
	}
	return st, nil
}

func (s *Store) count(ctx context.Context, table string, dst *int64) error {
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(dst); err != nil {
		return fmt.Errorf("count %s: %w", table, err)
	}
	return nil
}
