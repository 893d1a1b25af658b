package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
)

const pointColumns = "id, name, country, lat, lng, cluster_id, region_id, country_id, trade_block_id, continent_id"

type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(row scanner) (geomodel.Point, error) {
	var p geomodel.Point
	err := row.Scan(&p.ID, &p.Name, &p.Country, &p.Lat, &p.Lng,
		&p.ClusterID, &p.RegionID, &p.CountryID, &p.TradeBlockID, &p.ContinentID)
	return p, err
}

func (s *Store) queryPoints(ctx context.Context, query string, args ...any) ([]geomodel.Point, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []geomodel.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Points returns every point ordered by id.
func (s *Store) Points(ctx context.Context) ([]geomodel.Point, error) {
	return s.queryPoints(ctx, "SELECT "+pointColumns+" FROM points ORDER BY id")
}

func (s *Store) Point(ctx context.Context, id string) (geomodel.Point, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+pointColumns+" FROM points WHERE id = ?", id)
	p, err := scanPoint(row)
	if err == sql.ErrNoRows {
		return geomodel.Point{}, fmt.Errorf("point %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return geomodel.Point{}, fmt.Errorf("read point %s: %w", id, err)
	}
	return p, nil
}

// PointsByIDs returns the points in the order of ids. Unknown ids are an
// ErrNotFound error.
func (s *Store) PointsByIDs(ctx context.Context, ids []string) ([]geomodel.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byID := make(map[string]geomodel.Point, len(ids))
	// SQLite caps bound parameters, stay well below it
	const chunk = 500
	for lo := 0; lo < len(ids); lo += chunk {
		part := ids[lo:min(lo+chunk, len(ids))]
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}
		query := "SELECT " + pointColumns + " FROM points WHERE id IN (" +
			strings.TrimSuffix(strings.Repeat("?,", len(part)), ",") + ")"
		points, err := s.queryPoints(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			byID[p.ID] = p
		}
	}

	out := make([]geomodel.Point, len(ids))
	for i, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("point %s: %w", id, ErrNotFound)
		}
		out[i] = p
	}
	return out, nil
}

// PointsInBound scans the lat/lng index directly. Invalid boxes give an empty
// result.
func (s *Store) PointsInBound(ctx context.Context, b orb.Bound) ([]geomodel.Point, error) {
	if !geo.BoundValid(b) {
		return nil, nil
	}
	return s.queryPoints(ctx, "SELECT "+pointColumns+" FROM points WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ? ORDER BY id",
		b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
}

// IndexEntries returns the persisted quadrant index.
func (s *Store) IndexEntries(ctx context.Context) ([]geomodel.IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT point_id, quadkey, level FROM quadtree_index ORDER BY level, quadkey, point_id")
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var out []geomodel.IndexEntry
	for rows.Next() {
		var e geomodel.IndexEntry
		if err := rows.Scan(&e.PointID, &e.Key, &e.Level); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
