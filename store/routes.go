package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/royalcat/hgeoroute/geomodel"
)

// CachedRoute returns the route stored for (start, end) by the current build.
// Entries stamped with an older build id are ignored.
func (s *Store) CachedRoute(ctx context.Context, start, end string) (geomodel.Route, bool, error) {
	var pathJSON, createdAt string
	r := geomodel.Route{Start: start, End: end}
	err := s.db.QueryRowContext(ctx, `
		SELECT rc.path_json, rc.distance_km, rc.created_at
		FROM route_cache rc JOIN build_info bi ON bi.id = 1 AND bi.build_id = rc.build_id
		WHERE rc.start_id = ? AND rc.end_id = ?`, start, end,
	).Scan(&pathJSON, &r.DistanceKm, &createdAt)
	if err == sql.ErrNoRows {
		return geomodel.Route{}, false, nil
	}
	if err != nil {
		return geomodel.Route{}, false, fmt.Errorf("read cached route %s-%s: %w", start, end, err)
	}

	if err := json.Unmarshal([]byte(pathJSON), &r.Path); err != nil {
		return geomodel.Route{}, false, fmt.Errorf("decode cached path %s-%s: %w", start, end, err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return r, true, nil
}

// CacheRoute writes through a computed route under the current build id.
func (s *Store) CacheRoute(ctx context.Context, r geomodel.Route) error {
	path, err := json.Marshal(r.Path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO route_cache (start_id, end_id, path_json, distance_km, build_id, created_at)
		SELECT ?, ?, ?, ?, COALESCE((SELECT build_id FROM build_info WHERE id = 1), ''), ?`,
		r.Start, r.End, string(path), r.DistanceKm, created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache route %s-%s: %w", r.Start, r.End, err)
	}
	return nil
}

func (s *Store) ClearRouteCache(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM route_cache"); err != nil {
		return fmt.Errorf("clear route cache: %w", err)
	}
	return nil
}
