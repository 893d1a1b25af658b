package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/royalcat/hgeoroute/geomodel"
)

// Precomputed returns the stored short-hop distance between a and b.
func (s *Store) Precomputed(ctx context.Context, a, b string) (float64, bool, error) {
	var km float64
	err := s.db.QueryRowContext(ctx,
		"SELECT distance_km FROM precomputed_distances WHERE point_a = ? AND point_b = ?", a, b,
	).Scan(&km)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read precomputed %s-%s: %w", a, b, err)
	}
	return km, true, nil
}

// NearestPrecomputed returns up to limit stored hops starting at id, nearest
// first.
func (s *Store) NearestPrecomputed(ctx context.Context, id string, limit int) ([]geomodel.PrecomputedDistance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT point_a, point_b, distance_km FROM precomputed_distances
		WHERE point_a = ? ORDER BY distance_km, point_b LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest of %s: %w", id, err)
	}
	defer rows.Close()

	var out []geomodel.PrecomputedDistance
	for rows.Next() {
		var d geomodel.PrecomputedDistance
		if err := rows.Scan(&d.A, &d.B, &d.Km); err != nil {
			return nil, fmt.Errorf("scan precomputed: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReplacePrecomputed swaps the whole distance table in one transaction. Each
// pair is written in both orderings. Cached routes are dropped too, they may
// have been computed without the new hops.
func (s *Store) ReplacePrecomputed(ctx context.Context, pairs []geomodel.PrecomputedDistance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin precomputed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM precomputed_distances"); err != nil {
		return fmt.Errorf("clear precomputed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM route_cache"); err != nil {
		return fmt.Errorf("clear route cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO precomputed_distances (point_a, point_b, distance_km) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare precomputed: %w", err)
	}
	defer stmt.Close()

	for _, d := range pairs {
		if _, err := stmt.ExecContext(ctx, d.A, d.B, d.Km); err != nil {
			return fmt.Errorf("insert precomputed %s-%s: %w", d.A, d.B, err)
		}
		if _, err := stmt.ExecContext(ctx, d.B, d.A, d.Km); err != nil {
			return fmt.Errorf("insert precomputed %s-%s: %w", d.B, d.A, err)
		}
	}
	return tx.Commit()
}
