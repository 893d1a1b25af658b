// Package store persists the built hierarchy, the short-hop distances, the
// quadrant index and the route cache in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/royalcat/hgeoroute/geomodel"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the database file at path and migrates it.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return open(ctx, db, log)
}

// OpenMemory opens a private in-memory database. It is pinned to a single
// connection, every new connection would see an empty database.
func OpenMemory(ctx context.Context, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return open(ctx, db, log)
}

func open(ctx context.Context, db *sql.DB, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db, log: log.With("component", "store")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	version := 0
	// schema_version does not exist on a fresh file
	_ = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		if _, err := s.db.ExecContext(ctx, schemaV1); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		s.log.Info("applied migration", "version", 1)
	}
	return nil
}

var aggregateTables = map[geomodel.Tier]string{
	geomodel.TierCluster:    "clusters",
	geomodel.TierRegion:     "regions",
	geomodel.TierCountry:    "countries",
	geomodel.TierTradeBlock: "trade_blocks",
	geomodel.TierContinent:  "continents",
	geomodel.TierRoot:       "global_root",
}

func aggregateTable(tier geomodel.Tier) (string, error) {
	table, ok := aggregateTables[tier]
	if !ok {
		return "", fmt.Errorf("tier %s has no aggregate table", tier)
	}
	return table, nil
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS build_info (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	build_id TEXT NOT NULL,
	built_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS points (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	country        TEXT NOT NULL,
	lat            REAL NOT NULL,
	lng            REAL NOT NULL,
	cluster_id     INTEGER NOT NULL,
	region_id      INTEGER NOT NULL,
	country_id     INTEGER NOT NULL,
	trade_block_id INTEGER NOT NULL,
	continent_id   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_points_lat_lng ON points(lat, lng);

CREATE TABLE IF NOT EXISTS clusters (
	id INTEGER PRIMARY KEY, label TEXT NOT NULL, parent_id INTEGER NOT NULL,
	centroid_lat REAL NOT NULL, centroid_lng REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS regions (
	id INTEGER PRIMARY KEY, label TEXT NOT NULL, parent_id INTEGER NOT NULL,
	centroid_lat REAL NOT NULL, centroid_lng REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS countries (
	id INTEGER PRIMARY KEY, label TEXT NOT NULL, parent_id INTEGER NOT NULL,
	centroid_lat REAL NOT NULL, centroid_lng REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS trade_blocks (
	id INTEGER PRIMARY KEY, label TEXT NOT NULL, parent_id INTEGER NOT NULL,
	centroid_lat REAL NOT NULL, centroid_lng REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS continents (
	id INTEGER PRIMARY KEY, label TEXT NOT NULL, parent_id INTEGER NOT NULL,
	centroid_lat REAL NOT NULL, centroid_lng REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS global_root (
	id INTEGER PRIMARY KEY, label TEXT NOT NULL, parent_id INTEGER NOT NULL,
	centroid_lat REAL NOT NULL, centroid_lng REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS hierarchy_edges (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	level_name    TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	source_type   TEXT NOT NULL,
	target_id     TEXT NOT NULL,
	target_type   TEXT NOT NULL,
	weight        REAL NOT NULL DEFAULT 0,
	bidirectional INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON hierarchy_edges(source_type, source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON hierarchy_edges(target_type, target_id);

CREATE TABLE IF NOT EXISTS precomputed_distances (
	point_a     TEXT NOT NULL,
	point_b     TEXT NOT NULL,
	distance_km REAL NOT NULL,
	PRIMARY KEY (point_a, point_b)
);
CREATE INDEX IF NOT EXISTS idx_precomputed_nearest ON precomputed_distances(point_a, distance_km);

CREATE TABLE IF NOT EXISTS route_cache (
	start_id    TEXT NOT NULL,
	end_id      TEXT NOT NULL,
	path_json   TEXT NOT NULL,
	distance_km REAL NOT NULL,
	build_id    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (start_id, end_id)
);

CREATE TABLE IF NOT EXISTS quadtree_index (
	point_id TEXT NOT NULL,
	quadkey  TEXT NOT NULL,
	level    INTEGER NOT NULL,
	PRIMARY KEY (level, quadkey, point_id)
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`
