// Package store is the persistence adapter for the core tracking
// engine: a thin sqlite-backed implementation of the three tables the
// control plane reads operator-authored configuration from. It exists
// so cmd/server has somewhere durable to
// keep map geometry, a map's baked collision field, and arbitrary
// key/typed config values across restarts — the tracking engine itself
// only ever sees the decoded world.GeometryConfig / world.DistanceField
// these produce.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MapConfigEntry is one row of the map_config table: an operator-named
// map with its geometry configuration stored as JSON.
type MapConfigEntry struct {
	MapKey      string
	Description string
	Config      json.RawMessage
}

// ConfigEntry is one row of the config table: a (key, type) pair with a
// human description and a JSON-encoded value.
type ConfigEntry struct {
	Key         string
	Type        string
	Description string
	Value       json.RawMessage
}

// MapConfigStore persists named map geometry configurations.
type MapConfigStore interface {
	PutMapConfig(ctx context.Context, e MapConfigEntry) error
	GetMapConfig(ctx context.Context, mapKey string) (MapConfigEntry, error)
	ListMapConfigs(ctx context.Context) ([]MapConfigEntry, error)
	DeleteMapConfig(ctx context.Context, mapKey string) error
}

// CollisionStore persists a map's baked distance-field PNG (world.EncodePNG
// output) so it need not be rebuilt on every restart.
type CollisionStore interface {
	PutCollisionData(ctx context.Context, mapKey string, data []byte) error
	GetCollisionData(ctx context.Context, mapKey string) ([]byte, error)
	DeleteCollisionData(ctx context.Context, mapKey string) error
}

// ConfigStore persists arbitrary typed configuration values, keyed by
// (key, type) — e.g. a "default" signal.ModelConfig under type "signal_model".
type ConfigStore interface {
	PutConfig(ctx context.Context, e ConfigEntry) error
	GetConfig(ctx context.Context, key, typ string) (ConfigEntry, error)
	ListConfig(ctx context.Context, typ string) ([]ConfigEntry, error)
	DeleteConfig(ctx context.Context, key, typ string) error
}

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// Store is the default modernc.org/sqlite-backed implementation of
// MapConfigStore, CollisionStore, and ConfigStore (ground: JKI757
// go-mqtt-server/internal/store.Store's Open/InitSchema/single-file
// shape).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path))
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS map_config (
			map_key TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			config TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS collision_data (
			map_id TEXT PRIMARY KEY REFERENCES map_config(map_key) ON DELETE CASCADE,
			data BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			value TEXT NOT NULL,
			UNIQUE(key, type)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

// PutMapConfig inserts or replaces a map_config row.
func (s *Store) PutMapConfig(ctx context.Context, e MapConfigEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO map_config (map_key, description, config) VALUES (?, ?, ?)
		 ON CONFLICT(map_key) DO UPDATE SET description = excluded.description, config = excluded.config;`,
		e.MapKey, e.Description, string(e.Config))
	if err != nil {
		return fmt.Errorf("store: put map config %q: %w", e.MapKey, err)
	}
	return nil
}

// GetMapConfig looks up a map_config row by key.
func (s *Store) GetMapConfig(ctx context.Context, mapKey string) (MapConfigEntry, error) {
	var e MapConfigEntry
	var cfg string
	err := s.db.QueryRowContext(ctx,
		`SELECT map_key, description, config FROM map_config WHERE map_key = ?;`, mapKey,
	).Scan(&e.MapKey, &e.Description, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return MapConfigEntry{}, ErrNotFound
	}
	if err != nil {
		return MapConfigEntry{}, fmt.Errorf("store: get map config %q: %w", mapKey, err)
	}
	e.Config = json.RawMessage(cfg)
	return e, nil
}

// ListMapConfigs returns every map_config row.
func (s *Store) ListMapConfigs(ctx context.Context) ([]MapConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT map_key, description, config FROM map_config ORDER BY map_key;`)
	if err != nil {
		return nil, fmt.Errorf("store: list map configs: %w", err)
	}
	defer rows.Close()

	var out []MapConfigEntry
	for rows.Next() {
		var e MapConfigEntry
		var cfg string
		if err := rows.Scan(&e.MapKey, &e.Description, &cfg); err != nil {
			return nil, fmt.Errorf("store: scan map config: %w", err)
		}
		e.Config = json.RawMessage(cfg)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteMapConfig removes a map_config row (cascading to its collision data).
func (s *Store) DeleteMapConfig(ctx context.Context, mapKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM map_config WHERE map_key = ?;`, mapKey); err != nil {
		return fmt.Errorf("store: delete map config %q: %w", mapKey, err)
	}
	return nil
}

// PutCollisionData inserts or replaces a map's baked distance-field PNG.
func (s *Store) PutCollisionData(ctx context.Context, mapKey string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collision_data (map_id, data) VALUES (?, ?)
		 ON CONFLICT(map_id) DO UPDATE SET data = excluded.data;`,
		mapKey, data)
	if err != nil {
		return fmt.Errorf("store: put collision data %q: %w", mapKey, err)
	}
	return nil
}

// GetCollisionData retrieves a map's baked distance-field PNG.
func (s *Store) GetCollisionData(ctx context.Context, mapKey string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM collision_data WHERE map_id = ?;`, mapKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get collision data %q: %w", mapKey, err)
	}
	return data, nil
}

// DeleteCollisionData removes a map's baked distance-field PNG.
func (s *Store) DeleteCollisionData(ctx context.Context, mapKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collision_data WHERE map_id = ?;`, mapKey); err != nil {
		return fmt.Errorf("store: delete collision data %q: %w", mapKey, err)
	}
	return nil
}

// PutConfig inserts or replaces a (key, type) config row.
func (s *Store) PutConfig(ctx context.Context, e ConfigEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config (key, type, description, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key, type) DO UPDATE SET description = excluded.description, value = excluded.value;`,
		e.Key, e.Type, e.Description, string(e.Value))
	if err != nil {
		return fmt.Errorf("store: put config %q/%q: %w", e.Key, e.Type, err)
	}
	return nil
}

// GetConfig looks up a single (key, type) config row.
func (s *Store) GetConfig(ctx context.Context, key, typ string) (ConfigEntry, error) {
	var e ConfigEntry
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT key, type, description, value FROM config WHERE key = ? AND type = ?;`, key, typ,
	).Scan(&e.Key, &e.Type, &e.Description, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return ConfigEntry{}, ErrNotFound
	}
	if err != nil {
		return ConfigEntry{}, fmt.Errorf("store: get config %q/%q: %w", key, typ, err)
	}
	e.Value = json.RawMessage(value)
	return e, nil
}

// ListConfig returns every config row of the given type.
func (s *Store) ListConfig(ctx context.Context, typ string) ([]ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, type, description, value FROM config WHERE type = ? ORDER BY key;`, typ)
	if err != nil {
		return nil, fmt.Errorf("store: list config %q: %w", typ, err)
	}
	defer rows.Close()

	var out []ConfigEntry
	for rows.Next() {
		var e ConfigEntry
		var value string
		if err := rows.Scan(&e.Key, &e.Type, &e.Description, &value); err != nil {
			return nil, fmt.Errorf("store: scan config: %w", err)
		}
		e.Value = json.RawMessage(value)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteConfig removes a (key, type) config row.
func (s *Store) DeleteConfig(ctx context.Context, key, typ string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM config WHERE key = ? AND type = ?;`, key, typ); err != nil {
		return fmt.Errorf("store: delete config %q/%q: %w", key, typ, err)
	}
	return nil
}
