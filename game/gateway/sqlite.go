package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wricardo/codequest/game/overrides"
)

// SQLiteStore is the durable Backend used by the server.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection serialises writers, which the merge relies on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			player TEXT PRIMARY KEY,
			level INTEGER NOT NULL,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS overrides (
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			layer TEXT NOT NULL,
			blocking INTEGER NOT NULL,
			PRIMARY KEY (world, x, y, layer)
		);`,
		`CREATE TABLE IF NOT EXISTS completions (
			id TEXT NOT NULL,
			player TEXT NOT NULL,
			quest_id TEXT NOT NULL,
			xp INTEGER NOT NULL,
			coins INTEGER NOT NULL,
			badge TEXT NOT NULL,
			completed_at INTEGER NOT NULL,
			PRIMARY KEY (player, quest_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, player string) (*Snapshot, error) {
	if err := checkID(player); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE player = ?`, player).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return Decode(raw), nil
}

// SaveSnapshot merges inside a transaction so out-of-order saves are
// resolved against the latest stored row.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, player string, snap Snapshot) error {
	if err := checkID(player); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE player = ?`, player).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	data, merged, err := mergeEncoded(stored, snap)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO snapshots (player, level, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(player) DO UPDATE SET level = excluded.level, data = excluded.data, updated_at = excluded.updated_at`,
		player, int64(merged.Level), data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, player string) error {
	if err := checkID(player); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE player = ?`, player); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadOverrides(ctx context.Context, world string) (map[overrides.TileKey]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x, y, layer, blocking FROM overrides WHERE world = ?`, world)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[overrides.TileKey]bool)
	for rows.Next() {
		var k overrides.TileKey
		var blocking bool
		if err := rows.Scan(&k.X, &k.Y, &k.Layer, &blocking); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		out[k] = blocking
	}
	return out, rows.Err()
}

// SaveOverrides replaces every override of the world.
func (s *SQLiteStore) SaveOverrides(ctx context.Context, world string, entries map[overrides.TileKey]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM overrides WHERE world = ?`, world); err != nil {
		return fmt.Errorf("failed to clear overrides: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO overrides (world, x, y, layer, blocking) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare: %w", err)
	}
	defer stmt.Close()
	for k, v := range entries {
		if _, err := stmt.ExecContext(ctx, world, k.X, k.Y, k.Layer, v); err != nil {
			return fmt.Errorf("failed to write override %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// RecordQuestCompletion keeps the first record per player and quest.
func (s *SQLiteStore) RecordQuestCompletion(ctx context.Context, player string, rec Completion) error {
	if err := checkID(player); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO completions (id, player, quest_id, xp, coins, badge, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, player, rec.QuestID, int64(rec.XP), int64(rec.Coins), rec.Badge, rec.CompletedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Completions(ctx context.Context, player string) ([]Completion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, quest_id, xp, coins, badge, completed_at FROM completions
		WHERE player = ? ORDER BY completed_at, quest_id`, player)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var out []Completion
	for rows.Next() {
		var c Completion
		var xp, coins, at int64
		if err := rows.Scan(&c.ID, &c.QuestID, &xp, &coins, &c.Badge, &at); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		c.XP, c.Coins = uint64(xp), uint64(coins)
		c.CompletedAt = time.UnixMilli(at).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Players(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT player FROM snapshots ORDER BY player`)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
