package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tidehunt.io/internal/persistence/snapshot"
	"tidehunt.io/internal/sim/game"
)

// SQLite persists full game snapshots and the pending-action queue in a
// single database file. It implements both Store and ActionQueue.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
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
	return &SQLite{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps tick saves cheap while the action queue takes writes
	// from the submission boundary.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			game_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			current_turn INTEGER NOT NULL,
			player_count INTEGER NOT NULL,
			snapshot TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			action_id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			payload TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			submitted_at INTEGER NOT NULL,
			processed_at INTEGER,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_pending ON actions(game_id, status, submitted_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Load(ctx context.Context, gameID string) (*game.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM games WHERE game_id = ?`, gameID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var g snapshot.GameV1
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}
	return g.ToState()
}

func (s *SQLite) Save(ctx context.Context, st *game.State) error {
	g := snapshot.FromState(st)
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("game %s: %w", st.GameID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO games(game_id, status, current_turn, player_count, snapshot, updated_at)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(game_id) DO UPDATE SET
			status = excluded.status,
			current_turn = excluded.current_turn,
			player_count = excluded.player_count,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		st.GameID, string(st.Status), st.CurrentTurn, len(st.Players), string(raw), now)
	return err
}

func (s *SQLite) Delete(ctx context.Context, gameID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE game_id = ?`, gameID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE game_id = ?`, gameID)
	return err
}

func (s *SQLite) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, status, current_turn, player_count
		FROM games ORDER BY status ASC, updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var status string
		if err := rows.Scan(&sm.GameID, &status, &sm.CurrentTurn, &sm.PlayerCount); err != nil {
			return nil, err
		}
		sm.Status = game.Status(status)
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLite) Submit(ctx context.Context, a PendingAction) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SubmittedAtMs == 0 {
		a.SubmittedAtMs = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions(action_id, game_id, player_id, action_type, payload, status, submitted_at)
		VALUES(?,?,?,?,?,?,?)`,
		a.ID, a.GameID, a.PlayerID, a.Type, string(a.Payload), ActionPending, a.SubmittedAtMs)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

func (s *SQLite) FetchPending(ctx context.Context, gameID string, limit int) ([]PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action_id, game_id, player_id, action_type, payload, submitted_at
		FROM actions
		WHERE game_id = ? AND status = ?
		ORDER BY submitted_at ASC, action_id ASC
		LIMIT ?`, gameID, ActionPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingAction
	for rows.Next() {
		var a PendingAction
		var payload sql.NullString
		if err := rows.Scan(&a.ID, &a.GameID, &a.PlayerID, &a.Type, &payload, &a.SubmittedAtMs); err != nil {
			return nil, err
		}
		if payload.Valid {
			a.Payload = []byte(payload.String)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) MarkProcessed(ctx context.Context, actionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, processed_at = ? WHERE action_id = ?`,
		ActionProcessed, time.Now().UnixMilli(), actionID)
	return err
}

func (s *SQLite) MarkFailed(ctx context.Context, actionID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, processed_at = ?, error = ? WHERE action_id = ?`,
		ActionFailed, time.Now().UnixMilli(), reason, actionID)
	return err
}
