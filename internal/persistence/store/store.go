package store

import (
	"context"
	"errors"

	"tidehunt.io/internal/sim/game"
)

// ErrNotFound is returned by Load for a game that does not exist.
var ErrNotFound = errors.New("game not found")

// Summary is the listing row for one stored game.
type Summary struct {
	GameID      string      `json:"gameId"`
	Status      game.Status `json:"status"`
	CurrentTurn int         `json:"currentTurn"`
	PlayerCount int         `json:"playerCount"`
}

// Store is the load/save/delete contract for complete world snapshots.
// The engine's transaction discipline is load full snapshot, mutate in
// memory, save full snapshot; implementations only need whole-value
// upsert semantics.
type Store interface {
	Load(ctx context.Context, gameID string) (*game.State, error)
	Save(ctx context.Context, s *game.State) error
	Delete(ctx context.Context, gameID string) error
	List(ctx context.Context) ([]Summary, error)
}

const (
	ActionPending   = "pending"
	ActionProcessed = "processed"
	ActionFailed    = "failed"
)

// PendingAction is one queued player command, written by the submission
// boundary and consumed by the tick's intake step.
type PendingAction struct {
	ID            string
	GameID        string
	PlayerID      string
	Type          string
	Payload       []byte
	SubmittedAtMs int64
}

// ActionQueue is the pending-action contract. FetchPending returns a
// bounded batch ordered by submission time ascending; the intake marks
// each row processed or failed afterwards, best effort.
type ActionQueue interface {
	Submit(ctx context.Context, a PendingAction) (string, error)
	FetchPending(ctx context.Context, gameID string, limit int) ([]PendingAction, error)
	MarkProcessed(ctx context.Context, actionID string) error
	MarkFailed(ctx context.Context, actionID, reason string) error
}
