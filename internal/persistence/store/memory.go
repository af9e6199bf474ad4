package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tidehunt.io/internal/persistence/snapshot"
	"tidehunt.io/internal/sim/game"
)

// Memory is an in-process Store and ActionQueue for tests. Snapshots are
// kept in encoded form so Load always returns an independent copy, the
// same way a real store would.
type Memory struct {
	mu      sync.Mutex
	games   map[string]snapshot.GameV1
	actions []memAction
	nextID  int
}

type memAction struct {
	PendingAction
	Status string
	Error  string
}

func NewMemory() *Memory {
	return &Memory{games: map[string]snapshot.GameV1{}}
}

func (m *Memory) Load(_ context.Context, gameID string) (*game.State, error) {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return g.ToState()
}

func (m *Memory) Save(_ context.Context, s *game.State) error {
	g := snapshot.FromState(s)
	m.mu.Lock()
	m.games[s.GameID] = g
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	delete(m.games, gameID)
	kept := m.actions[:0]
	for _, a := range m.actions {
		if a.GameID != gameID {
			kept = append(kept, a)
		}
	}
	m.actions = kept
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.games))
	for id, g := range m.games {
		out = append(out, Summary{
			GameID:      id,
			Status:      game.Status(g.Status),
			CurrentTurn: g.CurrentTurn,
			PlayerCount: len(g.Players),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].GameID < out[j].GameID
	})
	return out, nil
}

func (m *Memory) Submit(_ context.Context, a PendingAction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		m.nextID++
		a.ID = fmt.Sprintf("a%06d", m.nextID)
	}
	m.actions = append(m.actions, memAction{PendingAction: a, Status: ActionPending})
	return a.ID, nil
}

func (m *Memory) FetchPending(_ context.Context, gameID string, limit int) ([]PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingAction
	for _, a := range m.actions {
		if a.GameID == gameID && a.Status == ActionPending {
			out = append(out, a.PendingAction)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAtMs != out[j].SubmittedAtMs {
			return out[i].SubmittedAtMs < out[j].SubmittedAtMs
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkProcessed(_ context.Context, actionID string) error {
	return m.mark(actionID, ActionProcessed, "")
}

func (m *Memory) MarkFailed(_ context.Context, actionID, reason string) error {
	return m.mark(actionID, ActionFailed, reason)
}

func (m *Memory) mark(actionID, status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.actions {
		if m.actions[i].ID == actionID {
			m.actions[i].Status = status
			m.actions[i].Error = reason
			return nil
		}
	}
	return fmt.Errorf("action %s not found", actionID)
}

// ActionStatus reports the stored status of a queued action (test hook).
func (m *Memory) ActionStatus(actionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.actions {
		if a.ID == actionID {
			return a.Status
		}
	}
	return ""
}
