package snapshot

import (
	"fmt"
	"sort"

	"tidehunt.io/internal/sim/game"
)

// FromState converts a live game state into its persisted form. Players
// and traps are written in a deterministic order.
func FromState(s *game.State) GameV1 {
	g := GameV1{
		Version:     Version,
		GameID:      s.GameID,
		Status:      string(s.Status),
		CurrentTurn: s.CurrentTurn,
		StartedAtMs: s.StartedAtMs,
		Settings:    s.Overrides,
	}

	ids := s.PlayerIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return s.Players[ids[i]].BaseIndex < s.Players[ids[j]].BaseIndex
	})
	for _, id := range ids {
		p := s.Players[id]
		g.Players = append(g.Players, PlayerV1{
			ID:        p.ID,
			Name:      p.Name,
			X:         p.Position.X,
			Y:         p.Position.Y,
			Energy:    p.Energy,
			Carried:   p.Carried,
			TrapCount: p.TrapCount,
			Score:     p.Score,
			AtBase:    p.AtBase,
			BaseIndex: p.BaseIndex,
		})
	}

	m := MapV1{
		Width:     s.Map.Width,
		Height:    s.Map.Height,
		Terrain:   copyGrid(s.Map.Terrain),
		Waves:     copyGrid(s.Map.Waves),
		Treasures: copyGrid(s.Map.Treasures),
		Owners:    copyStrGrid(s.Map.Owners),
	}
	for _, b := range s.Map.Bases {
		m.Bases = append(m.Bases, [2]int{b.X, b.Y})
	}
	trapPositions := make([]game.Position, 0, len(s.Map.Traps))
	for pos := range s.Map.Traps {
		trapPositions = append(trapPositions, pos)
	}
	sort.Slice(trapPositions, func(i, j int) bool {
		a, b := trapPositions[i], trapPositions[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	for _, pos := range trapPositions {
		tr := s.Map.Traps[pos]
		m.Traps = append(m.Traps, TrapV1{
			Owner:       tr.Owner,
			X:           pos.X,
			Y:           pos.Y,
			Danger:      tr.Danger,
			CreatedAtMs: tr.CreatedAtMs,
		})
	}
	g.Map = m
	return g
}

// ToState rebuilds a live state from its persisted form. Base assignment
// is taken verbatim from the snapshot; it is never re-derived here.
func (g GameV1) ToState() (*game.State, error) {
	if g.Version != Version {
		return nil, fmt.Errorf("snapshot version %d not supported", g.Version)
	}
	s := &game.State{
		GameID:      g.GameID,
		Status:      game.Status(g.Status),
		CurrentTurn: g.CurrentTurn,
		StartedAtMs: g.StartedAtMs,
		Overrides:   g.Settings,
		Players:     map[string]*game.Player{},
		Map: game.Map{
			Width:     g.Map.Width,
			Height:    g.Map.Height,
			Terrain:   copyGrid(g.Map.Terrain),
			Waves:     copyGrid(g.Map.Waves),
			Treasures: copyGrid(g.Map.Treasures),
			Traps:     map[game.Position]game.Trap{},
			Owners:    copyStrGrid(g.Map.Owners),
		},
	}
	for _, b := range g.Map.Bases {
		s.Map.Bases = append(s.Map.Bases, game.Position{X: b[0], Y: b[1]})
	}
	for _, p := range g.Players {
		if _, ok := s.Players[p.ID]; ok {
			return nil, fmt.Errorf("duplicate player %s in snapshot", p.ID)
		}
		if p.X < 0 || p.X >= g.Map.Width || p.Y < 0 || p.Y >= g.Map.Height {
			return nil, fmt.Errorf("player %s at (%d,%d) outside %dx%d map", p.ID, p.X, p.Y, g.Map.Width, g.Map.Height)
		}
		s.Players[p.ID] = &game.Player{
			ID:        p.ID,
			Name:      p.Name,
			Position:  game.Position{X: p.X, Y: p.Y},
			Energy:    p.Energy,
			Carried:   p.Carried,
			TrapCount: p.TrapCount,
			Score:     p.Score,
			AtBase:    p.AtBase,
			BaseIndex: p.BaseIndex,
		}
	}
	for _, tr := range g.Map.Traps {
		pos := game.Position{X: tr.X, Y: tr.Y}
		s.Map.Traps[pos] = game.Trap{
			Owner:       tr.Owner,
			Pos:         pos,
			Danger:      tr.Danger,
			CreatedAtMs: tr.CreatedAtMs,
		}
	}
	if s.Map.Owners == nil {
		s.RecomputeOwners()
	}
	return s, nil
}

func copyGrid(g [][]int) [][]int {
	if g == nil {
		return nil
	}
	out := make([][]int, len(g))
	for i, row := range g {
		out[i] = append([]int(nil), row...)
	}
	return out
}

func copyStrGrid(g [][]string) [][]string {
	if g == nil {
		return nil
	}
	out := make([][]string, len(g))
	for i, row := range g {
		out[i] = append([]string(nil), row...)
	}
	return out
}
