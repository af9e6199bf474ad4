package game

import (
	"testing"

	"tidehunt.io/internal/protocol"
	"tidehunt.io/internal/sim/tuning"
)

// recorder captures emitted events for assertions.
type recorder struct {
	events []protocol.Event
}

func (r *recorder) Emit(_ string, ev protocol.Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, ev := range r.events {
		if ev["type"] == typ {
			n++
		}
	}
	return n
}

func testSettings() tuning.Settings {
	return tuning.Resolve(tuning.Default(), nil)
}

// testState builds a 5x5 sea with an island at (2,2), treasure 4 at
// (1,0) and 7 at (3,3), and bases at (0,0) and (4,4) for players p1
// and p2.
func testState(t *testing.T) *State {
	t.Helper()
	mc := MapConfig{
		Width:  5,
		Height: 5,
		Terrain: [][]int{
			{0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0},
			{0, 0, Island, 0, 0},
			{0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0},
		},
		Treasures: [][]int{
			{0, 4, 0, 0, 0},
			{0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0},
			{0, 0, 0, 7, 0},
			{0, 0, 0, 0, 0},
		},
		Bases: []Position{{X: 0, Y: 0}, {X: 4, Y: 4}},
	}
	s, err := NewState("g1", mc, []PlayerInfo{{ID: "p1"}, {ID: "p2"}}, testSettings().MaxEnergy)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	s.Status = StatusPlaying
	return s
}

func TestNewState_PlacesPlayersAtBases(t *testing.T) {
	s := testState(t)
	p1 := s.Players["p1"]
	p2 := s.Players["p2"]
	if p1.Position != (Position{X: 0, Y: 0}) || p1.BaseIndex != 0 {
		t.Fatalf("p1 misplaced: %+v", p1)
	}
	if p2.Position != (Position{X: 4, Y: 4}) || p2.BaseIndex != 1 {
		t.Fatalf("p2 misplaced: %+v", p2)
	}
	if !p1.AtBase || !p2.AtBase {
		t.Fatalf("players must start at base")
	}
	if p1.Energy != testSettings().MaxEnergy {
		t.Fatalf("p1 energy = %d, want full", p1.Energy)
	}
}

func TestNewState_Rejections(t *testing.T) {
	mc := MapConfig{
		Width:     2,
		Height:    2,
		Terrain:   [][]int{{0, 0}, {0, 0}},
		Treasures: [][]int{{0, 0}, {0, 0}},
		Bases:     []Position{{X: 0, Y: 0}},
	}
	if _, err := NewState("g", mc, []PlayerInfo{{ID: "a"}, {ID: "b"}}, 100); err == nil {
		t.Fatalf("want error for more players than bases")
	}
	if _, err := NewState("g", mc, []PlayerInfo{{ID: "a"}, {ID: "a"}}, 100); err == nil {
		t.Fatalf("want error for duplicate player id")
	}
	bad := mc
	bad.Terrain = [][]int{{0, 0}}
	if _, err := NewState("g", bad, nil, 100); err == nil {
		t.Fatalf("want error for terrain row mismatch")
	}
}

func TestTreasureRemaining_CountsCarried(t *testing.T) {
	s := testState(t)
	if got := s.TreasureRemaining(); got != 11 {
		t.Fatalf("remaining = %d, want 11", got)
	}
	s.Map.Treasures[0][1] = 0
	s.Players["p1"].Carried = 4
	if got := s.TreasureRemaining(); got != 11 {
		t.Fatalf("remaining with carried = %d, want 11", got)
	}
	s.Players["p1"].Carried = 0
	s.Map.Treasures[3][3] = 0
	if got := s.TreasureRemaining(); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}
}

func TestRecomputeOwners_RebuildsFromScratch(t *testing.T) {
	s := testState(t)
	s.Map.Owners[2][3] = "ghost"
	s.RecomputeOwners()
	if s.Map.Owners[2][3] != "" {
		t.Fatalf("stale owner survived recompute")
	}
	if s.Map.Owners[0][0] != "p1" || s.Map.Owners[4][4] != "p2" {
		t.Fatalf("owners not rebuilt: %v", s.Map.Owners)
	}
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("p1", "move", 10, []byte(`{"target":{"x":1,"y":2}}`))
	if err != nil {
		t.Fatalf("parse move: %v", err)
	}
	if a.Target != (Position{X: 1, Y: 2}) {
		t.Fatalf("target = %+v", a.Target)
	}

	if _, err := ParseAction("p1", "move", 10, []byte(`{}`)); err == nil {
		t.Fatalf("want error for missing target")
	}
	if _, err := ParseAction("p1", "trap", 10, []byte(`{"position":{"x":1,"y":1},"danger":0}`)); err == nil {
		t.Fatalf("want error for danger 0")
	}
	if _, err := ParseAction("p1", "dance", 10, []byte(`{}`)); err == nil {
		t.Fatalf("want error for unknown type")
	}
	if _, err := ParseAction("p1", "rest", 10, nil); err != nil {
		t.Fatalf("parse rest: %v", err)
	}
}

func TestScores_SortedBestFirst(t *testing.T) {
	s := testState(t)
	s.Players["p1"].Score = 3
	s.Players["p2"].Score = 9
	scores := s.Scores()
	if len(scores) != 2 || scores[0].PlayerID != "p2" || scores[1].PlayerID != "p1" {
		t.Fatalf("scores = %+v", scores)
	}
}
