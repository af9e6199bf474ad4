package game

import "testing"

func TestShouldEnd_TurnLimit(t *testing.T) {
	s := testState(t)
	set := testSettings()
	set.MaxTurns = 5
	set.TimeLimitMs = 0

	s.CurrentTurn = 5
	if ShouldEnd(s, set, 0) {
		t.Fatalf("turn 5 of 5 must still play")
	}
	s.CurrentTurn = 6
	if !ShouldEnd(s, set, 0) {
		t.Fatalf("turn 6 of 5 must end the game")
	}
}

func TestShouldEnd_TreasureExhaustion(t *testing.T) {
	s := testState(t)
	set := testSettings()
	set.TimeLimitMs = 0

	if ShouldEnd(s, set, 0) {
		t.Fatalf("treasure remains, game must continue")
	}

	s.Map.Treasures[0][1] = 0
	s.Map.Treasures[3][3] = 0
	s.Players["p1"].Carried = 7
	if ShouldEnd(s, set, 0) {
		t.Fatalf("carried treasure still counts as remaining")
	}

	s.Players["p1"].Carried = 0
	if !ShouldEnd(s, set, 0) {
		t.Fatalf("no treasure left, game must end")
	}
}

func TestShouldEnd_TimeLimit(t *testing.T) {
	s := testState(t)
	set := testSettings()
	set.TimeLimitMs = 1000
	s.StartedAtMs = 5000

	if ShouldEnd(s, set, 5999) {
		t.Fatalf("limit not yet reached")
	}
	if !ShouldEnd(s, set, 6000) {
		t.Fatalf("limit reached, game must end")
	}
}
