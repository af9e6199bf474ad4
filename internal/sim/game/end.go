package game

import "tidehunt.io/internal/sim/tuning"

// ShouldEnd reports whether a game must transition to finished: the wall
// clock ran out, the turn counter passed the limit, or every treasure has
// been delivered to a score.
//
// The turn condition uses ">" so that a game with MaxTurns = 5 plays five
// full turns and finishes on the firing where the counter would become 6.
func ShouldEnd(s *State, set tuning.Settings, nowMs int64) bool {
	if set.TimeLimitMs > 0 && s.StartedAtMs > 0 && nowMs-s.StartedAtMs >= set.TimeLimitMs {
		return true
	}
	if set.MaxTurns > 0 && s.CurrentTurn > set.MaxTurns {
		return true
	}
	return s.TreasureRemaining() == 0
}
