package game

import (
	"sort"

	"tidehunt.io/internal/protocol"
	"tidehunt.io/internal/sim/tuning"
)

// Turn applies one tick's queued actions to a state. Actions are applied
// strictly in submission order; a player rammed by a collision earlier in
// the same tick has every later action skipped.
type Turn struct {
	State  *State
	Set    tuning.Settings
	Notify Notifier
	NowMs  int64

	rammed map[string]bool
	acted  map[string]bool
}

func NewTurn(s *State, set tuning.Settings, n Notifier, nowMs int64) *Turn {
	if n == nil {
		n = NopNotifier{}
	}
	return &Turn{
		State:  s,
		Set:    set,
		Notify: n,
		NowMs:  nowMs,
		rammed: map[string]bool{},
		acted:  map[string]bool{},
	}
}

// ApplyAll sorts actions by submission time and applies them in order.
func (t *Turn) ApplyAll(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].SubmittedAtMs < actions[j].SubmittedAtMs
	})
	for _, a := range actions {
		t.Apply(a)
	}
}

func (t *Turn) Apply(a Action) {
	if t.rammed[a.PlayerID] {
		return
	}
	p := t.State.Players[a.PlayerID]
	if p == nil {
		return
	}
	t.acted[a.PlayerID] = true
	switch a.Type {
	case ActionMove:
		t.move(p, a.Target)
	case ActionTrap:
		t.placeTrap(p, a.TrapPos, a.Danger)
	case ActionRest:
		t.rest(p)
	}
}

// RestoreIdle restores energy for every player that neither acted this
// tick nor sits at a base.
func (t *Turn) RestoreIdle() {
	for _, id := range t.State.PlayerIDs() {
		p := t.State.Players[id]
		if t.acted[id] || p.AtBase {
			continue
		}
		p.Energy = minInt(p.Energy+t.Set.EnergyRestore, t.Set.MaxEnergy)
		t.emit(protocol.EnergyChanged(t.State.GameID, id, p.Energy))
	}
}

// Rammed reports whether a player was forcibly relocated this tick.
func (t *Turn) Rammed(playerID string) bool { return t.rammed[playerID] }

func (t *Turn) move(p *Player, target Position) {
	m := &t.State.Map
	if !m.InBounds(target) || m.IsIsland(target) || t.State.IsEnemyBase(target, p.ID) {
		return
	}
	cost := m.WaveCost(target)
	if p.Energy < cost {
		return
	}

	if victim := t.State.PlayerAt(target); victim != nil && victim.ID != p.ID {
		t.collide(p, victim)
		// The attacker completes the move into the vacated cell. The cell
		// was not "arrived at" in the normal sense, so no trap or treasure
		// checks run for the mover this action.
		p.Position = target
		p.Energy -= cost
		p.AtBase = m.IsBase(target)
		t.emit(protocol.PlayerMoved(t.State.GameID, p.ID, target.X, target.Y))
		t.emit(protocol.EnergyChanged(t.State.GameID, p.ID, p.Energy))
		return
	}

	p.Position = target
	p.Energy -= cost
	p.AtBase = m.IsBase(target)

	t.triggerTrap(p, target)

	if v := m.TreasureAt(target); v > 0 && p.Carried == 0 {
		p.Carried = v
		m.Treasures[target.Y][target.X] = 0
		t.emit(protocol.TreasureCollected(t.State.GameID, p.ID, v, target.X, target.Y))
	}

	if p.AtBase {
		if p.Carried > 0 {
			p.Score += p.Carried
			t.emit(protocol.ScoreChanged(t.State.GameID, p.ID, p.Score))
			t.emit(protocol.TreasureDropped(t.State.GameID, p.ID))
			p.Carried = 0
		}
		p.Energy = t.Set.MaxEnergy
	}

	t.emit(protocol.PlayerMoved(t.State.GameID, p.ID, target.X, target.Y))
	t.emit(protocol.EnergyChanged(t.State.GameID, p.ID, p.Energy))
}

// collide relocates the victim to their own base with full energy and
// transfers any carried treasure to the attacker. The victim never
// scores it; only delivering while carrying scores.
func (t *Turn) collide(attacker, victim *Player) {
	base := t.State.Map.BaseOf(victim)
	victim.Position = base
	victim.Energy = t.Set.MaxEnergy
	victim.AtBase = true
	t.rammed[victim.ID] = true

	if victim.Carried > 0 {
		attacker.Carried += victim.Carried
		victim.Carried = 0
		t.emit(protocol.CarriedChanged(t.State.GameID, victim.ID, 0))
		t.emit(protocol.CarriedChanged(t.State.GameID, attacker.ID, attacker.Carried))
	}

	t.emit(protocol.Collision(t.State.GameID, attacker.ID, victim.ID))
	t.emit(protocol.PlayerMoved(t.State.GameID, victim.ID, base.X, base.Y))
}

func (t *Turn) placeTrap(p *Player, pos Position, danger int) {
	if !t.Set.EnableTraps {
		return
	}
	if danger > t.Set.MaxTrapDanger || p.Energy <= danger {
		return
	}
	// Traps can only be dropped underfoot.
	if pos != p.Position {
		return
	}
	m := &t.State.Map
	if !m.InBounds(pos) || m.IsIsland(pos) || m.TreasureAt(pos) > 0 || m.IsBase(pos) {
		return
	}
	if other := t.State.PlayerAt(pos); other != nil && other.ID != p.ID {
		return
	}

	if existing, ok := m.Traps[pos]; ok && existing.Owner == p.ID {
		// Refresh only: danger and timestamp change, count and energy do not.
		existing.Danger = danger
		existing.CreatedAtMs = t.NowMs
		m.Traps[pos] = existing
		t.emit(protocol.TrapPlaced(t.State.GameID, p.ID, pos.X, pos.Y, danger))
		return
	}

	if t.State.TrapCountFor(p.ID) >= t.Set.MaxTrapsPerPlayer {
		t.evictOldestTrap(p.ID)
	}

	m.Traps[pos] = Trap{Owner: p.ID, Pos: pos, Danger: danger, CreatedAtMs: t.NowMs}
	p.TrapCount = t.State.TrapCountFor(p.ID)
	p.Energy -= danger
	t.emit(protocol.TrapPlaced(t.State.GameID, p.ID, pos.X, pos.Y, danger))
	t.emit(protocol.EnergyChanged(t.State.GameID, p.ID, p.Energy))
}

func (t *Turn) evictOldestTrap(playerID string) {
	var oldestPos Position
	var oldest *Trap
	for pos, tr := range t.State.Map.Traps {
		if tr.Owner != playerID {
			continue
		}
		tr := tr
		if oldest == nil || tr.CreatedAtMs < oldest.CreatedAtMs ||
			(tr.CreatedAtMs == oldest.CreatedAtMs && lessPos(pos, oldestPos)) {
			oldest = &tr
			oldestPos = pos
		}
	}
	if oldest == nil {
		return
	}
	delete(t.State.Map.Traps, oldestPos)
	t.emit(protocol.TrapRemoved(t.State.GameID, oldestPos.X, oldestPos.Y))
	if owner := t.State.Players[playerID]; owner != nil {
		owner.TrapCount = t.State.TrapCountFor(playerID)
	}
}

// triggerTrap fires an enemy trap at the mover's destination: the mover
// loses danger plus the cell's wave cost (floored at zero) and the trap
// is consumed.
func (t *Turn) triggerTrap(p *Player, pos Position) {
	tr, ok := t.State.Map.Traps[pos]
	if !ok || tr.Owner == p.ID {
		return
	}
	p.Energy -= tr.Danger + t.State.Map.WaveCost(pos)
	if p.Energy < 0 {
		p.Energy = 0
	}
	delete(t.State.Map.Traps, pos)
	if owner := t.State.Players[tr.Owner]; owner != nil {
		owner.TrapCount = t.State.TrapCountFor(tr.Owner)
	}
	t.emit(protocol.TrapRemoved(t.State.GameID, pos.X, pos.Y))
	t.emit(protocol.EnergyChanged(t.State.GameID, p.ID, p.Energy))
}

func (t *Turn) rest(p *Player) {
	p.Energy = minInt(p.Energy+t.Set.EnergyRestore, t.Set.MaxEnergy)
	t.emit(protocol.EnergyChanged(t.State.GameID, p.ID, p.Energy))
}

func (t *Turn) emit(ev protocol.Event) {
	t.Notify.Emit(t.State.GameID, ev)
}

func lessPos(a, b Position) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
