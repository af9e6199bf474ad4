package game

import (
	"fmt"
	"sort"

	"tidehunt.io/internal/protocol"
	"tidehunt.io/internal/sim/tuning"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Position is a cell on the map grid. It is used directly as a map key
// for traps so there is no string-formatted coordinate anywhere.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

const Island = -1

type Player struct {
	ID        string
	Name      string
	Position  Position
	Energy    int
	Carried   int
	TrapCount int
	Score     int
	AtBase    bool
	// BaseIndex is assigned at initialization and never changes for the
	// lifetime of the game, including across reloads.
	BaseIndex int
}

type Trap struct {
	Owner       string
	Pos         Position
	Danger      int
	CreatedAtMs int64
}

type Map struct {
	Width  int
	Height int

	// Terrain and Waves are static after initialization.
	Terrain [][]int
	Waves   [][]int

	// Treasures is mutable: a positive cell is zeroed the instant a
	// player's move lands on it.
	Treasures [][]int

	Traps map[Position]Trap
	Bases []Position

	// Owners is a derived projection of current player positions,
	// fully rebuilt every tick. It is never authoritative.
	Owners [][]string
}

// State is the complete snapshot of one game. It is mutated exclusively
// by one tick transaction at a time.
type State struct {
	GameID      string
	Status      Status
	CurrentTurn int
	StartedAtMs int64
	Overrides   *tuning.Overrides
	Players     map[string]*Player
	Map         Map
}

// MapConfig is the static map description supplied at initialization.
type MapConfig struct {
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Terrain   [][]int    `json:"terrain"`
	Waves     [][]int    `json:"waves,omitempty"`
	Treasures [][]int    `json:"treasures"`
	Bases     []Position `json:"bases"`
}

// PlayerInfo identifies a joining player. Display attributes are owned
// by the identity service; the core never mutates them.
type PlayerInfo struct {
	ID   string `json:"playerId"`
	Name string `json:"name,omitempty"`
}

// NewState builds a fresh waiting game. Players are placed at the base
// matching their join order, with full energy and no traps or score.
func NewState(gameID string, mc MapConfig, players []PlayerInfo, maxEnergy int) (*State, error) {
	if mc.Width <= 0 || mc.Height <= 0 {
		return nil, fmt.Errorf("map %dx%d: invalid size", mc.Width, mc.Height)
	}
	if len(mc.Terrain) != mc.Height {
		return nil, fmt.Errorf("terrain rows %d != height %d", len(mc.Terrain), mc.Height)
	}
	if len(mc.Treasures) != mc.Height {
		return nil, fmt.Errorf("treasure rows %d != height %d", len(mc.Treasures), mc.Height)
	}
	if len(players) > len(mc.Bases) {
		return nil, fmt.Errorf("%d players but only %d bases", len(players), len(mc.Bases))
	}

	m := Map{
		Width:     mc.Width,
		Height:    mc.Height,
		Terrain:   copyGrid(mc.Terrain),
		Treasures: copyGrid(mc.Treasures),
		Traps:     map[Position]Trap{},
		Bases:     append([]Position(nil), mc.Bases...),
		Owners:    blankOwners(mc.Width, mc.Height),
	}
	if mc.Waves != nil {
		if len(mc.Waves) != mc.Height {
			return nil, fmt.Errorf("wave rows %d != height %d", len(mc.Waves), mc.Height)
		}
		m.Waves = copyGrid(mc.Waves)
	} else {
		m.Waves = filledGrid(mc.Width, mc.Height, 1)
	}

	s := &State{
		GameID:  gameID,
		Status:  StatusWaiting,
		Players: map[string]*Player{},
		Map:     m,
	}
	for i, pi := range players {
		if pi.ID == "" {
			return nil, fmt.Errorf("player %d: empty id", i)
		}
		if _, ok := s.Players[pi.ID]; ok {
			return nil, fmt.Errorf("duplicate player id %s", pi.ID)
		}
		s.Players[pi.ID] = &Player{
			ID:        pi.ID,
			Name:      pi.Name,
			Position:  m.Bases[i],
			Energy:    maxEnergy,
			AtBase:    true,
			BaseIndex: i,
		}
	}
	return s, nil
}

func (m *Map) InBounds(p Position) bool {
	return p.X >= 0 && p.X < m.Width && p.Y >= 0 && p.Y < m.Height
}

func (m *Map) IsIsland(p Position) bool {
	return m.Terrain[p.Y][p.X] == Island
}

// WaveCost is the energy price of entering a cell, defaulting to 1.
func (m *Map) WaveCost(p Position) int {
	if c := m.Waves[p.Y][p.X]; c > 0 {
		return c
	}
	return 1
}

func (m *Map) TreasureAt(p Position) int {
	return m.Treasures[p.Y][p.X]
}

func (m *Map) IsBase(p Position) bool {
	for _, b := range m.Bases {
		if b == p {
			return true
		}
	}
	return false
}

// BaseOf returns the home base assigned to a player.
func (m *Map) BaseOf(p *Player) Position {
	idx := p.BaseIndex
	if idx < 0 || idx >= len(m.Bases) {
		idx = 0
	}
	return m.Bases[idx]
}

// PlayerIDs returns all player ids in a deterministic order.
func (s *State) PlayerIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PlayerAt returns the player currently occupying a cell, if any.
func (s *State) PlayerAt(pos Position) *Player {
	for _, id := range s.PlayerIDs() {
		if p := s.Players[id]; p.Position == pos {
			return p
		}
	}
	return nil
}

// IsEnemyBase reports whether pos is the assigned home base of a player
// other than playerID. Unassigned bases are not protected.
func (s *State) IsEnemyBase(pos Position, playerID string) bool {
	for id, p := range s.Players {
		if id == playerID {
			continue
		}
		if s.Map.BaseOf(p) == pos {
			return true
		}
	}
	return false
}

// TrapCountFor recounts a player's active traps from the live trap
// collection. Caps are enforced against this count, never a cached one.
func (s *State) TrapCountFor(playerID string) int {
	n := 0
	for _, tr := range s.Map.Traps {
		if tr.Owner == playerID {
			n++
		}
	}
	return n
}

// TreasureRemaining sums all positive map cells plus every player's
// carried value. Scored treasure has left the system.
func (s *State) TreasureRemaining() int {
	total := 0
	for _, row := range s.Map.Treasures {
		for _, v := range row {
			if v > 0 {
				total += v
			}
		}
	}
	for _, p := range s.Players {
		total += p.Carried
	}
	return total
}

// RecomputeOwners rebuilds the occupancy projection from scratch so it
// can never hold stale entries.
func (s *State) RecomputeOwners() {
	s.Map.Owners = blankOwners(s.Map.Width, s.Map.Height)
	for _, id := range s.PlayerIDs() {
		p := s.Players[id]
		s.Map.Owners[p.Position.Y][p.Position.X] = id
	}
}

// Scores returns the final per-player score list, best first.
func (s *State) Scores() []protocol.Score {
	out := make([]protocol.Score, 0, len(s.Players))
	for _, id := range s.PlayerIDs() {
		out = append(out, protocol.Score{PlayerID: id, Score: s.Players[id].Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func copyGrid(g [][]int) [][]int {
	out := make([][]int, len(g))
	for i, row := range g {
		out[i] = append([]int(nil), row...)
	}
	return out
}

func filledGrid(w, h, v int) [][]int {
	out := make([][]int, h)
	for y := range out {
		row := make([]int, w)
		for x := range row {
			row[x] = v
		}
		out[y] = row
	}
	return out
}

func blankOwners(w, h int) [][]string {
	out := make([][]string, h)
	for y := range out {
		out[y] = make([]string, w)
	}
	return out
}
