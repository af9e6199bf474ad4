package protocol

// Event is a single state-change notification emitted by the engine.
// Events are fire-and-forget: sinks (websocket hub, journal) may drop
// them without affecting the simulation.
type Event map[string]any

const (
	TypeTurnNew           = "turn:new"
	TypePlayerMoved       = "player:position:changed"
	TypeEnergyChanged     = "player:energy:changed"
	TypeTreasureCollected = "treasure:collected"
	TypeTreasureDropped   = "treasure:dropped"
	TypeCarriedChanged    = "player:treasure:changed"
	TypeTrapPlaced        = "trap:placed"
	TypeTrapRemoved       = "trap:removed"
	TypeCollision         = "player:collision"
	TypeScoreChanged      = "player:score:changed"
	TypeTickComplete      = "game:tick:complete"
	TypeGameEnd           = "game:end"
)

// Score is one entry of a final game-end score list.
type Score struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
}

func pos(x, y int) map[string]int {
	return map[string]int{"x": x, "y": y}
}

func TurnNew(gameID string, turn int) Event {
	return Event{"type": TypeTurnNew, "gameId": gameID, "turn": turn}
}

func PlayerMoved(gameID, playerID string, x, y int) Event {
	return Event{"type": TypePlayerMoved, "gameId": gameID, "playerId": playerID, "position": pos(x, y)}
}

func EnergyChanged(gameID, playerID string, energy int) Event {
	return Event{"type": TypeEnergyChanged, "gameId": gameID, "playerId": playerID, "energy": energy}
}

func TreasureCollected(gameID, playerID string, value, x, y int) Event {
	return Event{"type": TypeTreasureCollected, "gameId": gameID, "playerId": playerID, "treasure": value, "position": pos(x, y)}
}

func TreasureDropped(gameID, playerID string) Event {
	return Event{"type": TypeTreasureDropped, "gameId": gameID, "playerId": playerID}
}

func CarriedChanged(gameID, playerID string, carried int) Event {
	return Event{"type": TypeCarriedChanged, "gameId": gameID, "playerId": playerID, "carried": carried}
}

func TrapPlaced(gameID, playerID string, x, y, danger int) Event {
	return Event{"type": TypeTrapPlaced, "gameId": gameID, "playerId": playerID, "position": pos(x, y), "danger": danger}
}

func TrapRemoved(gameID string, x, y int) Event {
	return Event{"type": TypeTrapRemoved, "gameId": gameID, "position": pos(x, y)}
}

func Collision(gameID, attackerID, victimID string) Event {
	return Event{"type": TypeCollision, "gameId": gameID, "attackerId": attackerID, "victimId": victimID}
}

func ScoreChanged(gameID, playerID string, score int) Event {
	return Event{"type": TypeScoreChanged, "gameId": gameID, "playerId": playerID, "score": score}
}

func TickComplete(gameID string, turn int) Event {
	return Event{"type": TypeTickComplete, "gameId": gameID, "turn": turn}
}

func GameEnd(gameID string, turns int, scores []Score) Event {
	return Event{"type": TypeGameEnd, "gameId": gameID, "turns": turns, "scores": scores}
}
