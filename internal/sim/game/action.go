package game

import (
	"encoding/json"
	"fmt"
)

type ActionType string

const (
	ActionMove ActionType = "move"
	ActionTrap ActionType = "trap"
	ActionRest ActionType = "rest"
)

// Action is one player-submitted command, already validated and decoded
// from its queue payload.
type Action struct {
	PlayerID      string
	Type          ActionType
	SubmittedAtMs int64

	// move
	Target Position

	// trap
	TrapPos Position
	Danger  int
}

type movePayload struct {
	Target *Position `json:"target"`
}

type trapPayload struct {
	Position *Position `json:"position"`
	Danger   int       `json:"danger"`
}

// ParseAction decodes a queued action payload. Malformed payloads are an
// error here so the boundary can reject them; rule-level rejections
// (insufficient energy, illegal cells) stay silent inside the tick.
func ParseAction(playerID, typ string, submittedAtMs int64, payload []byte) (Action, error) {
	a := Action{PlayerID: playerID, Type: ActionType(typ), SubmittedAtMs: submittedAtMs}
	switch a.Type {
	case ActionMove:
		var mp movePayload
		if err := json.Unmarshal(payload, &mp); err != nil {
			return a, fmt.Errorf("move payload: %w", err)
		}
		if mp.Target == nil {
			return a, fmt.Errorf("move payload: missing target")
		}
		a.Target = *mp.Target
	case ActionTrap:
		var tp trapPayload
		if err := json.Unmarshal(payload, &tp); err != nil {
			return a, fmt.Errorf("trap payload: %w", err)
		}
		if tp.Position == nil {
			return a, fmt.Errorf("trap payload: missing position")
		}
		if tp.Danger <= 0 {
			return a, fmt.Errorf("trap payload: danger %d out of range", tp.Danger)
		}
		a.TrapPos = *tp.Position
		a.Danger = tp.Danger
	case ActionRest:
	default:
		return a, fmt.Errorf("unknown action type %q", typ)
	}
	return a, nil
}
