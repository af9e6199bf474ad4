package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tidehunt.io/internal/persistence/store"
	"tidehunt.io/internal/protocol"
	"tidehunt.io/internal/sim/game"
	"tidehunt.io/internal/sim/tuning"
)

// RunTick executes exactly one tick transaction for a game: load the
// snapshot, advance the turn, drain and apply queued actions, restore
// idle players and save. A failed tick is logged and dropped; the next
// firing starts from the last saved snapshot, so the timer survives any
// single bad tick.
func (e *Engine) RunTick(ctx context.Context, gameID string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Printf("tick %s: panic: %v", gameID, r)
		}
	}()
	if err := e.tick(ctx, gameID); err != nil {
		e.log.Printf("tick %s: %v", gameID, err)
	}
}

func (e *Engine) tick(ctx context.Context, gameID string) error {
	st, err := e.store.Load(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted out from under the timer. Drop the runner.
			if r := e.detachRunner(gameID); r != nil {
				close(r.stop)
			}
			return nil
		}
		return err
	}
	if st.Status != game.StatusPlaying {
		return nil
	}

	set := tuning.Resolve(e.def, st.Overrides)
	nowMs := time.Now().UnixMilli()

	st.CurrentTurn++
	if game.ShouldEnd(st, set, nowMs) {
		return e.finish(ctx, st)
	}
	e.notify.Emit(gameID, protocol.TurnNew(gameID, st.CurrentTurn))

	actions, err := e.intake(ctx, gameID)
	if err != nil {
		return err
	}

	turn := game.NewTurn(st, set, e.notify, nowMs)
	turn.ApplyAll(actions)
	turn.RestoreIdle()
	st.RecomputeOwners()

	if err := e.store.Save(ctx, st); err != nil {
		return err
	}
	e.notify.Emit(gameID, protocol.TickComplete(gameID, st.CurrentTurn))
	return nil
}

// intake drains up to one batch of pending actions, parsing each into a
// typed action. Rows that fail to parse are marked failed and skipped;
// parsed rows are marked processed before the turn applies them, since
// per-rule rejection during apply is a normal outcome, not a queue
// failure.
func (e *Engine) intake(ctx context.Context, gameID string) ([]game.Action, error) {
	rows, err := e.queue.FetchPending(ctx, gameID, intakeBatchSize)
	if err != nil {
		return nil, err
	}
	out := make([]game.Action, 0, len(rows))
	for _, row := range rows {
		act, err := game.ParseAction(row.PlayerID, row.Type, row.SubmittedAtMs, row.Payload)
		if err != nil {
			e.log.Printf("action %s game %s: %v", row.ID, gameID, err)
			if merr := e.queue.MarkFailed(ctx, row.ID, err.Error()); merr != nil {
				e.log.Printf("mark failed %s: %v", row.ID, merr)
			}
			continue
		}
		if merr := e.queue.MarkProcessed(ctx, row.ID); merr != nil {
			// A row left pending would be fetched and applied again on
			// the next tick. Fail it instead; each row applies at most
			// once.
			e.log.Printf("mark processed %s: %v", row.ID, merr)
			if ferr := e.queue.MarkFailed(ctx, row.ID, merr.Error()); ferr != nil {
				e.log.Printf("mark failed %s: %v", row.ID, ferr)
			}
			continue
		}
		out = append(out, act)
	}
	return out, nil
}

// SubmitAction validates the basic shape of an incoming action and
// enqueues it for the next tick. The returned id identifies the queue
// row.
func (e *Engine) SubmitAction(ctx context.Context, gameID, playerID, actionType string, payload json.RawMessage) (string, error) {
	st, err := e.store.Load(ctx, gameID)
	if err != nil {
		return "", err
	}
	if st.Status != game.StatusPlaying {
		return "", errors.New("game is not playing")
	}
	if _, ok := st.Players[playerID]; !ok {
		return "", errors.New("unknown player")
	}
	now := time.Now().UnixMilli()
	if _, err := game.ParseAction(playerID, actionType, now, payload); err != nil {
		return "", err
	}
	row := store.PendingAction{
		GameID:        gameID,
		PlayerID:      playerID,
		Type:          actionType,
		Payload:       payload,
		SubmittedAtMs: now,
	}
	return e.queue.Submit(ctx, row)
}
