package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"tidehunt.io/internal/persistence/snapshot"
	"tidehunt.io/internal/persistence/store"
	"tidehunt.io/internal/protocol"
	"tidehunt.io/internal/sim/game"
	"tidehunt.io/internal/sim/tuning"
)

// ErrGameExists is returned by Initialize when the game id is taken.
var ErrGameExists = errors.New("game already exists")

// ErrNotFound mirrors the store sentinel for lifecycle callers.
var ErrNotFound = store.ErrNotFound

const intakeBatchSize = 100

// Engine owns the per-game tick schedulers and the tick transaction.
// It holds no game state between ticks: every tick loads the snapshot,
// mutates it in memory and saves it back.
type Engine struct {
	store  store.Store
	queue  store.ActionQueue
	notify game.Notifier
	def    tuning.Defaults
	log    *log.Logger

	// archiveDir, when set, receives a compressed snapshot of every
	// finished game.
	archiveDir string

	mu      sync.Mutex
	runners map[string]*runner
}

type runner struct {
	gameID string
	stop   chan struct{}
	done   chan struct{}
}

func New(st store.Store, q store.ActionQueue, n game.Notifier, def tuning.Defaults, logger *log.Logger) *Engine {
	if n == nil {
		n = game.NopNotifier{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:   st,
		queue:   q,
		notify:  n,
		def:     def,
		log:     logger,
		runners: map[string]*runner{},
	}
}

// SetArchiveDir enables finished-game snapshot archives under dir.
func (e *Engine) SetArchiveDir(dir string) { e.archiveDir = dir }

// GameSummary is one row of ListGames.
type GameSummary struct {
	store.Summary
	SchedulerActive bool `json:"schedulerActive"`
}

// Initialize builds a fresh waiting game and persists it. It fails if
// the game id already exists.
func (e *Engine) Initialize(ctx context.Context, gameID string, mc game.MapConfig, players []game.PlayerInfo, over *tuning.Overrides) (*game.State, error) {
	if _, err := e.store.Load(ctx, gameID); err == nil {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrGameExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	set := tuning.Resolve(e.def, over)
	st, err := game.NewState(gameID, mc, players, set.MaxEnergy)
	if err != nil {
		return nil, err
	}
	st.Overrides = over
	if err := e.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save %s: %w", gameID, err)
	}
	e.log.Printf("game %s initialized (%d players, %dx%d)", gameID, len(players), mc.Width, mc.Height)
	return st, nil
}

// Start transitions a game to playing and registers its recurring tick
// timer at the resolved interval. Starting a game whose timer is already
// registered is a no-op.
func (e *Engine) Start(ctx context.Context, gameID string) error {
	// Reserve the runner slot before touching state: a repeated Start
	// must not reset a game whose timer is already ticking.
	e.mu.Lock()
	if _, ok := e.runners[gameID]; ok {
		e.mu.Unlock()
		return nil
	}
	r := &runner{gameID: gameID, stop: make(chan struct{}), done: make(chan struct{})}
	e.runners[gameID] = r
	e.mu.Unlock()

	abort := func(err error) error {
		e.detachRunner(gameID)
		close(r.done)
		return err
	}

	st, err := e.store.Load(ctx, gameID)
	if err != nil {
		return abort(fmt.Errorf("start %s: %w", gameID, err))
	}
	if st.Status == game.StatusFinished {
		return abort(fmt.Errorf("start %s: game is finished", gameID))
	}

	set := tuning.Resolve(e.def, st.Overrides)

	// Reset the runtime projection explicitly: fresh turn counter, no
	// traps, owners rebuilt from the starting positions.
	st.Status = game.StatusPlaying
	st.CurrentTurn = 0
	st.StartedAtMs = time.Now().UnixMilli()
	st.Map.Traps = map[game.Position]game.Trap{}
	st.RecomputeOwners()
	if err := e.store.Save(ctx, st); err != nil {
		return abort(fmt.Errorf("start %s: save: %w", gameID, err))
	}

	interval := time.Duration(set.TickIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	go e.runLoop(r, interval)
	e.log.Printf("game %s started, tick every %s", gameID, interval)
	return nil
}

// Stop is an explicit abort: it cancels the game's timer and runs the
// end-of-game routine regardless of natural end conditions. Stopping an
// already-finished game is a no-op.
func (e *Engine) Stop(ctx context.Context, gameID string) error {
	if r := e.detachRunner(gameID); r != nil {
		close(r.stop)
		<-r.done
	}
	st, err := e.store.Load(ctx, gameID)
	if err != nil {
		return fmt.Errorf("stop %s: %w", gameID, err)
	}
	if st.Status == game.StatusFinished {
		return nil
	}
	return e.finish(ctx, st)
}

// GetState loads the current snapshot of a game.
func (e *Engine) GetState(ctx context.Context, gameID string) (*game.State, error) {
	return e.store.Load(ctx, gameID)
}

// Delete removes a game's snapshot and queue rows, stopping its timer
// first if one is registered.
func (e *Engine) Delete(ctx context.Context, gameID string) error {
	if r := e.detachRunner(gameID); r != nil {
		close(r.stop)
		<-r.done
	}
	return e.store.Delete(ctx, gameID)
}

// ListGames returns stored game summaries with scheduler activity.
func (e *Engine) ListGames(ctx context.Context) ([]GameSummary, error) {
	rows, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]GameSummary, 0, len(rows))
	for _, s := range rows {
		_, active := e.runners[s.GameID]
		out = append(out, GameSummary{Summary: s, SchedulerActive: active})
	}
	return out, nil
}

// SchedulerActive reports whether a tick timer is registered for a game.
func (e *Engine) SchedulerActive(gameID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runners[gameID]
	return ok
}

// Close stops every registered timer without ending the games; the
// stored snapshots remain authoritative across restarts.
func (e *Engine) Close() {
	e.mu.Lock()
	rs := make([]*runner, 0, len(e.runners))
	for id, r := range e.runners {
		rs = append(rs, r)
		delete(e.runners, id)
	}
	e.mu.Unlock()
	for _, r := range rs {
		close(r.stop)
		<-r.done
	}
}

// runLoop executes ticks inline in one goroutine per game, so successive
// ticks of the same game can never overlap. A slow tick simply coalesces
// missed firings.
func (e *Engine) runLoop(r *runner, interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			e.RunTick(context.Background(), r.gameID)
		}
	}
}

func (e *Engine) detachRunner(gameID string) *runner {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.runners[gameID]
	delete(e.runners, gameID)
	return r
}

// finish runs the end-of-game routine: cancel the timer, mark finished,
// persist, archive and announce the final scores.
func (e *Engine) finish(ctx context.Context, st *game.State) error {
	if r := e.detachRunner(st.GameID); r != nil {
		// Do not wait: finish may run inside the runner's own tick.
		close(r.stop)
	}
	st.Status = game.StatusFinished
	if err := e.store.Save(ctx, st); err != nil {
		return fmt.Errorf("finish %s: save: %w", st.GameID, err)
	}
	e.archive(st)
	e.notify.Emit(st.GameID, protocol.GameEnd(st.GameID, st.CurrentTurn, st.Scores()))
	e.log.Printf("game %s finished after %d turns", st.GameID, st.CurrentTurn)
	return nil
}

func (e *Engine) archive(st *game.State) {
	if e.archiveDir == "" {
		return
	}
	path := filepath.Join(e.archiveDir, fmt.Sprintf("%s-final.json.zst", st.GameID))
	if err := snapshot.WriteArchive(path, snapshot.FromState(st)); err != nil {
		e.log.Printf("archive %s: %v", st.GameID, err)
	}
}
