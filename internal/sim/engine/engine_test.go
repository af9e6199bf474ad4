package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"tidehunt.io/internal/persistence/snapshot"
	"tidehunt.io/internal/persistence/store"
	"tidehunt.io/internal/protocol"
	"tidehunt.io/internal/sim/game"
	"tidehunt.io/internal/sim/tuning"
)

// recorder is a concurrency-safe event sink for engine tests.
type recorder struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (r *recorder) Emit(_ string, ev protocol.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev["type"] == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	eng *Engine
	mem *store.Memory
	rec *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	rec := &recorder{}
	eng := New(mem, mem, rec, tuning.Default(), log.New(io.Discard, "", 0))
	t.Cleanup(eng.Close)
	return &fixture{eng: eng, mem: mem, rec: rec}
}

// channelMap is a 4x2 sea with bases at the ends of the top row and one
// treasure on the second row, off the walking lane.
func channelMap() game.MapConfig {
	return game.MapConfig{
		Width:  4,
		Height: 2,
		Terrain: [][]int{
			{0, 0, 0, 0},
			{0, 0, 0, 0},
		},
		Treasures: [][]int{
			{0, 0, 0, 0},
			{0, 0, 5, 0},
		},
		Bases: []game.Position{{X: 0, Y: 0}, {X: 3, Y: 0}},
	}
}

// slowTick keeps the real ticker from firing during a test; ticks are
// driven through RunTick instead.
func slowTick(extra *tuning.Overrides) *tuning.Overrides {
	interval := 3600_000
	if extra == nil {
		extra = &tuning.Overrides{}
	}
	extra.TickIntervalMs = &interval
	return extra
}

func twoPlayers() []game.PlayerInfo {
	return []game.PlayerInfo{{ID: "p1"}, {ID: "p2"}}
}

func (f *fixture) initAndStart(t *testing.T, gameID string, over *tuning.Overrides) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.eng.Initialize(ctx, gameID, channelMap(), twoPlayers(), slowTick(over)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.eng.Start(ctx, gameID); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestInitialize_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.eng.Initialize(ctx, "g1", channelMap(), twoPlayers(), nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	_, err := f.eng.Initialize(ctx, "g1", channelMap(), twoPlayers(), nil)
	if !errors.Is(err, ErrGameExists) {
		t.Fatalf("want ErrGameExists, got %v", err)
	}
}

func TestStart_TransitionsToPlaying(t *testing.T) {
	f := newFixture(t)
	f.initAndStart(t, "g1", nil)

	st, err := f.eng.GetState(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Status != game.StatusPlaying {
		t.Fatalf("status = %s", st.Status)
	}
	if st.StartedAtMs == 0 {
		t.Fatalf("start time not stamped")
	}
	if !f.eng.SchedulerActive("g1") {
		t.Fatalf("scheduler not registered")
	}
}

func TestStart_RepeatedStartKeepsRunningGame(t *testing.T) {
	f := newFixture(t)
	f.initAndStart(t, "g1", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.eng.RunTick(ctx, "g1")
	}

	if err := f.eng.Start(ctx, "g1"); err != nil {
		t.Fatalf("second start: %v", err)
	}
	st, err := f.eng.GetState(ctx, "g1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.CurrentTurn != 3 {
		t.Fatalf("turn = %d after repeated start, want 3", st.CurrentTurn)
	}
	if !f.eng.SchedulerActive("g1") {
		t.Fatalf("scheduler dropped")
	}
}

func TestRunTick_AppliesQueuedActionsInOrder(t *testing.T) {
	f := newFixture(t)
	f.initAndStart(t, "g1", nil)
	ctx := context.Background()

	// Rows are queued out of order; intake must apply p2 first.
	if _, err := f.mem.Submit(ctx, store.PendingAction{
		GameID: "g1", PlayerID: "p1", Type: "move",
		Payload: []byte(`{"target":{"x":1,"y":0}}`), SubmittedAtMs: 200,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.mem.Submit(ctx, store.PendingAction{
		GameID: "g1", PlayerID: "p2", Type: "move",
		Payload: []byte(`{"target":{"x":2,"y":0}}`), SubmittedAtMs: 100,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.eng.RunTick(ctx, "g1")

	st, err := f.eng.GetState(ctx, "g1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.CurrentTurn != 1 {
		t.Fatalf("turn = %d, want 1", st.CurrentTurn)
	}
	if st.Players["p1"].Position != (game.Position{X: 1, Y: 0}) {
		t.Fatalf("p1 at %+v", st.Players["p1"].Position)
	}
	if st.Players["p2"].Position != (game.Position{X: 2, Y: 0}) {
		t.Fatalf("p2 at %+v", st.Players["p2"].Position)
	}
	if st.Map.Owners[0][1] != "p1" || st.Map.Owners[0][2] != "p2" {
		t.Fatalf("owners not recomputed: %v", st.Map.Owners)
	}
	if f.rec.count(protocol.TypeTurnNew) != 1 || f.rec.count(protocol.TypeTickComplete) != 1 {
		t.Fatalf("missing tick framing events")
	}
}

func TestRunTick_RamCancelsVictimsQueuedAction(t *testing.T) {
	f := newFixture(t)
	f.initAndStart(t, "g1", nil)
	ctx := context.Background()

	// Tick 1: both leave their bases onto the lane.
	mustSubmit(t, f.mem, "g1", "p1", `{"target":{"x":1,"y":0}}`, 100)
	mustSubmit(t, f.mem, "g1", "p2", `{"target":{"x":2,"y":0}}`, 101)
	f.eng.RunTick(ctx, "g1")

	// Tick 2: p1 rams p2 before p2's own move is reached.
	mustSubmit(t, f.mem, "g1", "p1", `{"target":{"x":2,"y":0}}`, 200)
	mustSubmit(t, f.mem, "g1", "p2", `{"target":{"x":1,"y":0}}`, 201)
	f.eng.RunTick(ctx, "g1")

	st, err := f.eng.GetState(ctx, "g1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Players["p1"].Position != (game.Position{X: 2, Y: 0}) {
		t.Fatalf("attacker at %+v", st.Players["p1"].Position)
	}
	if st.Players["p2"].Position != (game.Position{X: 3, Y: 0}) {
		t.Fatalf("victim at %+v, want home base", st.Players["p2"].Position)
	}
	if st.Players["p2"].Energy != tuning.Default().MaxEnergy {
		t.Fatalf("victim energy = %d, want full", st.Players["p2"].Energy)
	}
	if f.rec.count(protocol.TypeCollision) != 1 {
		t.Fatalf("missing collision event")
	}
}

func TestRunTick_MalformedActionMarkedFailed(t *testing.T) {
	f := newFixture(t)
	f.initAndStart(t, "g1", nil)
	ctx := context.Background()

	bad := mustSubmit(t, f.mem, "g1", "p1", `{}`, 100)
	good := mustSubmit(t, f.mem, "g1", "p2", `{"target":{"x":2,"y":0}}`, 101)

	f.eng.RunTick(ctx, "g1")

	if got := f.mem.ActionStatus(bad); got != store.ActionFailed {
		t.Fatalf("bad action status = %s", got)
	}
	if got := f.mem.ActionStatus(good); got != store.ActionProcessed {
		t.Fatalf("good action status = %s", got)
	}
	st, _ := f.eng.GetState(ctx, "g1")
	if st.Players["p2"].Position != (game.Position{X: 2, Y: 0}) {
		t.Fatalf("good action not applied")
	}
}

// stuckQueue is a Memory queue whose MarkProcessed always errors.
type stuckQueue struct {
	*store.Memory
}

func (q *stuckQueue) MarkProcessed(context.Context, string) error {
	return errors.New("queue write failed")
}

func TestRunTick_ProcessedMarkFailureConsumesAction(t *testing.T) {
	mem := store.NewMemory()
	eng := New(mem, &stuckQueue{Memory: mem}, nil, tuning.Default(), log.New(io.Discard, "", 0))
	t.Cleanup(eng.Close)
	ctx := context.Background()

	if _, err := eng.Initialize(ctx, "g1", channelMap(), twoPlayers(), slowTick(nil)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := eng.Start(ctx, "g1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	id := mustSubmit(t, mem, "g1", "p1", `{"target":{"x":1,"y":0}}`, 100)

	// A row that cannot be marked processed must not stay pending; a
	// second tick would fetch and apply it again.
	eng.RunTick(ctx, "g1")
	eng.RunTick(ctx, "g1")

	if got := mem.ActionStatus(id); got != store.ActionFailed {
		t.Fatalf("action status = %s, want %s", got, store.ActionFailed)
	}
	st, err := eng.GetState(ctx, "g1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Players["p1"].Position != (game.Position{X: 0, Y: 0}) {
		t.Fatalf("unmarked action was applied, p1 at %+v", st.Players["p1"].Position)
	}
	if got := st.Players["p1"].Energy; got != tuning.Default().MaxEnergy {
		t.Fatalf("energy = %d, want %d", got, tuning.Default().MaxEnergy)
	}
}

func TestRunTick_FinishesAfterMaxTurns(t *testing.T) {
	f := newFixture(t)
	turns := 1
	f.initAndStart(t, "g1", &tuning.Overrides{MaxTurns: &turns})
	ctx := context.Background()

	f.eng.RunTick(ctx, "g1")
	st, _ := f.eng.GetState(ctx, "g1")
	if st.Status != game.StatusPlaying || st.CurrentTurn != 1 {
		t.Fatalf("turn 1 of 1 must play: %s turn %d", st.Status, st.CurrentTurn)
	}

	f.eng.RunTick(ctx, "g1")
	st, _ = f.eng.GetState(ctx, "g1")
	if st.Status != game.StatusFinished {
		t.Fatalf("status = %s, want finished", st.Status)
	}
	if f.eng.SchedulerActive("g1") {
		t.Fatalf("scheduler still registered after finish")
	}
	if f.rec.count(protocol.TypeGameEnd) != 1 {
		t.Fatalf("game end emitted %d times", f.rec.count(protocol.TypeGameEnd))
	}
}

func TestRunTick_FinishesOnTreasureExhaustion(t *testing.T) {
	f := newFixture(t)
	f.initAndStart(t, "g1", nil)
	ctx := context.Background()

	st, _ := f.eng.GetState(ctx, "g1")
	st.Map.Treasures[1][2] = 0
	if err := f.mem.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	f.eng.RunTick(ctx, "g1")
	st, _ = f.eng.GetState(ctx, "g1")
	if st.Status != game.StatusFinished {
		t.Fatalf("status = %s, want finished", st.Status)
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.initAndStart(t, "g1", nil)
	ctx := context.Background()

	if err := f.eng.Stop(ctx, "g1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st, _ := f.eng.GetState(ctx, "g1")
	if st.Status != game.StatusFinished {
		t.Fatalf("status = %s", st.Status)
	}
	if f.eng.SchedulerActive("g1") {
		t.Fatalf("scheduler still registered")
	}

	if err := f.eng.Stop(ctx, "g1"); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if f.rec.count(protocol.TypeGameEnd) != 1 {
		t.Fatalf("game end emitted %d times", f.rec.count(protocol.TypeGameEnd))
	}
}

func TestStop_MissingGame(t *testing.T) {
	f := newFixture(t)
	if err := f.eng.Stop(context.Background(), "absent"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFinish_WritesArchive(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	f.eng.SetArchiveDir(dir)
	f.initAndStart(t, "g1", nil)
	ctx := context.Background()

	if err := f.eng.Stop(ctx, "g1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	path := filepath.Join(dir, "g1-final.json.zst")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	g, err := snapshot.ReadArchive(path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if g.GameID != "g1" || g.Status != string(game.StatusFinished) {
		t.Fatalf("archive contents: %+v", g)
	}
}

func TestSubmitAction_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.eng.Initialize(ctx, "g1", channelMap(), twoPlayers(), slowTick(nil)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// Not playing yet.
	if _, err := f.eng.SubmitAction(ctx, "g1", "p1", "move", []byte(`{"target":{"x":1,"y":0}}`)); err == nil {
		t.Fatalf("want error for waiting game")
	}

	if err := f.eng.Start(ctx, "g1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.eng.SubmitAction(ctx, "g1", "ghost", "rest", nil); err == nil {
		t.Fatalf("want error for unknown player")
	}
	if _, err := f.eng.SubmitAction(ctx, "g1", "p1", "move", []byte(`{}`)); err == nil {
		t.Fatalf("want error for malformed payload")
	}

	id, err := f.eng.SubmitAction(ctx, "g1", "p1", "move", []byte(`{"target":{"x":1,"y":0}}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.mem.ActionStatus(id) != store.ActionPending {
		t.Fatalf("action not queued")
	}
}

func TestReload_IsFixedPoint(t *testing.T) {
	f := newFixture(t)
	f.initAndStart(t, "g1", nil)
	ctx := context.Background()

	mustSubmit(t, f.mem, "g1", "p1", `{"target":{"x":1,"y":0}}`, 100)
	f.eng.RunTick(ctx, "g1")

	a, err := f.eng.GetState(ctx, "g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := f.eng.GetState(ctx, "g1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(snapshot.FromState(a), snapshot.FromState(b)) {
		t.Fatalf("reload drifted")
	}
}

func mustSubmit(t *testing.T, q store.ActionQueue, gameID, playerID, payload string, ts int64) string {
	t.Helper()
	id, err := q.Submit(context.Background(), store.PendingAction{
		GameID: gameID, PlayerID: playerID, Type: "move",
		Payload: []byte(payload), SubmittedAtMs: ts,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return id
}
