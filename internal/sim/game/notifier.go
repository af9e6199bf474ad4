package game

import "tidehunt.io/internal/protocol"

// Notifier receives state-change events from the rule engine. Calls are
// fire-and-forget: tick correctness never depends on a sink succeeding.
type Notifier interface {
	Emit(gameID string, ev protocol.Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Emit(string, protocol.Event) {}

// MultiNotifier fans one event out to several sinks.
type MultiNotifier []Notifier

func (m MultiNotifier) Emit(gameID string, ev protocol.Event) {
	for _, n := range m {
		n.Emit(gameID, ev)
	}
}
