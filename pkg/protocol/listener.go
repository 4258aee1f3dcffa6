package protocol

import "sync"

// Predicate reports whether a raw frame on side should be routed to a
// listener's parser/handler.
type Predicate func(data []byte, side Side) bool

// Parser decodes a raw frame into the typed value a Handler expects.
type Parser func(data []byte, side Side) any

// Handler is invoked with the parsed value and the side it arrived on.
type Handler func(value any, side Side)

type listenerEntry struct {
	id        string
	predicate Predicate
	parser    Parser
	handler   Handler
}

// listenerTable holds registered event listeners. Dispatch scans in
// registration order and invokes at most one listener's handler per
// frame (the first whose predicate matches) — listeners are never
// mutually exclusive with Commands, only with each other.
type listenerTable struct {
	mu      sync.RWMutex
	entries []*listenerEntry
}

func newListenerTable() *listenerTable {
	return &listenerTable{}
}

// register is idempotent by id: registering the same id again replaces
// the previous entry in place, preserving its position.
func (t *listenerTable) register(id string, pred Predicate, parse Parser, handle Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &listenerEntry{id: id, predicate: pred, parser: parse, handler: handle}
	for i, existing := range t.entries {
		if existing.id == id {
			t.entries[i] = e
			return
		}
	}
	t.entries = append(t.entries, e)
}

func (t *listenerTable) deregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.id == id {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// dispatch evaluates every listener's predicate in registration order
// against data/side and invokes the handler of the first match. It
// reports whether any listener matched.
func (t *listenerTable) dispatch(data []byte, side Side) bool {
	t.mu.RLock()
	entries := make([]*listenerEntry, len(t.entries))
	copy(entries, t.entries)
	t.mu.RUnlock()

	for _, e := range entries {
		if e.predicate(data, side) {
			e.handler(e.parser(data, side), side)
			return true
		}
	}
	return false
}
