package protocol

import "sync"

// registry is the per-side Pending Registry: an ordered list of live
// Commands awaiting a response on one side. Safe for interleaved
// access by a submitter goroutine and a receiver callback — mutations
// copy the backing slice so an in-progress Matches scan never observes
// a torn write and never panics on concurrent mutation.
type registry struct {
	mu      sync.Mutex
	entries []*Command
}

func newRegistry() *registry {
	return &registry{}
}

// isPrefixConflict reports whether a and b conflict under invariant
// I1: one is a byte-wise prefix of the other. Comparison runs over
// min(len(a), len(b)) bytes; any disagreement within that span means
// no conflict.
func isPrefixConflict(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// admit reports whether cmd's response prefix would collide with any
// currently-registered entry. It does not mutate the registry — insert
// must follow a successful admit for the check to be meaningful.
func (r *registry) admit(cmd *Command) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if isPrefixConflict(e.Prefix, cmd.Prefix) {
			return false
		}
	}
	return true
}

// insert appends cmd to the ordered list. Callers must have already
// called admit and must hold no assumption that admit+insert is atomic
// across other goroutines unless they also serialize submission
// themselves — the engine's submit path uses admitAndInsert below
// instead of this plus admit for exactly that reason.
func (r *registry) insert(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]*Command, len(r.entries), len(r.entries)+1)
	copy(entries, r.entries)
	r.entries = append(entries, cmd)
}

// admitAndInsert checks cmd's response prefix against every entry and,
// if none conflicts, inserts cmd — all under one critical section. This
// is what the engine's Submit path uses: a separate admit() followed by
// a separate insert() would let two concurrent Submit calls targeting
// the same side both pass admit() before either reaches insert(),
// registering two colliding prefixes and violating I1. Single-locked
// admit-then-insert closes that race.
func (r *registry) admitAndInsert(cmd *Command) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if isPrefixConflict(e.Prefix, cmd.Prefix) {
			return false
		}
	}
	entries := make([]*Command, len(r.entries), len(r.entries)+1)
	copy(entries, r.entries)
	r.entries = append(entries, cmd)
	return true
}

// matches returns, in insertion order, every entry whose response
// prefix is a byte-wise prefix of data.
func (r *registry) matches(data []byte) []*Command {
	r.mu.Lock()
	entries := r.entries
	r.mu.Unlock()

	var out []*Command
	for _, e := range entries {
		if len(data) >= len(e.Prefix) && bytesEqual(data[:len(e.Prefix)], e.Prefix) {
			out = append(out, e)
		}
	}
	return out
}

// remove deletes cmd by identity. A no-op if cmd is not present (it
// may already have been removed by a concurrent match or expiry —
// idempotent removal is required by the timer/dispatch race contract).
func (r *registry) remove(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e == cmd {
			entries := make([]*Command, 0, len(r.entries)-1)
			entries = append(entries, r.entries[:i]...)
			entries = append(entries, r.entries[i+1:]...)
			r.entries = entries
			return
		}
	}
}

// drain empties the registry and returns the entries it held, in
// insertion order. Used when a side disconnects and every pending
// command on it must be failed.
func (r *registry) drain() []*Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries
	r.entries = nil
	return entries
}

// count returns the number of currently pending entries; used by
// introspection (the glassesd status endpoint, the glassesctl monitor).
func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
