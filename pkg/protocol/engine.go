package protocol

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Options tunes an Engine. NewEngine fills any zero-value field from
// DefaultOptions(); internal/config's LoadEngineConfig().EngineOptions()
// builds Options from environment configuration.
type Options struct {
	// DefaultDeadline is the timeout armed for a Command that does not
	// set its own Deadline.
	DefaultDeadline time.Duration
	// Logger receives engine diagnostics (unknown frames, side
	// transitions). Defaults to a stderr logger with a "protocol: " prefix.
	Logger *log.Logger
}

// DefaultOptions returns the engine's out-of-the-box tuning: a 1000ms
// default deadline per spec.md §4.3.
func DefaultOptions() Options {
	return Options{
		DefaultDeadline: 1000 * time.Millisecond,
		Logger:          log.New(os.Stderr, "protocol: ", log.LstdFlags),
	}
}

// Engine owns both per-side Pending Registries, the listener table,
// and the side-indexed transport dispatcher. It is the only component
// that submits commands, dispatches inbound bytes, and manages side
// lifecycle — see spec.md §4.3 and §3 "Ownership".
type Engine struct {
	opts Options

	mu         sync.Mutex
	registries map[Side]*registry
	states     map[Side]*sideMachine
	transports map[Side]Transport
	listeners  *listenerTable
}

// NewEngine constructs an Engine with empty registries for LEFT and
// RIGHT and no attached transports.
func NewEngine(opts Options) *Engine {
	if opts.DefaultDeadline == 0 {
		opts.DefaultDeadline = DefaultOptions().DefaultDeadline
	}
	if opts.Logger == nil {
		opts.Logger = DefaultOptions().Logger
	}
	e := &Engine{
		opts:       opts,
		registries: map[Side]*registry{Left: newRegistry(), Right: newRegistry()},
		states:     map[Side]*sideMachine{Left: newSideMachine(), Right: newSideMachine()},
		transports: make(map[Side]Transport, 2),
		listeners:  newListenerTable(),
	}
	return e
}

// Listeners exposes the engine's listener table for registration.
func (e *Engine) Listeners() *listenerTable { return e.listeners }

// AttachTransport wires a Transport as the byte-pipe for side. The
// transport's receive callback is routed into the engine's dispatch
// path; AttachTransport does not itself open the connection, see
// Connect.
func (e *Engine) AttachTransport(side Side, t Transport) {
	e.mu.Lock()
	e.transports[side] = t
	e.mu.Unlock()
	t.OnReceive(func(data []byte) {
		e.onBytes(append([]byte(nil), data...), side)
	})
}

// Connect drives side from Disconnected through Connecting to
// Connected. Reaching Initialized additionally requires a successful
// Initialize handshake (see Initialize) once MTU negotiation, service
// discovery, and notification subscription — all external to this
// engine — complete.
func (e *Engine) Connect(side Side) error {
	e.mu.Lock()
	t := e.transports[side]
	sm := e.states[side]
	e.mu.Unlock()

	sm.set(Connecting)
	if t == nil {
		sm.set(Disconnected)
		return newError(KindTransportError, "connect", side, nil)
	}
	if err := t.Connect(); err != nil {
		sm.set(Disconnected)
		return newError(KindTransportError, "connect", side, err)
	}
	sm.set(Connected)
	return nil
}

// MarkInitialized transitions side to Initialized directly, bypassing
// the Initialize handshake. Only for tests and out-of-band transports
// that perform their own negotiation (MTU, service discovery,
// notification subscription) and never see the device-level Initialize
// packet at all. Production code with a real Transport should call
// Initialize instead, which only flips the state once the device has
// actually acked the handshake.
func (e *Engine) MarkInitialized(side Side) {
	e.states[side].set(Initialized)
}

// Disconnect tears down side's transport and fails every command
// pending on it (and, for BOTH-targeted commands, removes them from
// the other side's registry too) with SideDisconnected.
func (e *Engine) Disconnect(side Side) error {
	e.mu.Lock()
	t := e.transports[side]
	e.mu.Unlock()

	e.states[side].set(Disconnected)
	e.failSide(side, newError(KindSideDisconnected, "disconnect", side, nil))

	if t == nil {
		return nil
	}
	return t.Disconnect()
}

// SideState reports side's current lifecycle state.
func (e *Engine) SideState(side Side) SideState { return e.states[side].get() }

// PendingCount reports how many commands are currently pending on side.
func (e *Engine) PendingCount(side Side) int { return e.registries[side].count() }

// Submit validates and enqueues cmd. It fails synchronously — without
// creating any registry entry — for SideNotReady and Busy. Once
// entries exist, any further failure (a packet write error) resolves
// the already-returned Promise instead.
func (e *Engine) Submit(cmd *Command) (*Promise, error) {
	return e.submit(cmd, func(s SideState) bool { return s == Initialized })
}

// submit is Submit's implementation, parameterized by the side
// readiness predicate. Every operation but Initialize requires the
// target side(s) already Initialized; Initialize itself only requires
// Connected, since reaching Initialized is the handshake's own job.
func (e *Engine) submit(cmd *Command, ready func(SideState) bool) (*Promise, error) {
	sides := cmd.sides()

	for _, s := range sides {
		if !ready(e.states[s].get()) {
			return nil, newError(KindSideNotReady, cmd.Op, s, nil)
		}
	}

	// The deadline is armed before cmd becomes reachable through any
	// registry, so a concurrent match never races with this write.
	deadline := cmd.Deadline
	if deadline == 0 {
		deadline = e.opts.DefaultDeadline
	}
	cmd.deadlineT = time.AfterFunc(deadline, func() { e.expire(cmd) })

	admitted := make([]Side, 0, len(sides))
	for _, s := range sides {
		if !e.registries[s].admitAndInsert(cmd) {
			cmd.deadlineT.Stop()
			for _, a := range admitted {
				e.registries[a].remove(cmd)
			}
			return nil, newError(KindBusy, cmd.Op, s, nil)
		}
		admitted = append(admitted, s)
	}

	for _, s := range sides {
		t := e.transports[s]
		if t == nil {
			e.completeCommand(cmd, nil, newError(KindTransportError, cmd.Op, s, nil))
			return cmd.promise, nil
		}
		for _, pkt := range cmd.Packets[s] {
			if err := t.Send(pkt); err != nil {
				e.completeCommand(cmd, nil, newError(KindTransportError, cmd.Op, s, err))
				return cmd.promise, nil
			}
		}
	}

	return cmd.promise, nil
}

// SubmitAndWait submits cmd and blocks for its result up to deadline,
// failing with Timeout if the deadline elapses first.
func (e *Engine) SubmitAndWait(cmd *Command, deadline time.Duration) (any, error) {
	p, err := e.Submit(cmd)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	val, err := p.Wait(ctx)
	if err == context.DeadlineExceeded {
		return nil, newError(KindTimeout, cmd.Op, cmd.Target, nil)
	}
	return val, err
}

// Cancel removes cmd from every registry it's pending in and resolves
// its promise with Cancelled. A no-op if cmd has already resolved.
func (e *Engine) Cancel(cmd *Command) {
	e.completeCommand(cmd, nil, newError(KindCancelled, cmd.Op, cmd.Target, nil))
}

// Initialize drives target through the device-level Initialize
// handshake (wire opcode 0x4D 0xFB, spec.md §4.5/§6) and, only on a
// successful ack, transitions it to Initialized. target must already
// be Connected; every other operation requires Initialized, so this is
// the one submit path that runs before that state is reached. Per
// SPEC_FULL.md's resolution of the source's LEFT-vs-BOTH ambiguity,
// callers should pass Both — each side independently completes MTU
// negotiation/service discovery/notification subscription, and nothing
// in the lifecycle FSM depends on a LEFT-only initialize.
func (e *Engine) Initialize(target Side, deadline time.Duration) error {
	cmd := NewInitialize(target)
	p, err := e.submit(cmd, func(s SideState) bool { return s == Connected })
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	val, err := p.Wait(ctx)
	if err != nil {
		if err == context.DeadlineExceeded {
			return newError(KindTimeout, cmd.Op, target, nil)
		}
		return err
	}
	if ok, _ := val.(bool); !ok {
		return newError(KindTransportError, cmd.Op, target, nil)
	}
	for _, s := range cmd.sides() {
		e.states[s].set(Initialized)
	}
	return nil
}

func (e *Engine) expire(cmd *Command) {
	e.completeCommand(cmd, nil, newError(KindTimeout, cmd.Op, cmd.Target, nil))
}

// completeCommand removes cmd from every side registry it occupies,
// stops its deadline timer, and resolves its promise. Safe to call
// more than once for the same command (idempotent removal + a
// single-resolution Promise together satisfy the expiry/match race
// contract in spec.md §5).
func (e *Engine) completeCommand(cmd *Command, val any, err error) {
	for _, s := range cmd.sides() {
		e.registries[s].remove(cmd)
	}
	if cmd.deadlineT != nil {
		cmd.deadlineT.Stop()
	}
	cmd.promise.resolve(val, err)
}

// failSide resolves every command pending on side (including BOTH
// commands, which also live in the other side's registry) with err.
func (e *Engine) failSide(side Side, err error) {
	entries := e.registries[side].drain()
	for _, cmd := range entries {
		for _, s := range cmd.sides() {
			if s != side {
				e.registries[s].remove(cmd)
			}
		}
		if cmd.deadlineT != nil {
			cmd.deadlineT.Stop()
		}
		cmd.promise.resolve(nil, err)
	}
}

// onBytes is the inbound dispatch entry point: it correlates data to
// pending commands first, then independently evaluates listeners, per
// spec.md §4.3 step ordering.
func (e *Engine) onBytes(data []byte, side Side) {
	matched := e.registries[side].matches(data)
	for _, cmd := range matched {
		val, err := cmd.Decode(side, data)
		if err != nil {
			e.completeCommand(cmd, nil, newError(KindDecodeError, cmd.Op, side, err))
			continue
		}
		e.completeCommand(cmd, val, nil)
	}

	listenerMatched := e.listeners.dispatch(data, side)

	if len(matched) == 0 && !listenerMatched {
		e.opts.Logger.Printf("unknown frame on %s: % x", side, data)
	}
}
