package protocol

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubmitRejectsWhenSideNotReady(t *testing.T) {
	e := NewEngine(DefaultOptions())
	left := newFakeTransport()
	e.AttachTransport(Left, left)
	// Left never Connected/Initialized.
	_, err := e.Submit(NewSetBrightness(Left, 50, true))
	if !errors.Is(err, ErrSideNotReady) {
		t.Fatalf("expected SideNotReady, got %v", err)
	}
	if len(left.sentPackets()) != 0 {
		t.Fatal("expected no bytes written for a rejected submit")
	}
}

func TestSubmitBothResolvesOnFirstSideAck(t *testing.T) {
	e, left, right := newInitializedEngine()
	p, err := e.Submit(NewSetBrightness(Both, 50, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(left.sentPackets()) != 1 || len(right.sentPackets()) != 1 {
		t.Fatal("expected brightness packet sent to both sides")
	}

	left.deliver([]byte{0x01, ackSuccess})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	val, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val.(bool) != true {
		t.Fatalf("expected true, got %v", val)
	}

	if e.PendingCount(Left) != 0 || e.PendingCount(Right) != 0 {
		t.Fatal("expected command removed from both registries on first match")
	}

	// A late response on the other side must not double-resolve or panic.
	right.deliver([]byte{0x01, ackSuccess})
}

func TestSubmitBusyOnPrefixCollision(t *testing.T) {
	e, left, _ := newInitializedEngine()
	_, err := e.Submit(NewSetBrightness(Left, 10, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err2 := e.Submit(NewSetBrightness(Left, 90, false))
	if !errors.Is(err2, ErrBusy) {
		t.Fatalf("expected Busy, got %v", err2)
	}
	if len(left.sentPackets()) != 1 {
		t.Fatalf("expected the conflicting command's bytes never written, got %d sends", len(left.sentPackets()))
	}
}

func TestSubmitTransportErrorResolvesPromise(t *testing.T) {
	e, left, _ := newInitializedEngine()
	left.failSend = true

	p, err := e.Submit(NewSetBrightness(Left, 10, false))
	if err != nil {
		t.Fatalf("expected submit to return a promise, not an error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, werr := p.Wait(ctx)
	if !errors.Is(werr, ErrTransportError) {
		t.Fatalf("expected TransportError, got %v", werr)
	}
	if e.PendingCount(Left) != 0 {
		t.Fatal("expected registry cleaned up after transport error")
	}
}

func TestSubmitTimeout(t *testing.T) {
	e, _, _ := newInitializedEngine()
	cmd := NewSetBrightness(Left, 10, false)
	cmd.Deadline = 10 * time.Millisecond
	p, err := e.Submit(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, werr := p.Wait(ctx)
	if !errors.Is(werr, ErrTimeout) {
		t.Fatalf("expected Timeout, got %v", werr)
	}
}

func TestCancelRemovesFromRegistry(t *testing.T) {
	e, _, _ := newInitializedEngine()
	cmd := NewSetBrightness(Left, 10, false)
	p, err := e.Submit(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.Cancel(cmd)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, werr := p.Wait(ctx)
	if !errors.Is(werr, ErrCancelled) {
		t.Fatalf("expected Cancelled, got %v", werr)
	}
	if e.PendingCount(Left) != 0 {
		t.Fatal("expected registry empty after cancel")
	}
}

func TestDisconnectFailsOnlyThatSideUnlessBoth(t *testing.T) {
	e, _, _ := newInitializedEngine()

	leftOnly, err := e.Submit(NewFirmwareInfo(Left))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	both, err := e.Submit(NewHeartbeat(Both, 0x01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rightOnly, err := e.Submit(NewFirmwareInfo(Right))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.Disconnect(Left); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := leftOnly.Wait(ctx); !errors.Is(err, ErrSideDisconnected) {
		t.Fatalf("expected left-only command to fail with SideDisconnected, got %v", err)
	}
	if _, err := both.Wait(ctx); !errors.Is(err, ErrSideDisconnected) {
		t.Fatalf("expected BOTH command to fail when either side disconnects, got %v", err)
	}
	if rightOnly.Done() {
		t.Fatal("expected right-only command to remain pending after left disconnects")
	}
	if e.PendingCount(Right) != 1 {
		t.Fatalf("expected right registry to still hold the right-only command, got %d", e.PendingCount(Right))
	}
}

func TestInitializeSendsHandshakeAndTransitionsOnAck(t *testing.T) {
	e := NewEngine(DefaultOptions())
	left, right := newFakeTransport(), newFakeTransport()
	e.AttachTransport(Left, left)
	e.AttachTransport(Right, right)
	if err := e.Connect(Left); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Connect(Right); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Initialize(Both, time.Second) }()

	deadline := time.After(time.Second)
	for len(left.sentPackets()) == 0 || len(right.sentPackets()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected the initialize handshake bytes to be sent")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if got := left.sentPackets()[0]; !bytesEqual(got, []byte{0x4D, 0xFB}) {
		t.Fatalf("expected initialize packet [0x4D 0xFB], got % x", got)
	}

	left.deliver([]byte{0x4D, 0xFB, ackSuccess})
	right.deliver([]byte{0x4D, 0xFB, ackSuccess})

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.SideState(Left) != Initialized || e.SideState(Right) != Initialized {
		t.Fatal("expected both sides Initialized after a successful handshake ack")
	}
}

func TestInitializeRejectsWhenNotConnected(t *testing.T) {
	e := NewEngine(DefaultOptions())
	left, right := newFakeTransport(), newFakeTransport()
	e.AttachTransport(Left, left)
	e.AttachTransport(Right, right)
	// Neither side Connect()ed yet.
	if err := e.Initialize(Both, time.Second); !errors.Is(err, ErrSideNotReady) {
		t.Fatalf("expected SideNotReady, got %v", err)
	}
}

func TestInitializeFailsOnNegativeAck(t *testing.T) {
	e := NewEngine(DefaultOptions())
	left, right := newFakeTransport(), newFakeTransport()
	e.AttachTransport(Left, left)
	e.AttachTransport(Right, right)
	_ = e.Connect(Left)
	_ = e.Connect(Right)

	done := make(chan error, 1)
	go func() { done <- e.Initialize(Both, time.Second) }()

	deadline := time.After(time.Second)
	for len(left.sentPackets()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected the initialize handshake bytes to be sent")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	left.deliver([]byte{0x4D, 0xFB, ackFailure})

	err := <-done
	if !errors.Is(err, ErrTransportError) {
		t.Fatalf("expected TransportError on a failure ack, got %v", err)
	}
	if e.SideState(Left) == Initialized {
		t.Fatal("expected Left to remain un-Initialized after a failure ack")
	}
}

func TestOnBytesRoutesToListenerWhenNoCommandPending(t *testing.T) {
	e, _, right := newInitializedEngine()
	type capture struct {
		event string
		value any
		side  Side
	}
	got := make(chan capture, 1)
	RegisterStandardListeners(e.Listeners(), func(event string, value any, side Side) {
		got <- capture{event, value, side}
	})

	right.deliver([]byte{0xF5, 0x0F, 0x20}) // spec.md §8 scenario 6

	select {
	case c := <-got:
		if c.event != "case_battery" {
			t.Fatalf("expected case_battery, got %s", c.event)
		}
		if c.value.(int) != 50 {
			t.Fatalf("expected 50, got %v", c.value)
		}
		if c.side != Right {
			t.Fatalf("expected Right, got %v", c.side)
		}
	case <-time.After(time.Second):
		t.Fatal("listener never fired")
	}
}

func TestUnknownFrameIsDroppedNotFailed(t *testing.T) {
	_, _, right := newInitializedEngine()
	// No command pending, no listener registered: must not panic.
	right.deliver([]byte{0xFF, 0xFF})
}
