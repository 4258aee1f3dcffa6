//go:build !mips && !mipsle
// +build !mips,!mipsle

// Package usbbridge implements protocol.Transport over a USB-attached
// bench bridge adapter — a debug rig where each side's glasses are
// reached through a USB-to-byte-stream bridge instead of the
// production wireless radio. NOTE: excluded on MIPS builds, same as
// the teacher's usb_device.go, because gousb needs cgo+libusb.
package usbbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// EndpointOut/EndpointIn mirror the bulk endpoint numbering the
	// teacher's Bitmain bridge uses; the bench adapter firmware follows
	// the same convention.
	EndpointOut = 0x01
	EndpointIn  = 0x81

	maxPacketSize = 512
	readTimeout   = 250 * time.Millisecond
)

// Bridge implements protocol.Transport by bridging to a USB device
// identified by VID/PID. One Bridge corresponds to one physical side's
// bench adapter.
type Bridge struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	vendorID, productID gousb.ID
	recv                 func(data []byte)
	stopPoll             chan struct{}
}

// New returns a Bridge bound to the given VID/PID. The USB device is
// not opened until Connect is called.
func New(vendorID, productID uint16) *Bridge {
	return &Bridge{
		vendorID:  gousb.ID(vendorID),
		productID: gousb.ID(productID),
	}
}

// Connect opens the USB device, claims its interface, and starts a
// background goroutine polling the IN endpoint and delivering frames
// to the registered receive handler.
func (b *Bridge) Connect() error {
	ctx := gousb.NewContext()

	device, err := ctx.OpenDeviceWithVIDPID(b.vendorID, b.productID)
	if err != nil {
		ctx.Close()
		return fmt.Errorf("usbbridge: open device: %w", err)
	}
	if device == nil {
		ctx.Close()
		return fmt.Errorf("usbbridge: device not found (VID:0x%04x PID:0x%04x)", b.vendorID, b.productID)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return fmt.Errorf("usbbridge: set config: %w", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return fmt.Errorf("usbbridge: claim interface: %w", err)
	}

	epOut, err := intf.OutEndpoint(EndpointOut)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return fmt.Errorf("usbbridge: open OUT endpoint: %w", err)
	}

	epIn, err := intf.InEndpoint(EndpointIn)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return fmt.Errorf("usbbridge: open IN endpoint: %w", err)
	}

	b.ctx, b.device, b.config, b.intf, b.epOut, b.epIn = ctx, device, config, intf, epOut, epIn
	b.stopPoll = make(chan struct{})
	go b.pollLoop()
	return nil
}

// Disconnect stops polling and releases the USB resources.
func (b *Bridge) Disconnect() error {
	if b.stopPoll != nil {
		close(b.stopPoll)
		b.stopPoll = nil
	}
	if b.intf != nil {
		b.intf.Close()
	}
	if b.config != nil {
		b.config.Close()
	}
	if b.device != nil {
		b.device.Close()
	}
	if b.ctx != nil {
		b.ctx.Close()
	}
	return nil
}

// IsInitialized reports whether the bridge has an open device handle.
// Full protocol.Initialized (MTU negotiation, service discovery,
// notification subscribe) is driven by the engine, not the transport.
func (b *Bridge) IsInitialized() bool { return b.device != nil }

// Send writes one packet to the bridge's OUT endpoint.
func (b *Bridge) Send(data []byte) error {
	if b.epOut == nil {
		return fmt.Errorf("usbbridge: not connected")
	}
	_, err := b.epOut.Write(data)
	if err != nil {
		return fmt.Errorf("usbbridge: write: %w", err)
	}
	return nil
}

// OnReceive registers the handler invoked for each frame read off the
// bridge's IN endpoint.
func (b *Bridge) OnReceive(handler func(data []byte)) { b.recv = handler }

func (b *Bridge) pollLoop() {
	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-b.stopPoll:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		n, err := b.epIn.ReadContext(ctx, buf)
		cancel()
		if err != nil {
			continue // timeout or transient USB error; keep polling
		}
		if n > 0 && b.recv != nil {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			b.recv(frame)
		}
	}
}
