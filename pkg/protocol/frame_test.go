package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrightnessScaling(t *testing.T) {
	cases := []struct {
		level int
		want  byte
	}{
		{0, 0},
		{50, 0x1F},
		{100, 63},
		{-1, 18},   // out of range -> fallback 30 -> floor(30*63/100)=18
		{101, 18},
		{1000, 18},
	}
	for _, c := range cases {
		pkt := encodeBrightness(c.level, true)[0]
		assert.Equal(t, []byte{opBrightness, c.want, 0x01}, []byte(pkt), "level=%d", c.level)
	}
}

func TestSetBrightnessScenario(t *testing.T) {
	// spec.md §8 scenario 1
	pkt := encodeBrightness(50, true)[0]
	if !bytes.Equal(pkt, []byte{0x01, 0x1F, 0x01}) {
		t.Fatalf("unexpected packet: % x", pkt)
	}
}

func TestHeartbeatScenario(t *testing.T) {
	// spec.md §8 scenario 2
	pkt := encodeHeartbeat(0x01)[0]
	want := []byte{0x25, 0x06, 0x00, 0x01, 0x04, 0x02}
	if !bytes.Equal(pkt, want) {
		t.Fatalf("got % x, want % x", pkt, want)
	}
}

func TestDashboardModeMinimalRequiresNotes(t *testing.T) {
	// spec.md §8 scenario 3
	_, err := NewSetDashboardMode(Both, DashboardMinimal, SubmodeStock)
	if err == nil {
		t.Fatal("expected InvalidArgument error")
	}
	var perr *Error
	if e, ok := err.(*Error); ok {
		perr = e
	} else {
		t.Fatalf("expected *Error, got %T", err)
	}
	if perr.Kind != KindInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %s", perr.Kind)
	}
}

func TestDashboardModeMinimalNotesOK(t *testing.T) {
	cmd, err := NewSetDashboardMode(Left, DashboardMinimal, SubmodeNotes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x06, 0x07, 0x00, 0x00, 0x06, byte(DashboardMinimal), byte(SubmodeNotes)}
	if !bytes.Equal(cmd.Packets[Left][0], want) {
		t.Fatalf("got % x, want % x", cmd.Packets[Left][0], want)
	}
}

func TestHeadAngleClamp(t *testing.T) {
	cases := []struct{ in, want int }{{-5, 0}, {0, 0},{30, 30}, {60, 60}, {90, 60}}
	for _, c := range cases {
		got := clampHeadAngle(c.in)
		if got != c.want {
			t.Errorf("clampHeadAngle(%d) = %d, want %d", c.in, got, c.want)
		}
	}
	pkt := encodeHeadAngle(90)[0]
	if !bytes.Equal(pkt, []byte{opHeadAngle, 60, 0x01}) {
		t.Fatalf("unexpected packet: % x", pkt)
	}
}

func TestBatteryParser(t *testing.T) {
	for b := 0; b <= 255; b++ {
		want := min(b, 64) * 100 / 64
		got := parseBatteryPercent([]byte{opEventPrefix, eventCaseBattery, byte(b)}, Left)
		if got.(int) != want {
			t.Fatalf("b=%d: got %v want %d", b, got, want)
		}
	}
}

func TestFirmwareInfoDecode(t *testing.T) {
	resp := append(append([]byte{}, firmwareInfoPrefix...), 1, 2, 3, 4)
	got, err := decodeFirmwareInfo(Left, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(string) != "1.2.3.4" {
		t.Fatalf("got %v, want 1.2.3.4", got)
	}
}

func TestBitmapCRCMatchesScenario(t *testing.T) {
	bitmap := bytes.Repeat([]byte{0xAB}, 500)
	crc := computeBitmapCRC(bitmap)

	pkt := encodeBitmapCRC(bitmap)[0]
	got := uint32(pkt[1])<<24 | uint32(pkt[2])<<16 | uint32(pkt[3])<<8 | uint32(pkt[4])
	if got != crc {
		t.Fatalf("packet CRC %x != computed %x", got, crc)
	}
}

func TestBitmapTransferChunkingScenario(t *testing.T) {
	// spec.md §8 scenario 5: 500 bytes -> 3 packets (194+194+112)
	bitmap := bytes.Repeat([]byte{0x01}, 500)
	cmd, err := NewBitmapTransfer(bitmap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	packets := cmd.Packets[Left]
	if len(packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(packets))
	}
	if !bytes.HasPrefix(packets[0], []byte{0x15, 0x00, 0x00, 0x1C, 0x00, 0x00}) {
		t.Fatalf("packet 0 header wrong: % x", packets[0][:6])
	}
	if len(packets[0]) != 6+194 {
		t.Fatalf("packet 0 length %d, want %d", len(packets[0]), 6+194)
	}
	if !bytes.HasPrefix(packets[1], []byte{0x15, 0x01}) {
		t.Fatalf("packet 1 header wrong: % x", packets[1][:2])
	}
	if !bytes.HasPrefix(packets[2], []byte{0x15, 0x02}) {
		t.Fatalf("packet 2 header wrong: % x", packets[2][:2])
	}
}

func TestBitmapChunkRoundTrip(t *testing.T) {
	bitmap := bytes.Repeat([]byte{0x42}, 1000)
	cmd, err := NewBitmapTransfer(bitmap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rebuilt []byte
	for i, pkt := range cmd.Packets[Left] {
		if i == 0 {
			rebuilt = append(rebuilt, pkt[6:]...)
		} else {
			rebuilt = append(rebuilt, pkt[2:]...)
		}
	}
	if !bytes.Equal(rebuilt, bitmap) {
		t.Fatal("reassembled bitmap does not match original payload")
	}
}

func TestBitmapPayloadTooLarge(t *testing.T) {
	huge := make([]byte, bitmapChunkSize*256)
	if _, err := NewBitmapTransfer(huge); err == nil {
		t.Fatal("expected PayloadTooLarge")
	} else if e, ok := err.(*Error); !ok || e.Kind != KindPayloadTooLarge {
		t.Fatalf("expected PayloadTooLarge, got %v", err)
	}
}

func TestJSONChunkRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("{\"k\":\"v\"}"), 100)
	packets, err := encodeJSONChunks(opWhitelist, payload, whitelistChunkSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rebuilt []byte
	for _, pkt := range packets {
		rebuilt = append(rebuilt, pkt[3:]...)
	}
	if !bytes.Equal(rebuilt, payload) {
		t.Fatal("reassembled JSON payload mismatch")
	}
}

func TestTextDisplayResponsePrefixDiscrepancy(t *testing.T) {
	// SPEC_FULL.md Open Questions #1: the source advertises [0x04] as
	// the text-display response prefix (copy-pasted from the JSON
	// encoder) while the wire table says 0x4E. This engine ships the
	// defensible [0x4E] prefix; this test pins that choice so a future
	// change doesn't silently reintroduce the source's bug.
	cmd := NewTextDisplay("hello")
	if !bytes.Equal(cmd.Prefix, []byte{opTextDisplay}) {
		t.Fatalf("expected response prefix [0x4E], got % x", cmd.Prefix)
	}
	if bytes.Equal(cmd.Prefix, []byte{opWhitelist}) {
		t.Fatal("text display must not share the JSON chunking opcode's prefix")
	}
}

func TestTextDisplayChunking(t *testing.T) {
	text := string(bytes.Repeat([]byte("a"), 400))
	cmd := NewTextDisplay(text)
	packets := cmd.Packets[Left]
	if len(packets) != 3 {
		t.Fatalf("expected 3 chunks for 400 bytes at 180/chunk, got %d", len(packets))
	}
	for i, pkt := range packets {
		if pkt[0] != opTextDisplay || pkt[1] != byte(i) || pkt[2] != byte(len(packets)) {
			t.Fatalf("packet %d header wrong: % x", i, pkt[:3])
		}
	}
}
