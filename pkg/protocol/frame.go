package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Frame Codec — pure functions encoding application operations into
// wire packets and decoding response bytes into typed results. Nothing
// in this file touches a registry, a transport, or a timer.

const (
	// textChunkSize is the max payload bytes per text-display packet.
	textChunkSize = 180
	// bitmapChunkSize is the max payload bytes per bitmap packet.
	bitmapChunkSize = 194
	// whitelistChunkSize is the max payload bytes per whitelist packet.
	whitelistChunkSize = 176
	// notificationChunkSize is the max payload bytes per notification packet.
	notificationChunkSize = 180

	opBrightness     = 0x01
	opSilentMode     = 0x03
	opWhitelist      = 0x04
	opMic            = 0x0E
	opHeadAngle      = 0x0B
	opDashboardMode  = 0x06
	opBitmap         = 0x15
	opBitmapCRC      = 0x16
	opClear          = 0x18
	opEndTransfer    = 0x20
	opHeartbeat      = 0x25
	opWearDetect     = 0x27
	opBatteryQuery   = 0x2C
	opFirmwareInfo   = 0x23
	opTextDisplay    = 0x4E
	opNotifications  = 0x4B
	opQuickRestartOp = 0x72 // second byte of the quick-restart packet
	opInit           = 0x4D
	opInitOp         = 0xFB // second byte of the initialize handshake packet
	opEventPrefix    = 0xF5
	opAudioPrefix    = 0xF1

	ackSuccess = 0xC9
	ackFailure = 0x00
)

var firmwareInfoPrefix = []byte("net build")

// decodeAck reports whether an acknowledged operation's response
// (starting at the matched prefix) carries a success byte immediately
// after the prefix.
func decodeAck(prefixLen int) Decoder {
	return func(_ Side, data []byte) (any, error) {
		if len(data) <= prefixLen {
			return nil, fmt.Errorf("short ack response: %d bytes", len(data))
		}
		return data[prefixLen] == ackSuccess, nil
	}
}

// --- Brightness ---

// clampBrightness maps an input level to a device byte, clamping any
// out-of-[0,100] value to the fallback 30 first.
func clampBrightness(level int) int {
	if level < 0 || level > 100 {
		level = 30
	}
	return level * 63 / 100
}

func encodeBrightness(level int, auto bool) []Packet {
	scaled := clampBrightness(level)
	autoByte := byte(0)
	if auto {
		autoByte = 1
	}
	return []Packet{{opBrightness, byte(scaled), autoByte}}
}

// --- Head-up angle ---

func clampHeadAngle(angle int) int {
	if angle < 0 {
		return 0
	}
	if angle > 60 {
		return 60
	}
	return angle
}

func encodeHeadAngle(angle int) []Packet {
	return []Packet{{opHeadAngle, byte(clampHeadAngle(angle)), 0x01}}
}

// --- Heartbeat ---

func encodeHeartbeat(seq byte) []Packet {
	const length = 6
	lenLo, lenHi := byte(length&0xFF), byte(length>>8)
	return []Packet{{opHeartbeat, lenLo, lenHi, seq, 0x04, byte((int(seq) + 1) % 256)}}
}

// --- Dashboard mode ---

type DashboardMode uint8

const (
	DashboardMinimal DashboardMode = iota
	DashboardFull
)

type DashboardSubmode uint8

const (
	SubmodeNotes DashboardSubmode = iota
	SubmodeStock
	SubmodeCalendar
	SubmodeWeather
)

func encodeDashboardMode(mode DashboardMode, submode DashboardSubmode) ([]Packet, error) {
	if mode == DashboardMinimal && submode != SubmodeNotes {
		return nil, newError(KindInvalidArgument, "setDashboardMode", Both, nil)
	}
	return []Packet{{opDashboardMode, 0x07, 0x00, 0x00, 0x06, byte(mode), byte(submode)}}, nil
}

// --- Battery query ---

// PlatformTag identifies the host OS issuing a battery query, per the
// wire table's side_tag byte (unrelated to the glasses Side type).
type PlatformTag byte

const (
	PlatformAndroid PlatformTag = 0x01
	PlatformIOS     PlatformTag = 0x02
)

func encodeBatteryQuery(platform PlatformTag) []Packet {
	return []Packet{{opBatteryQuery, byte(platform)}}
}

func decodeBattery(_ Side, data []byte) (any, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("short battery response: %d bytes", len(data))
	}
	return uint8(data[2]), nil
}

// --- Firmware info ---

func encodeFirmwareInfo() []Packet {
	return []Packet{{opFirmwareInfo}}
}

// decodeFirmwareInfo reads the four bytes immediately following the
// matched 9-byte "net build" prefix and renders them as a dotted
// version string. See SPEC_FULL.md Open Questions #3.
func decodeFirmwareInfo(_ Side, data []byte) (any, error) {
	prefixLen := len(firmwareInfoPrefix)
	if len(data) < prefixLen+4 {
		return nil, fmt.Errorf("short firmware response: %d bytes", len(data))
	}
	b := data[prefixLen : prefixLen+4]
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3]), nil
}

// --- Silent mode / wear detect / mic enable (identical 2-byte shape) ---

func encodeBoolToggle(opcode byte, on bool) []Packet {
	v := byte(0)
	if on {
		v = 1
	}
	return []Packet{{opcode, v}}
}

// --- Clear / quick restart ---

func encodeClear() []Packet { return []Packet{{opClear}} }

func encodeQuickRestart() []Packet { return []Packet{{opFirmwareInfo, opQuickRestartOp}} }

func encodeInitialize() []Packet { return []Packet{{opInit, opInitOp}} }

// --- Chunked: text display ---

// encodeTextDisplay UTF-8-encodes text and splits it into packets of
// at most textChunkSize payload bytes. Per SPEC_FULL.md Open Questions
// #1, the response prefix is [opTextDisplay], not the source's buggy
// [0x04].
func encodeTextDisplay(text string) []Packet {
	chunks := splitChunks([]byte(text), textChunkSize)
	n := byte(len(chunks))
	packets := make([]Packet, len(chunks))
	for i, chunk := range chunks {
		idx := byte(i)
		pkt := make(Packet, 0, 9+len(chunk))
		pkt = append(pkt, opTextDisplay, idx, n, idx, 0x71, 0x00, 0x00, idx+1, n)
		pkt = append(pkt, chunk...)
		packets[i] = pkt
	}
	return packets
}

// --- Chunked: JSON (whitelist / notifications share this shape) ---

func encodeJSONChunks(opcode byte, payload []byte, maxChunk int) ([]Packet, error) {
	if chunkCount(len(payload), maxChunk) > 255 {
		return nil, newError(KindPayloadTooLarge, "jsonChunks", Both, nil)
	}
	chunks := splitChunks(payload, maxChunk)
	total := byte(len(chunks))
	packets := make([]Packet, len(chunks))
	for i, chunk := range chunks {
		pkt := make(Packet, 0, 3+len(chunk))
		pkt = append(pkt, opcode, total, byte(i))
		pkt = append(pkt, chunk...)
		packets[i] = pkt
	}
	return packets, nil
}

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// --- Chunked: bitmap transfer ---

func encodeBitmap(bitmap []byte) ([]Packet, error) {
	if chunkCount(len(bitmap), bitmapChunkSize) > 255 {
		return nil, newError(KindPayloadTooLarge, "bitmapTransfer", Left, nil)
	}
	chunks := splitChunks(bitmap, bitmapChunkSize)
	packets := make([]Packet, len(chunks))
	for i, chunk := range chunks {
		var pkt Packet
		if i == 0 {
			pkt = make(Packet, 0, 6+len(chunk))
			pkt = append(pkt, opBitmap, 0x00)
			pkt = append(pkt, bitmapAddressHeader...)
		} else {
			pkt = make(Packet, 0, 2+len(chunk))
			pkt = append(pkt, opBitmap, byte(i))
		}
		pkt = append(pkt, chunk...)
		packets[i] = pkt
	}
	return packets, nil
}

func encodeBitmapCRC(bitmap []byte) []Packet {
	crc := computeBitmapCRC(bitmap)
	var crcBytes [4]byte
	binary.BigEndian.PutUint32(crcBytes[:], crc)
	return []Packet{{opBitmapCRC, crcBytes[0], crcBytes[1], crcBytes[2], crcBytes[3]}}
}

// encodeEndTransferBmp emits the bitmap end-of-transfer handshake
// 0x20 0x0D 0x0E; the alternative 0x18 0x0D 0x0E layout is not emitted.
func encodeEndTransferBmp() []Packet {
	return []Packet{{opEndTransfer, 0x0D, 0x0E}}
}
