package protocol

import "time"

// Operation Catalogue: thin constructors mapping each high-level
// operation to a Command built from the Frame Codec, plus matching
// Engine convenience methods that construct-and-submit in one call —
// the same "one small function per RPC" shape as the teacher's
// internal/driver/host/bridge.go ComputeHash/GetMetrics/GetInfo.

func ackCommand(op string, target Side, packets []Packet, prefix []byte) *Command {
	return newCommand(op, target, packets, prefix, decodeAck(len(prefix)), 0)
}

// NewInitialize builds the device-level Initialize handshake Command
// (wire opcode 0x4D 0xFB, spec.md §4.5/§6). Submit it through
// Engine.Initialize, not Engine.Submit — Submit requires the target
// side(s) already Initialized, which is exactly the state this command
// brings about.
func NewInitialize(target Side) *Command {
	return ackCommand("initialize", target, encodeInitialize(), []byte{opInit, opInitOp})
}

// NewSetBrightness builds the brightness Command. level is clamped to
// [0,100] with the fallback 30 applied out of range, per spec.md §4.1.
func NewSetBrightness(target Side, level int, auto bool) *Command {
	return ackCommand("setBrightness", target, encodeBrightness(level, auto), []byte{opBrightness})
}

// NewSetHeadAngle builds the head-up angle Command, clamped to [0,60].
func NewSetHeadAngle(target Side, angle int) *Command {
	return ackCommand("setHeadAngle", target, encodeHeadAngle(angle), []byte{opHeadAngle})
}

// NewHeartbeat builds a heartbeat Command for the given sequence byte.
func NewHeartbeat(target Side, seq byte) *Command {
	return ackCommand("heartbeat", target, encodeHeartbeat(seq), []byte{opHeartbeat})
}

// NewSetDashboardMode builds the dashboard-mode Command. Returns an
// InvalidArgument error immediately (no bytes encoded) if mode is
// Minimal and submode isn't Notes.
func NewSetDashboardMode(target Side, mode DashboardMode, submode DashboardSubmode) (*Command, error) {
	packets, err := encodeDashboardMode(mode, submode)
	if err != nil {
		return nil, err
	}
	return ackCommand("setDashboardMode", target, packets, []byte{opDashboardMode}), nil
}

// NewBatteryQuery builds a per-side battery query Command. Battery is
// always queried per individual side, never BOTH (spec.md §3);
// Engine.BatteryQuery rejects a Both target with InvalidArgument.
func NewBatteryQuery(side Side, platform PlatformTag) *Command {
	return newCommand("batteryQuery", side, encodeBatteryQuery(platform), []byte{opBatteryQuery}, decodeBattery, 0)
}

// NewFirmwareInfo builds the firmware-info query Command.
func NewFirmwareInfo(target Side) *Command {
	return newCommand("firmwareInfo", target, encodeFirmwareInfo(), firmwareInfoPrefix, decodeFirmwareInfo, 0)
}

// NewSetSilentMode builds the silent-mode toggle Command.
func NewSetSilentMode(target Side, on bool) *Command {
	return ackCommand("setSilentMode", target, encodeBoolToggle(opSilentMode, on), []byte{opSilentMode})
}

// NewSetWearDetect builds the wear-detection toggle Command.
func NewSetWearDetect(target Side, on bool) *Command {
	return ackCommand("setWearDetect", target, encodeBoolToggle(opWearDetect, on), []byte{opWearDetect})
}

// NewSetMicEnable builds the microphone enable/disable Command.
func NewSetMicEnable(target Side, on bool) *Command {
	return ackCommand("setMicEnable", target, encodeBoolToggle(opMic, on), []byte{opMic})
}

// NewClear builds the clear/exit Command.
func NewClear(target Side) *Command {
	return ackCommand("clear", target, encodeClear(), []byte{opClear})
}

// NewQuickRestart builds the quick-restart Command.
func NewQuickRestart(target Side) *Command {
	return ackCommand("quickRestart", target, encodeQuickRestart(), []byte{opFirmwareInfo, opQuickRestartOp})
}

// NewTextDisplay builds the chunked text-display transfer. Per
// spec.md §3, bulk text data is sent to LEFT only.
func NewTextDisplay(text string) *Command {
	return ackCommand("textDisplay", Left, encodeTextDisplay(text), []byte{opTextDisplay})
}

// NewWhitelist builds the chunked whitelist-configuration transfer
// (LEFT only, opcode 0x04, ≤176B chunks). config is marshaled to JSON
// internally — pass a struct, map, or anything encoding/json accepts.
func NewWhitelist(config any) (*Command, error) {
	jsonPayload, err := marshalJSON(config)
	if err != nil {
		return nil, newError(KindInvalidArgument, "whitelist", Left, err)
	}
	packets, err := encodeJSONChunks(opWhitelist, jsonPayload, whitelistChunkSize)
	if err != nil {
		return nil, err
	}
	return ackCommand("whitelist", Left, packets, []byte{opWhitelist}), nil
}

// NewNotificationConfig builds the chunked notification-configuration
// transfer (LEFT only, opcode 0x4B). config is marshaled to JSON
// internally, same as NewWhitelist.
func NewNotificationConfig(config any) (*Command, error) {
	jsonPayload, err := marshalJSON(config)
	if err != nil {
		return nil, newError(KindInvalidArgument, "notificationConfig", Left, err)
	}
	packets, err := encodeJSONChunks(opNotifications, jsonPayload, notificationChunkSize)
	if err != nil {
		return nil, err
	}
	return ackCommand("notificationConfig", Left, packets, []byte{opNotifications}), nil
}

// NewBitmapTransfer builds the chunked bitmap-transfer Command (LEFT
// only). After the final chunk acknowledges, callers must follow up
// with NewBitmapCRC then NewEndTransferBmp, per spec.md §4.1.
func NewBitmapTransfer(bitmap []byte) (*Command, error) {
	packets, err := encodeBitmap(bitmap)
	if err != nil {
		return nil, err
	}
	return ackCommand("bitmapTransfer", Left, packets, []byte{opBitmap}), nil
}

// NewBitmapCRC builds the CRC-check Command that must follow a
// completed bitmap transfer.
func NewBitmapCRC(bitmap []byte) *Command {
	return ackCommand("bitmapCRC", Left, encodeBitmapCRC(bitmap), []byte{opBitmapCRC})
}

// NewEndTransferBmp builds the end-of-bitmap-transfer handshake
// Command.
func NewEndTransferBmp() *Command {
	return ackCommand("endTransferBmp", Left, encodeEndTransferBmp(), []byte{opEndTransfer})
}

// --- Engine convenience methods: construct + Submit in one call ---

func (e *Engine) SetBrightness(target Side, level int, auto bool) (*Promise, error) {
	return e.Submit(NewSetBrightness(target, level, auto))
}

func (e *Engine) SetHeadAngle(target Side, angle int) (*Promise, error) {
	return e.Submit(NewSetHeadAngle(target, angle))
}

func (e *Engine) Heartbeat(target Side, seq byte) (*Promise, error) {
	return e.Submit(NewHeartbeat(target, seq))
}

func (e *Engine) SetDashboardMode(target Side, mode DashboardMode, submode DashboardSubmode) (*Promise, error) {
	cmd, err := NewSetDashboardMode(target, mode, submode)
	if err != nil {
		return nil, err
	}
	return e.Submit(cmd)
}

func (e *Engine) BatteryQuery(side Side, platform PlatformTag) (*Promise, error) {
	if side == Both {
		return nil, newError(KindInvalidArgument, "batteryQuery", side, nil)
	}
	return e.Submit(NewBatteryQuery(side, platform))
}

func (e *Engine) FirmwareInfo(target Side) (*Promise, error) {
	return e.Submit(NewFirmwareInfo(target))
}

func (e *Engine) SetSilentMode(target Side, on bool) (*Promise, error) {
	return e.Submit(NewSetSilentMode(target, on))
}

func (e *Engine) SetWearDetect(target Side, on bool) (*Promise, error) {
	return e.Submit(NewSetWearDetect(target, on))
}

func (e *Engine) SetMicEnable(target Side, on bool) (*Promise, error) {
	return e.Submit(NewSetMicEnable(target, on))
}

func (e *Engine) Clear(target Side) (*Promise, error) {
	return e.Submit(NewClear(target))
}

func (e *Engine) QuickRestart(target Side) (*Promise, error) {
	return e.Submit(NewQuickRestart(target))
}

func (e *Engine) DisplayText(text string) (*Promise, error) {
	return e.Submit(NewTextDisplay(text))
}

func (e *Engine) SetWhitelist(config any) (*Promise, error) {
	cmd, err := NewWhitelist(config)
	if err != nil {
		return nil, err
	}
	return e.Submit(cmd)
}

func (e *Engine) SetNotificationConfig(config any) (*Promise, error) {
	cmd, err := NewNotificationConfig(config)
	if err != nil {
		return nil, err
	}
	return e.Submit(cmd)
}

// TransferBitmap runs the full bitmap sub-protocol: chunked transfer,
// then CRC check, then end-of-transfer, each awaited in turn up to
// deadline. It stops at the first failure.
func (e *Engine) TransferBitmap(bitmap []byte, deadline time.Duration) error {
	xfer, err := NewBitmapTransfer(bitmap)
	if err != nil {
		return err
	}
	if _, err := e.SubmitAndWait(xfer, deadline); err != nil {
		return err
	}
	if _, err := e.SubmitAndWait(NewBitmapCRC(bitmap), deadline); err != nil {
		return err
	}
	if _, err := e.SubmitAndWait(NewEndTransferBmp(), deadline); err != nil {
		return err
	}
	return nil
}
