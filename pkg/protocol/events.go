package protocol

// Standard unsolicited event frames, all prefixed by opEventPrefix
// (0xF5). Second-byte codes per spec.md §4.4's table.
const (
	eventDoubleTap       = 0x00
	eventSingleTap       = 0x01
	eventTripleTap       = 0x05
	eventLongPressHeld1    = 0x17
	eventLongPressHeld2    = 0x18
	eventLongPressRelease  = 0x18
	eventBLEPaired         = 0x11
	eventCaseOpen          = 0x08
	eventGlassesBattery    = 0x0A
	eventCaseClosed        = 0x0B
	eventCaseCharging      = 0x0E
	eventCaseBattery       = 0x0F
)

func isEventFrame(data []byte, code byte) bool {
	return len(data) >= 2 && data[0] == opEventPrefix && data[1] == code
}

// parseBatteryPercent implements spec.md's battery parser:
// min(data[2], 64) * 100 / 64, with data[2] treated as unsigned.
func parseBatteryPercent(data []byte, _ Side) any {
	if len(data) < 3 {
		return 0
	}
	b := data[2]
	if b > 64 {
		b = 64
	}
	return int(b) * 100 / 64
}

func parseNone(_ []byte, _ Side) any { return nil }

// IsDoubleTap, IsSingleTap, etc. are exported so callers building
// custom listener tables (e.g. the glassesctl monitor) can reuse the
// standard predicates without depending on RegisterStandardListeners.

func IsDoubleTap(data []byte, _ Side) bool { return isEventFrame(data, eventDoubleTap) }

// IsSingleTap reproduces the source's documented bug (SPEC_FULL.md
// Open Questions #4): it checks data[1]==0x00, the double-tap code,
// rather than data[1]==0x01. Registering both IsDoubleTap and
// IsSingleTap means the first-registered listener wins the frame;
// this is intentional — "fixing" it silently would contradict the
// decision to preserve the documented source behavior.
func IsSingleTap(data []byte, _ Side) bool { return isEventFrame(data, eventDoubleTap) }

func IsTripleTap(data []byte, _ Side) bool { return isEventFrame(data, eventTripleTap) }

func IsLongPressHeld(data []byte, side Side) bool {
	return isEventFrame(data, eventLongPressHeld1) || isEventFrame(data, eventLongPressHeld2)
}

func IsLongPressRelease(data []byte, _ Side) bool {
	return isEventFrame(data, eventLongPressRelease)
}

func IsBLEPaired(data []byte, _ Side) bool { return isEventFrame(data, eventBLEPaired) }

func IsCaseOpen(data []byte, _ Side) bool { return isEventFrame(data, eventCaseOpen) }

func IsCaseClosed(data []byte, _ Side) bool { return isEventFrame(data, eventCaseClosed) }

func IsCaseCharging(data []byte, _ Side) bool { return isEventFrame(data, eventCaseCharging) }

func IsGlassesBattery(data []byte, _ Side) bool { return isEventFrame(data, eventGlassesBattery) }

func IsCaseBattery(data []byte, _ Side) bool { return isEventFrame(data, eventCaseBattery) }

func IsAudioFrame(data []byte, _ Side) bool { return len(data) >= 1 && data[0] == opAudioPrefix }

// RegisterStandardListeners wires every event in spec.md §4.4's table
// into table, with handle invoked for each distinct event kind. Order
// matches the table; double-tap is registered before single-tap so the
// documented single-tap collision resolves toward double-tap, matching
// the source's observed behavior.
func RegisterStandardListeners(table *listenerTable, handle func(event string, value any, side Side)) {
	reg := func(id string, pred Predicate, parser Parser) {
		table.register(id, pred, parser, func(v any, side Side) { handle(id, v, side) })
	}
	reg("double_tap", IsDoubleTap, parseNone)
	reg("single_tap", IsSingleTap, parseNone)
	reg("triple_tap", IsTripleTap, parseNone)
	reg("long_press_held", IsLongPressHeld, parseNone)
	reg("long_press_release", IsLongPressRelease, parseNone)
	reg("ble_paired", IsBLEPaired, parseNone)
	reg("case_open", IsCaseOpen, parseNone)
	reg("glasses_battery", IsGlassesBattery, parseBatteryPercent)
	reg("case_closed", IsCaseClosed, parseNone)
	reg("case_charging", IsCaseCharging, parseNone)
	reg("case_battery", IsCaseBattery, parseBatteryPercent)
}
