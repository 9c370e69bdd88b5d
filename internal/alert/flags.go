package alert

// Bit positions used by the legacy on-disk flags column.
const (
	flagMuted int64 = 1 << 0
	flagTask  int64 = 1 << 1
	flagAlarm int64 = 1 << 2

	knownFlags = flagMuted | flagTask | flagAlarm
)

// Flags holds boolean extensions of a record.
//
// Unknown carries bits written by other versions so that a legacy row
// survives a read-modify-write cycle unchanged.
type Flags struct {
	Muted bool
	Task  bool
	Alarm bool

	Unknown int64
}

// FlagsFromBits unpacks the legacy bit field.
func FlagsFromBits(bits int64) Flags {
	return Flags{
		Muted:   bits&flagMuted != 0,
		Task:    bits&flagTask != 0,
		Alarm:   bits&flagAlarm != 0,
		Unknown: bits &^ knownFlags,
	}
}

// Bits packs the flags into the legacy bit field.
func (f Flags) Bits() int64 {
	bits := f.Unknown &^ knownFlags
	if f.Muted {
		bits |= flagMuted
	}
	if f.Task {
		bits |= flagTask
	}
	if f.Alarm {
		bits |= flagAlarm
	}
	return bits
}
