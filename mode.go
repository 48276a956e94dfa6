package zxscan

// Mode is the state of the scan view. Exactly one mode is active at a time and
// only the ViewModel transitions it.
type Mode int

const (
	ModeIdle Mode = iota
	ModeLiveScanning
	ModePhotoCaptured
)

// String returns the name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeLiveScanning:
		return "LIVE_SCANNING"
	case ModePhotoCaptured:
		return "PHOTO_CAPTURED"
	default:
		return "UNKNOWN"
	}
}
