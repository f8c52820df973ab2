// Package rx320 encodes and decodes the binary command and response frames
// spoken by the Ten-Tec RX-320 receiver over its serial port.
package rx320

import "fmt"

// Mode is a demodulation mode as understood by the receiver.
type Mode int

// Named modes. The receiver also accepts code 4, which has no name here.
const (
	ModeAM  Mode = 0
	ModeUSB Mode = 1
	ModeLSB Mode = 2
	ModeCW  Mode = 3
)

// MaxModeCode is the highest mode code the receiver accepts.
const MaxModeCode = 4

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeAM:
		return "AM"
	case ModeUSB:
		return "USB"
	case ModeLSB:
		return "LSB"
	case ModeCW:
		return "CW"
	default:
		return fmt.Sprintf("MODE%d", int(m))
	}
}

// ParseMode parses a mode name (AM, USB, LSB, CW)
func ParseMode(name string) (Mode, bool) {
	switch name {
	case "AM", "am":
		return ModeAM, true
	case "USB", "usb":
		return ModeUSB, true
	case "LSB", "lsb":
		return ModeLSB, true
	case "CW", "cw":
		return ModeCW, true
	}
	return 0, false
}

// AGC levels. Code 0 selects the receiver default and has no name here.
const (
	AGCSlow   = 1
	AGCMedium = 2
	AGCFast   = 3
)

// MaxAGCCode is the highest AGC code the receiver accepts.
const MaxAGCCode = 3

// MaxVolume is the loudest line or speaker volume.
const MaxVolume = 63

// Filters lists the IF filter bandwidths in Hz, indexed by filter number.
var Filters = [...]int{
	6000, 5700, 5400, 5100, 4800, 4500, 4200,
	3900, 3600, 3300, 3000, 2850, 2700, 2550,
	2400, 2250, 2100, 1950, 1800, 1650, 1500,
	1350, 1200, 1050, 900, 750, 675, 600,
	525, 450, 375, 330, 300, 8000,
}

// MaxFilterIndex is the last valid filter number.
const MaxFilterIndex = len(Filters) - 1

// FilterIndex returns the filter number for a bandwidth in Hz
func FilterIndex(bandwidth int) (int, bool) {
	for i, bw := range Filters {
		if bw == bandwidth {
			return i, true
		}
	}
	return 0, false
}

// ClampVolume limits a volume to the range the receiver accepts.
func ClampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}
