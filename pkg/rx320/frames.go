package rx320

import (
	"encoding/binary"
	"strings"
)

// Frame delimiters
const (
	Terminator byte = 0x0D
	LineFeed   byte = 0x0A
)

// Command bytes
const (
	cmdTune          byte = 0x4E // 'N'
	cmdAGC           byte = 0x47 // 'G'
	cmdMode          byte = 0x4D // 'M'
	cmdFilter        byte = 0x57 // 'W'
	cmdLineVolume    byte = 0x41 // 'A'
	cmdSpeakerVolume byte = 0x56 // 'V'
	cmdVolume        byte = 0x43 // 'C'
	cmdFirmware      byte = 0x3F // '?'
	cmdStrength      byte = 0x58 // 'X'
)

// Response markers
const (
	replyStrength     byte = 0x58 // 'X'
	replyUnrecognized byte = 0x5A // 'Z'
	prefixVersion          = "VER"
	prefixPowerOn          = "DSP"
)

// TuneFrame encodes the three tuning registers big-endian.
func TuneFrame(t Tuning) []byte {
	frame := make([]byte, 8)
	frame[0] = cmdTune
	binary.BigEndian.PutUint16(frame[1:3], t.Coarse)
	binary.BigEndian.PutUint16(frame[3:5], t.Fine)
	binary.BigEndian.PutUint16(frame[5:7], t.BFO)
	frame[7] = Terminator
	return frame
}

// AGCFrame selects an AGC level, sent as an ASCII digit.
func AGCFrame(level int) []byte {
	return []byte{cmdAGC, '0' + byte(level), Terminator}
}

// ModeFrame selects a mode, sent as an ASCII digit.
func ModeFrame(mode Mode) []byte {
	return []byte{cmdMode, '0' + byte(mode), Terminator}
}

// FilterFrame selects a filter by raw index.
func FilterFrame(index int) []byte {
	return []byte{cmdFilter, byte(index), Terminator}
}

func LineVolumeFrame(volume int) []byte {
	return []byte{cmdLineVolume, 0x00, byte(volume), Terminator}
}

func SpeakerVolumeFrame(volume int) []byte {
	return []byte{cmdSpeakerVolume, 0x00, byte(volume), Terminator}
}

// VolumeFrame sets line and speaker volume together.
func VolumeFrame(volume int) []byte {
	return []byte{cmdVolume, 0x00, byte(volume), Terminator}
}

func FirmwareQueryFrame() []byte {
	return []byte{cmdFirmware, Terminator}
}

func StrengthQueryFrame() []byte {
	return []byte{cmdStrength, Terminator}
}

// ResponseKind classifies a frame received from the receiver
type ResponseKind int

const (
	ResponseUnknown ResponseKind = iota
	ResponseStrength
	ResponseMalformed
	ResponseUnrecognized
	ResponseFirmware
	ResponsePowerOn
)

// String returns a short name for the response kind
func (k ResponseKind) String() string {
	switch k {
	case ResponseStrength:
		return "strength"
	case ResponseMalformed:
		return "malformed"
	case ResponseUnrecognized:
		return "unrecognized"
	case ResponseFirmware:
		return "firmware"
	case ResponsePowerOn:
		return "power-on"
	default:
		return "unknown"
	}
}

// Response is a decoded receiver frame. Only Strength and Firmware carry data.
type Response struct {
	Kind     ResponseKind
	Strength int
	Firmware string
}

// DecodeResponse classifies one frame (terminator already removed).
// Decoding never fails; frames that carry nothing usable come back as
// ResponseMalformed, ResponseUnrecognized, ResponsePowerOn or ResponseUnknown.
func DecodeResponse(frame []byte) Response {
	if len(frame) == 0 {
		return Response{Kind: ResponseUnknown}
	}

	switch frame[0] {
	case replyStrength:
		if len(frame) < 3 {
			return Response{Kind: ResponseMalformed}
		}
		return Response{
			Kind:     ResponseStrength,
			Strength: int(frame[1])*256 + int(frame[2]),
		}
	case replyUnrecognized:
		return Response{Kind: ResponseUnrecognized}
	}

	if len(frame) > 3 {
		switch string(frame[:3]) {
		case prefixVersion:
			return Response{
				Kind:     ResponseFirmware,
				Firmware: strings.TrimSpace(string(frame[3:])),
			}
		case prefixPowerOn:
			return Response{Kind: ResponsePowerOn}
		}
	}

	return Response{Kind: ResponseUnknown}
}

// FrameAssembler rebuilds frames from a byte stream, one byte at a time.
type FrameAssembler struct {
	buf []byte
}

// Feed adds one byte. It returns a complete frame when b is the terminator
// and at least one byte was buffered. Line feeds are dropped.
func (a *FrameAssembler) Feed(b byte) ([]byte, bool) {
	switch b {
	case LineFeed:
		return nil, false
	case Terminator:
		if len(a.buf) == 0 {
			return nil, false
		}
		frame := a.buf
		a.buf = nil
		return frame, true
	default:
		a.buf = append(a.buf, b)
		return nil, false
	}
}

// Pending returns the number of buffered bytes
func (a *FrameAssembler) Pending() int {
	return len(a.buf)
}
