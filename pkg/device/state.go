package device

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dougsko/rx320d/pkg/rx320"
)

// Result tells a caller whether a setter reached the receiver. Setters
// that return an error also return Ignored.
type Result int

const (
	// Applied means a frame was written and the cached state updated
	Applied Result = iota

	// Ignored means nothing was written
	Ignored
)

func (r Result) String() string {
	if r == Ignored {
		return "ignored"
	}
	return "applied"
}

// Optional is a cached value that may never have been written
type Optional struct {
	Value int
	Set   bool
}

// Some returns a set Optional holding v
func Some(v int) Optional {
	return Optional{Value: v, Set: true}
}

// String returns the value, or NA when unset
func (o Optional) String() string {
	if !o.Set {
		return "NA"
	}
	return strconv.Itoa(o.Value)
}

// MarshalJSON encodes unset values as null
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Field names one cached value of the device state
type Field int

const (
	FieldMode Field = iota
	FieldFilter
	FieldAGC
	FieldFrequency
	FieldLineVolume
	FieldSpeakerVolume
	FieldStrength
)

// State is a copy of everything the session last told or heard from the receiver
type State struct {
	Mode          Optional      `json:"mode"`
	Filter        Optional      `json:"filter"`
	AGC           Optional      `json:"agc"`
	Frequency     Optional      `json:"frequency"`
	CWBFO         int           `json:"cw_bfo"`
	LineVolume    Optional      `json:"line_volume"`
	SpeakerVolume Optional      `json:"speaker_volume"`
	Tuning        *rx320.Tuning `json:"tuning,omitempty"`
	Strength      int           `json:"strength"`
	Firmware      string        `json:"firmware"`
}

// Event is a decoded receiver reply carrying data
type Event struct {
	Kind     rx320.ResponseKind
	Strength int
	Firmware string
	Time     time.Time
}

// Observer is called from the read loop for every strength and firmware reply.
// It must not block.
type Observer func(Event)
