package rx320

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTuningRange is returned when a computed tuning register does not fit in 16 bits.
	ErrTuningRange = errors.New("tuning register out of range")

	// ErrUnsupportedMode is returned when the mode has no tuning correction.
	ErrUnsupportedMode = errors.New("mode has no tuning correction")
)

const (
	coarseBase   = 18000
	coarseStep   = 2500
	ifOffset     = 1250
	filterOffset = 200
	bfoOffset    = 8000
	fineFactor   = 5.46
	bfoFactor    = 2.73
	maxRegister  = math.MaxUint16
)

// Tuning holds the three oscillator registers of one tune command.
type Tuning struct {
	Coarse uint16 `json:"coarse"`
	Fine   uint16 `json:"fine"`
	BFO    uint16 `json:"bfo"`
}

// modeCorrection is the sideband sign applied to the passband offset.
func modeCorrection(mode Mode) (int, bool) {
	switch mode {
	case ModeAM:
		return 0, true
	case ModeUSB:
		return 1, true
	case ModeLSB, ModeCW:
		return -1, true
	default:
		return 0, false
	}
}

// ComputeTuning derives the coarse, fine and BFO registers for a frequency in Hz.
// cwbfo is ignored unless mode is CW.
func ComputeTuning(freq int, mode Mode, filter int, cwbfo int) (Tuning, error) {
	if filter < 0 || filter > MaxFilterIndex {
		return Tuning{}, fmt.Errorf("filter %d: %w", filter, ErrTuningRange)
	}
	mcor, ok := modeCorrection(mode)
	if !ok {
		return Tuning{}, fmt.Errorf("mode %d: %w", int(mode), ErrUnsupportedMode)
	}
	if mode != ModeCW {
		cwbfo = 0
	}

	fcor := Filters[filter]/2 + filterOffset
	adjusted := freq - ifOffset + mcor*(fcor+cwbfo)

	coarse := coarseBase + floorDiv(adjusted, coarseStep)
	fine := int(math.Floor(fineFactor * float64(floorMod(adjusted, coarseStep))))
	bfo := int(math.Floor(bfoFactor * float64(fcor+cwbfo+bfoOffset)))

	for _, reg := range []struct {
		name  string
		value int
	}{{"coarse", coarse}, {"fine", fine}, {"bfo", bfo}} {
		if reg.value < 0 || reg.value > maxRegister {
			return Tuning{}, fmt.Errorf("%s=%d for %d Hz: %w", reg.name, reg.value, freq, ErrTuningRange)
		}
	}

	return Tuning{Coarse: uint16(coarse), Fine: uint16(fine), BFO: uint16(bfo)}, nil
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod returns a remainder with the sign of b.
func floorMod(a, b int) int {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}
