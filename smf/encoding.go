package smf

import "fmt"

// TimeEncoding is how the header's division field says ticks relate to time:
// either a number of ticks per quarter note, or SMPTE frames per second with
// a number of subframe ticks per frame.
type TimeEncoding struct {
	smpte     bool
	tpqn      uint16
	fps       float32
	subframes uint8
}

// TicksPerQuarter returns a metrical time encoding
func TicksPerQuarter(n uint16) TimeEncoding {
	return TimeEncoding{tpqn: n}
}

// SMPTE returns a timecode-based time encoding
func SMPTE(fps float32, subframes uint8) TimeEncoding {
	return TimeEncoding{smpte: true, fps: fps, subframes: subframes}
}

// IsSMPTE reports whether ticks are SMPTE subframes
func (e TimeEncoding) IsSMPTE() bool { return e.smpte }

// TicksPerQuarterNote returns the metrical resolution, 0 for SMPTE
func (e TimeEncoding) TicksPerQuarterNote() uint16 { return e.tpqn }

// FramesPerSecond returns the SMPTE frame rate, 0 for metrical time
func (e TimeEncoding) FramesPerSecond() float32 { return e.fps }

// SubframeResolution returns ticks per SMPTE frame, 0 for metrical time
func (e TimeEncoding) SubframeResolution() uint8 { return e.subframes }

// MicrosecondsPerTick returns the length of one tick at the given tempo.
// Under SMPTE the frame rate alone fixes the tick length and tempo is
// ignored.
func (e TimeEncoding) MicrosecondsPerTick(tempo uint32) float64 {
	num, den := e.TickRatio(tempo)
	if den == 0 {
		return 0
	}
	return num / den
}

// TickRatio returns MicrosecondsPerTick as a fraction num/den, so callers
// can multiply by a tick count before dividing and stay exact for integral
// results.
func (e TimeEncoding) TickRatio(tempo uint32) (num, den float64) {
	if e.smpte {
		return 1e6, float64(e.fps) * float64(e.subframes)
	}
	return float64(tempo), float64(e.tpqn)
}

func (e TimeEncoding) String() string {
	if e.smpte {
		return fmt.Sprintf("SMPTE %g fps x %d", e.fps, e.subframes)
	}
	return fmt.Sprintf("%d ticks per quarter", e.tpqn)
}

// smpteRates maps the negated high byte of the division onto frame rates
var smpteRates = map[int8]float32{
	24: 24,
	25: 25,
	29: 29.97, // drop frame
	30: 30,
}

// resolveEncoding interprets the header's division field
func resolveEncoding(division uint16) (TimeEncoding, error) {
	if int16(division) > 0 {
		return TicksPerQuarter(division), nil
	}
	code := -int8(division >> 8)
	fps, ok := smpteRates[code]
	if !ok {
		return TimeEncoding{}, newError(KindUnsupportedSmpte, 12, "frame rate code %d", code)
	}
	return SMPTE(fps, uint8(division&0xFF)), nil
}
