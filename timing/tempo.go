package timing

import (
	"math"
	"sort"
	"time"

	"go-smfplay/debug"
	"go-smfplay/smf"
)

// MaxTick is the end of the last, open-ended range
const MaxTick uint64 = math.MaxUint64

// Range is one tempo segment: ticks in [Start, End) map to
// BaseMicros + (tick-Start)*MicrosPerTick.
type Range struct {
	Start         uint64
	End           uint64
	Tempo         uint32 // microseconds per quarter note in force
	BaseMicros    float64
	MicrosPerTick float64

	num, den float64 // MicrosPerTick as a fraction
}

func (r Range) micros(tick uint64) float64 {
	return r.BaseMicros + r.span(tick-r.Start)
}

// span is the duration of n ticks; multiplying first keeps whole-number
// results exact
func (r Range) span(n uint64) float64 {
	if r.den == 0 {
		return 0
	}
	return float64(n) * r.num / r.den
}

// TempoMap converts absolute ticks to elapsed time. It is immutable once
// built and safe to share between goroutines.
type TempoMap struct {
	encoding smf.TimeEncoding
	ranges   []Range
}

type tempoChange struct {
	tick  uint64
	tempo uint32
}

// FromTimeline builds the tempo map of a decoded file
func FromTimeline(tl *smf.Timeline) *TempoMap {
	return Calculate(tl.Encoding, tl.Tracks)
}

// Calculate builds a tempo map from the SetTempo events of all tracks.
// When several tempo changes share a tick the last one found wins.
func Calculate(enc smf.TimeEncoding, tracks []*smf.Track) *TempoMap {
	var changes []tempoChange
	for _, t := range tracks {
		for _, ev := range t.Events {
			if ev.Kind == smf.SetTempo {
				changes = append(changes, tempoChange{tick: ev.Tick, tempo: ev.Tempo})
			}
		}
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].tick < changes[j].tick })

	// collapse equal ticks, keeping the last
	deduped := changes[:0]
	for _, c := range changes {
		if n := len(deduped); n > 0 && deduped[n-1].tick == c.tick {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}
	changes = deduped

	if len(changes) == 0 || changes[0].tick != 0 {
		debug.Log("tempo", "no tempo at tick 0, assuming 120 bpm")
		changes = append([]tempoChange{{tick: 0, tempo: smf.DefaultTempo}}, changes...)
	}

	m := &TempoMap{encoding: enc}
	base := 0.0
	for i, prev := range changes {
		num, den := enc.TickRatio(prev.tempo)
		end := MaxTick
		if i+1 < len(changes) {
			end = changes[i+1].tick
		}
		r := Range{
			Start:         prev.tick,
			End:           end,
			Tempo:         prev.tempo,
			BaseMicros:    base,
			MicrosPerTick: enc.MicrosecondsPerTick(prev.tempo),
			num:           num,
			den:           den,
		}
		m.ranges = append(m.ranges, r)
		if end != MaxTick {
			base += r.span(end - prev.tick)
		}
	}
	return m
}

// Encoding returns the time encoding the map was built for
func (m *TempoMap) Encoding() smf.TimeEncoding {
	return m.encoding
}

// Ranges returns a copy of the tempo segments in tick order
func (m *TempoMap) Ranges() []Range {
	out := make([]Range, len(m.ranges))
	copy(out, m.ranges)
	return out
}

func (m *TempoMap) rangeAt(tick uint64) Range {
	i := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].End > tick })
	if i == len(m.ranges) {
		i = len(m.ranges) - 1
	}
	return m.ranges[i]
}

// MicrosAt returns the microseconds elapsed between tick 0 and tick
func (m *TempoMap) MicrosAt(tick uint64) float64 {
	if tick == 0 {
		return 0
	}
	return m.rangeAt(tick).micros(tick)
}

// MillisecondOffset returns the whole milliseconds elapsed at tick,
// truncated
func (m *TempoMap) MillisecondOffset(tick uint64) uint64 {
	if tick == 0 {
		return 0
	}
	return uint64(m.MicrosAt(tick)) / 1000
}

// Duration returns the elapsed time at tick with microsecond precision
func (m *TempoMap) Duration(tick uint64) time.Duration {
	return time.Duration(m.MicrosAt(tick)) * time.Microsecond
}

// TempoAt returns the tempo in force at tick in microseconds per quarter
func (m *TempoMap) TempoAt(tick uint64) uint32 {
	return m.rangeAt(tick).Tempo
}

// BPMAt returns the tempo in force at tick in beats per minute
func (m *TempoMap) BPMAt(tick uint64) float64 {
	return smf.BPM(m.TempoAt(tick))
}

// TickAt returns the last tick whose time is at or before d. It is the
// inverse of Duration, used to show the position of a running playback.
func (m *TempoMap) TickAt(d time.Duration) uint64 {
	micros := float64(d.Microseconds())
	if micros <= 0 {
		return 0
	}
	i := sort.Search(len(m.ranges), func(i int) bool {
		r := m.ranges[i]
		return r.End == MaxTick || r.micros(r.End) > micros
	})
	r := m.ranges[i]
	if r.num == 0 || r.den == 0 {
		return r.Start
	}
	return r.Start + uint64((micros-r.BaseMicros)*r.den/r.num)
}
