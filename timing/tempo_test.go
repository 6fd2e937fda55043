package timing

import (
	"testing"
	"time"

	"go-smfplay/smf"
)

func tempoTrack(changes ...[2]uint64) *smf.Track {
	t := &smf.Track{}
	for i, c := range changes {
		t.Events = append(t.Events, smf.Event{
			Kind:    smf.SetTempo,
			Index:   i,
			Tick:    c[0],
			Channel: smf.NoChannel,
			Tempo:   uint32(c[1]),
		})
	}
	return t
}

func noteTrack(ticks ...uint64) *smf.Track {
	t := &smf.Track{}
	for i, tick := range ticks {
		t.Events = append(t.Events, smf.Event{Kind: smf.NoteOn, Index: i, Tick: tick, Key: 60, Velocity: 100})
	}
	return t
}

func TestTickZeroIsZero(t *testing.T) {
	maps := []*TempoMap{
		Calculate(smf.TicksPerQuarter(480), nil),
		Calculate(smf.TicksPerQuarter(96), []*smf.Track{tempoTrack([2]uint64{0, 250000})}),
		Calculate(smf.SMPTE(25, 40), nil),
	}
	for i, m := range maps {
		if got := m.MillisecondOffset(0); got != 0 {
			t.Errorf("map %d: MillisecondOffset(0) = %d", i, got)
		}
	}
}

func TestNoTempoIsFlat120(t *testing.T) {
	const tpqn = 480
	m := Calculate(smf.TicksPerQuarter(tpqn), []*smf.Track{noteTrack(0, 480, 960)})
	for _, tick := range []uint64{1, 7, 240, 479, 480, 481, 960, 1000, 123457, 10_000_000} {
		want := tick * 500000 / tpqn / 1000
		if got := m.MillisecondOffset(tick); got != want {
			t.Errorf("MillisecondOffset(%d) = %d, want %d", tick, got, want)
		}
	}
	if bpm := m.BPMAt(100); bpm != 120 {
		t.Errorf("BPMAt = %v", bpm)
	}
}

func TestQuarterAt120IsHalfSecond(t *testing.T) {
	m := Calculate(smf.TicksPerQuarter(480), []*smf.Track{tempoTrack([2]uint64{0, 500000})})
	if got := m.MillisecondOffset(480); got != 500 {
		t.Fatalf("MillisecondOffset(480) = %d, want 500", got)
	}
	if got := m.Duration(480); got != 500*time.Millisecond {
		t.Fatalf("Duration(480) = %v", got)
	}
}

func TestTempoChange(t *testing.T) {
	// 120 bpm for one beat, then 60 bpm
	m := Calculate(smf.TicksPerQuarter(100), []*smf.Track{
		noteTrack(0, 100, 200),
		tempoTrack([2]uint64{0, 500000}, [2]uint64{100, 1000000}),
	})
	tests := []struct {
		tick uint64
		ms   uint64
	}{
		{50, 250},
		{100, 500},
		{150, 1000},
		{200, 1500},
		{1100, 10500},
	}
	for _, tt := range tests {
		if got := m.MillisecondOffset(tt.tick); got != tt.ms {
			t.Errorf("MillisecondOffset(%d) = %d, want %d", tt.tick, got, tt.ms)
		}
	}
	if got := m.TempoAt(99); got != 500000 {
		t.Errorf("TempoAt(99) = %d", got)
	}
	if got := m.TempoAt(100); got != 1000000 {
		t.Errorf("TempoAt(100) = %d", got)
	}
}

func TestLateFirstTempoGetsDefault(t *testing.T) {
	m := Calculate(smf.TicksPerQuarter(480), []*smf.Track{tempoTrack([2]uint64{960, 1000000})})
	ranges := m.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("ranges = %+v", ranges)
	}
	if ranges[0].Start != 0 || ranges[0].Tempo != smf.DefaultTempo || ranges[0].End != 960 {
		t.Errorf("first range = %+v", ranges[0])
	}
	if ranges[1].End != MaxTick {
		t.Errorf("last range is not open ended: %+v", ranges[1])
	}
	// two beats at 120, then one at 60
	if got := m.MillisecondOffset(1440); got != 2000 {
		t.Errorf("MillisecondOffset(1440) = %d, want 2000", got)
	}
}

func TestSameTickTempoLastWins(t *testing.T) {
	m := Calculate(smf.TicksPerQuarter(480), []*smf.Track{
		tempoTrack([2]uint64{0, 500000}, [2]uint64{480, 400000}),
		tempoTrack([2]uint64{480, 1000000}),
	})
	ranges := m.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("ranges = %+v", ranges)
	}
	for _, r := range ranges {
		if r.Start == r.End {
			t.Fatalf("zero width range %+v", r)
		}
	}
	if got := m.TempoAt(480); got != 1000000 {
		t.Fatalf("TempoAt(480) = %d, want the later 1000000", got)
	}
}

func TestMonotonic(t *testing.T) {
	m := Calculate(smf.TicksPerQuarter(96), []*smf.Track{tempoTrack(
		[2]uint64{0, 612345},
		[2]uint64{37, 250001},
		[2]uint64{38, 999999},
		[2]uint64{500, 333333},
		[2]uint64{501, 1},
		[2]uint64{2000, 8000000},
	)})
	var last uint64
	var lastMicros float64
	for tick := uint64(0); tick < 5000; tick++ {
		ms := m.MillisecondOffset(tick)
		if ms < last {
			t.Fatalf("MillisecondOffset(%d) = %d < %d", tick, ms, last)
		}
		us := m.MicrosAt(tick)
		if us < lastMicros {
			t.Fatalf("MicrosAt(%d) = %v < %v", tick, us, lastMicros)
		}
		last, lastMicros = ms, us
	}
}

func TestSMPTEIgnoresTempo(t *testing.T) {
	// 25 fps x 40 subframes = 1000 ticks per second
	m := Calculate(smf.SMPTE(25, 40), []*smf.Track{tempoTrack([2]uint64{0, 250000}, [2]uint64{500, 2000000})})
	if got := m.MillisecondOffset(1000); got != 1000 {
		t.Fatalf("MillisecondOffset(1000) = %d, want 1000", got)
	}
	if got := m.MillisecondOffset(1500); got != 1500 {
		t.Fatalf("MillisecondOffset(1500) = %d, want 1500", got)
	}
}

func TestTickAtInvertsDuration(t *testing.T) {
	m := Calculate(smf.TicksPerQuarter(100), []*smf.Track{
		tempoTrack([2]uint64{0, 500000}, [2]uint64{100, 1000000}),
	})
	for _, tick := range []uint64{0, 1, 50, 99, 100, 101, 150, 4000} {
		if got := m.TickAt(m.Duration(tick)); got != tick {
			t.Errorf("TickAt(Duration(%d)) = %d", tick, got)
		}
	}
	if got := m.TickAt(-time.Second); got != 0 {
		t.Errorf("TickAt(negative) = %d", got)
	}
}

func TestFromTimeline(t *testing.T) {
	tl := &smf.Timeline{
		Encoding: smf.TicksPerQuarter(480),
		Tracks: []*smf.Track{
			tempoTrack([2]uint64{0, 500000}),
			noteTrack(0, 480),
		},
	}
	if got := FromTimeline(tl).MillisecondOffset(480); got != 500 {
		t.Fatalf("MillisecondOffset(480) = %d", got)
	}
}
