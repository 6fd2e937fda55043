// Package synth renders playback through a SoundFont synthesizer instead of
// an external MIDI port.
package synth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"

	"go-smfplay/debug"
	"go-smfplay/midi"
	"go-smfplay/sequencer"
	"go-smfplay/smf"
)

// DefaultSampleRate is used when none is configured
const DefaultSampleRate = 44100

// Synthesizer is the part of meltysynth.Synthesizer the player drives
type Synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1, data2 int32)
	Render(left, right []float32)
}

// newSynthesizer builds the real synthesizer; tests replace it
var newSynthesizer = func(sf *meltysynth.SoundFont, settings *meltysynth.SynthesizerSettings) (Synthesizer, error) {
	return meltysynth.NewSynthesizer(sf, settings)
}

// Synth feeds chain events to a synthesizer and reads its output as
// interleaved 16-bit little endian stereo PCM
type Synth struct {
	mu          sync.Mutex
	syn         Synthesizer
	sampleRate  int
	left, right []float32
	frames      int64
}

// New wraps a synthesizer running at sampleRate
func New(syn Synthesizer, sampleRate int) *Synth {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Synth{syn: syn, sampleRate: sampleRate}
}

// Load reads a SoundFont file and builds a synthesizer for it
func Load(path string, sampleRate int) (*Synth, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read soundfont: %w", err)
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse soundfont %s: %w", path, err)
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	syn, err := newSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	debug.Log("synth", "loaded %s at %d Hz", path, sampleRate)
	return New(syn, sampleRate), nil
}

// SampleRate returns the output rate in frames per second
func (s *Synth) SampleRate() int {
	return s.sampleRate
}

// Handle implements sequencer.Link
func (s *Synth) Handle(c *sequencer.Context) {
	s.Send(c.Event())
	c.Next()
}

// Send plays ev on the synthesizer. Meta events are ignored.
func (s *Synth) Send(ev smf.Event) {
	msgs := midi.Messages(ev)
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		s.process(msg)
	}
}

func (s *Synth) process(msg []byte) {
	if len(msg) == 0 {
		return
	}
	var d1, d2 int32
	if len(msg) > 1 {
		d1 = int32(msg[1])
	}
	if len(msg) > 2 {
		d2 = int32(msg[2])
	}
	s.syn.ProcessMidiMessage(int32(msg[0]&0x0F), int32(msg[0]&0xF0), d1, d2)
}

// Panic silences every channel at once
func (s *Synth) Panic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := uint8(0); ch < 16; ch++ {
		for _, msg := range midi.Silence(ch) {
			s.process(msg)
		}
	}
}

// Read renders len(p)/4 frames into p. It never fails; silence is rendered
// while nothing plays.
func (s *Synth) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if cap(s.left) < frames {
		s.left = make([]float32, frames)
		s.right = make([]float32, frames)
	}
	left, right := s.left[:frames], s.right[:frames]
	s.syn.Render(left, right)
	s.frames += int64(frames)
	s.mu.Unlock()

	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(p[4*i:], uint16(toPCM(left[i])))
		binary.LittleEndian.PutUint16(p[4*i+2:], uint16(toPCM(right[i])))
	}
	return frames * 4, nil
}

// Rendered returns how much audio has been read so far
func (s *Synth) Rendered() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.frames) * time.Second / time.Duration(s.sampleRate)
}

func toPCM(v float32) int16 {
	v = min(max(v, -1), 1)
	return int16(v * 32767)
}
