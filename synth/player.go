package synth

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// bufferSize keeps the audible delay behind the event clock small
const bufferSize = 60 * time.Millisecond

// Start plays s through the system audio device. There is one audio
// context per process, so every Synth must share its sample rate.
func Start(s *Synth) (*audio.Player, error) {
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(s.SampleRate())
	} else if ctx.SampleRate() != s.SampleRate() {
		return nil, fmt.Errorf("audio context runs at %d Hz, synth at %d Hz", ctx.SampleRate(), s.SampleRate())
	}
	p, err := ctx.NewPlayer(s)
	if err != nil {
		return nil, fmt.Errorf("audio player: %w", err)
	}
	p.SetBufferSize(bufferSize)
	p.Play()
	return p, nil
}
