package midi

import (
	"sync"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-smfplay/debug"
	"go-smfplay/sequencer"
	"go-smfplay/smf"
)

// OutputLink sends channel events to a MIDI output and passes every event
// on down the chain
type OutputLink struct {
	send SendFunc

	mu       sync.Mutex
	sounding [16]map[uint8]bool

	sent   atomic.Uint64
	errors atomic.Uint64
}

// NewOutputLink returns a link writing to send
func NewOutputLink(send SendFunc) *OutputLink {
	return &OutputLink{send: send}
}

// Handle implements sequencer.Link
func (o *OutputLink) Handle(c *sequencer.Context) {
	o.Send(c.Event())
	c.Next()
}

// Send writes ev to the output
func (o *OutputLink) Send(ev smf.Event) {
	msgs := Messages(ev)
	if len(msgs) == 0 {
		return
	}
	o.track(ev)
	for _, msg := range msgs {
		o.write(msg)
	}
}

func (o *OutputLink) write(msg gomidi.Message) {
	if err := o.send(msg); err != nil {
		if o.errors.Add(1) == 1 {
			debug.Log("output", "send %v: %v", msg, err)
		}
		debug.LogEvery(100, "output", "send failures continue: %v", err)
		return
	}
	o.sent.Add(1)
}

func (o *OutputLink) track(ev smf.Event) {
	ch := ev.Channel & 0x0F
	o.mu.Lock()
	defer o.mu.Unlock()
	switch ev.Kind {
	case smf.NoteOn:
		if o.sounding[ch] == nil {
			o.sounding[ch] = make(map[uint8]bool)
		}
		o.sounding[ch][ev.Key] = true
	case smf.NoteOff:
		delete(o.sounding[ch], ev.Key)
	case smf.AllNotesOff:
		o.sounding[ch] = nil
	}
}

// Panic releases every note this link started and silences all channels.
// Call it after stopping playback.
func (o *OutputLink) Panic() {
	o.mu.Lock()
	sounding := o.sounding
	o.sounding = [16]map[uint8]bool{}
	o.mu.Unlock()

	released := 0
	for ch := uint8(0); ch < 16; ch++ {
		for key := range sounding[ch] {
			o.write(gomidi.NoteOff(ch, key))
			released++
		}
		for _, msg := range Silence(ch) {
			o.write(msg)
		}
	}
	debug.Log("output", "panic released %d notes", released)
}

// Sent returns how many messages were written successfully
func (o *OutputLink) Sent() uint64 {
	return o.sent.Load()
}

// Errors returns how many writes failed
func (o *OutputLink) Errors() uint64 {
	return o.errors.Load()
}
