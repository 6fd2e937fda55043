package sequencer

import (
	"sync"
	"sync/atomic"

	"go-smfplay/smf"
)

// ChannelFilter drops channel events on muted channels. Meta events always
// pass.
type ChannelFilter struct {
	muted atomic.Uint32 // bit n set = channel n muted
}

// NewChannelFilter returns a filter with the given channels muted
func NewChannelFilter(muted ...uint8) *ChannelFilter {
	f := &ChannelFilter{}
	for _, ch := range muted {
		f.SetMuted(ch, true)
	}
	return f
}

// SetMuted mutes or unmutes a channel
func (f *ChannelFilter) SetMuted(ch uint8, muted bool) {
	if ch > 15 {
		return
	}
	bit := uint32(1) << ch
	for {
		old := f.muted.Load()
		next := old &^ bit
		if muted {
			next = old | bit
		}
		if f.muted.CompareAndSwap(old, next) {
			return
		}
	}
}

// Toggle flips a channel's mute and returns the new state
func (f *ChannelFilter) Toggle(ch uint8) bool {
	m := !f.Muted(ch)
	f.SetMuted(ch, m)
	return m
}

// Muted reports whether ch is muted
func (f *ChannelFilter) Muted(ch uint8) bool {
	if ch > 15 {
		return false
	}
	return f.muted.Load()&(1<<ch) != 0
}

// MutedChannels lists the muted channels in order
func (f *ChannelFilter) MutedChannels() []uint8 {
	var out []uint8
	for ch := uint8(0); ch < 16; ch++ {
		if f.Muted(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Handle implements Link
func (f *ChannelFilter) Handle(c *Context) {
	ev := c.Event()
	if ev.Kind.IsChannel() && f.Muted(ev.Channel) {
		return
	}
	c.Next()
}

// NoteTracker keeps the set of sounding notes per channel
type NoteTracker struct {
	mu     sync.Mutex
	active [16]map[uint8]uint8 // key -> velocity
	text   string
}

// NewNoteTracker returns an empty tracker
func NewNoteTracker() *NoteTracker {
	return &NoteTracker{}
}

// Handle implements Link
func (t *NoteTracker) Handle(c *Context) {
	t.Observe(c.Event())
	c.Next()
}

// Observe updates the tracker with ev
func (t *NoteTracker) Observe(ev smf.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case smf.NoteOn:
		if t.active[ev.Channel&0x0F] == nil {
			t.active[ev.Channel&0x0F] = make(map[uint8]uint8)
		}
		t.active[ev.Channel&0x0F][ev.Key] = ev.Velocity
	case smf.NoteOff:
		delete(t.active[ev.Channel&0x0F], ev.Key)
	case smf.AllNotesOff:
		t.active[ev.Channel&0x0F] = nil
	case smf.Lyric, smf.Marker, smf.Text:
		t.text = ev.Text
	}
}

// Sounding returns how many notes are held on ch
func (t *NoteTracker) Sounding(ch uint8) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active[ch&0x0F])
}

// Velocity returns the highest velocity held on ch, 0 when silent
func (t *NoteTracker) Velocity(ch uint8) uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var v uint8
	for _, vel := range t.active[ch&0x0F] {
		v = max(v, vel)
	}
	return v
}

// Text returns the last lyric, marker or text event seen
func (t *NoteTracker) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Reset forgets all notes and text
func (t *NoteTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = [16]map[uint8]uint8{}
	t.text = ""
}

// Recorder keeps every event it sees
type Recorder struct {
	mu     sync.Mutex
	events []smf.Event
}

// Handle implements Link
func (r *Recorder) Handle(c *Context) {
	r.mu.Lock()
	r.events = append(r.events, c.Event())
	r.mu.Unlock()
	c.Next()
}

// Events returns a copy of what has been recorded
func (r *Recorder) Events() []smf.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]smf.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
