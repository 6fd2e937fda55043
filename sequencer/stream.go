package sequencer

import (
	"container/heap"

	"go-smfplay/smf"
)

// Stream yields events in playback order
type Stream interface {
	// Next returns the next event, or false once the stream is exhausted
	Next() (smf.Event, bool)
}

// cursor walks one track
type cursor struct {
	track  int
	events []smf.Event
	pos    int
}

func (c *cursor) head() smf.Event { return c.events[c.pos] }

// cursorHeap orders cursors by the tick of their next event, then by track
// number, so simultaneous events come out in file order
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].head(), h[j].head()
	if a.Tick != b.Tick {
		return a.Tick < b.Tick
	}
	return h[i].track < h[j].track
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// MergedStream is a k-way merge of tracks by non-decreasing tick. Each
// track's own order is kept, and ties across tracks go to the lower track.
// It is not safe for concurrent use; the playback worker owns it.
type MergedStream struct {
	h cursorHeap
}

// Merge returns a stream over all events of tracks
func Merge(tracks []*smf.Track) *MergedStream {
	return MergeFrom(tracks, 0)
}

// MergeFrom returns a stream over the events of tracks at or after tick
func MergeFrom(tracks []*smf.Track, tick uint64) *MergedStream {
	m := &MergedStream{}
	for i, t := range tracks {
		c := &cursor{track: i, events: t.Events}
		for c.pos < len(c.events) && c.events[c.pos].Tick < tick {
			c.pos++
		}
		if c.pos < len(c.events) {
			m.h = append(m.h, c)
		}
	}
	heap.Init(&m.h)
	return m
}

// Next implements Stream
func (m *MergedStream) Next() (smf.Event, bool) {
	if len(m.h) == 0 {
		return smf.Event{}, false
	}
	c := m.h[0]
	ev := c.head()
	c.pos++
	if c.pos == len(c.events) {
		heap.Pop(&m.h)
	} else {
		heap.Fix(&m.h, 0)
	}
	return ev, true
}

// SliceStream replays a fixed list of events in order
type SliceStream struct {
	events []smf.Event
	pos    int
}

// NewSliceStream returns a stream over events
func NewSliceStream(events []smf.Event) *SliceStream {
	return &SliceStream{events: events}
}

// Next implements Stream
func (s *SliceStream) Next() (smf.Event, bool) {
	if s.pos >= len(s.events) {
		return smf.Event{}, false
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, true
}
