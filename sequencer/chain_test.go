package sequencer

import (
	"errors"
	"sync"
	"testing"

	"go-smfplay/smf"
)

func noteOn(tick uint64, ch, key uint8) smf.Event {
	return smf.Event{Kind: smf.NoteOn, Tick: tick, Channel: ch, Key: key, Velocity: 100}
}

func TestSyncChainRunsInOrder(t *testing.T) {
	var order []string
	link := func(name string) Link {
		return LinkFunc(func(c *Context) {
			order = append(order, name)
			c.Next()
		})
	}
	chain := NewChain(Synchronous, link("a"), link("b"), link("c"))
	chain.Deliver(noteOn(0, 0, 60))
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("order = %v", order)
	}
}

func TestSyncChainHaltsWithoutNext(t *testing.T) {
	rec := &Recorder{}
	chain := NewChain(Synchronous, LinkFunc(func(c *Context) {}), rec)
	chain.Deliver(noteOn(0, 0, 60))
	if rec.Len() != 0 {
		t.Fatalf("second link saw %d events", rec.Len())
	}
}

func TestChainRegister(t *testing.T) {
	chain := NewChain(Synchronous)
	chain.Deliver(noteOn(0, 0, 60))
	rec := &Recorder{}
	chain.Register(rec)
	chain.Deliver(noteOn(1, 0, 61))
	if evs := rec.Events(); len(evs) != 1 || evs[0].Key != 61 {
		t.Fatalf("recorded %v", evs)
	}
}

func TestAsyncChainIsFIFO(t *testing.T) {
	rec := &Recorder{}
	chain := NewChain(Asynchronous, NewNoteTracker(), rec)
	defer chain.Close()

	const n = 1000
	for i := 0; i < n; i++ {
		chain.Deliver(noteOn(uint64(i), 0, uint8(i%128)))
	}
	chain.Flush()

	evs := rec.Events()
	if len(evs) != n {
		t.Fatalf("recorded %d of %d", len(evs), n)
	}
	for i, ev := range evs {
		if ev.Tick != uint64(i) {
			t.Fatalf("event %d has tick %d", i, ev.Tick)
		}
	}
}

func TestAsyncChainFromManyGoroutines(t *testing.T) {
	rec := &Recorder{}
	chain := NewChain(Asynchronous, rec)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				chain.Deliver(noteOn(uint64(g*1000+i), uint8(g), 60))
			}
		}(g)
	}
	wg.Wait()
	chain.Close()

	evs := rec.Events()
	if len(evs) != 800 {
		t.Fatalf("recorded %d", len(evs))
	}
	// per producer order holds
	last := map[uint8]uint64{}
	for _, ev := range evs {
		if prev, ok := last[ev.Channel]; ok && ev.Tick < prev {
			t.Fatalf("channel %d went from %d to %d", ev.Channel, prev, ev.Tick)
		}
		last[ev.Channel] = ev.Tick
	}
}

func TestDeliverAfterCloseIsDropped(t *testing.T) {
	rec := &Recorder{}
	chain := NewChain(Asynchronous, rec)
	chain.Close()
	chain.Deliver(noteOn(0, 0, 60))
	chain.Flush()
	chain.Close()
	if rec.Len() != 0 {
		t.Fatalf("recorded %d after close", rec.Len())
	}
}

func TestPanickingLinkIsContained(t *testing.T) {
	boom := LinkFunc(func(c *Context) { panic("boom") })

	t.Run("sync", func(t *testing.T) {
		rec := &Recorder{}
		chain := NewChain(Synchronous, boom, rec)
		chain.Deliver(noteOn(0, 0, 60))
		chain.Deliver(noteOn(1, 0, 61))
		if chain.Failures() != 2 {
			t.Fatalf("failures = %d", chain.Failures())
		}
		if rec.Len() != 0 {
			t.Fatalf("sync chain went on after a panic")
		}
	})

	t.Run("async", func(t *testing.T) {
		rec := &Recorder{}
		chain := NewChain(Asynchronous, boom, rec)
		chain.Deliver(noteOn(0, 0, 60))
		chain.Deliver(noteOn(1, 0, 61))
		chain.Close()
		if chain.Failures() != 2 {
			t.Fatalf("failures = %d", chain.Failures())
		}
		if rec.Len() != 2 {
			t.Fatalf("recorded %d, want 2", rec.Len())
		}
	})
}

func expectInactive(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		v := recover()
		err, ok := v.(error)
		if !ok || !errors.Is(err, ErrContextInactive) {
			t.Errorf("%s: recovered %v, want ErrContextInactive", name, v)
		}
	}()
	fn()
}

func TestContextOutsideLinkPanics(t *testing.T) {
	var kept *Context
	chain := NewChain(Synchronous, LinkFunc(func(c *Context) {
		kept = c
		c.Next()
	}))
	chain.Deliver(noteOn(0, 0, 60))
	if kept == nil {
		t.Fatal("link not called")
	}
	expectInactive(t, "Event", func() { kept.Event() })
	expectInactive(t, "Next", func() { kept.Next() })
}

func TestChannelFilter(t *testing.T) {
	f := NewChannelFilter(9)
	rec := &Recorder{}
	chain := NewChain(Synchronous, f, rec)

	chain.Deliver(noteOn(0, 9, 36))
	chain.Deliver(noteOn(0, 0, 60))
	chain.Deliver(smf.Event{Kind: smf.SetTempo, Channel: smf.NoChannel, Tempo: 500000})
	if rec.Len() != 2 {
		t.Fatalf("recorded %v", rec.Events())
	}

	if f.Toggle(9) {
		t.Fatal("toggle left channel 9 muted")
	}
	if !f.Toggle(0) || !f.Muted(0) {
		t.Fatal("channel 0 not muted")
	}
	chain.Deliver(noteOn(1, 9, 36))
	chain.Deliver(noteOn(1, 0, 60))
	if evs := rec.Events(); len(evs) != 3 || evs[2].Channel != 9 {
		t.Fatalf("recorded %v", evs)
	}
}

func TestNoteTracker(t *testing.T) {
	nt := NewNoteTracker()
	nt.Observe(noteOn(0, 2, 60))
	nt.Observe(smf.Event{Kind: smf.NoteOn, Channel: 2, Key: 64, Velocity: 120})
	if nt.Sounding(2) != 2 || nt.Velocity(2) != 120 {
		t.Fatalf("sounding=%d velocity=%d", nt.Sounding(2), nt.Velocity(2))
	}
	nt.Observe(smf.Event{Kind: smf.NoteOff, Channel: 2, Key: 64})
	if nt.Sounding(2) != 1 || nt.Velocity(2) != 100 {
		t.Fatalf("after note off: sounding=%d velocity=%d", nt.Sounding(2), nt.Velocity(2))
	}
	nt.Observe(smf.Event{Kind: smf.AllNotesOff, Channel: 2})
	if nt.Sounding(2) != 0 {
		t.Fatal("all notes off left notes sounding")
	}
	nt.Observe(smf.Event{Kind: smf.Lyric, Channel: smf.NoChannel, Text: "la"})
	if nt.Text() != "la" {
		t.Fatalf("text = %q", nt.Text())
	}
	nt.Reset()
	if nt.Text() != "" {
		t.Fatal("reset kept text")
	}
}
