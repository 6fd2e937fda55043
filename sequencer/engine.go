package sequencer

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go-smfplay/debug"
	"go-smfplay/smf"
)

// DefaultSpinThreshold is how close to an event's deadline the worker stops
// sleeping on a timer and yields in a loop instead
const DefaultSpinThreshold = 5 * time.Millisecond

// Timing maps ticks to milliseconds since playback start
type Timing interface {
	MillisecondOffset(tick uint64) uint64
}

// Sink receives events when they are due
type Sink interface {
	Deliver(ev smf.Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ev smf.Event)

// Deliver implements Sink
func (f SinkFunc) Deliver(ev smf.Event) { f(ev) }

// session is one Start..Stop run of the engine
type session struct {
	timing Timing
	sink   Sink
	stream Stream
	start  time.Time

	stop      chan struct{}
	stopOnce  sync.Once
	cancelled atomic.Bool
	done      chan struct{}
}

func (s *session) cancel() {
	s.stopOnce.Do(func() {
		s.cancelled.Store(true)
		close(s.stop)
	})
}

// Engine plays event streams in real time on one dedicated worker. Each
// event is delivered when the wall clock reaches start time plus the
// event's millisecond offset. The worker sleeps on a timer until the
// deadline is within the spin threshold, then yields until it passes.
type Engine struct {
	mu      sync.Mutex
	current *session

	sessions chan *session
	quit     chan struct{}
	quitOnce sync.Once
	exited   chan struct{}

	spin      time.Duration
	running   atomic.Bool
	position  atomic.Uint64
	delivered atomic.Uint64
}

// NewEngine starts the worker. A spin threshold of zero or less uses
// DefaultSpinThreshold.
func NewEngine(spin time.Duration) *Engine {
	if spin <= 0 {
		spin = DefaultSpinThreshold
	}
	e := &Engine{
		sessions: make(chan *session, 1),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
		spin:     spin,
	}
	go e.run()
	return e
}

// Start begins a new session with time zero at the moment of the call. A
// session already running is stopped first. The returned channel is
// closed when the session's stream runs out or the session is stopped.
func (e *Engine) Start(timing Timing, sink Sink, stream Stream) <-chan struct{} {
	s := &session{
		timing: timing,
		sink:   sink,
		stream: stream,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.quit:
		debug.Log("engine", "start after close ignored")
		close(s.done)
		return s.done
	default:
	}
	if e.current != nil {
		e.current.cancel()
	}
	// a session the worker never picked up is dropped
	select {
	case old := <-e.sessions:
		close(old.done)
	default:
	}
	s.start = time.Now()
	e.current = s
	e.position.Store(0)
	e.running.Store(true)
	e.sessions <- s
	debug.Log("engine", "session started")
	return s.done
}

// Stop cancels the running session. Once Stop returns no further event of
// that session is delivered, apart from one already being delivered.
// Calling it while stopped does nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	e.current.cancel()
	e.current = nil
	e.running.Store(false)
	debug.Log("engine", "session stopped at tick %d", e.position.Load())
}

// IsRunning reports whether a session is active. A session whose stream
// has run out stays active until Stop or the next Start.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Position returns the tick of the last delivered event
func (e *Engine) Position() uint64 {
	return e.position.Load()
}

// Delivered returns how many events have been handed to sinks overall
func (e *Engine) Delivered() uint64 {
	return e.delivered.Load()
}

// Close stops any session and shuts the worker down
func (e *Engine) Close() {
	e.Stop()
	e.quitOnce.Do(func() { close(e.quit) })
	<-e.exited
}

// run is the worker. It holds its OS thread so the spin phase is not
// rescheduled onto a busy thread.
func (e *Engine) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(e.exited)

	for {
		select {
		case <-e.quit:
			return
		case s := <-e.sessions:
			e.play(s)
		}
	}
}

func (e *Engine) play(s *session) {
	defer close(s.done)
	count := 0
	for {
		if s.cancelled.Load() {
			break
		}
		ev, ok := s.stream.Next()
		if !ok {
			debug.Log("engine", "stream exhausted after %d events", count)
			return
		}
		due := s.start.Add(time.Duration(s.timing.MillisecondOffset(ev.Tick)) * time.Millisecond)
		if !e.waitUntil(s, due) {
			break
		}
		s.sink.Deliver(ev)
		e.position.Store(ev.Tick)
		e.delivered.Add(1)
		count++
	}
	debug.Log("engine", "session cancelled after %d events", count)
}

// waitUntil blocks until due and reports false if the session was
// cancelled first
func (e *Engine) waitUntil(s *session, due time.Time) bool {
	for {
		remaining := time.Until(due)
		if remaining <= 0 {
			return !s.cancelled.Load()
		}
		if remaining > e.spin {
			timer := time.NewTimer(remaining - e.spin)
			select {
			case <-s.stop:
				timer.Stop()
				return false
			case <-timer.C:
			}
			continue
		}
		if s.cancelled.Load() {
			return false
		}
		runtime.Gosched()
	}
}
