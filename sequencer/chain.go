package sequencer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"go-smfplay/debug"
	"go-smfplay/smf"
)

// Delivery selects where a chain runs its links
type Delivery int

const (
	// Synchronous runs every link on the delivering goroutine
	Synchronous Delivery = iota
	// Asynchronous hands each event to one ordering goroutine, FIFO
	Asynchronous
)

func (d Delivery) String() string {
	if d == Asynchronous {
		return "async"
	}
	return "sync"
}

// ErrContextInactive is the panic value when a Context is used outside the
// link call it was handed to
var ErrContextInactive = errors.New("sequencer: chain context used outside its link")

// Link reacts to the current event. It continues the chain by calling
// c.Next(); returning without calling it stops propagation for this event.
type Link interface {
	Handle(c *Context)
}

// LinkFunc adapts a function to Link
type LinkFunc func(c *Context)

// Handle implements Link
func (f LinkFunc) Handle(c *Context) { f(c) }

// Context is what a link sees of the event being delivered. It is only
// valid during the Handle call it was passed to.
type Context struct {
	run       *run
	pos       int
	active    bool
	forwarded bool
}

// run is one event travelling through a snapshot of the links
type run struct {
	chain *Chain
	links []Link
	ev    smf.Event
}

// Event returns the event being delivered
func (c *Context) Event() smf.Event {
	if !c.active {
		panic(ErrContextInactive)
	}
	return c.run.ev
}

// Next hands the event to the following link
func (c *Context) Next() {
	if !c.active {
		panic(ErrContextInactive)
	}
	if c.forwarded {
		panic(fmt.Errorf("sequencer: link %d forwarded twice", c.pos))
	}
	c.forwarded = true
	c.run.invoke(c.pos + 1)
}

// invoke runs link i. A panicking link is logged; in asynchronous chains
// the event still goes on to the next link.
func (r *run) invoke(i int) {
	if i >= len(r.links) {
		return
	}
	c := &Context{run: r, pos: i, active: true}
	defer func() {
		c.active = false
		if v := recover(); v != nil {
			r.chain.linkFailed(i, r.ev, v)
			if r.chain.mode == Asynchronous && !c.forwarded {
				c.forwarded = true
				r.invoke(i + 1)
			}
		}
	}()
	r.links[i].Handle(c)
}

type delivery struct {
	ev    smf.Event
	flush chan struct{} // non-nil for Flush markers
}

// Chain is an ordered list of links that every delivered event is offered
// to. It implements Sink, so an Engine can play straight into it.
type Chain struct {
	mode Delivery

	mu    sync.RWMutex
	links []Link

	// asynchronous delivery
	queue   chan delivery
	closed  bool
	done    chan struct{}
	qMu     sync.RWMutex
	limiter *rate.Limiter

	failures atomic.Int64
}

// queueSize bounds how far the ordering goroutine may fall behind
const queueSize = 256

// NewChain builds a chain with the given delivery mode and links
func NewChain(mode Delivery, links ...Link) *Chain {
	c := &Chain{
		mode:    mode,
		links:   links,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	if mode == Asynchronous {
		c.queue = make(chan delivery, queueSize)
		c.done = make(chan struct{})
		go c.order()
	}
	return c
}

// Mode returns the delivery mode
func (c *Chain) Mode() Delivery {
	return c.mode
}

// Register appends a link. It takes effect from the next delivered event.
func (c *Chain) Register(l Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	links := make([]Link, len(c.links), len(c.links)+1)
	copy(links, c.links)
	c.links = append(links, l)
}

func (c *Chain) snapshot() []Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.links
}

// Deliver offers ev to the chain. Synchronous chains return once the chain
// has finished with it; asynchronous chains queue it.
func (c *Chain) Deliver(ev smf.Event) {
	if c.mode == Synchronous {
		c.dispatch(ev)
		return
	}

	c.qMu.RLock()
	defer c.qMu.RUnlock()
	if c.closed {
		debug.Log("chain", "deliver after close dropped: %v", ev)
		return
	}
	c.queue <- delivery{ev: ev}
}

func (c *Chain) dispatch(ev smf.Event) {
	r := &run{chain: c, links: c.snapshot(), ev: ev}
	r.invoke(0)
}

// order is the single goroutine running asynchronous deliveries
func (c *Chain) order() {
	defer close(c.done)
	for d := range c.queue {
		if d.flush != nil {
			close(d.flush)
			continue
		}
		c.dispatch(d.ev)
	}
}

// Flush waits until every event delivered so far has been through the
// chain
func (c *Chain) Flush() {
	if c.mode == Synchronous {
		return
	}
	c.qMu.RLock()
	if c.closed {
		c.qMu.RUnlock()
		return
	}
	marker := make(chan struct{})
	c.queue <- delivery{flush: marker}
	c.qMu.RUnlock()
	<-marker
}

// Close drains queued events and stops the ordering goroutine
func (c *Chain) Close() {
	if c.mode == Synchronous {
		return
	}
	c.qMu.Lock()
	if c.closed {
		c.qMu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.qMu.Unlock()
	<-c.done
}

// Failures returns how many link calls have panicked
func (c *Chain) Failures() int64 {
	return c.failures.Load()
}

func (c *Chain) linkFailed(i int, ev smf.Event, v any) {
	n := c.failures.Add(1)
	if c.limiter.Allow() {
		debug.Log("chain", "link %d failed on %v: %v (failures=%d)", i, ev, v, n)
	}
}
