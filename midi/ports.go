package midi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-smfplay/debug"
)

// SendFunc writes one message to an open output
type SendFunc func(msg gomidi.Message) error

// ErrPortNotFound is returned when no output port matches a name
var ErrPortNotFound = errors.New("midi: output port not found")

// ErrDriverTimeout is returned when the driver does not answer a port scan
var ErrDriverTimeout = errors.New("midi: driver did not list ports in time")

// PortEvent is emitted when output ports appear or disappear
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

func (t PortEventType) String() string {
	if t == PortDisconnected {
		return "disconnected"
	}
	return "connected"
}

// PortManager lists output ports and keeps senders for the ones in use
type PortManager struct {
	mu      sync.RWMutex
	senders map[string]SendFunc
	known   map[string]bool

	events   chan PortEvent
	pollRate time.Duration
	timeout  time.Duration

	// listPorts is swapped out in tests
	listPorts func() []drivers.Out
}

// NewPortManager creates a port manager using the registered driver
func NewPortManager() *PortManager {
	return &PortManager{
		senders:  make(map[string]SendFunc),
		known:    make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
		timeout:  3 * time.Second,
		listPorts: func() []drivers.Out {
			return gomidi.GetOutPorts()
		},
	}
}

// Events returns port connect and disconnect notifications
func (pm *PortManager) Events() <-chan PortEvent {
	return pm.events
}

// OutPorts lists output ports. Some drivers hang while enumerating, so
// the scan gives up after the manager's timeout.
func (pm *PortManager) OutPorts() ([]drivers.Out, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- pm.listPorts()
	}()
	select {
	case ports := <-ch:
		return ports, nil
	case <-time.After(pm.timeout):
		debug.Log("ports", "port scan timed out after %v", pm.timeout)
		return nil, ErrDriverTimeout
	}
}

// Names lists output port names
func (pm *PortManager) Names() ([]string, error) {
	ports, err := pm.OutPorts()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.String())
	}
	return names, nil
}

// Find returns the port whose name equals query, or failing that the
// first whose name contains it, ignoring case. An empty query picks the
// first port.
func (pm *PortManager) Find(query string) (drivers.Out, error) {
	ports, err := pm.OutPorts()
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, ErrPortNotFound
	}
	if query == "" {
		return ports[0], nil
	}
	for _, p := range ports {
		if p.String() == query {
			return p, nil
		}
	}
	q := strings.ToLower(query)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), q) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, query)
}

// Sender returns a sender for the port matching name, opening it on
// first use
func (pm *PortManager) Sender(name string) (SendFunc, error) {
	pm.mu.RLock()
	if send, ok := pm.senders[name]; ok {
		pm.mu.RUnlock()
		return send, nil
	}
	pm.mu.RUnlock()

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if send, ok := pm.senders[name]; ok {
		return send, nil
	}

	port, err := pm.Find(name)
	if err != nil {
		return nil, err
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}
	debug.Log("ports", "opened %q for %q", port.String(), name)
	pm.senders[name] = send
	return send, nil
}

// Run polls for port changes until ctx is done (blocking - run in
// goroutine). The events channel is closed on return.
func (pm *PortManager) Run(ctx context.Context) {
	ticker := time.NewTicker(pm.pollRate)
	defer ticker.Stop()
	defer close(pm.events)

	pm.scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.scan()
		}
	}
}

func (pm *PortManager) scan() {
	ports, err := pm.OutPorts()
	if err != nil {
		return
	}

	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		seen[p.String()] = true
	}

	var changes []PortEvent
	pm.mu.Lock()
	for name := range seen {
		if !pm.known[name] {
			pm.known[name] = true
			changes = append(changes, PortEvent{Type: PortConnected, Name: name})
		}
	}
	for name := range pm.known {
		if !seen[name] {
			delete(pm.known, name)
			// a vanished port's sender is dead; reopen on next use
			delete(pm.senders, name)
			changes = append(changes, PortEvent{Type: PortDisconnected, Name: name})
		}
	}
	pm.mu.Unlock()

	for _, ev := range changes {
		select {
		case pm.events <- ev:
		default:
			debug.Log("ports", "dropped port event %s %q", ev.Type, ev.Name)
		}
	}
}

// Close closes the MIDI driver and every port it opened
func (pm *PortManager) Close() {
	pm.mu.Lock()
	pm.senders = make(map[string]SendFunc)
	pm.mu.Unlock()
	gomidi.CloseDriver()
}
