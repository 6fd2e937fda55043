package midi

import (
	"context"
	"errors"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// fakePort only answers String; nothing opens it
type fakePort struct {
	drivers.Out
	name string
}

func (p fakePort) String() string { return p.name }

func testManager(names ...string) *PortManager {
	pm := NewPortManager()
	pm.listPorts = func() []drivers.Out {
		ports := make([]drivers.Out, len(names))
		for i, n := range names {
			ports[i] = fakePort{name: n}
		}
		return ports
	}
	return pm
}

func TestFindPort(t *testing.T) {
	pm := testManager("Midi Through Port-0", "FluidSynth virtual port (1234)", "IAC Driver Bus 1")
	tests := []struct {
		query string
		want  string
	}{
		{"", "Midi Through Port-0"},
		{"IAC Driver Bus 1", "IAC Driver Bus 1"},
		{"fluidsynth", "FluidSynth virtual port (1234)"},
	}
	for _, tt := range tests {
		p, err := pm.Find(tt.query)
		if err != nil {
			t.Fatalf("Find(%q): %v", tt.query, err)
		}
		if p.String() != tt.want {
			t.Errorf("Find(%q) = %q, want %q", tt.query, p.String(), tt.want)
		}
	}
	if _, err := pm.Find("launchpad"); !errors.Is(err, ErrPortNotFound) {
		t.Errorf("err = %v, want ErrPortNotFound", err)
	}
	if _, err := testManager().Find(""); !errors.Is(err, ErrPortNotFound) {
		t.Errorf("no ports: err = %v", err)
	}
}

func TestOutPortsTimeout(t *testing.T) {
	pm := NewPortManager()
	pm.timeout = 10 * time.Millisecond
	block := make(chan struct{})
	defer close(block)
	pm.listPorts = func() []drivers.Out {
		<-block
		return nil
	}
	if _, err := pm.OutPorts(); !errors.Is(err, ErrDriverTimeout) {
		t.Fatalf("err = %v, want ErrDriverTimeout", err)
	}
}

func TestScanReportsChanges(t *testing.T) {
	names := []string{"a", "b"}
	pm := NewPortManager()
	pm.listPorts = func() []drivers.Out {
		var ports []drivers.Out
		for _, n := range names {
			ports = append(ports, fakePort{name: n})
		}
		return ports
	}

	pm.scan()
	names = []string{"b", "c"}
	pm.scan()

	got := map[string]PortEventType{}
	connected := 0
	for len(pm.events) > 0 {
		ev := <-pm.events
		if ev.Type == PortConnected {
			connected++
		}
		got[ev.Name] = ev.Type
	}
	if connected != 3 {
		t.Errorf("connected events = %d, want 3", connected)
	}
	if got["a"] != PortDisconnected || got["c"] != PortConnected {
		t.Errorf("events = %v", got)
	}
}

func TestRunClosesEvents(t *testing.T) {
	pm := testManager("a")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pm.Run(ctx)
		close(done)
	}()
	ev := <-pm.Events()
	if ev.Name != "a" || ev.Type != PortConnected {
		t.Fatalf("first event = %+v", ev)
	}
	cancel()
	<-done
	if _, ok := <-pm.Events(); ok {
		t.Fatal("events channel still open")
	}
}
