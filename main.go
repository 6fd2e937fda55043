package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hako/durafmt"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-smfplay/config"
	"go-smfplay/debug"
	"go-smfplay/midi"
	"go-smfplay/sequencer"
	"go-smfplay/smf"
	"go-smfplay/synth"
	"go-smfplay/theme"
	"go-smfplay/timing"
	"go-smfplay/tui"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: config: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "play":
		err = play(cfg, os.Args[2:])
	case "info":
		err = info(cfg, os.Args[2:])
	case "ports":
		err = listPorts()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("go-smfplay - Standard MIDI File player")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  play [flags] <file>  - Play a file to a MIDI port or SoundFont")
	fmt.Println("  info [flags] <file>  - Describe a file")
	fmt.Println("  ports                - List MIDI output ports")
}

func fileArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", errors.New(fs.Name() + ": expected one file")
	}
	return fs.Arg(0), nil
}

func play(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	port := fs.String("port", cfg.Output.PortName, "MIDI output port (name or part of it)")
	soundFont := fs.String("soundfont", cfg.Synth.SoundFont, "play through this .sf2 instead of a MIDI port")
	async := fs.Bool("async", cfg.Playback.AsyncChain, "deliver events on a separate goroutine")
	verbose := fs.Bool("debug", false, "write a debug log")
	fs.Parse(args)

	path, err := fileArg(fs)
	if err != nil {
		return err
	}
	if *verbose {
		if err := debug.Enable(); err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
		defer debug.Disable()
	}

	stat, err := os.Stat(path)
	if err != nil {
		return err
	}
	tl, err := smf.ReadFileWith(path, smf.Options{Workers: cfg.Decode.Workers})
	if err != nil {
		return err
	}

	palette, err := theme.LoadOrDefault(cfg.UI.Palette)
	if err != nil {
		return fmt.Errorf("palette: %w", err)
	}

	notes := sequencer.NewNoteTracker()
	filter := sequencer.NewChannelFilter(cfg.Muted()...)
	links := []sequencer.Link{filter, notes}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ports *midi.PortManager
	var silence func()
	var output string
	if *soundFont != "" {
		s, err := synth.Load(*soundFont, cfg.Synth.SampleRate)
		if err != nil {
			return err
		}
		player, err := synth.Start(s)
		if err != nil {
			return err
		}
		defer player.Close()
		links = append(links, s)
		silence = s.Panic
		output = filepath.Base(*soundFont)
	} else {
		ports = midi.NewPortManager()
		defer ports.Close()
		send, err := ports.Sender(*port)
		if err != nil {
			return err
		}
		out := midi.NewOutputLink(send)
		links = append(links, out)
		silence = out.Panic
		output = *port
		if output == "" {
			output = "first port"
		}
		go ports.Run(ctx)
	}

	mode := sequencer.Synchronous
	if *async {
		mode = sequencer.Asynchronous
	}
	chain := sequencer.NewChain(mode, links...)
	defer chain.Close()

	engine := sequencer.NewEngine(cfg.SpinThreshold())
	defer engine.Close()

	p := &tui.Player{
		Timeline: tl,
		Tempo:    timing.FromTimeline(tl),
		FileSize: stat.Size(),
		Engine:   engine,
		Sink:     chain,
		Notes:    notes,
		Filter:   filter,
		Output:   output,
		Silence: func() {
			// queued events must not sound after the panic
			chain.Flush()
			silence()
		},
	}
	th := theme.New(palette)
	m := tui.NewModel(p, ports, th)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}

	if muted := filter.MutedChannels(); !slices.Equal(muted, cfg.Muted()) {
		cfg.SetMuted(muted)
		if err := cfg.Save(); err != nil {
			debug.Log("main", "save config: %v", err)
		}
	}
	return nil
}

func info(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	events := fs.Bool("events", false, "list every event with its time")
	channel := fs.Int("channel", 0, "with -events, hide channel events on other channels (1-16)")
	fs.Parse(args)

	path, err := fileArg(fs)
	if err != nil {
		return err
	}
	tl, err := smf.ReadFileWith(path, smf.Options{Workers: cfg.Decode.Workers})
	if err != nil {
		return err
	}
	tempo := timing.FromTimeline(tl)

	fmt.Printf("File:      %s\n", tl.Source)
	fmt.Printf("Format:    %s\n", tl.Format)
	fmt.Printf("Timing:    %s\n", tl.Encoding)
	fmt.Printf("Duration:  %s\n", durafmt.Parse(tempo.Duration(tl.EndTick())).LimitFirstN(2))
	fmt.Printf("Events:    %d\n", tl.EventCount())
	fmt.Printf("Channels:  %v\n", oneBased(tl.Channels))
	fmt.Println("")
	fmt.Println("=== Tempo ===")
	for _, r := range tempo.Ranges() {
		fmt.Printf("  tick %-8d %7.2f bpm  at %s\n", r.Start, smf.BPM(r.Tempo), tempo.Duration(r.Start))
	}
	fmt.Println("")
	fmt.Println("=== Tracks ===")
	for i, t := range tl.Tracks {
		fmt.Printf("  %2d: %-24q %6d events, ends at tick %d\n", i, t.Name, len(t.Events), t.EndTick)
	}

	if !*events {
		return nil
	}
	filter := sequencer.NewChannelFilter()
	if *channel != 0 {
		if *channel < 1 || *channel > 16 {
			return fmt.Errorf("channel %d out of range 1-16", *channel)
		}
		for ch := uint8(0); ch < 16; ch++ {
			filter.SetMuted(ch, int(ch) != *channel-1)
		}
	}
	rec := &sequencer.Recorder{}
	chain := sequencer.NewChain(sequencer.Synchronous, filter, rec)
	stream := sequencer.Merge(tl.Tracks)
	for ev, ok := stream.Next(); ok; ev, ok = stream.Next() {
		chain.Deliver(ev)
	}
	fmt.Println("")
	fmt.Println("=== Events ===")
	for _, ev := range rec.Events() {
		switch ev.Kind {
		case smf.NoteOn, smf.NoteOff, smf.PolyAftertouch:
			fmt.Printf("  %10s  %v  (%s)\n", tempo.Duration(ev.Tick), ev, midi.KeyName(ev.Channel, ev.Key))
		default:
			fmt.Printf("  %10s  %v\n", tempo.Duration(ev.Tick), ev)
		}
	}
	return nil
}

func oneBased(channels []uint8) []int {
	out := make([]int, len(channels))
	for i, ch := range channels {
		out[i] = int(ch) + 1
	}
	return out
}

func listPorts() error {
	fmt.Println("=== MIDI Output Ports ===")
	pm := midi.NewPortManager()
	defer pm.Close()
	names, err := pm.Names()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("  (none)")
	}
	for i, name := range names {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}
