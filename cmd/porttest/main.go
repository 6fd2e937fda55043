package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-smfplay/midi"
	"go-smfplay/smf"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	pm := midi.NewPortManager()
	defer pm.Close()

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts(pm)
	case "tone":
		port := ""
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		err = tone(pm, port)
	case "poll":
		pollPorts(pm)
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI Port Checks")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List MIDI output ports")
	fmt.Println("  tone [port]   - Play a scale and a drum hit on a port")
	fmt.Println("  poll          - Report ports as they come and go")
}

func listPorts(pm *midi.PortManager) error {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")
	names, err := pm.Names()
	if err != nil {
		fmt.Println("\nTIMEOUT! The MIDI driver is hung.")
		fmt.Println("Fix (macOS): sudo killall coreaudiod midiserver")
		return err
	}
	for i, name := range names {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

func tone(pm *midi.PortManager, port string) error {
	send, err := pm.Sender(port)
	if err != nil {
		return err
	}
	out := midi.NewOutputLink(send)
	defer out.Panic()

	note := func(ch, key uint8, length time.Duration) {
		fmt.Printf("  ch %2d  %s\n", ch+1, midi.KeyName(ch, key))
		out.Send(smf.Event{Kind: smf.NoteOn, Channel: ch, Key: key, Velocity: 100})
		time.Sleep(length)
		out.Send(smf.Event{Kind: smf.NoteOff, Channel: ch, Key: key})
	}

	fmt.Println("Scale on channel 1...")
	for _, key := range []uint8{60, 62, 64, 65, 67, 69, 71, 72} {
		note(0, key, 150*time.Millisecond)
	}
	fmt.Println("Drums on channel 10...")
	for _, key := range []uint8{36, 38, 42, 49} {
		note(midi.DrumChannel, key, 200*time.Millisecond)
	}

	fmt.Printf("Done! %d messages sent, %d failed\n", out.Sent(), out.Errors())
	return nil
}

func pollPorts(pm *midi.PortManager) {
	fmt.Println("Polling for port changes every second...")
	fmt.Println("Connect/disconnect devices to test. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go pm.Run(ctx)

	for ev := range pm.Events() {
		fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), ev.Type, ev.Name)
	}
}
