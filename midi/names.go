package midi

import "fmt"

// DrumChannel is the General MIDI percussion channel (10, zero-based 9)
const DrumChannel uint8 = 9

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName names a key with middle C (60) as C4
func NoteName(key uint8) string {
	return fmt.Sprintf("%s%d", pitchClasses[key%12], int(key)/12-1)
}

// gmDrums are the General MIDI level 1 percussion names, keys 35-81
var gmDrums = [...]string{
	"Acoustic Bass Drum", "Bass Drum 1", "Side Stick", "Acoustic Snare",
	"Hand Clap", "Electric Snare", "Low Floor Tom", "Closed Hi-Hat",
	"High Floor Tom", "Pedal Hi-Hat", "Low Tom", "Open Hi-Hat",
	"Low-Mid Tom", "Hi-Mid Tom", "Crash Cymbal 1", "High Tom",
	"Ride Cymbal 1", "Chinese Cymbal", "Ride Bell", "Tambourine",
	"Splash Cymbal", "Cowbell", "Crash Cymbal 2", "Vibraslap",
	"Ride Cymbal 2", "Hi Bongo", "Low Bongo", "Mute Hi Conga",
	"Open Hi Conga", "Low Conga", "High Timbale", "Low Timbale",
	"High Agogo", "Low Agogo", "Cabasa", "Maracas",
	"Short Whistle", "Long Whistle", "Short Guiro", "Long Guiro",
	"Claves", "Hi Wood Block", "Low Wood Block", "Mute Cuica",
	"Open Cuica", "Mute Triangle", "Open Triangle",
}

const firstDrum = 35

// DrumName names a General MIDI percussion key, or "" outside the map
func DrumName(key uint8) string {
	if key < firstDrum || int(key-firstDrum) >= len(gmDrums) {
		return ""
	}
	return gmDrums[key-firstDrum]
}

// KeyName names key as heard on channel ch: a drum on the percussion
// channel, a pitch elsewhere
func KeyName(ch, key uint8) string {
	if ch&0x0F == DrumChannel {
		if name := DrumName(key); name != "" {
			return name
		}
	}
	return NoteName(key)
}
