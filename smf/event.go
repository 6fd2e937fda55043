package smf

import "fmt"

// Kind identifies an event variant
type Kind uint8

// Channel voice events
const (
	NoteOff Kind = iota + 1
	NoteOn
	PolyAftertouch
	ControlChange
	ProgramChange
	ChannelAftertouch
	PitchBend
	BankSelect  // derived from CC 0 + CC 32
	AllNotesOff // derived from CC 123-127
)

// Meta events
const (
	SequenceNumber Kind = iota + 32
	Text
	Copyright
	TrackName
	InstrumentName
	Lyric
	Marker
	CuePoint
	EndOfTrack
	SetTempo
)

// NoChannel marks meta events that are not scoped to a channel
const NoChannel uint8 = 0xFF

var kindNames = map[Kind]string{
	NoteOff:           "NoteOff",
	NoteOn:            "NoteOn",
	PolyAftertouch:    "PolyAftertouch",
	ControlChange:     "ControlChange",
	ProgramChange:     "ProgramChange",
	ChannelAftertouch: "ChannelAftertouch",
	PitchBend:         "PitchBend",
	BankSelect:        "BankSelect",
	AllNotesOff:       "AllNotesOff",
	SequenceNumber:    "SequenceNumber",
	Text:              "Text",
	Copyright:         "Copyright",
	TrackName:         "TrackName",
	InstrumentName:    "InstrumentName",
	Lyric:             "Lyric",
	Marker:            "Marker",
	CuePoint:          "CuePoint",
	EndOfTrack:        "EndOfTrack",
	SetTempo:          "SetTempo",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsChannel reports whether k is a channel voice event
func (k Kind) IsChannel() bool {
	return k >= NoteOff && k <= AllNotesOff
}

// IsMeta reports whether k is a meta event
func (k Kind) IsMeta() bool {
	return k >= SequenceNumber && k <= SetTempo
}

// IsText reports whether k carries a text payload
func (k Kind) IsText() bool {
	return k >= Text && k <= CuePoint
}

// Event is one decoded track event. Which payload fields are meaningful
// depends on Kind:
//
//	NoteOn, NoteOff, PolyAftertouch  Key, Velocity (pressure for aftertouch)
//	ControlChange, AllNotesOff       Controller, Value
//	ProgramChange, ChannelAftertouch Value
//	PitchBend                        Value (14-bit, 8192 is centre)
//	BankSelect                       Value (lsb | msb<<8)
//	SetTempo                         Tempo (microseconds per quarter note)
//	SequenceNumber                   Value
//	text kinds                       Text
type Event struct {
	Kind    Kind
	Index   int    // position within its track
	Tick    uint64 // absolute tick from track start
	Channel uint8  // 0-15, or NoChannel

	Key        uint8
	Velocity   uint8
	Controller uint8
	Value      uint16
	Tempo      uint32
	Text       string
}

func (e Event) String() string {
	var body string
	switch e.Kind {
	case NoteOn, NoteOff:
		body = fmt.Sprintf("key=%d vel=%d", e.Key, e.Velocity)
	case PolyAftertouch:
		body = fmt.Sprintf("key=%d pressure=%d", e.Key, e.Velocity)
	case ControlChange, AllNotesOff:
		body = fmt.Sprintf("cc=%d value=%d", e.Controller, e.Value)
	case ProgramChange, ChannelAftertouch, PitchBend, BankSelect, SequenceNumber:
		body = fmt.Sprintf("value=%d", e.Value)
	case SetTempo:
		body = fmt.Sprintf("tempo=%dus (%.2f bpm)", e.Tempo, BPM(e.Tempo))
	default:
		if e.Kind.IsText() {
			body = fmt.Sprintf("%q", e.Text)
		}
	}
	ch := "--"
	if e.Channel != NoChannel {
		ch = fmt.Sprintf("%2d", e.Channel+1)
	}
	return fmt.Sprintf("%8d ch%s %-17s %s", e.Tick, ch, e.Kind, body)
}

// DefaultTempo is 120 BPM in microseconds per quarter note
const DefaultTempo uint32 = 500000

// BPM converts microseconds per quarter note to beats per minute
func BPM(tempo uint32) float64 {
	if tempo == 0 {
		return 0
	}
	return 60000000.0 / float64(tempo)
}
