package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-smfplay/smf"
)

// Controller numbers the decoder folds into other event kinds
const (
	CCBankMSB      uint8 = 0
	CCBankLSB      uint8 = 32
	CCAllSoundOff  uint8 = 120
	CCResetAll     uint8 = 121
	CCAllNotesOff  uint8 = 123
	pitchBendCentre      = 8192
)

// Messages converts a decoded event to the wire messages that reproduce it.
// Meta events have no wire form and yield nil.
func Messages(ev smf.Event) []gomidi.Message {
	ch := ev.Channel & 0x0F
	switch ev.Kind {
	case smf.NoteOn:
		return []gomidi.Message{gomidi.NoteOn(ch, ev.Key, ev.Velocity)}
	case smf.NoteOff:
		return []gomidi.Message{gomidi.NoteOffVelocity(ch, ev.Key, ev.Velocity)}
	case smf.PolyAftertouch:
		return []gomidi.Message{gomidi.PolyAfterTouch(ch, ev.Key, ev.Velocity)}
	case smf.ControlChange:
		return []gomidi.Message{gomidi.ControlChange(ch, ev.Controller, uint8(ev.Value))}
	case smf.ProgramChange:
		return []gomidi.Message{gomidi.ProgramChange(ch, uint8(ev.Value))}
	case smf.ChannelAftertouch:
		return []gomidi.Message{gomidi.AfterTouch(ch, uint8(ev.Value))}
	case smf.PitchBend:
		return []gomidi.Message{gomidi.Pitchbend(ch, int16(ev.Value)-pitchBendCentre)}
	case smf.BankSelect:
		return []gomidi.Message{
			gomidi.ControlChange(ch, CCBankMSB, uint8(ev.Value>>8)&0x7F),
			gomidi.ControlChange(ch, CCBankLSB, uint8(ev.Value)&0x7F),
		}
	case smf.AllNotesOff:
		c := ev.Controller
		if c < CCAllNotesOff {
			c = CCAllNotesOff
		}
		return []gomidi.Message{gomidi.ControlChange(ch, c, uint8(ev.Value))}
	}
	return nil
}

// Silence returns the messages that stop every sound on ch
func Silence(ch uint8) []gomidi.Message {
	ch &= 0x0F
	return []gomidi.Message{
		gomidi.ControlChange(ch, CCAllSoundOff, 0),
		gomidi.ControlChange(ch, CCAllNotesOff, 0),
		gomidi.ControlChange(ch, CCResetAll, 0),
	}
}
