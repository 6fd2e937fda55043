package smf

// Meta event types
const (
	metaSequenceNumber = 0x00
	metaText           = 0x01
	metaCuePoint       = 0x07
	metaChannelPrefix  = 0x20
	metaEndOfTrack     = 0x2F
	metaSetTempo       = 0x51
	metaSMPTEOffset    = 0x54
	metaTimeSignature  = 0x58
	metaKeySignature   = 0x59
)

// Controller numbers with derived events
const (
	ccBankSelectMSB = 0
	ccBankSelectLSB = 32
	ccAllNotesOffLo = 123
	ccAllNotesOffHi = 127
)

// dataLen is the number of data bytes per channel status nibble 0x8-0xE
var dataLen = [7]int{2, 2, 2, 2, 1, 1, 2}

// textKinds maps meta types 0x01-0x07 onto event kinds
var textKinds = [7]Kind{Text, Copyright, TrackName, InstrumentName, Lyric, Marker, CuePoint}

// trackDecoder holds the state carried from one event to the next within a
// single track. It is owned by one goroutine.
type trackDecoder struct {
	r     *Reader
	tick  uint64
	index int

	running uint8 // last channel status, 0 if none yet
	prefix  uint8 // channel from meta 0x20, NoChannel if none

	bankMSB, bankLSB uint8
	hasMSB, hasLSB   bool
	bankChannel      uint8
}

// step is the outcome of decoding one delta-time + event
type step int

const (
	stepEvent step = iota // ev holds an event to store
	stepNone              // consumed, nothing to store
	stepEnd               // EndOfTrack
)

func newTrackDecoder(data []byte) *trackDecoder {
	return &trackDecoder{
		r:      NewReader(data),
		prefix: NoChannel,
	}
}

// decodeTrack decodes one track chunk body to completion
func decodeTrack(data []byte) (*Track, error) {
	d := newTrackDecoder(data)
	t := &Track{Events: make([]Event, 0, len(data)/3)}

	for d.r.Remaining() > 0 {
		ev, st, err := d.next()
		if err != nil {
			return nil, err
		}
		if st == stepEnd {
			break
		}
		if st == stepNone {
			continue
		}
		ev.Index = d.index
		d.index++
		if ev.Kind == TrackName && t.Name == "" {
			t.Name = ev.Text
		}
		t.Events = append(t.Events, ev)
	}
	t.EndTick = d.tick
	return t, nil
}

// next reads one delta-time and the event after it
func (d *trackDecoder) next() (Event, step, error) {
	delta, err := d.r.ReadVarint()
	if err != nil {
		return Event{}, stepNone, err
	}
	d.tick += uint64(delta)

	at := d.r.Offset()
	b, err := d.r.ReadU8()
	if err != nil {
		return Event{}, stepNone, err
	}

	status := b
	pending := -1
	if b < 0x80 {
		// running status: b is the first data byte of the previous status
		if d.running == 0 {
			return Event{}, stepNone, newError(KindMalformed, at, "data byte 0x%02X with no running status", b)
		}
		status = d.running
		pending = int(b)
	} else if b < 0xF0 {
		d.running = b
	}

	switch {
	case status < 0xF0:
		return d.channelEvent(status, pending)
	case status == 0xFF:
		return d.metaEvent()
	case status == 0xF0 || status == 0xF7:
		return Event{}, stepNone, d.skipSysex()
	case status == 0xF2:
		return Event{}, stepNone, d.r.Skip(2)
	case status == 0xF3:
		return Event{}, stepNone, d.r.Skip(1)
	}
	return Event{}, stepNone, nil
}

func (d *trackDecoder) channelEvent(status uint8, pending int) (Event, step, error) {
	var data [2]uint8
	n := dataLen[status>>4-0x8]
	for i := 0; i < n; i++ {
		if i == 0 && pending >= 0 {
			data[0] = uint8(pending)
			continue
		}
		at := d.r.Offset()
		b, err := d.r.ReadU8()
		if err != nil {
			return Event{}, stepNone, err
		}
		if b >= 0x80 {
			return Event{}, stepNone, newError(KindMalformed, at, "status byte 0x%02X inside channel message", b)
		}
		data[i] = b
	}

	d.prefix = NoChannel
	ev := Event{Tick: d.tick, Channel: status & 0x0F}

	switch status & 0xF0 {
	case 0x80:
		ev.Kind, ev.Key, ev.Velocity = NoteOff, data[0], data[1]
	case 0x90:
		ev.Kind, ev.Key, ev.Velocity = NoteOn, data[0], data[1]
		if ev.Velocity == 0 {
			ev.Kind = NoteOff
		}
	case 0xA0:
		ev.Kind, ev.Key, ev.Velocity = PolyAftertouch, data[0], data[1]
	case 0xB0:
		return d.controlChange(ev, data[0], data[1])
	case 0xC0:
		ev.Kind, ev.Value = ProgramChange, uint16(data[0])
	case 0xD0:
		ev.Kind, ev.Value = ChannelAftertouch, uint16(data[0])
	case 0xE0:
		ev.Kind, ev.Value = PitchBend, uint16(data[0])|uint16(data[1])<<7
	}
	return ev, stepEvent, nil
}

// controlChange folds bank select halves into one BankSelect event and maps
// the channel mode messages 123-127 to AllNotesOff.
func (d *trackDecoder) controlChange(ev Event, controller, value uint8) (Event, step, error) {
	switch {
	case controller == ccBankSelectMSB || controller == ccBankSelectLSB:
		if (d.hasMSB || d.hasLSB) && d.bankChannel != ev.Channel {
			d.clearBank()
		}
		d.bankChannel = ev.Channel
		if controller == ccBankSelectMSB {
			d.bankMSB, d.hasMSB = value, true
		} else {
			d.bankLSB, d.hasLSB = value, true
		}
		if !d.hasMSB || !d.hasLSB {
			return Event{}, stepNone, nil
		}
		ev.Kind = BankSelect
		ev.Value = uint16(d.bankLSB) | uint16(d.bankMSB)<<8
		d.clearBank()
		return ev, stepEvent, nil

	case controller >= ccAllNotesOffLo && controller <= ccAllNotesOffHi:
		d.clearBank()
		ev.Kind = AllNotesOff

	default:
		d.clearBank()
		ev.Kind = ControlChange
	}
	ev.Controller = controller
	ev.Value = uint16(value)
	return ev, stepEvent, nil
}

func (d *trackDecoder) clearBank() {
	d.hasMSB, d.hasLSB = false, false
	d.bankMSB, d.bankLSB = 0, 0
}

func (d *trackDecoder) metaEvent() (Event, step, error) {
	typ, err := d.r.ReadU8()
	if err != nil {
		return Event{}, stepNone, err
	}
	length, err := d.r.ReadVarint()
	if err != nil {
		return Event{}, stepNone, err
	}
	if err := d.r.OpenRegion(int(length)); err != nil {
		return Event{}, stepNone, err
	}
	defer d.r.CloseRegion()

	ev := Event{Tick: d.tick, Channel: d.prefix}

	switch {
	case typ == metaSequenceNumber:
		v, err := d.r.ReadU16()
		if err != nil {
			return Event{}, stepNone, err
		}
		ev.Kind, ev.Value = SequenceNumber, v

	case typ >= metaText && typ <= metaCuePoint:
		ev.Kind = textKinds[typ-metaText]
		ev.Text = d.r.ReadText()

	case typ == metaChannelPrefix:
		ch, err := d.r.ReadU8()
		if err != nil {
			return Event{}, stepNone, err
		}
		d.prefix = ch & 0x0F
		return Event{}, stepNone, nil

	case typ == metaEndOfTrack:
		return Event{}, stepEnd, nil

	case typ == metaSetTempo:
		tempo, err := d.r.ReadU24()
		if err != nil {
			return Event{}, stepNone, err
		}
		ev.Kind, ev.Tempo = SetTempo, tempo

	case typ == metaSMPTEOffset || typ == metaTimeSignature || typ == metaKeySignature:
		// recognised, not kept
		return Event{}, stepNone, nil

	default:
		return Event{}, stepNone, nil
	}
	return ev, stepEvent, nil
}

func (d *trackDecoder) skipSysex() error {
	length, err := d.r.ReadVarint()
	if err != nil {
		return err
	}
	if err := d.r.OpenRegion(int(length)); err != nil {
		return err
	}
	d.r.CloseRegion()
	return nil
}
