package smf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
	gosmf "gitlab.com/gomidi/midi/v2/smf"
)

func chunk(tag string, body []byte) []byte {
	out := []byte(tag)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func headerChunk(format, tracks, division uint16) []byte {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, format)
	body = binary.BigEndian.AppendUint16(body, tracks)
	body = binary.BigEndian.AppendUint16(body, division)
	return chunk("MThd", body)
}

func file(format, division uint16, tracks ...[]byte) []byte {
	out := headerChunk(format, uint16(len(tracks)), division)
	for _, tr := range tracks {
		out = append(out, chunk("MTrk", tr)...)
	}
	return out
}

var endOfTrack = []byte{0x00, 0xFF, 0x2F, 0x00}

func track(events ...[]byte) []byte {
	var out []byte
	for _, ev := range events {
		out = append(out, ev...)
	}
	return append(out, endOfTrack...)
}

func TestDecodeTwoTrackFile(t *testing.T) {
	data := file(1, 480,
		track(
			[]byte{0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20},
			[]byte{0x00, 0x90, 60, 100},
			[]byte{0x83, 0x60, 0x90, 60, 0},
		),
		track(
			[]byte{0x00, 0x90, 60, 100},
			[]byte{0x83, 0x60, 0x90, 60, 0},
		),
	)

	tl, err := DecodeWith(data, Options{Source: "two.mid"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tl.Source != "two.mid" || tl.Format != MultiTrack {
		t.Fatalf("source=%q format=%v", tl.Source, tl.Format)
	}
	if len(tl.Tracks) != 2 {
		t.Fatalf("tracks = %d", len(tl.Tracks))
	}
	if tl.Encoding.IsSMPTE() || tl.Encoding.TicksPerQuarterNote() != 480 {
		t.Fatalf("encoding = %v", tl.Encoding)
	}
	if len(tl.Channels) != 1 || tl.Channels[0] != 0 {
		t.Fatalf("channels = %v", tl.Channels)
	}

	first := tl.Tracks[0].Events
	if len(first) != 3 {
		t.Fatalf("track 0 events = %v", first)
	}
	if first[0].Kind != SetTempo || first[0].Tempo != 500000 || first[0].Tick != 0 {
		t.Errorf("tempo = %v", first[0])
	}
	if first[1].Kind != NoteOn || first[1].Key != 60 || first[1].Velocity != 100 {
		t.Errorf("note on = %v", first[1])
	}
	if first[2].Kind != NoteOff || first[2].Tick != 480 {
		t.Errorf("note off = %v", first[2])
	}
	if tl.EndTick() != 480 || tl.EventCount() != 5 {
		t.Errorf("EndTick=%d EventCount=%d", tl.EndTick(), tl.EventCount())
	}
	if tempos := tl.Tempos(); len(tempos) != 1 {
		t.Errorf("Tempos = %v", tempos)
	}
}

func TestDecodeBadHeaderTag(t *testing.T) {
	data := append([]byte("XYZh"), headerChunk(1, 1, 96)[4:]...)
	_, err := Decode(data)
	if !errors.Is(err, ErrBadTag) {
		t.Fatalf("err = %v, want ErrBadTag", err)
	}
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Stage != "header" || fe.Offset != 0 {
		t.Fatalf("FormatError = %+v", fe)
	}
}

func TestDecodeRejectsFormatBeforeTracks(t *testing.T) {
	tests := []struct {
		name   string
		format uint16
		tracks uint16
		want   error
	}{
		{"single track with two", 0, 2, ErrTrackCountMismatch},
		{"single track with none", 0, 0, ErrTrackCountMismatch},
		{"multi track with none", 1, 0, ErrTrackCountMismatch},
		{"repeated single track", 2, 1, ErrUnsupportedFormat},
		{"unknown format", 7, 1, ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// no track chunks follow; reaching them would be an EOF instead
			_, err := Decode(headerChunk(tt.format, tt.tracks, 96))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeSMPTEDivision(t *testing.T) {
	tests := []struct {
		division  uint16
		fps       float32
		subframes uint8
	}{
		{0xE850, 24, 80},
		{0xE728, 25, 40},
		{0xE304, 29.97, 4},
		{0xE250, 30, 80},
	}
	for _, tt := range tests {
		tl, err := Decode(file(0, tt.division, track()))
		if err != nil {
			t.Fatalf("division %#x: %v", tt.division, err)
		}
		enc := tl.Encoding
		if !enc.IsSMPTE() || enc.FramesPerSecond() != tt.fps || enc.SubframeResolution() != tt.subframes {
			t.Errorf("division %#x decoded as %v", tt.division, enc)
		}
	}

	for _, division := range []uint16{0xEC50, 0x0000, 0x8000} {
		if _, err := Decode(file(0, division, track())); !errors.Is(err, ErrUnsupportedSmpte) {
			t.Errorf("division %#x: err = %v, want ErrUnsupportedSmpte", division, err)
		}
	}
}

func TestDecodeBadTrackTag(t *testing.T) {
	data := headerChunk(1, 1, 96)
	data = append(data, chunk("MTrx", endOfTrack)...)
	_, err := Decode(data)
	if !errors.Is(err, ErrBadTag) {
		t.Fatalf("err = %v, want ErrBadTag", err)
	}
}

func TestDecodeTruncatedTrackChunk(t *testing.T) {
	data := file(1, 96, track([]byte{0x00, 0x90, 60, 64}))
	_, err := Decode(data[:len(data)-3])
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestDecodeMissingTrack(t *testing.T) {
	data := headerChunk(1, 2, 96)
	data = append(data, chunk("MTrk", endOfTrack)...)
	if _, err := Decode(data); !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestDecodeFirstTrackErrorWins(t *testing.T) {
	bad := []byte{0x00, 0x90, 60} // truncated
	data := file(1, 96,
		track([]byte{0x00, 0x90, 60, 64}),
		bad,
		[]byte{0x00, 61, 64}, // no running status
	)
	_, err := Decode(data)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FormatError", err)
	}
	if fe.Track != 1 || fe.Kind != KindUnexpectedEOF || fe.Stage != "track 1" {
		t.Fatalf("FormatError = %+v", fe)
	}
}

func TestDecodeManyTracksKeepsOrder(t *testing.T) {
	var tracks [][]byte
	for i := 0; i < 40; i++ {
		tracks = append(tracks, track(
			[]byte{byte(i), 0x90 | byte(i%16), byte(i), 100},
			[]byte{0x10, 0x80 | byte(i%16), byte(i), 0},
		))
	}
	tl, err := DecodeWith(file(1, 96, tracks...), Options{Workers: 3})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tl.Tracks) != 40 {
		t.Fatalf("tracks = %d", len(tl.Tracks))
	}
	for i, tr := range tl.Tracks {
		if tr.Events[0].Key != uint8(i) || tr.Events[0].Tick != uint64(i) {
			t.Fatalf("track %d holds %v", i, tr.Events[0])
		}
	}
	if len(tl.Channels) != 16 {
		t.Fatalf("channels = %v", tl.Channels)
	}
}

func TestActiveChannels(t *testing.T) {
	data := file(1, 96,
		track([]byte{0x00, 0x99, 36, 100}),
		track([]byte{0x00, 0x92, 60, 100}, []byte{0x00, 0x92, 62, 100}),
		track([]byte{0x00, 0x84, 60, 0}, []byte{0x00, 0x95, 60, 0}, []byte{0x00, 0xC7, 3}),
	)
	tl, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint8{2, 9}
	if !bytes.Equal(tl.Channels, want) {
		t.Fatalf("channels = %v, want %v", tl.Channels, want)
	}
}

func TestDecodeGomidiWrittenFile(t *testing.T) {
	s := gosmf.NewSMF1()
	s.TimeFormat = gosmf.MetricTicks(480)

	var conductor gosmf.Track
	conductor.Add(0, gosmf.MetaTrackSequenceName("Conductor"))
	conductor.Add(0, gosmf.MetaTempo(100))
	conductor.Add(960, gosmf.MetaTempo(150))
	conductor.Close(0)

	var piano gosmf.Track
	piano.Add(0, gomidi.ProgramChange(1, 4))
	piano.Add(0, gomidi.NoteOn(1, 60, 100))
	piano.Add(480, gomidi.NoteOff(1, 60))
	piano.Add(0, gomidi.Pitchbend(1, 0))
	piano.Add(0, gomidi.NoteOn(1, 64, 90))
	piano.Add(480, gomidi.NoteOff(1, 64))
	piano.Close(0)

	if err := s.Add(conductor); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(piano); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	tl, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tl.Tracks) != 2 || tl.Encoding.TicksPerQuarterNote() != 480 {
		t.Fatalf("tracks=%d encoding=%v", len(tl.Tracks), tl.Encoding)
	}
	if tl.Tracks[0].Name != "Conductor" {
		t.Errorf("name = %q", tl.Tracks[0].Name)
	}

	tempos := tl.Tempos()
	if len(tempos) != 2 || tempos[0].Tempo != 600000 || tempos[1].Tempo != 400000 || tempos[1].Tick != 960 {
		t.Errorf("tempos = %v", tempos)
	}

	var kinds []Kind
	var ticks []uint64
	for _, ev := range tl.Tracks[1].Events {
		kinds = append(kinds, ev.Kind)
		ticks = append(ticks, ev.Tick)
		if ev.Channel != 1 {
			t.Errorf("%v on channel %d", ev, ev.Channel)
		}
	}
	wantKinds := []Kind{ProgramChange, NoteOn, NoteOff, PitchBend, NoteOn, NoteOff}
	wantTicks := []uint64{0, 0, 480, 480, 480, 960}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] || ticks[i] != wantTicks[i] {
			t.Errorf("event %d = %v@%d, want %v@%d", i, kinds[i], ticks[i], wantKinds[i], wantTicks[i])
		}
	}
	if bend := tl.Tracks[1].Events[3]; bend.Value != 8192 {
		t.Errorf("centred bend = %d", bend.Value)
	}
	if len(tl.Channels) != 1 || tl.Channels[0] != 1 {
		t.Errorf("channels = %v", tl.Channels)
	}
}
