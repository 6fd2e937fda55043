package smf

import (
	"fmt"
	"os"
	"runtime"

	"github.com/remeh/sizedwaitgroup"

	"go-smfplay/debug"
)

var (
	headerTag = []byte("MThd")
	trackTag  = []byte("MTrk")
)

// FileFormat is the header's format field
type FileFormat uint16

const (
	SingleTrack         FileFormat = 0
	MultiTrack          FileFormat = 1
	RepeatedSingleTrack FileFormat = 2 // not supported
)

func (f FileFormat) String() string {
	switch f {
	case SingleTrack:
		return "single track"
	case MultiTrack:
		return "multi track"
	case RepeatedSingleTrack:
		return "repeated single track"
	}
	return fmt.Sprintf("format %d", uint16(f))
}

// Track is one decoded track chunk. It is not modified after decoding.
type Track struct {
	Name    string // first TrackName meta event, if any
	Events  []Event
	EndTick uint64 // absolute tick at which the track ends
}

// Timeline is a fully decoded file
type Timeline struct {
	Source   string
	Format   FileFormat
	Channels []uint8 // channels with at least one NoteOn, ascending
	Tracks   []*Track
	Encoding TimeEncoding
}

// EndTick returns the tick at which the last track ends
func (tl *Timeline) EndTick() uint64 {
	var end uint64
	for _, t := range tl.Tracks {
		end = max(end, t.EndTick)
	}
	return end
}

// EventCount returns the number of stored events across all tracks
func (tl *Timeline) EventCount() int {
	n := 0
	for _, t := range tl.Tracks {
		n += len(t.Events)
	}
	return n
}

// Tempos returns every SetTempo event in track order
func (tl *Timeline) Tempos() []Event {
	var out []Event
	for _, t := range tl.Tracks {
		for _, ev := range t.Events {
			if ev.Kind == SetTempo {
				out = append(out, ev)
			}
		}
	}
	return out
}

// Options controls decoding
type Options struct {
	Source  string // identity recorded in the timeline
	Workers int    // concurrent track decoders, 0 = runtime.NumCPU()
}

// Decode decodes a complete Standard MIDI File held in memory
func Decode(data []byte) (*Timeline, error) {
	return DecodeWith(data, Options{})
}

// ReadFile reads and decodes the file at path
func ReadFile(path string) (*Timeline, error) {
	return ReadFileWith(path, Options{})
}

// ReadFileWith reads and decodes the file at path. An empty opts.Source
// becomes path.
func ReadFileWith(path string, opts Options) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if opts.Source == "" {
		opts.Source = path
	}
	return DecodeWith(data, opts)
}

type header struct {
	format   FileFormat
	tracks   int
	division uint16
}

// DecodeWith decodes a complete Standard MIDI File held in memory
func DecodeWith(data []byte, opts Options) (*Timeline, error) {
	r := NewReader(data)

	h, err := readHeader(r)
	if err != nil {
		return nil, inStage(err, "header", -1)
	}

	enc, err := resolveEncoding(h.division)
	if err != nil {
		return nil, inStage(err, "header", -1)
	}

	if err := checkFormat(h); err != nil {
		return nil, inStage(err, "header", -1)
	}

	// Each track gets its own copy of its bytes so decoders share nothing
	bufs := make([][]byte, h.tracks)
	for i := range bufs {
		buf, err := readTrackChunk(r)
		if err != nil {
			return nil, inStage(err, fmt.Sprintf("track %d chunk", i), i)
		}
		bufs[i] = buf
	}

	tracks, err := decodeTracks(bufs, opts.Workers)
	if err != nil {
		return nil, err
	}

	tl := &Timeline{
		Source:   opts.Source,
		Format:   h.format,
		Channels: activeChannels(tracks),
		Tracks:   tracks,
		Encoding: enc,
	}
	debug.Log("decode", "%s: %s, %d tracks, %s, %d events", tl.Source, tl.Format, len(tl.Tracks), tl.Encoding, tl.EventCount())
	return tl, nil
}

func readHeader(r *Reader) (header, error) {
	var h header
	if err := r.ReadTag(headerTag); err != nil {
		return h, err
	}
	length, err := r.ReadU32()
	if err != nil {
		return h, err
	}
	if err := r.OpenRegion(int(length)); err != nil {
		return h, err
	}
	defer r.CloseRegion()

	format, err := r.ReadU16()
	if err != nil {
		return h, err
	}
	count, err := r.ReadU16()
	if err != nil {
		return h, err
	}
	division, err := r.ReadU16()
	if err != nil {
		return h, err
	}
	h.format = FileFormat(format)
	h.tracks = int(count)
	h.division = division
	return h, nil
}

func checkFormat(h header) error {
	switch h.format {
	case SingleTrack:
		if h.tracks != 1 {
			return newError(KindTrackCountMismatch, 0, "single track format declares %d tracks", h.tracks)
		}
	case MultiTrack:
		if h.tracks < 1 {
			return newError(KindTrackCountMismatch, 0, "multi track format declares no tracks")
		}
	default:
		return newError(KindUnsupportedFormat, 0, "%s", h.format)
	}
	return nil
}

func readTrackChunk(r *Reader) ([]byte, error) {
	if err := r.ReadTag(trackTag); err != nil {
		return nil, err
	}
	length, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(length))
}

// decodeTracks runs one decoder per track on a bounded pool and joins them.
// The error of the lowest-numbered failing track is returned; the rest are
// logged.
func decodeTracks(bufs [][]byte, workers int) ([]*Track, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tracks := make([]*Track, len(bufs))
	errs := make([]error, len(bufs))

	wg := sizedwaitgroup.New(workers)
	for i, buf := range bufs {
		wg.Add()
		go func(i int, buf []byte) {
			defer wg.Done()
			tracks[i], errs[i] = decodeTrack(buf)
		}(i, buf)
	}
	wg.Wait()

	var first error
	for i, err := range errs {
		if err == nil {
			continue
		}
		err = inStage(err, fmt.Sprintf("track %d", i), i)
		if first == nil {
			first = err
			continue
		}
		debug.Log("decode", "additional track error: %v", err)
	}
	if first != nil {
		return nil, first
	}

	decoded := 0
	for _, t := range tracks {
		if t != nil {
			decoded++
		}
	}
	if decoded != len(bufs) {
		return nil, &FormatError{
			Kind:   KindTrackCountMismatch,
			Stage:  "tracks",
			Track:  -1,
			Detail: fmt.Sprintf("decoded %d of %d tracks", decoded, len(bufs)),
		}
	}
	return tracks, nil
}

// activeChannels collects the channel of every NoteOn. Walking the seen
// table in order yields them sorted.
func activeChannels(tracks []*Track) []uint8 {
	var seen [16]bool
	for _, t := range tracks {
		for _, ev := range t.Events {
			if ev.Kind == NoteOn {
				seen[ev.Channel&0x0F] = true
			}
		}
	}
	channels := []uint8{}
	for ch, ok := range seen {
		if ok {
			channels = append(channels, uint8(ch))
		}
	}
	return channels
}
