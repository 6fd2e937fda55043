package smf

import (
	"golang.org/x/text/encoding/charmap"
)

// maxVarintBytes is the longest delta-time/length encoding the format allows
const maxVarintBytes = 4

// frame is one bounded window: bytes [start, start+len) of the buffer
type frame struct {
	start int
	len   int
}

func (f frame) end() int { return f.start + f.len }

// Reader is a byte cursor over one buffer with a stack of nested regions.
// Every read is checked against the innermost region only, and closing a
// region always leaves the cursor exactly at its end, however much of it
// was read.
type Reader struct {
	data   []byte
	pos    int
	frames []frame
}

// NewReader creates a reader whose root region is the whole buffer
func NewReader(data []byte) *Reader {
	return &Reader{
		data:   data,
		frames: []frame{{start: 0, len: len(data)}},
	}
}

// Offset returns the absolute cursor position in the buffer
func (r *Reader) Offset() int {
	return r.pos
}

// Depth returns the number of open regions, the root included
func (r *Reader) Depth() int {
	return len(r.frames)
}

func (r *Reader) top() frame {
	return r.frames[len(r.frames)-1]
}

// Remaining returns how many unread bytes are left in the current region
func (r *Reader) Remaining() int {
	return r.top().end() - r.pos
}

// OpenRegion pushes a window over the next n bytes
func (r *Reader) OpenRegion(n int) error {
	if n < 0 || n > r.Remaining() {
		return newError(KindUnexpectedEOF, r.pos, "region of %d bytes, %d remaining", n, r.Remaining())
	}
	r.frames = append(r.frames, frame{start: r.pos, len: n})
	return nil
}

// CloseRegion pops the current window and skips whatever was left unread
func (r *Reader) CloseRegion() {
	if len(r.frames) == 1 {
		panic("smf: CloseRegion on root region")
	}
	f := r.top()
	r.frames = r.frames[:len(r.frames)-1]
	r.pos = f.end()
}

func (r *Reader) need(n int) error {
	if n < 0 || r.Remaining() < n {
		return newError(KindUnexpectedEOF, r.pos, "need %d bytes, %d remaining", n, r.Remaining())
	}
	return nil
}

// Skip discards n bytes of the current region
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// ReadU8 reads one byte
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadU16 reads a big-endian uint16
func (r *Reader) ReadU16() (uint16, error) {
	v, err := r.readBE(2)
	return uint16(v), err
}

// ReadU24 reads a big-endian 24-bit value
func (r *Reader) ReadU24() (uint32, error) {
	return r.readBE(3)
}

// ReadU32 reads a big-endian uint32
func (r *Reader) ReadU32() (uint32, error) {
	return r.readBE(4)
}

func (r *Reader) readBE(n int) (uint32, error) {
	if err := r.need(n); err != nil {
		return 0, err
	}
	var v uint32
	for _, b := range r.data[r.pos : r.pos+n] {
		v = v<<8 | uint32(b)
	}
	r.pos += n
	return v, nil
}

// ReadVarint reads a variable-length quantity: 7 bits per byte, most
// significant group first, high bit set on every byte but the last.
func (r *Reader) ReadVarint() (uint32, error) {
	start := r.pos
	var v uint32
	for i := 0; i < maxVarintBytes; i++ {
		b, err := r.ReadU8()
		if err != nil {
			return 0, err
		}
		v = v<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, newError(KindMalformed, start, "variable-length value longer than %d bytes", maxVarintBytes)
}

// ReadTag reads len(tag) bytes and checks they equal tag
func (r *Reader) ReadTag(tag []byte) error {
	start := r.pos
	if err := r.need(len(tag)); err != nil {
		return err
	}
	got := r.data[r.pos : r.pos+len(tag)]
	if string(got) != string(tag) {
		return newError(KindBadTag, start, "want %q, got %q", tag, got)
	}
	r.pos += len(tag)
	return nil
}

// ReadBytes returns an owned copy of the next n bytes
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadText consumes the rest of the current region as text. Meta text is
// nominally ASCII; bytes above 0x7F are taken as Latin-1.
func (r *Reader) ReadText() string {
	raw := r.data[r.pos:r.top().end()]
	r.pos = r.top().end()
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(text)
}
