package smf

import (
	"errors"
	"fmt"
)

// ErrorKind identifies which class of format problem stopped a decode
type ErrorKind int

const (
	KindBadTag ErrorKind = iota
	KindUnexpectedEOF
	KindUnsupportedFormat
	KindUnsupportedSmpte
	KindTrackCountMismatch
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadTag:
		return "bad tag"
	case KindUnexpectedEOF:
		return "unexpected end of data"
	case KindUnsupportedFormat:
		return "unsupported format"
	case KindUnsupportedSmpte:
		return "unsupported SMPTE rate"
	case KindTrackCountMismatch:
		return "track count mismatch"
	case KindMalformed:
		return "malformed event data"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is. A *FormatError matches the sentinel of its Kind.
var (
	ErrBadTag             = errors.New("smf: bad tag")
	ErrUnexpectedEOF      = errors.New("smf: unexpected end of data")
	ErrUnsupportedFormat  = errors.New("smf: unsupported format")
	ErrUnsupportedSmpte   = errors.New("smf: unsupported SMPTE rate")
	ErrTrackCountMismatch = errors.New("smf: track count mismatch")
	ErrMalformed          = errors.New("smf: malformed event data")
)

var kindSentinels = map[ErrorKind]error{
	KindBadTag:             ErrBadTag,
	KindUnexpectedEOF:      ErrUnexpectedEOF,
	KindUnsupportedFormat:  ErrUnsupportedFormat,
	KindUnsupportedSmpte:   ErrUnsupportedSmpte,
	KindTrackCountMismatch: ErrTrackCountMismatch,
	KindMalformed:          ErrMalformed,
}

// FormatError is returned for every decode failure. Stage says where it
// happened ("header", "track 2") and Offset is relative to that stage's bytes.
type FormatError struct {
	Kind   ErrorKind
	Stage  string
	Track  int // -1 outside track decoding
	Offset int
	Detail string
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("smf: %s: %s at offset %d", e.Stage, e.Kind, e.Offset)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap exposes the kind sentinel, so errors.Is(err, ErrBadTag) works
func (e *FormatError) Unwrap() error {
	return kindSentinels[e.Kind]
}

func newError(kind ErrorKind, offset int, format string, args ...any) *FormatError {
	return &FormatError{
		Kind:   kind,
		Track:  -1,
		Offset: offset,
		Detail: fmt.Sprintf(format, args...),
	}
}

// inStage labels err with a stage unless it already has one
func inStage(err error, stage string, track int) error {
	var fe *FormatError
	if errors.As(err, &fe) && fe.Stage == "" {
		fe.Stage = stage
		fe.Track = track
	}
	return err
}
