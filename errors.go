package jls

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the jls package.
var (
	// ErrClosed is returned when operations are attempted on a closed
	// writer or reader.
	ErrClosed = errors.New("file is closed")

	// ErrDefinition is returned for invalid source or signal definitions:
	// duplicate ids, unknown ids, a signal referencing an undefined source,
	// or invalid chunking parameters.
	ErrDefinition = errors.New("invalid definition")

	// ErrOutOfOrder is returned when a sample id does not follow the
	// required ordering for its track.
	ErrOutOfOrder = errors.New("sample id out of order")

	// ErrOutOfRange is returned for reads or seeks beyond the bounds of a
	// track.
	ErrOutOfRange = errors.New("out of range")

	// ErrCorruptChunk is returned when a chunk fails checksum or length
	// validation.
	ErrCorruptChunk = errors.New("corrupt chunk")

	// ErrCapacity is returned when a payload or the staging ring buffer
	// exceeds its configured bound.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrIO is returned when the underlying storage fails.
	ErrIO = errors.New("storage I/O failed")
)

// ChunkError describes a chunk that failed validation. It carries enough
// context (file offset, tag, expected vs. found checksum or length) to build
// an actionable diagnostic.
type ChunkError struct {
	Offset   int64
	Tag      Tag
	Message  string
	Expected uint32
	Found    uint32
	Cause    error
}

func (e *ChunkError) Error() string {
	if e.Expected != e.Found {
		return fmt.Sprintf("corrupt chunk at offset %d (tag %s): %s: expected 0x%08x, found 0x%08x",
			e.Offset, e.Tag, e.Message, e.Expected, e.Found)
	}
	if e.Cause != nil {
		return fmt.Sprintf("corrupt chunk at offset %d (tag %s): %s: %v", e.Offset, e.Tag, e.Message, e.Cause)
	}
	return fmt.Sprintf("corrupt chunk at offset %d (tag %s): %s", e.Offset, e.Tag, e.Message)
}

func (e *ChunkError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for ChunkError.
func (e *ChunkError) Is(target error) bool {
	return target == ErrCorruptChunk
}

// newChunkError creates a new ChunkError.
func newChunkError(offset int64, tag Tag, message string, expected, found uint32) *ChunkError {
	return &ChunkError{
		Offset:   offset,
		Tag:      tag,
		Message:  message,
		Expected: expected,
		Found:    found,
	}
}

// TrackErrorType categorizes track access errors.
type TrackErrorType int

const (
	// TrackErrorTypeOrder indicates a non-monotonic sample id.
	TrackErrorTypeOrder TrackErrorType = iota
	// TrackErrorTypeRange indicates an access beyond track bounds.
	TrackErrorTypeRange
)

// TrackError describes an ordering or range violation on one track of one
// signal.
type TrackError struct {
	Type     TrackErrorType
	SignalID uint16
	Track    string
	SampleID int64
	Want     int64
	Message  string
}

func (e *TrackError) Error() string {
	if e.Type == TrackErrorTypeOrder {
		return fmt.Sprintf("signal %d %s track: %s: sample_id %d, expected %d",
			e.SignalID, e.Track, e.Message, e.SampleID, e.Want)
	}
	return fmt.Sprintf("signal %d %s track: %s: sample_id %d, bound %d",
		e.SignalID, e.Track, e.Message, e.SampleID, e.Want)
}

// Is implements error matching for TrackError.
func (e *TrackError) Is(target error) bool {
	switch e.Type {
	case TrackErrorTypeOrder:
		return target == ErrOutOfOrder
	case TrackErrorTypeRange:
		return target == ErrOutOfRange
	}
	return false
}

// errOutOfOrder creates a TrackError for a non-monotonic append.
func errOutOfOrder(signalID uint16, track string, sampleID, want int64) *TrackError {
	return &TrackError{
		Type:     TrackErrorTypeOrder,
		SignalID: signalID,
		Track:    track,
		SampleID: sampleID,
		Want:     want,
		Message:  "out of order",
	}
}

// errOutOfRange creates a TrackError for an out-of-bounds access.
func errOutOfRange(signalID uint16, track string, sampleID, bound int64, message string) *TrackError {
	return &TrackError{
		Type:     TrackErrorTypeRange,
		SignalID: signalID,
		Track:    track,
		SampleID: sampleID,
		Want:     bound,
		Message:  message,
	}
}

// defErrorf creates an ErrDefinition error with formatted context.
func defErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDefinition, fmt.Sprintf(format, args...))
}

// ioError wraps an underlying storage failure as ErrIO.
func ioError(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, cause)
}
