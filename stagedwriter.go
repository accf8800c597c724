package jls

import (
	"log"
	"sync"
)

// StagedWriter decouples acquisition from device I/O latency. Appends
// enqueue commands on a bounded ring buffer and return without waiting for
// disk completion; a single background worker dequeues them in order and
// drives the underlying Writer. When the ring is full an append blocks
// until space frees: backpressure, never a silent drop.
//
// Commands are applied in exact enqueue order, across all signals, so
// interleaved writes remain deterministic. A failure inside the worker is
// surfaced at the next Flush or Close, never dropped.
//
// StagedWriter follows a single-producer discipline: all appends, Flush,
// and Close must come from one goroutine.
type StagedWriter struct {
	w    *Writer
	cmds chan stagedCommand
	done chan struct{}

	closed bool

	mu      sync.Mutex
	err     error
	onError func(error)
}

// StagedOption configures a StagedWriter.
type StagedOption func(*StagedWriter)

// WithErrorCallback sets a callback invoked from the worker for each staged
// write failure.
func WithErrorCallback(fn func(error)) StagedOption {
	return func(s *StagedWriter) {
		s.onError = fn
	}
}

type stagedOp int

const (
	opDefineSource stagedOp = iota
	opDefineSignal
	opFSR
	opAnnotation
	opUTC
	opUserData
	opFlush
)

type stagedCommand struct {
	op       stagedOp
	signalID uint16
	sampleID int64
	values   []float64
	ann      *Annotation
	utc      UTCEntry
	source   *SourceDef
	signal   *SignalDef
	userTag  uint16
	storage  StorageType
	data     []byte
	ack      chan error
}

// NewStagedWriter creates the recording at path and starts the background
// flush worker. A nil cfg uses DefaultConfig.
func NewStagedWriter(path string, cfg *Config, opts ...StagedOption) (*StagedWriter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	w, err := NewWriter(path, cfg)
	if err != nil {
		return nil, err
	}
	s := &StagedWriter{
		w:    w,
		cmds: make(chan stagedCommand, cfg.ringSize()),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.worker()
	return s, nil
}

// worker is the single consumer of the ring buffer.
func (s *StagedWriter) worker() {
	defer close(s.done)
	for cmd := range s.cmds {
		switch cmd.op {
		case opFlush:
			err := s.firstError()
			if err == nil {
				err = s.w.Flush()
				s.record(err)
			}
			cmd.ack <- err
			continue
		case opDefineSource:
			cmd.ack <- s.w.DefineSource(cmd.source)
			continue
		case opDefineSignal:
			cmd.ack <- s.w.DefineSignal(cmd.signal)
			continue
		}
		if s.firstError() != nil {
			// A staged failure is fatal; later appends are dropped and
			// the error is surfaced at the next Flush or Close.
			continue
		}
		var err error
		switch cmd.op {
		case opFSR:
			err = s.w.WriteFSR(cmd.signalID, cmd.sampleID, cmd.values)
		case opAnnotation:
			err = s.w.WriteAnnotation(cmd.signalID, cmd.ann)
		case opUTC:
			err = s.w.WriteUTC(cmd.signalID, cmd.utc)
		case opUserData:
			err = s.w.WriteUserData(cmd.userTag, cmd.storage, cmd.data)
		}
		if err != nil {
			log.Printf("jls: staged write failed: %v", err)
			s.record(err)
			if s.onError != nil {
				s.onError(err)
			}
		}
	}
}

func (s *StagedWriter) record(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *StagedWriter) firstError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// DefineSource defines a source through the ring, waiting for the worker so
// that definition errors propagate immediately.
func (s *StagedWriter) DefineSource(d *SourceDef) error {
	if s.closed {
		return ErrClosed
	}
	ack := make(chan error, 1)
	s.cmds <- stagedCommand{op: opDefineSource, source: d, ack: ack}
	return <-ack
}

// DefineSignal defines a signal through the ring, waiting for the worker so
// that definition errors propagate immediately.
func (s *StagedWriter) DefineSignal(d *SignalDef) error {
	if s.closed {
		return ErrClosed
	}
	ack := make(chan error, 1)
	s.cmds <- stagedCommand{op: opDefineSignal, signal: d, ack: ack}
	return <-ack
}

// WriteFSR stages an FSR sample range append. The values are copied; the
// caller may reuse the slice immediately.
func (s *StagedWriter) WriteFSR(signalID uint16, sampleID int64, values []float64) error {
	if s.closed {
		return ErrClosed
	}
	v := make([]float64, len(values))
	copy(v, values)
	s.cmds <- stagedCommand{op: opFSR, signalID: signalID, sampleID: sampleID, values: v}
	return nil
}

// WriteAnnotation stages an annotation append. The annotation and its data
// are copied.
func (s *StagedWriter) WriteAnnotation(signalID uint16, a *Annotation) error {
	if s.closed {
		return ErrClosed
	}
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	s.cmds <- stagedCommand{op: opAnnotation, signalID: signalID, ann: &cp}
	return nil
}

// WriteUTC stages a UTC correlation append.
func (s *StagedWriter) WriteUTC(signalID uint16, e UTCEntry) error {
	if s.closed {
		return ErrClosed
	}
	s.cmds <- stagedCommand{op: opUTC, signalID: signalID, utc: e}
	return nil
}

// WriteUserData stages a user record append. The data is copied.
func (s *StagedWriter) WriteUserData(userTag uint16, storage StorageType, data []byte) error {
	if s.closed {
		return ErrClosed
	}
	s.cmds <- stagedCommand{
		op:      opUserData,
		userTag: userTag,
		storage: storage,
		data:    append([]byte(nil), data...),
	}
	return nil
}

// Flush drains all staged commands, syncs the file, and returns the first
// staged failure, if any.
func (s *StagedWriter) Flush() error {
	if s.closed {
		return ErrClosed
	}
	ack := make(chan error, 1)
	s.cmds <- stagedCommand{op: opFlush, ack: ack}
	return <-ack
}

// Close drains the ring, stops the worker, and closes the underlying
// writer, guaranteeing no accepted append is lost on an orderly shutdown.
// It returns the first staged failure, if any.
func (s *StagedWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.cmds)
	<-s.done
	err := s.w.Close()
	if first := s.firstError(); first != nil {
		return first
	}
	return err
}
