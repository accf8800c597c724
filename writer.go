package jls

import "sort"

// Writer builds a recording. It owns the file exclusively: a recording must
// never be open for writing by more than one writer at a time.
//
// Writer is not safe for concurrent use; wrap it in a [StagedWriter] to
// decouple acquisition threads from disk latency.
type Writer struct {
	raw     *rawWriter
	cfg     *Config
	sources map[uint16]*SourceDef
	signals map[uint16]*signalState
	closed  bool
}

// signalState collects the per-signal write tracks.
type signalState struct {
	def *SignalDef
	fsr *fsrWriter
	ann *annotationWriter
	utc *utcWriter
}

// NewWriter creates the recording at path, truncating any existing file.
// A nil cfg uses DefaultConfig.
func NewWriter(path string, cfg *Config) (*Writer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	raw, err := createRawWriter(path, cfg.Compression)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		raw:     raw,
		cfg:     cfg,
		sources: make(map[uint16]*SourceDef),
		signals: make(map[uint16]*signalState),
	}
	// The global scope for file-level annotations is built in.
	if err := w.defineSource(&SourceDef{SourceID: globalSourceID, Name: "global"}); err != nil {
		_ = raw.close()
		return nil, err
	}
	err = w.defineSignal(&SignalDef{
		SignalID:   globalSignalID,
		SourceID:   globalSourceID,
		SignalType: SignalTypeVSR,
		DataType:   F32,
		Name:       "global_annotation_signal",
	})
	if err != nil {
		_ = raw.close()
		return nil, err
	}
	return w, nil
}

// DefineSource records a source definition. Sources are immutable and must
// be defined before any signal references them.
func (w *Writer) DefineSource(d *SourceDef) error {
	if w.closed {
		return ErrClosed
	}
	if d.SourceID == globalSourceID {
		return defErrorf("source_id 0 is reserved for the global source")
	}
	return w.defineSource(d)
}

func (w *Writer) defineSource(d *SourceDef) error {
	if d.SourceID > maxSourceID {
		return defErrorf("source_id %d exceeds maximum %d", d.SourceID, maxSourceID)
	}
	if _, ok := w.sources[d.SourceID]; ok {
		return defErrorf("source %d already defined", d.SourceID)
	}
	def := *d
	if _, err := w.raw.writeChunk(TagSourceDef, def.SourceID, encodeSourceDef(&def), false); err != nil {
		return err
	}
	w.sources[def.SourceID] = &def
	return nil
}

// DefineSignal records a signal definition and creates its write tracks.
// Zero-valued chunking parameters receive defaults; the resulting geometry
// is immutable for the signal's lifetime.
func (w *Writer) DefineSignal(d *SignalDef) error {
	if w.closed {
		return ErrClosed
	}
	if d.SignalID == globalSignalID {
		return defErrorf("signal_id 0 is reserved for global annotations")
	}
	return w.defineSignal(d)
}

func (w *Writer) defineSignal(d *SignalDef) error {
	if _, ok := w.signals[d.SignalID]; ok {
		return defErrorf("signal %d already defined", d.SignalID)
	}
	def := *d
	def.applyDefaults()
	if err := def.validate(); err != nil {
		return err
	}
	if _, ok := w.sources[def.SourceID]; !ok {
		return defErrorf("signal %d references undefined source %d", def.SignalID, def.SourceID)
	}
	if _, err := w.raw.writeChunk(TagSignalDef, def.SignalID, encodeSignalDef(&def), false); err != nil {
		return err
	}
	st := &signalState{
		def: &def,
		ann: newAnnotationWriter(&def, w.raw),
	}
	if def.SignalType == SignalTypeFSR {
		st.fsr = newFSRWriter(&def, w.raw)
		st.utc = newUTCWriter(&def, w.raw)
	}
	w.signals[def.SignalID] = st
	return nil
}

// ApplyCaptureConfig defines every source and signal of a declarative
// capture configuration, in order.
func (w *Writer) ApplyCaptureConfig(cc *CaptureConfig) error {
	for i := range cc.Sources {
		if err := w.DefineSource(&cc.Sources[i]); err != nil {
			return err
		}
	}
	for i := range cc.Signals {
		if err := w.DefineSignal(&cc.Signals[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) signal(signalID uint16) (*signalState, error) {
	if w.closed {
		return nil, ErrClosed
	}
	st, ok := w.signals[signalID]
	if !ok {
		return nil, defErrorf("signal %d is not defined", signalID)
	}
	return st, nil
}

// WriteFSR appends samples to a fixed-sample-rate signal. sampleID must
// equal the next expected id: the raw track has no gaps and never rewinds.
func (w *Writer) WriteFSR(signalID uint16, sampleID int64, values []float64) error {
	st, err := w.signal(signalID)
	if err != nil {
		return err
	}
	if st.fsr == nil {
		return defErrorf("signal %d is not FSR", signalID)
	}
	return st.fsr.write(sampleID, values)
}

// WriteAnnotation appends one annotation. Annotations must arrive in
// non-decreasing sample id order; ties preserve insertion order. Signal 0
// carries file-scoped annotations.
func (w *Writer) WriteAnnotation(signalID uint16, a *Annotation) error {
	st, err := w.signal(signalID)
	if err != nil {
		return err
	}
	return st.ann.append(a)
}

// WriteUTC appends one sample-id to wall-clock correlation entry. Entries
// must arrive in non-decreasing sample id order.
func (w *Writer) WriteUTC(signalID uint16, e UTCEntry) error {
	st, err := w.signal(signalID)
	if err != nil {
		return err
	}
	if st.utc == nil {
		return defErrorf("signal %d is not FSR", signalID)
	}
	return st.utc.append(e)
}

// WriteUserData appends one opaque user record. userTag is a small
// application-defined integer (at most 12 bits); records replay strictly in
// write order at read time.
func (w *Writer) WriteUserData(userTag uint16, storage StorageType, data []byte) error {
	if w.closed {
		return ErrClosed
	}
	if userTag > 0x0fff {
		return defErrorf("user data tag %d exceeds maximum %d", userTag, 0x0fff)
	}
	if storage == StorageInvalid || storage > StorageJSON {
		return defErrorf("invalid user data storage type %d", uint8(storage))
	}
	meta := userTag | uint16(storage)<<12
	_, err := w.raw.writeChunk(TagUserData, meta, data, false)
	return err
}

// SignalLength returns the number of samples appended so far to an FSR
// signal.
func (w *Writer) SignalLength(signalID uint16) (int64, error) {
	st, err := w.signal(signalID)
	if err != nil {
		return 0, err
	}
	if st.fsr == nil {
		return 0, nil
	}
	return st.fsr.length() - st.def.SampleIDOffset, nil
}

// Flush forces everything accepted so far to stable storage. In-progress
// chunk buffers (partial windows) remain in memory until their boundary or
// Close.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.raw.sync()
}

// Close flushes every partially filled buffer at every level of every
// track, writes the end chunk, patches the file header length, and syncs.
// Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	ids := make([]int, 0, len(w.signals))
	for id := range w.signals {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		st := w.signals[uint16(id)]
		if st.fsr != nil {
			if err := st.fsr.close(); err != nil {
				_ = w.raw.close()
				return err
			}
			if err := st.utc.close(); err != nil {
				_ = w.raw.close()
				return err
			}
		}
		if err := st.ann.close(); err != nil {
			_ = w.raw.close()
			return err
		}
	}
	if _, err := w.raw.writeChunk(TagEnd, 0, nil, false); err != nil {
		_ = w.raw.close()
		return err
	}
	return w.raw.close()
}
