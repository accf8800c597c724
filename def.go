package jls

import "github.com/jlskit/jls/internal/encoding"

// SignalType distinguishes evenly sampled signals from annotation-only
// streams.
type SignalType uint8

const (
	// SignalTypeFSR is a fixed-sample-rate signal: evenly spaced samples.
	SignalTypeFSR SignalType = 0
	// SignalTypeVSR is a variable-sample-rate signal: irregularly timed
	// entries, such as an annotation-only stream.
	SignalTypeVSR SignalType = 1
)

func (t SignalType) String() string {
	switch t {
	case SignalTypeFSR:
		return "fsr"
	case SignalTypeVSR:
		return "vsr"
	}
	return "unknown"
}

const (
	// maxSourceID is the highest assignable source id.
	maxSourceID = 255
	// maxSignalID is the highest assignable signal id.
	maxSignalID = 255
	// maxSummaryLevels bounds the decimation pyramid depth.
	maxSummaryLevels = 16

	// globalSourceID and globalSignalID name the built-in scope for
	// file-level annotations. Both are defined implicitly by the writer.
	globalSourceID = 0
	globalSignalID = 0
)

// SourceDef is the identity of one physical or logical origin of signals.
// All string fields are optional. A source is immutable once written.
type SourceDef struct {
	// SourceID identifies the source; 0 is reserved for the built-in
	// global source.
	SourceID     uint16 `yaml:"source_id"`
	Name         string `yaml:"name"`
	Vendor       string `yaml:"vendor"`
	Model        string `yaml:"model"`
	Version      string `yaml:"version"`
	SerialNumber string `yaml:"serial_number"`
}

// SignalDef describes one measured or derived channel. The chunking
// parameters are immutable for the signal's lifetime; zero values are
// replaced by defaults when the signal is defined.
type SignalDef struct {
	// SignalID identifies the signal; 0 is reserved for global,
	// file-scoped annotations.
	SignalID uint16 `yaml:"signal_id"`
	// SourceID must reference an already defined source.
	SourceID   uint16     `yaml:"source_id"`
	SignalType SignalType `yaml:"signal_type"`
	DataType   DataType   `yaml:"data_type"`
	// SampleRate is in Hz; 0 for VSR signals.
	SampleRate uint32 `yaml:"sample_rate"`

	// SamplesPerData is the raw sample count per data chunk. Must be a
	// multiple of SampleDecimateFactor. Default 100000.
	SamplesPerData uint32 `yaml:"samples_per_data"`
	// SampleDecimateFactor is the raw samples per level-1 summary entry.
	// Default 100.
	SampleDecimateFactor uint32 `yaml:"sample_decimate_factor"`
	// EntriesPerSummary is the entry count per summary chunk. Must be a
	// multiple of SummaryDecimateFactor. Default 20000.
	EntriesPerSummary uint32 `yaml:"entries_per_summary"`
	// SummaryDecimateFactor is the level-k entries per level-(k+1) entry.
	// Default 100.
	SummaryDecimateFactor uint32 `yaml:"summary_decimate_factor"`
	// AnnotationDecimateFactor is the annotation count per seek index
	// chunk. Default 100.
	AnnotationDecimateFactor uint32 `yaml:"annotation_decimate_factor"`
	// UTCDecimateFactor is the UTC entry count per seek index chunk.
	// Default 100.
	UTCDecimateFactor uint32 `yaml:"utc_decimate_factor"`

	// SampleIDOffset is the first valid sample id, supporting recordings
	// that start late.
	SampleIDOffset int64 `yaml:"sample_id_offset"`

	Name string `yaml:"name"`
	// Units is the SI unit string with no scale prefix, e.g. "A".
	Units string `yaml:"units"`

	// Length is the number of samples recorded: highest sample id written
	// plus one, minus SampleIDOffset. Populated by the reader; ignored on
	// write.
	Length int64 `yaml:"-"`
}

// applyDefaults fills zero-valued chunking parameters.
func (d *SignalDef) applyDefaults() {
	if d.SignalType == SignalTypeFSR {
		if d.SampleDecimateFactor == 0 {
			d.SampleDecimateFactor = 100
		}
		if d.SamplesPerData == 0 {
			d.SamplesPerData = 100000
		}
		if d.SummaryDecimateFactor == 0 {
			d.SummaryDecimateFactor = 100
		}
		if d.EntriesPerSummary == 0 {
			d.EntriesPerSummary = 20000
		}
	}
	if d.AnnotationDecimateFactor == 0 {
		d.AnnotationDecimateFactor = 100
	}
	if d.UTCDecimateFactor == 0 {
		d.UTCDecimateFactor = 100
	}
}

// validate checks the definition's internal consistency. The caller's
// chunking parameters are authoritative: invalid geometry is rejected, never
// silently rounded.
func (d *SignalDef) validate() error {
	if d.SignalID > maxSignalID {
		return defErrorf("signal_id %d exceeds maximum %d", d.SignalID, maxSignalID)
	}
	if d.SourceID > maxSourceID {
		return defErrorf("signal %d: source_id %d exceeds maximum %d", d.SignalID, d.SourceID, maxSourceID)
	}
	if !d.DataType.valid() {
		return defErrorf("signal %d: invalid data type %d", d.SignalID, uint8(d.DataType))
	}
	switch d.SignalType {
	case SignalTypeFSR:
		if d.SampleRate == 0 {
			return defErrorf("signal %d: FSR requires a sample rate", d.SignalID)
		}
		if d.SamplesPerData%d.SampleDecimateFactor != 0 {
			return defErrorf("signal %d: samples_per_data %d is not a multiple of sample_decimate_factor %d",
				d.SignalID, d.SamplesPerData, d.SampleDecimateFactor)
		}
		if d.EntriesPerSummary%d.SummaryDecimateFactor != 0 {
			return defErrorf("signal %d: entries_per_summary %d is not a multiple of summary_decimate_factor %d",
				d.SignalID, d.EntriesPerSummary, d.SummaryDecimateFactor)
		}
		if d.SampleDecimateFactor < 2 || d.SummaryDecimateFactor < 2 {
			return defErrorf("signal %d: decimate factors must be at least 2", d.SignalID)
		}
	case SignalTypeVSR:
		if d.SampleRate != 0 {
			return defErrorf("signal %d: VSR requires a zero sample rate", d.SignalID)
		}
	default:
		return defErrorf("signal %d: invalid signal type %d", d.SignalID, uint8(d.SignalType))
	}
	return nil
}

// encodeSourceDef renders the SourceDef chunk payload. 64 bytes are
// reserved ahead of the strings for future fixed fields.
func encodeSourceDef(d *SourceDef) []byte {
	w := encoding.NewWriter(128)
	w.Zero(64)
	w.String(d.Name)
	w.String(d.Vendor)
	w.String(d.Model)
	w.String(d.Version)
	w.String(d.SerialNumber)
	return w.Bytes()
}

func decodeSourceDef(sourceID uint16, payload []byte) (*SourceDef, error) {
	r := encoding.NewReader(payload)
	r.Skip(64)
	d := &SourceDef{
		SourceID: sourceID,
		Name:     r.String(),
		Vendor:   r.String(),
		Model:    r.String(),
		Version:  r.String(),
	}
	d.SerialNumber = r.String()
	if err := r.Err(); err != nil {
		return nil, &ChunkError{Tag: TagSourceDef, Message: "source definition payload", Cause: err}
	}
	return d, nil
}

// encodeSignalDef renders the SignalDef chunk payload. 64 bytes are
// reserved ahead of the strings for future fixed fields.
func encodeSignalDef(d *SignalDef) []byte {
	w := encoding.NewWriter(192)
	w.U16(d.SourceID)
	w.U8(uint8(d.SignalType))
	w.U8(uint8(d.DataType))
	w.U32(d.SampleRate)
	w.U32(d.SamplesPerData)
	w.U32(d.SampleDecimateFactor)
	w.U32(d.EntriesPerSummary)
	w.U32(d.SummaryDecimateFactor)
	w.U32(d.AnnotationDecimateFactor)
	w.U32(d.UTCDecimateFactor)
	w.I64(d.SampleIDOffset)
	w.Zero(64)
	w.String(d.Name)
	w.String(d.Units)
	return w.Bytes()
}

func decodeSignalDef(signalID uint16, payload []byte) (*SignalDef, error) {
	r := encoding.NewReader(payload)
	d := &SignalDef{
		SignalID:   signalID,
		SourceID:   r.U16(),
		SignalType: SignalType(r.U8()),
		DataType:   DataType(r.U8()),
	}
	d.SampleRate = r.U32()
	d.SamplesPerData = r.U32()
	d.SampleDecimateFactor = r.U32()
	d.EntriesPerSummary = r.U32()
	d.SummaryDecimateFactor = r.U32()
	d.AnnotationDecimateFactor = r.U32()
	d.UTCDecimateFactor = r.U32()
	d.SampleIDOffset = r.I64()
	r.Skip(64)
	d.Name = r.String()
	d.Units = r.String()
	if err := r.Err(); err != nil {
		return nil, &ChunkError{Tag: TagSignalDef, Message: "signal definition payload", Cause: err}
	}
	return d, nil
}
