package jls

import "github.com/jlskit/jls/internal/encoding"

// summaryEntrySizeBits is the stored width of one pyramid row:
// mean, std, min, max as float64.
const summaryEntrySizeBits = 4 * 64

// fsrWriter is the per-signal pipeline for fixed-sample-rate data. It
// accumulates raw samples into data chunks and drives the decimation
// pyramid: every SampleDecimateFactor raw samples become one level-1 entry,
// and every SummaryDecimateFactor level-k entries reduce into one
// level-(k+1) entry without re-reading raw samples.
type fsrWriter struct {
	def *SignalDef
	raw *rawWriter

	// next is the only sample id Write will accept.
	next int64
	// chunkStart is the sample id of data[0].
	chunkStart int64
	// data accumulates raw samples for the current data chunk.
	data []float64
	// windowStart indexes the first sample of the current level-1 window
	// within data. Data chunk and window boundaries always coincide
	// because SamplesPerData is a multiple of SampleDecimateFactor.
	windowStart int

	// levels[k-1] holds the level-k accumulation state.
	levels []*fsrLevel
}

// fsrLevel is the accumulation state of one pyramid level.
type fsrLevel struct {
	level int
	// entries are the rows pending in the current summary chunk.
	entries []SummaryEntry
	// chunkStart is the first raw sample id covered by entries[0].
	chunkStart int64
	// entryIndex counts all entries ever produced at this level.
	entryIndex int64
	// acc reduces consecutive entries toward one level-(k+1) entry.
	acc      Statistics
	accCount uint32
}

func newFSRWriter(def *SignalDef, raw *rawWriter) *fsrWriter {
	return &fsrWriter{
		def:        def,
		raw:        raw,
		next:       def.SampleIDOffset,
		chunkStart: def.SampleIDOffset,
		data:       make([]float64, 0, def.SamplesPerData),
	}
}

// length returns the sample id one past the last appended sample.
func (f *fsrWriter) length() int64 {
	return f.next
}

// write appends values starting at sampleID, which must equal the next
// expected id: the raw track permits no gaps and no rewinding.
func (f *fsrWriter) write(sampleID int64, values []float64) error {
	if sampleID != f.next {
		return errOutOfOrder(f.def.SignalID, "data", sampleID, f.next)
	}
	sdf := int(f.def.SampleDecimateFactor)
	spd := int(f.def.SamplesPerData)
	for len(values) > 0 {
		n := sdf - (len(f.data) - f.windowStart)
		if n > len(values) {
			n = len(values)
		}
		f.data = append(f.data, values[:n]...)
		values = values[n:]
		if len(f.data)-f.windowStart == sdf {
			stats := computeStatistics(f.data[f.windowStart:])
			f.windowStart += sdf
			if err := f.pushEntry(1, stats); err != nil {
				return err
			}
		}
		if len(f.data) == spd {
			if err := f.flushData(); err != nil {
				return err
			}
		}
	}
	f.next = f.chunkStart + int64(len(f.data))
	return nil
}

// rawWindow returns the raw sample span of one level-k entry.
func (f *fsrWriter) rawWindow(level int) int64 {
	w := int64(f.def.SampleDecimateFactor)
	for k := 1; k < level; k++ {
		w *= int64(f.def.SummaryDecimateFactor)
	}
	return w
}

// pushEntry appends one completed entry to level k, reducing upward and
// flushing summary chunks on their boundaries. Growth stops silently at the
// pyramid depth limit.
func (f *fsrWriter) pushEntry(level int, stats Statistics) error {
	if level >= maxSummaryLevels {
		return nil
	}
	for len(f.levels) < level {
		f.levels = append(f.levels, &fsrLevel{level: len(f.levels) + 1})
	}
	lvl := f.levels[level-1]
	if len(lvl.entries) == 0 {
		lvl.chunkStart = f.def.SampleIDOffset + lvl.entryIndex*f.rawWindow(level)
	}
	lvl.entries = append(lvl.entries, stats.Summary())
	lvl.entryIndex++
	lvl.acc.Combine(&stats)
	lvl.accCount++
	if lvl.accCount == f.def.SummaryDecimateFactor {
		up := lvl.acc
		lvl.acc = Statistics{}
		lvl.accCount = 0
		if err := f.pushEntry(level+1, up); err != nil {
			return err
		}
	}
	if uint32(len(lvl.entries)) == f.def.EntriesPerSummary {
		return f.flushSummary(lvl)
	}
	return nil
}

// flushData emits the pending raw samples as one data chunk.
func (f *fsrWriter) flushData() error {
	if len(f.data) == 0 {
		return nil
	}
	w := encoding.NewWriter(payloadHeaderSize + f.def.DataType.packedSize(len(f.data)))
	payloadHeader{
		timestamp:     f.chunkStart,
		entryCount:    uint32(len(f.data)),
		entrySizeBits: uint16(f.def.DataType.SizeBits()),
	}.encode(w)
	w.Raw(packSamples(f.def.DataType, f.data))
	if _, err := f.raw.writeChunk(TagFSRData, f.def.SignalID&0x0fff, w.Bytes(), true); err != nil {
		return err
	}
	f.chunkStart += int64(len(f.data))
	f.data = f.data[:0]
	f.windowStart = 0
	return nil
}

// flushSummary emits the pending entries of one level as a summary chunk.
func (f *fsrWriter) flushSummary(lvl *fsrLevel) error {
	if len(lvl.entries) == 0 {
		return nil
	}
	w := encoding.NewWriter(payloadHeaderSize + len(lvl.entries)*32)
	payloadHeader{
		timestamp:     lvl.chunkStart,
		entryCount:    uint32(len(lvl.entries)),
		entrySizeBits: summaryEntrySizeBits,
	}.encode(w)
	for _, e := range lvl.entries {
		w.F64(e.Mean)
		w.F64(e.Std)
		w.F64(e.Min)
		w.F64(e.Max)
	}
	meta := f.def.SignalID&0x0fff | uint16(lvl.level)<<12
	if _, err := f.raw.writeChunk(TagFSRSummary, meta, w.Bytes(), true); err != nil {
		return err
	}
	lvl.entries = lvl.entries[:0]
	return nil
}

// close flushes every partially filled buffer at every level. These final
// chunks are the only ones allowed to be smaller than their nominal size.
func (f *fsrWriter) close() error {
	if len(f.data) > f.windowStart {
		stats := computeStatistics(f.data[f.windowStart:])
		f.windowStart = len(f.data)
		if err := f.pushEntry(1, stats); err != nil {
			return err
		}
	}
	if err := f.flushData(); err != nil {
		return err
	}
	for k := 0; k < len(f.levels); k++ {
		lvl := f.levels[k]
		// A partial reduction only becomes a higher-level entry if that
		// level already exists: the pyramid never grows past the data.
		if lvl.accCount > 0 && k+1 < len(f.levels) {
			up := lvl.acc
			lvl.acc = Statistics{}
			lvl.accCount = 0
			if err := f.pushEntry(lvl.level+1, up); err != nil {
				return err
			}
		}
		if err := f.flushSummary(lvl); err != nil {
			return err
		}
	}
	return nil
}
