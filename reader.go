package jls

import (
	"math"
	"sort"

	"github.com/jlskit/jls/internal/encoding"
)

// dataChunkRef locates one data chunk of a track.
type dataChunkRef struct {
	firstSampleID int64
	offset        int64
	count         uint32
}

// summaryChunkRef locates one summary chunk of one pyramid level.
type summaryChunkRef struct {
	firstSampleID   int64
	firstEntryIndex int64
	offset          int64
	count           uint32
}

// userDataRef locates one user record.
type userDataRef struct {
	tag     uint16
	storage StorageType
	offset  int64
}

// readerSignal is the reconstructed per-signal track directory.
type readerSignal struct {
	def       SignalDef
	data      []dataChunkRef
	summaries [][]summaryChunkRef
	annIndex  []indexEntry
	annData   []dataChunkRef
	utcIndex  []indexEntry
	utcData   []dataChunkRef

	// utcEntries caches the decoded UTC track for interpolation.
	utcEntries []UTCEntry
}

// Reader provides random access to a closed recording. On open it scans the
// chunk chain once to rebuild the source/signal registry and every signal's
// track directory; reads then decode only the chunks covering the request.
//
// Multiple Readers may serve one file concurrently; a single Reader is not
// safe for concurrent use.
type Reader struct {
	raw     *rawReader
	sources map[uint16]*SourceDef
	signals map[uint16]*readerSignal
	user    []userDataRef

	// One-slot summary chunk cache, keyed by chunk offset.
	sumCacheOffset  int64
	sumCacheEntries []SummaryEntry
}

// OpenReader opens the recording at path and rebuilds its registry. Any
// corrupt chunk encountered during the scan fails the open: partial
// metadata cannot be trusted for random access. Use Copy to salvage a
// damaged recording.
func OpenReader(path string) (*Reader, error) {
	raw, err := openRawReader(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		raw:            raw,
		sources:        make(map[uint16]*SourceDef),
		signals:        make(map[uint16]*readerSignal),
		sumCacheOffset: -1,
	}
	if err := r.scan(); err != nil {
		_ = raw.close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.raw.close()
}

// scan walks the chunk chain from the first chunk, building directories.
// A zero declared length (unclean shutdown) is tolerated: the scan simply
// runs to the last complete chunk before EOF.
func (r *Reader) scan() error {
	offset := int64(fileHeaderSize)
	for offset < r.raw.size {
		if offset+chunkHeaderSize > r.raw.size {
			break
		}
		h, err := r.raw.readHeaderAt(offset)
		if err != nil {
			return err
		}
		if err := r.index(offset, h); err != nil {
			return err
		}
		offset += chunkSize(h.payloadLength)
	}
	for _, st := range r.signals {
		sortRefs(st.data)
		sortRefs(st.annData)
		sortRefs(st.utcData)
		st.def.Length = signalLength(st)
	}
	return nil
}

// index dispatches one scanned chunk into the directories.
func (r *Reader) index(offset int64, h chunkHeader) error {
	switch h.tag {
	case TagSourceDef:
		payload, err := r.raw.readPayload(offset, h)
		if err != nil {
			return err
		}
		d, err := decodeSourceDef(h.chunkMeta, payload)
		if err != nil {
			return err
		}
		r.sources[d.SourceID] = d

	case TagSignalDef:
		payload, err := r.raw.readPayload(offset, h)
		if err != nil {
			return err
		}
		d, err := decodeSignalDef(h.chunkMeta, payload)
		if err != nil {
			return err
		}
		if _, ok := r.sources[d.SourceID]; !ok {
			return defErrorf("signal %d references undefined source %d", d.SignalID, d.SourceID)
		}
		r.signals[d.SignalID] = &readerSignal{def: *d}

	case TagFSRData:
		st, ph, err := r.dataChunkInfo(offset, h)
		if err != nil {
			return err
		}
		st.data = append(st.data, dataChunkRef{
			firstSampleID: ph.timestamp,
			offset:        offset,
			count:         ph.entryCount,
		})

	case TagFSRSummary:
		st, ph, err := r.dataChunkInfo(offset, h)
		if err != nil {
			return err
		}
		level := int(h.chunkMeta >> 12)
		if level < 1 || level >= maxSummaryLevels {
			return newChunkError(offset, h.tag, "invalid summary level", 1, uint32(level))
		}
		for len(st.summaries) < level {
			st.summaries = append(st.summaries, nil)
		}
		w := rawWindowSize(&st.def, level)
		st.summaries[level-1] = append(st.summaries[level-1], summaryChunkRef{
			firstSampleID:   ph.timestamp,
			firstEntryIndex: (ph.timestamp - st.def.SampleIDOffset) / w,
			offset:          offset,
			count:           ph.entryCount,
		})

	case TagAnnotationData:
		st, ph, err := r.dataChunkInfo(offset, h)
		if err != nil {
			return err
		}
		st.annData = append(st.annData, dataChunkRef{
			firstSampleID: ph.timestamp,
			offset:        offset,
			count:         1,
		})

	case TagUTCData:
		st, ph, err := r.dataChunkInfo(offset, h)
		if err != nil {
			return err
		}
		st.utcData = append(st.utcData, dataChunkRef{
			firstSampleID: ph.timestamp,
			offset:        offset,
			count:         1,
		})

	case TagAnnotationIndex, TagUTCIndex:
		st, ok := r.signals[h.chunkMeta&0x0fff]
		if !ok {
			return defErrorf("chunk at offset %d references undefined signal %d", offset, h.chunkMeta&0x0fff)
		}
		payload, err := r.raw.readPayload(offset, h)
		if err != nil {
			return err
		}
		entries, err := decodeIndexPayload(payload)
		if err != nil {
			return &ChunkError{Offset: offset, Tag: h.tag, Message: "index payload", Cause: err}
		}
		if h.tag == TagAnnotationIndex {
			st.annIndex = append(st.annIndex, entries...)
		} else {
			st.utcIndex = append(st.utcIndex, entries...)
		}

	case TagUserData:
		r.user = append(r.user, userDataRef{
			tag:     h.chunkMeta & 0x0fff,
			storage: StorageType(h.chunkMeta >> 12),
			offset:  offset,
		})

	case TagEnd, TagInvalid:
		// End marker carries no directory information; unknown future
		// tags with valid checksums are skipped the same way.
	}
	return nil
}

// dataChunkInfo resolves the owning signal and reads the payload header of
// a data-bearing chunk. Uncompressed payload headers are read in place;
// compressed payloads must be fully decoded.
func (r *Reader) dataChunkInfo(offset int64, h chunkHeader) (*readerSignal, payloadHeader, error) {
	st, ok := r.signals[h.chunkMeta&0x0fff]
	if !ok {
		return nil, payloadHeader{}, defErrorf("chunk at offset %d references undefined signal %d",
			offset, h.chunkMeta&0x0fff)
	}
	if h.flags&chunkFlagSnappy != 0 {
		payload, err := r.raw.readPayload(offset, h)
		if err != nil {
			return nil, payloadHeader{}, err
		}
		ph := decodePayloadHeader(encoding.NewReader(payload))
		return st, ph, nil
	}
	if h.payloadLength < payloadHeaderSize {
		return nil, payloadHeader{}, newChunkError(offset, h.tag, "payload too short",
			payloadHeaderSize, h.payloadLength)
	}
	var b [payloadHeaderSize]byte
	if _, err := r.raw.file.ReadAt(b[:], offset+chunkHeaderSize); err != nil {
		return nil, payloadHeader{}, ioError("read payload header", err)
	}
	ph := decodePayloadHeader(encoding.NewReader(b[:]))
	return st, ph, nil
}

func sortRefs(refs []dataChunkRef) {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].offset < refs[j].offset
	})
}

// signalLength derives the sample count from the data directory.
func signalLength(st *readerSignal) int64 {
	var end int64
	for _, ref := range st.data {
		if e := ref.firstSampleID + int64(ref.count); e > end {
			end = e
		}
	}
	if end == 0 {
		return 0
	}
	return end - st.def.SampleIDOffset
}

// rawWindowSize returns the raw sample span of one level-k summary entry.
func rawWindowSize(def *SignalDef, level int) int64 {
	w := int64(def.SampleDecimateFactor)
	for k := 1; k < level; k++ {
		w *= int64(def.SummaryDecimateFactor)
	}
	return w
}

// Sources returns all defined sources, ordered by id. The built-in global
// source 0 is included.
func (r *Reader) Sources() []*SourceDef {
	out := make([]*SourceDef, 0, len(r.sources))
	for _, d := range r.sources {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Signals returns all defined signals, ordered by id, with Length
// populated. The built-in global annotation signal 0 is included.
func (r *Reader) Signals() []*SignalDef {
	out := make([]*SignalDef, 0, len(r.signals))
	for _, st := range r.signals {
		def := st.def
		out = append(out, &def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalID < out[j].SignalID })
	return out
}

// Signal returns one signal definition with Length populated.
func (r *Reader) Signal(signalID uint16) (*SignalDef, error) {
	st, err := r.signal(signalID)
	if err != nil {
		return nil, err
	}
	def := st.def
	return &def, nil
}

func (r *Reader) signal(signalID uint16) (*readerSignal, error) {
	st, ok := r.signals[signalID]
	if !ok {
		return nil, defErrorf("signal %d is not defined", signalID)
	}
	return st, nil
}

// ReadRaw returns count raw samples of an FSR signal starting at the
// absolute sample id start, decoding only the covering data chunks.
// Sub-byte types are unpacked to their numeric values.
func (r *Reader) ReadRaw(signalID uint16, start, count int64) ([]float64, error) {
	st, err := r.signal(signalID)
	if err != nil {
		return nil, err
	}
	if st.def.SignalType != SignalTypeFSR {
		return nil, defErrorf("signal %d is not FSR", signalID)
	}
	end := st.def.SampleIDOffset + st.def.Length
	if count < 0 || start < st.def.SampleIDOffset || start+count > end {
		return nil, errOutOfRange(signalID, "data", start, end, "read beyond track bounds")
	}
	out := make([]float64, 0, count)
	if count == 0 {
		return out, nil
	}
	idx := sort.Search(len(st.data), func(i int) bool {
		return st.data[i].firstSampleID+int64(st.data[i].count) > start
	})
	pos := start
	for ; idx < len(st.data) && pos < start+count; idx++ {
		ref := st.data[idx]
		_, payload, _, err := r.raw.readChunkAt(ref.offset)
		if err != nil {
			return nil, err
		}
		er := encoding.NewReader(payload)
		ph := decodePayloadHeader(er)
		values, err := unpackSamples(st.def.DataType, payload[payloadHeaderSize:], int(ph.entryCount))
		if err != nil {
			return nil, err
		}
		lo := pos - ph.timestamp
		hi := int64(len(values))
		if rem := start + count - ph.timestamp; rem < hi {
			hi = rem
		}
		if lo < 0 || lo > hi {
			return nil, newChunkError(ref.offset, TagFSRData, "data chunk does not cover request",
				uint32(pos&0xffffffff), uint32(ph.timestamp&0xffffffff))
		}
		out = append(out, values[lo:hi]...)
		pos = ph.timestamp + hi
	}
	if int64(len(out)) != count {
		return nil, errOutOfRange(signalID, "data", pos, end, "data chunks missing for range")
	}
	return out, nil
}

// ReadSummary returns count summary entries for an FSR signal, where entry
// i covers the stride samples starting at start+i*stride (the final window
// may be clamped to the track end). The coarsest pyramid level that divides
// the requested geometry serves the request; a stride between stored levels
// re-reduces stored entries by the same parallel combination used at write
// time. Raw samples are only scanned when no summary can serve.
func (r *Reader) ReadSummary(signalID uint16, start, stride, count int64) ([]SummaryEntry, error) {
	st, err := r.signal(signalID)
	if err != nil {
		return nil, err
	}
	if st.def.SignalType != SignalTypeFSR {
		return nil, defErrorf("signal %d is not FSR", signalID)
	}
	end := st.def.SampleIDOffset + st.def.Length
	if stride < 1 || count < 1 || start < st.def.SampleIDOffset || start >= end ||
		start+(count-1)*stride >= end {
		return nil, errOutOfRange(signalID, "summary", start, end, "summary beyond track bounds")
	}

	level := 0
	for k := len(st.summaries); k >= 1; k-- {
		if len(st.summaries[k-1]) == 0 {
			continue
		}
		w := rawWindowSize(&st.def, k)
		if stride%w == 0 && (start-st.def.SampleIDOffset)%w == 0 {
			level = k
			break
		}
	}

	out := make([]SummaryEntry, 0, count)
	for i := int64(0); i < count; i++ {
		winStart := start + i*stride
		winEnd := winStart + stride
		if winEnd > end {
			winEnd = end
		}
		var stats Statistics
		if level > 0 {
			stats, err = r.reduceStored(st, level, winStart, winEnd)
		} else {
			stats, err = r.computeFromRaw(st, winStart, winEnd)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, stats.Summary())
	}
	return out, nil
}

// reduceStored combines stored level entries covering [winStart, winEnd)
// into one statistic via the parallel reduction used at write time.
func (r *Reader) reduceStored(st *readerSignal, level int, winStart, winEnd int64) (Statistics, error) {
	w := rawWindowSize(&st.def, level)
	end := st.def.SampleIDOffset + st.def.Length
	first := (winStart - st.def.SampleIDOffset) / w
	last := (winEnd - st.def.SampleIDOffset + w - 1) / w
	var acc Statistics
	for j := first; j < last; j++ {
		entry, err := r.summaryEntry(st, level, j)
		if err != nil {
			return Statistics{}, err
		}
		entryStart := st.def.SampleIDOffset + j*w
		entryEnd := entryStart + w
		if entryEnd > end {
			entryEnd = end
		}
		s := statisticsFromSummary(entry, uint64(entryEnd-entryStart))
		acc.Combine(&s)
	}
	return acc, nil
}

// summaryEntry fetches entry j of one pyramid level, decoding (and caching)
// the covering summary chunk.
func (r *Reader) summaryEntry(st *readerSignal, level int, j int64) (SummaryEntry, error) {
	refs := st.summaries[level-1]
	idx := sort.Search(len(refs), func(i int) bool {
		return refs[i].firstEntryIndex+int64(refs[i].count) > j
	})
	if idx == len(refs) || refs[idx].firstEntryIndex > j {
		return SummaryEntry{}, errOutOfRange(st.def.SignalID, "summary", j, int64(len(refs)),
			"summary entry not stored")
	}
	ref := refs[idx]
	entries, err := r.summaryChunk(ref)
	if err != nil {
		return SummaryEntry{}, err
	}
	return entries[j-ref.firstEntryIndex], nil
}

// summaryChunk decodes one summary chunk, serving repeated lookups from the
// one-slot cache.
func (r *Reader) summaryChunk(ref summaryChunkRef) ([]SummaryEntry, error) {
	if ref.offset == r.sumCacheOffset {
		return r.sumCacheEntries, nil
	}
	_, payload, _, err := r.raw.readChunkAt(ref.offset)
	if err != nil {
		return nil, err
	}
	er := encoding.NewReader(payload)
	ph := decodePayloadHeader(er)
	entries := make([]SummaryEntry, ph.entryCount)
	for i := range entries {
		entries[i] = SummaryEntry{
			Mean: er.F64(),
			Std:  er.F64(),
			Min:  er.F64(),
			Max:  er.F64(),
		}
	}
	if err := er.Err(); err != nil {
		return nil, &ChunkError{Offset: ref.offset, Tag: TagFSRSummary, Message: "summary payload", Cause: err}
	}
	r.sumCacheOffset = ref.offset
	r.sumCacheEntries = entries
	return entries, nil
}

// computeFromRaw computes window statistics directly from raw samples.
func (r *Reader) computeFromRaw(st *readerSignal, winStart, winEnd int64) (Statistics, error) {
	values, err := r.ReadRaw(st.def.SignalID, winStart, winEnd-winStart)
	if err != nil {
		return Statistics{}, err
	}
	return computeStatistics(values), nil
}

// Annotations streams the annotations of a signal with sample id at or
// after seekSampleID, in track order, until fn returns false or the track
// ends. Seeking past the last annotation yields no calls. The sparse seek
// index narrows the scan to the covering chunk before the forward walk.
func (r *Reader) Annotations(signalID uint16, seekSampleID int64, fn func(*Annotation) bool) error {
	st, err := r.signal(signalID)
	if err != nil {
		return err
	}
	if err := r.checkSeek(st, seekSampleID); err != nil {
		return err
	}
	pos := seekPosition(st.annIndex, st.annData, seekSampleID)
	for ; pos < len(st.annData); pos++ {
		_, payload, _, err := r.raw.readChunkAt(st.annData[pos].offset)
		if err != nil {
			return err
		}
		a, err := decodeAnnotation(payload)
		if err != nil {
			return err
		}
		if a.SampleID < seekSampleID {
			continue
		}
		if !fn(a) {
			return nil
		}
	}
	return nil
}

// UTC streams the UTC entries of a signal with sample id at or after
// seekSampleID, in track order, until fn returns false or the track ends.
func (r *Reader) UTC(signalID uint16, seekSampleID int64, fn func(UTCEntry) bool) error {
	st, err := r.signal(signalID)
	if err != nil {
		return err
	}
	if err := r.checkSeek(st, seekSampleID); err != nil {
		return err
	}
	pos := seekPosition(st.utcIndex, st.utcData, seekSampleID)
	for ; pos < len(st.utcData); pos++ {
		_, payload, _, err := r.raw.readChunkAt(st.utcData[pos].offset)
		if err != nil {
			return err
		}
		e, err := decodeUTCEntry(payload)
		if err != nil {
			return err
		}
		if e.SampleID < seekSampleID {
			continue
		}
		if !fn(e) {
			return nil
		}
	}
	return nil
}

// checkSeek rejects seeks before the first valid sample id of FSR signals.
func (r *Reader) checkSeek(st *readerSignal, seekSampleID int64) error {
	if st.def.SignalType == SignalTypeFSR && seekSampleID < st.def.SampleIDOffset {
		return errOutOfRange(st.def.SignalID, "seek", seekSampleID, st.def.SampleIDOffset,
			"seek before first valid sample id")
	}
	return nil
}

// seekPosition binary-searches the sparse index for the entry preceding the
// first one at or after the target, then locates its chunk in the track
// directory. Starting one entry early keeps ties at the seek id in the
// stream; the forward scan skips anything before the seek point.
func seekPosition(index []indexEntry, refs []dataChunkRef, seekSampleID int64) int {
	i := sort.Search(len(index), func(i int) bool {
		return index[i].sampleID >= seekSampleID
	})
	if i == 0 {
		return 0
	}
	target := index[i-1].offset
	return sort.Search(len(refs), func(i int) bool {
		return refs[i].offset >= target
	})
}

// UserData replays every user record in write order until fn returns false.
func (r *Reader) UserData(fn func(tag uint16, storage StorageType, data []byte) bool) error {
	for _, ref := range r.user {
		_, payload, _, err := r.raw.readChunkAt(ref.offset)
		if err != nil {
			return err
		}
		if !fn(ref.tag, ref.storage, payload) {
			return nil
		}
	}
	return nil
}

// utcTrack lazily decodes and caches the full UTC track of a signal.
func (r *Reader) utcTrack(st *readerSignal) ([]UTCEntry, error) {
	if st.utcEntries != nil || len(st.utcData) == 0 {
		return st.utcEntries, nil
	}
	entries := make([]UTCEntry, 0, len(st.utcData))
	for _, ref := range st.utcData {
		_, payload, _, err := r.raw.readChunkAt(ref.offset)
		if err != nil {
			return nil, err
		}
		e, err := decodeUTCEntry(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	st.utcEntries = entries
	return entries, nil
}

// SampleIDToTimestamp converts a sample id to a fixed-point wall-clock
// timestamp by linear interpolation between the two bracketing UTC entries.
// Extrapolation beyond the first or last entry is not allowed.
func (r *Reader) SampleIDToTimestamp(signalID uint16, sampleID int64) (int64, error) {
	st, err := r.signal(signalID)
	if err != nil {
		return 0, err
	}
	entries, err := r.utcTrack(st)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 || sampleID < entries[0].SampleID || sampleID > entries[len(entries)-1].SampleID {
		return 0, errOutOfRange(signalID, "utc", sampleID, int64(len(entries)),
			"sample id outside utc correlation range")
	}
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].SampleID >= sampleID
	})
	if entries[i].SampleID == sampleID {
		return entries[i].Timestamp, nil
	}
	s0, t0 := entries[i-1].SampleID, entries[i-1].Timestamp
	s1, t1 := entries[i].SampleID, entries[i].Timestamp
	frac := float64(sampleID-s0) / float64(s1-s0)
	return t0 + int64(math.Round(frac*float64(t1-t0))), nil
}

// TimestampToSampleID converts a fixed-point wall-clock timestamp to a
// sample id by linear interpolation between the two bracketing UTC entries.
// Extrapolation beyond the first or last entry is not allowed.
func (r *Reader) TimestampToSampleID(signalID uint16, timestamp int64) (int64, error) {
	st, err := r.signal(signalID)
	if err != nil {
		return 0, err
	}
	entries, err := r.utcTrack(st)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 || timestamp < entries[0].Timestamp || timestamp > entries[len(entries)-1].Timestamp {
		return 0, errOutOfRange(signalID, "utc", timestamp, int64(len(entries)),
			"timestamp outside utc correlation range")
	}
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Timestamp >= timestamp
	})
	if entries[i].Timestamp == timestamp {
		return entries[i].SampleID, nil
	}
	s0, t0 := entries[i-1].SampleID, entries[i-1].Timestamp
	s1, t1 := entries[i].SampleID, entries[i].Timestamp
	frac := float64(timestamp-t0) / float64(t1-t0)
	return s0 + int64(math.Round(frac*float64(s1-s0))), nil
}
