package jls

import "github.com/jlskit/jls/internal/encoding"

// indexEntry is one row of a sparse seek index: the first sample id held at
// a chunk offset.
type indexEntry struct {
	sampleID int64
	offset   int64
}

// sideTrack is the shared machinery of the annotation and UTC tracks:
// append-only, sample-id-ordered entries with an index chunk emitted every
// `decimate` entries for sparse seeking.
type sideTrack struct {
	signalID uint16
	name     string
	indexTag Tag
	decimate uint32
	raw      *rawWriter

	started bool
	last    int64
	pending []indexEntry
}

func newSideTrack(signalID uint16, name string, indexTag Tag, decimate uint32, raw *rawWriter) *sideTrack {
	return &sideTrack{
		signalID: signalID,
		name:     name,
		indexTag: indexTag,
		decimate: decimate,
		raw:      raw,
	}
}

// checkOrder enforces non-decreasing sample ids.
func (t *sideTrack) checkOrder(sampleID int64) error {
	if t.started && sampleID < t.last {
		return errOutOfOrder(t.signalID, t.name, sampleID, t.last)
	}
	return nil
}

// record notes one appended entry and flushes the index on its boundary.
func (t *sideTrack) record(sampleID, offset int64) error {
	t.started = true
	t.last = sampleID
	t.pending = append(t.pending, indexEntry{sampleID: sampleID, offset: offset})
	if uint32(len(t.pending)) == t.decimate {
		return t.flushIndex()
	}
	return nil
}

// flushIndex emits the pending index entries as one index chunk.
func (t *sideTrack) flushIndex() error {
	if len(t.pending) == 0 {
		return nil
	}
	w := encoding.NewWriter(payloadHeaderSize + len(t.pending)*16)
	payloadHeader{
		timestamp:     t.pending[0].sampleID,
		entryCount:    uint32(len(t.pending)),
		entrySizeBits: 128,
	}.encode(w)
	for _, e := range t.pending {
		w.I64(e.sampleID)
		w.U64(uint64(e.offset))
	}
	if _, err := t.raw.writeChunk(t.indexTag, t.signalID&0x0fff, w.Bytes(), false); err != nil {
		return err
	}
	t.pending = t.pending[:0]
	return nil
}

// close flushes a final, possibly undersized, index chunk.
func (t *sideTrack) close() error {
	return t.flushIndex()
}

// decodeIndexPayload parses an index chunk payload into its entries.
func decodeIndexPayload(payload []byte) ([]indexEntry, error) {
	r := encoding.NewReader(payload)
	h := decodePayloadHeader(r)
	entries := make([]indexEntry, 0, h.entryCount)
	for i := uint32(0); i < h.entryCount; i++ {
		e := indexEntry{sampleID: r.I64()}
		e.offset = int64(r.U64())
		entries = append(entries, e)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
