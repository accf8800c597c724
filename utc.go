package jls

import "github.com/jlskit/jls/internal/encoding"

// UTCEntry correlates one sample id with the wall-clock time at which it
// was acquired, as a fixed-point timestamp (see Timestamp helpers in
// time.go). Entries between two correlations interpolate linearly.
type UTCEntry struct {
	SampleID  int64
	Timestamp int64
}

// encodeUTCEntry renders one correlation entry as a data chunk payload.
func encodeUTCEntry(e UTCEntry) []byte {
	w := encoding.NewWriter(payloadHeaderSize + 8)
	payloadHeader{
		timestamp:     e.SampleID,
		entryCount:    1,
		entrySizeBits: 64,
	}.encode(w)
	w.I64(e.Timestamp)
	return w.Bytes()
}

// decodeUTCEntry parses one UTC data chunk payload.
func decodeUTCEntry(payload []byte) (UTCEntry, error) {
	r := encoding.NewReader(payload)
	h := decodePayloadHeader(r)
	e := UTCEntry{SampleID: h.timestamp, Timestamp: r.I64()}
	if err := r.Err(); err != nil {
		return UTCEntry{}, &ChunkError{Tag: TagUTCData, Message: "utc payload", Cause: err}
	}
	return e, nil
}

// utcWriter appends the sample-id-ordered UTC track of one signal, one data
// chunk per entry plus a sparse seek index.
type utcWriter struct {
	track *sideTrack
}

func newUTCWriter(def *SignalDef, raw *rawWriter) *utcWriter {
	return &utcWriter{
		track: newSideTrack(def.SignalID, "utc", TagUTCIndex, def.UTCDecimateFactor, raw),
	}
}

func (uw *utcWriter) append(e UTCEntry) error {
	if err := uw.track.checkOrder(e.SampleID); err != nil {
		return err
	}
	offset, err := uw.track.raw.writeChunk(TagUTCData, uw.track.signalID&0x0fff,
		encodeUTCEntry(e), false)
	if err != nil {
		return err
	}
	return uw.track.record(e.SampleID, offset)
}

func (uw *utcWriter) close() error {
	return uw.track.close()
}
