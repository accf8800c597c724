package jls

import (
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"

	"github.com/jlskit/jls/internal/encoding"
)

// Tag identifies the contents of a chunk.
type Tag uint8

const (
	// TagInvalid marks an unused tag value.
	TagInvalid Tag = 0x00
	// TagSourceDef defines one source. chunkMeta holds the source id.
	TagSourceDef Tag = 0x01
	// TagSignalDef defines one signal. chunkMeta holds the signal id.
	TagSignalDef Tag = 0x02
	// TagFSRData holds one run of raw fixed-sample-rate samples.
	TagFSRData Tag = 0x20
	// TagFSRSummary holds one run of pyramid entries. chunkMeta bits
	// [15:12] hold the summary level.
	TagFSRSummary Tag = 0x21
	// TagAnnotationData holds one annotation record.
	TagAnnotationData Tag = 0x22
	// TagAnnotationIndex holds sparse {sample_id, offset} seek entries for
	// the annotation track.
	TagAnnotationIndex Tag = 0x23
	// TagUTCData holds one sample-id-to-UTC correlation entry.
	TagUTCData Tag = 0x24
	// TagUTCIndex holds sparse {sample_id, offset} seek entries for the
	// UTC track.
	TagUTCIndex Tag = 0x25
	// TagUserData holds one opaque user record. chunkMeta bits [11:0] hold
	// the user tag, bits [15:12] the storage type.
	TagUserData Tag = 0x40
	// TagEnd terminates a cleanly closed file. Its payload is empty.
	TagEnd Tag = 0xff
)

func (t Tag) String() string {
	switch t {
	case TagSourceDef:
		return "source_def"
	case TagSignalDef:
		return "signal_def"
	case TagFSRData:
		return "fsr_data"
	case TagFSRSummary:
		return "fsr_summary"
	case TagAnnotationData:
		return "annotation_data"
	case TagAnnotationIndex:
		return "annotation_index"
	case TagUTCData:
		return "utc_data"
	case TagUTCIndex:
		return "utc_index"
	case TagUserData:
		return "user_data"
	case TagEnd:
		return "end"
	case TagInvalid:
		return "invalid"
	}
	return fmt.Sprintf("tag(0x%02x)", uint8(t))
}

const (
	// chunkHeaderSize is the fixed encoded size of a chunk header.
	chunkHeaderSize = 32

	// chunkFlagSnappy marks a snappy-compressed payload.
	chunkFlagSnappy = 0x01

	// maxPayloadSize bounds a single chunk payload so that staging and
	// scanning logic stays size-safe.
	maxPayloadSize = 1 << 30
)

// crc32cTable is the Castagnoli polynomial table; the same CRC-32C the
// original format computes in hardware where available.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

func crc32c(b []byte) uint32 {
	return crc32.Checksum(b, crc32cTable)
}

// chunkHeader is the fixed leader of every chunk. itemPrev and
// payloadPrevLength enable reverse traversal without ever patching a flushed
// chunk: both refer to the already-written predecessor.
type chunkHeader struct {
	itemPrev          uint64
	tag               Tag
	flags             uint8
	chunkMeta         uint16
	payloadLength     uint32
	payloadPrevLength uint32
}

// encodeChunkHeader renders the header with its trailing CRC-32C.
func encodeChunkHeader(h chunkHeader) [chunkHeaderSize]byte {
	w := encoding.NewWriter(chunkHeaderSize)
	w.U64(h.itemPrev)
	w.U8(uint8(h.tag))
	w.U8(h.flags)
	w.U16(h.chunkMeta)
	w.U32(h.payloadLength)
	w.U32(h.payloadPrevLength)
	w.Zero(8)
	w.U32(crc32c(w.Bytes()))
	var out [chunkHeaderSize]byte
	copy(out[:], w.Bytes())
	return out
}

// decodeChunkHeader validates the header CRC and declared length, returning
// a ChunkError on any mismatch. offset is used only for diagnostics.
func decodeChunkHeader(b []byte, offset int64) (chunkHeader, error) {
	if len(b) < chunkHeaderSize {
		return chunkHeader{}, newChunkError(offset, TagInvalid, "truncated header",
			chunkHeaderSize, uint32(len(b)))
	}
	r := encoding.NewReader(b[:chunkHeaderSize])
	h := chunkHeader{
		itemPrev: r.U64(),
		tag:      Tag(r.U8()),
		flags:    r.U8(),
	}
	h.chunkMeta = r.U16()
	h.payloadLength = r.U32()
	h.payloadPrevLength = r.U32()
	r.Skip(8)
	want := r.U32()
	if found := crc32c(b[:chunkHeaderSize-4]); found != want {
		return chunkHeader{}, newChunkError(offset, h.tag, "header checksum mismatch", want, found)
	}
	if h.payloadLength > maxPayloadSize {
		return chunkHeader{}, newChunkError(offset, h.tag, "payload length exceeds ceiling",
			maxPayloadSize, h.payloadLength)
	}
	return h, nil
}

// paddedPayloadSize returns the on-disk byte count of the payload region:
// the payload, zero padding, and the trailing payload CRC, sized so the
// chunk ends on an 8-byte boundary.
func paddedPayloadSize(payloadLength uint32) int64 {
	return int64((payloadLength+4+7)/8) * 8
}

// chunkSize returns the total on-disk size of a chunk with the given payload
// length.
func chunkSize(payloadLength uint32) int64 {
	return chunkHeaderSize + paddedPayloadSize(payloadLength)
}

// encodePayload applies the configured compression, returning the on-disk
// payload bytes and the header flags describing them. Compression that does
// not shrink the payload is dropped.
func encodePayload(c Compression, payload []byte) ([]byte, uint8) {
	if c != CompressionSnappy || len(payload) == 0 {
		return payload, 0
	}
	packed := snappy.Encode(nil, payload)
	if len(packed) >= len(payload) {
		return payload, 0
	}
	return packed, chunkFlagSnappy
}

// decodePayload reverses encodePayload.
func decodePayload(flags uint8, data []byte, offset int64, tag Tag) ([]byte, error) {
	if flags&chunkFlagSnappy == 0 {
		return data, nil
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, &ChunkError{Offset: offset, Tag: tag, Message: "snappy payload", Cause: err}
	}
	return out, nil
}

// payloadHeader is the fixed leader of data, summary, and index payloads.
type payloadHeader struct {
	timestamp     int64
	entryCount    uint32
	entrySizeBits uint16
}

const payloadHeaderSize = 16

func (h payloadHeader) encode(w *encoding.Writer) {
	w.I64(h.timestamp)
	w.U32(h.entryCount)
	w.U16(h.entrySizeBits)
	w.U16(0)
}

func decodePayloadHeader(r *encoding.Reader) payloadHeader {
	h := payloadHeader{
		timestamp:  r.I64(),
		entryCount: r.U32(),
	}
	h.entrySizeBits = r.U16()
	r.U16()
	return h
}
