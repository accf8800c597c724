package jls

import (
	"errors"
	"testing"

	"github.com/jlskit/jls/internal/encoding"
)

func TestChunkHeaderRoundTrip(t *testing.T) {
	h := chunkHeader{
		itemPrev:          32,
		tag:               TagFSRData,
		flags:             chunkFlagSnappy,
		chunkMeta:         0x3007,
		payloadLength:     12345,
		payloadPrevLength: 88,
	}
	b := encodeChunkHeader(h)
	got, err := decodeChunkHeader(b[:], 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Errorf("decoded header = %+v, want %+v", got, h)
	}
}

func TestChunkHeaderCorruptionDetected(t *testing.T) {
	b := encodeChunkHeader(chunkHeader{tag: TagSourceDef, payloadLength: 10})
	for _, i := range []int{0, 8, 12, 20, 31} {
		mangled := b
		mangled[i] ^= 0x40
		if _, err := decodeChunkHeader(mangled[:], 64); !errors.Is(err, ErrCorruptChunk) {
			t.Errorf("byte %d flip: err = %v, want ErrCorruptChunk", i, err)
		}
	}
}

func TestChunkHeaderPayloadCeiling(t *testing.T) {
	b := encodeChunkHeader(chunkHeader{tag: TagFSRData, payloadLength: maxPayloadSize + 1})
	if _, err := decodeChunkHeader(b[:], 0); !errors.Is(err, ErrCorruptChunk) {
		t.Fatalf("err = %v, want ErrCorruptChunk", err)
	}
}

func TestPaddedPayloadSize(t *testing.T) {
	cases := []struct {
		length uint32
		want   int64
	}{
		{0, 8},
		{1, 8},
		{4, 8},
		{5, 16},
		{12, 16},
		{13, 24},
	}
	for _, tc := range cases {
		if got := paddedPayloadSize(tc.length); got != tc.want {
			t.Errorf("paddedPayloadSize(%d) = %d, want %d", tc.length, got, tc.want)
		}
		total := chunkSize(tc.length)
		if total%8 != 0 {
			t.Errorf("chunkSize(%d) = %d, not 8-byte aligned", tc.length, total)
		}
	}
}

func TestEncodePayloadCompression(t *testing.T) {
	compressible := make([]byte, 4096)
	disk, flags := encodePayload(CompressionSnappy, compressible)
	if flags&chunkFlagSnappy == 0 {
		t.Fatal("zero payload did not compress")
	}
	if len(disk) >= len(compressible) {
		t.Fatalf("compressed to %d bytes, want < %d", len(disk), len(compressible))
	}
	back, err := decodePayload(flags, disk, 0, TagFSRData)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != len(compressible) {
		t.Fatalf("decompressed %d bytes, want %d", len(back), len(compressible))
	}

	// Incompressible payloads fall back to verbatim storage.
	hostile := make([]byte, 64)
	for i := range hostile {
		hostile[i] = byte(i*131 + 7)
	}
	disk, flags = encodePayload(CompressionSnappy, hostile)
	if flags != 0 || len(disk) != len(hostile) {
		t.Errorf("incompressible payload: flags=%d len=%d, want verbatim", flags, len(disk))
	}
}

func TestPayloadHeaderRoundTrip(t *testing.T) {
	w := encoding.NewWriter(payloadHeaderSize)
	in := payloadHeader{timestamp: -5, entryCount: 77, entrySizeBits: 32}
	in.encode(w)
	if w.Len() != payloadHeaderSize {
		t.Fatalf("encoded %d bytes, want %d", w.Len(), payloadHeaderSize)
	}
	got := decodePayloadHeader(encoding.NewReader(w.Bytes()))
	if got != in {
		t.Errorf("decoded = %+v, want %+v", got, in)
	}
}

func TestFileHeaderRoundTrip(t *testing.T) {
	b := encodeFileHeader(123456)
	length, version, err := decodeFileHeader(b[:])
	if err != nil {
		t.Fatal(err)
	}
	if length != 123456 {
		t.Errorf("length = %d, want 123456", length)
	}
	if version != formatVersion {
		t.Errorf("version = %#x, want %#x", version, formatVersion)
	}
	b[3] ^= 1
	if _, _, err := decodeFileHeader(b[:]); !errors.Is(err, ErrCorruptChunk) {
		t.Errorf("mangled identification: err = %v, want ErrCorruptChunk", err)
	}
}
