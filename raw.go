package jls

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jlskit/jls/internal/encoding"
)

// fileIdentification opens every recording. The bytes are inherited from the
// format's ancestry: ASCII "jlsfmt", mixed line endings to catch text-mode
// mangling, a substitute character to stop console listings, and a value
// above 0x7f to catch 7-bit transports.
var fileIdentification = [16]byte{
	0x6a, 0x6c, 0x73, 0x66, 0x6d, 0x74, 0x0d, 0x0a,
	0x20, 0x0a, 0x20, 0x1a, 0x20, 0x20, 0xb2, 0x1c,
}

const (
	formatVersionMajor = 1
	formatVersionMinor = 0
	formatVersionPatch = 0

	formatVersion = formatVersionMajor<<24 | formatVersionMinor<<16 | formatVersionPatch

	// fileHeaderSize is the fixed prefix before the first chunk.
	fileHeaderSize = 32
)

// encodeFileHeader renders the 32-byte file header. length is 0 until the
// file is cleanly closed.
func encodeFileHeader(length int64) [fileHeaderSize]byte {
	w := encoding.NewWriter(fileHeaderSize)
	w.Raw(fileIdentification[:])
	w.U64(uint64(length))
	w.U32(formatVersion)
	w.U32(crc32c(w.Bytes()))
	var out [fileHeaderSize]byte
	copy(out[:], w.Bytes())
	return out
}

// decodeFileHeader validates identification and CRC, returning the declared
// length (0 for an unclean shutdown) and format version.
func decodeFileHeader(b []byte) (length int64, version uint32, err error) {
	if len(b) < fileHeaderSize {
		return 0, 0, newChunkError(0, TagInvalid, "truncated file header",
			fileHeaderSize, uint32(len(b)))
	}
	r := encoding.NewReader(b[:fileHeaderSize])
	id := r.Raw(16)
	length = r.I64()
	version = r.U32()
	want := r.U32()
	if [16]byte(id) != fileIdentification {
		return 0, 0, newChunkError(0, TagInvalid, "file identification mismatch", 0, 0)
	}
	if found := crc32c(b[:fileHeaderSize-4]); found != want {
		return 0, 0, newChunkError(0, TagInvalid, "file header checksum mismatch", want, found)
	}
	return length, version, nil
}

// rawWriter appends chunks to a recording. It is the only component that
// touches the file on the write path; everything above it deals in payloads.
type rawWriter struct {
	path        string
	file        *os.File
	writer      *bufio.Writer
	compression Compression

	// pos is the offset of the next chunk.
	pos int64
	// prevOffset and prevPayloadLen describe the most recently written
	// chunk; they become the back-link fields of the next one.
	prevOffset     int64
	prevPayloadLen uint32
}

// createRawWriter creates (or truncates) the recording at path and writes
// the file header with a zero length marker.
func createRawWriter(path string, compression Compression) (*rawWriter, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, ioError("create "+path, err)
	}
	rw := &rawWriter{
		path:        path,
		file:        file,
		writer:      bufio.NewWriterSize(file, 256*1024),
		compression: compression,
		pos:         fileHeaderSize,
	}
	hdr := encodeFileHeader(0)
	if _, err := rw.writer.Write(hdr[:]); err != nil {
		_ = file.Close()
		return nil, ioError("write file header", err)
	}
	return rw, nil
}

// writeChunk appends one chunk and returns its file offset. compress selects
// whether the writer's configured compression applies to this payload; only
// bulk data and summary chunks opt in.
func (rw *rawWriter) writeChunk(tag Tag, meta uint16, payload []byte, compress bool) (int64, error) {
	if len(payload) > maxPayloadSize {
		return 0, fmt.Errorf("%w: %s payload of %d bytes exceeds %d byte ceiling",
			ErrCapacity, tag, len(payload), maxPayloadSize)
	}
	disk := payload
	var flags uint8
	if compress {
		disk, flags = encodePayload(rw.compression, payload)
	}
	h := chunkHeader{
		itemPrev:          uint64(rw.prevOffset),
		tag:               tag,
		flags:             flags,
		chunkMeta:         meta,
		payloadLength:     uint32(len(disk)),
		payloadPrevLength: rw.prevPayloadLen,
	}
	hdr := encodeChunkHeader(h)
	if _, err := rw.writer.Write(hdr[:]); err != nil {
		return 0, ioError("write chunk header", err)
	}
	if _, err := rw.writer.Write(disk); err != nil {
		return 0, ioError("write chunk payload", err)
	}
	pad := int(paddedPayloadSize(h.payloadLength)) - len(disk) - 4
	if pad > 0 {
		if _, err := rw.writer.Write(make([]byte, pad)); err != nil {
			return 0, ioError("write chunk padding", err)
		}
	}
	var crc [4]byte
	w := encoding.NewWriter(4)
	w.U32(crc32c(disk))
	copy(crc[:], w.Bytes())
	if _, err := rw.writer.Write(crc[:]); err != nil {
		return 0, ioError("write chunk checksum", err)
	}

	offset := rw.pos
	rw.prevOffset = offset
	rw.prevPayloadLen = h.payloadLength
	rw.pos += chunkSize(h.payloadLength)
	return offset, nil
}

// flush pushes buffered bytes to the operating system.
func (rw *rawWriter) flush() error {
	if err := rw.writer.Flush(); err != nil {
		return ioError("flush", err)
	}
	return nil
}

// sync flushes and forces the bytes to stable storage.
func (rw *rawWriter) sync() error {
	if err := rw.flush(); err != nil {
		return err
	}
	if err := rw.file.Sync(); err != nil {
		return ioError("sync", err)
	}
	return nil
}

// close finalizes the recording: it patches the file header's length field
// (the single backward write the format permits), syncs, and closes.
func (rw *rawWriter) close() error {
	if err := rw.sync(); err != nil {
		_ = rw.file.Close()
		return err
	}
	hdr := encodeFileHeader(rw.pos)
	if _, err := rw.file.WriteAt(hdr[:], 0); err != nil {
		_ = rw.file.Close()
		return ioError("patch file header", err)
	}
	if err := rw.file.Sync(); err != nil {
		_ = rw.file.Close()
		return ioError("sync", err)
	}
	if err := rw.file.Close(); err != nil {
		return ioError("close", err)
	}
	return nil
}

// rawReader provides random access to the chunks of a recording. All reads
// go through ReadAt, so one rawReader is safe for concurrent readers.
type rawReader struct {
	file *os.File
	size int64

	// declaredLength is the file header length field: 0 means the file
	// was not cleanly closed and the chain must be scanned to its end.
	declaredLength int64
	version        uint32
}

// openRawReader opens the recording and validates its file header.
func openRawReader(path string) (*rawReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ioError("open "+path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, ioError("stat "+path, err)
	}
	var hdr [fileHeaderSize]byte
	if _, err := io.ReadFull(io.NewSectionReader(file, 0, fileHeaderSize), hdr[:]); err != nil {
		_ = file.Close()
		return nil, newChunkError(0, TagInvalid, "truncated file header", fileHeaderSize, 0)
	}
	length, version, err := decodeFileHeader(hdr[:])
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &rawReader{
		file:           file,
		size:           info.Size(),
		declaredLength: length,
		version:        version,
	}, nil
}

func (rr *rawReader) close() error {
	return rr.file.Close()
}

// readHeaderAt reads and validates the chunk header at offset.
func (rr *rawReader) readHeaderAt(offset int64) (chunkHeader, error) {
	var b [chunkHeaderSize]byte
	if offset+chunkHeaderSize > rr.size {
		return chunkHeader{}, newChunkError(offset, TagInvalid, "truncated header",
			chunkHeaderSize, uint32(rr.size-offset))
	}
	if _, err := rr.file.ReadAt(b[:], offset); err != nil {
		return chunkHeader{}, ioError("read chunk header", err)
	}
	return decodeChunkHeader(b[:], offset)
}

// readChunkAt reads, validates, and decodes the chunk at offset, returning
// the header, the decompressed payload, and the offset of the next chunk.
func (rr *rawReader) readChunkAt(offset int64) (chunkHeader, []byte, int64, error) {
	h, err := rr.readHeaderAt(offset)
	if err != nil {
		return chunkHeader{}, nil, 0, err
	}
	payload, err := rr.readPayload(offset, h)
	if err != nil {
		return chunkHeader{}, nil, 0, err
	}
	return h, payload, offset + chunkSize(h.payloadLength), nil
}

// readPayload reads and checksums the payload region for an already
// validated header.
func (rr *rawReader) readPayload(offset int64, h chunkHeader) ([]byte, error) {
	region := paddedPayloadSize(h.payloadLength)
	if offset+chunkHeaderSize+region > rr.size {
		return nil, newChunkError(offset, h.tag, "truncated payload",
			h.payloadLength, uint32(rr.size-offset-chunkHeaderSize))
	}
	buf := make([]byte, region)
	if _, err := rr.file.ReadAt(buf, offset+chunkHeaderSize); err != nil {
		return nil, ioError("read chunk payload", err)
	}
	disk := buf[:h.payloadLength]
	want := encoding.NewReader(buf[region-4:]).U32()
	if found := crc32c(disk); found != want {
		return nil, newChunkError(offset, h.tag, "payload checksum mismatch", want, found)
	}
	return decodePayload(h.flags, disk, offset, h.tag)
}

// scanValidHeader searches forward from `from` on 8-byte alignment for the
// next offset holding a header that validates and whose chunk fits in the
// file. It returns false when the remainder of the file holds none.
func (rr *rawReader) scanValidHeader(from int64) (int64, chunkHeader, bool) {
	offset := (from + 7) &^ 7
	for ; offset+chunkHeaderSize <= rr.size; offset += 8 {
		h, err := rr.readHeaderAt(offset)
		if err != nil {
			if errors.Is(err, ErrIO) {
				return 0, chunkHeader{}, false
			}
			continue
		}
		if offset+chunkSize(h.payloadLength) > rr.size {
			continue
		}
		return offset, h, true
	}
	return 0, chunkHeader{}, false
}
