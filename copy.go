package jls

import (
	"errors"
	"fmt"

	"github.com/jlskit/jls/internal/encoding"
)

// copyProgressStep is the byte interval between progress callbacks.
const copyProgressStep = 10 * 1024 * 1024

// Copy rewrites the recording at srcPath into a fresh recording at dstPath,
// salvaging as much as possible from a damaged or truncated source. Raw
// data, annotations, UTC entries, and user records are replayed through a
// normal writer, which regenerates summaries, indexes, and back-links from
// scratch.
//
// A corrupt chunk header resynchronizes by scanning forward for the next
// valid header; a corrupt payload skips that chunk. Both are reported
// through onMessage and never abort the copy. Only a destination I/O
// failure is fatal. onProgress receives the source fraction processed,
// ending with 1.0. Either callback may be nil.
func Copy(srcPath, dstPath string, onMessage func(string), onProgress func(float64)) error {
	if onMessage == nil {
		onMessage = func(string) {}
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}
	src, err := openRawReader(srcPath)
	if err != nil {
		return err
	}
	defer src.close()

	dst, err := NewWriter(dstPath, DefaultConfig())
	if err != nil {
		return err
	}

	c := &copier{src: src, dst: dst, onMessage: onMessage, types: make(map[uint16]DataType)}
	if err := c.run(onProgress); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	onProgress(1.0)
	return nil
}

type copier struct {
	src       *rawReader
	dst       *Writer
	onMessage func(string)

	// types maps recovered signal ids to their sample data type.
	types map[uint16]DataType
}

func (c *copier) run(onProgress func(float64)) error {
	offset := int64(fileHeaderSize)
	nextProgress := int64(copyProgressStep)
	for offset+chunkHeaderSize <= c.src.size {
		if offset >= nextProgress {
			onProgress(float64(offset) / float64(c.src.size))
			nextProgress = offset + copyProgressStep
		}
		h, err := c.src.readHeaderAt(offset)
		if err != nil {
			if errors.Is(err, ErrIO) {
				return err
			}
			c.onMessage(fmt.Sprintf("corrupt chunk header at offset %d, resynchronizing: %v", offset, err))
			next, nh, ok := c.src.scanValidHeader(offset + 8)
			if !ok {
				c.onMessage(fmt.Sprintf("no further valid chunks after offset %d", offset))
				return nil
			}
			offset, h = next, nh
		}
		payload, err := c.src.readPayload(offset, h)
		if err != nil {
			if errors.Is(err, ErrIO) {
				return err
			}
			c.onMessage(fmt.Sprintf("corrupt %s payload at offset %d, skipping: %v", h.tag, offset, err))
			offset += chunkSize(h.payloadLength)
			continue
		}
		if err := c.replay(offset, h, payload); err != nil {
			return err
		}
		offset += chunkSize(h.payloadLength)
	}
	return nil
}

// replay applies one intact source chunk to the destination writer.
// Replay failures that are not destination I/O errors (duplicate
// definitions, sample gaps after skipped chunks) are reported and the copy
// continues.
func (c *copier) replay(offset int64, h chunkHeader, payload []byte) error {
	var err error
	switch h.tag {
	case TagSourceDef:
		var d *SourceDef
		if d, err = decodeSourceDef(h.chunkMeta, payload); err == nil {
			if d.SourceID == globalSourceID {
				return nil
			}
			err = c.dst.DefineSource(d)
		}

	case TagSignalDef:
		var d *SignalDef
		if d, err = decodeSignalDef(h.chunkMeta, payload); err == nil {
			if d.SignalID == globalSignalID {
				return nil
			}
			if err = c.dst.DefineSignal(d); err == nil {
				c.types[d.SignalID] = d.DataType
			}
		}

	case TagFSRData:
		signalID := h.chunkMeta & 0x0fff
		dt, ok := c.types[signalID]
		if !ok {
			err = defErrorf("data chunk for unrecovered signal %d", signalID)
			break
		}
		er := encoding.NewReader(payload)
		ph := decodePayloadHeader(er)
		var values []float64
		if values, err = unpackSamples(dt, payload[payloadHeaderSize:], int(ph.entryCount)); err == nil {
			err = c.dst.WriteFSR(signalID, ph.timestamp, values)
		}

	case TagAnnotationData:
		var a *Annotation
		if a, err = decodeAnnotation(payload); err == nil {
			err = c.dst.WriteAnnotation(h.chunkMeta&0x0fff, a)
		}

	case TagUTCData:
		var e UTCEntry
		if e, err = decodeUTCEntry(payload); err == nil {
			err = c.dst.WriteUTC(h.chunkMeta&0x0fff, e)
		}

	case TagUserData:
		storage := StorageType(h.chunkMeta >> 12)
		if storage == StorageInvalid || storage > StorageJSON {
			c.onMessage(fmt.Sprintf("user data chunk at offset %d has invalid storage %d, skipping",
				offset, uint8(storage)))
			return nil
		}
		err = c.dst.WriteUserData(h.chunkMeta&0x0fff, storage, payload)

	default:
		// Summaries, indexes, and the end marker are regenerated by the
		// destination writer.
		return nil
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIO) || errors.Is(err, ErrCapacity) {
		return err
	}
	c.onMessage(fmt.Sprintf("cannot replay %s chunk at offset %d: %v", h.tag, offset, err))
	return nil
}
