package jls

import "github.com/jlskit/jls/internal/encoding"

// AnnotationType classifies an annotation for viewers.
type AnnotationType uint8

const (
	// AnnotationUser is application-dependent data with no standardized
	// form or purpose.
	AnnotationUser AnnotationType = 0
	// AnnotationText is UTF-8 text displayed at the annotation's location.
	AnnotationText AnnotationType = 1
	// AnnotationMarker is a vertical marker. By convention a bare number
	// name like "1" is a single marker and names like "A1"/"A2" form a
	// dual-marker pair spanning a range.
	AnnotationMarker AnnotationType = 2
)

// StorageType describes the payload encoding of annotations and user
// records.
type StorageType uint8

const (
	// StorageInvalid marks an absent or unrecognized payload.
	StorageInvalid StorageType = 0
	// StorageBinary is raw binary data.
	StorageBinary StorageType = 1
	// StorageString is UTF-8 text.
	StorageString StorageType = 2
	// StorageJSON is a UTF-8 JSON document.
	StorageJSON StorageType = 3
)

// Annotation is one out-of-band record attached to a signal at a sample id.
// Annotations on signal 0 are file-scoped.
type Annotation struct {
	// SampleID positions the annotation on the signal's time axis.
	SampleID int64
	// Y is the optional vertical position; NaN lets viewers auto-place.
	Y float32
	// Type is the annotation kind.
	Type AnnotationType
	// Storage describes the encoding of Data.
	Storage StorageType
	// GroupID optionally groups related annotations; 0 when unused.
	GroupID uint8
	// Data is the annotation payload.
	Data []byte
}

// encodeAnnotation renders one annotation as a data chunk payload.
func encodeAnnotation(a *Annotation) []byte {
	w := encoding.NewWriter(payloadHeaderSize + 12 + len(a.Data))
	payloadHeader{
		timestamp:     a.SampleID,
		entryCount:    1,
		entrySizeBits: 0,
	}.encode(w)
	w.F32(a.Y)
	w.U8(uint8(a.Type))
	w.U8(uint8(a.Storage))
	w.U8(a.GroupID)
	w.U8(0)
	w.Bytes32(a.Data)
	return w.Bytes()
}

// decodeAnnotation parses one annotation data chunk payload.
func decodeAnnotation(payload []byte) (*Annotation, error) {
	r := encoding.NewReader(payload)
	h := decodePayloadHeader(r)
	a := &Annotation{
		SampleID: h.timestamp,
		Y:        r.F32(),
		Type:     AnnotationType(r.U8()),
		Storage:  StorageType(r.U8()),
		GroupID:  r.U8(),
	}
	r.U8()
	a.Data = r.Bytes32()
	if err := r.Err(); err != nil {
		return nil, &ChunkError{Tag: TagAnnotationData, Message: "annotation payload", Cause: err}
	}
	return a, nil
}

// annotationWriter appends the sample-id-ordered annotation track of one
// signal, one data chunk per annotation plus a sparse seek index.
type annotationWriter struct {
	track *sideTrack
}

func newAnnotationWriter(def *SignalDef, raw *rawWriter) *annotationWriter {
	return &annotationWriter{
		track: newSideTrack(def.SignalID, "annotation", TagAnnotationIndex,
			def.AnnotationDecimateFactor, raw),
	}
}

func (aw *annotationWriter) append(a *Annotation) error {
	if err := aw.track.checkOrder(a.SampleID); err != nil {
		return err
	}
	if a.Storage == StorageInvalid || a.Storage > StorageJSON {
		return defErrorf("signal %d: invalid annotation storage type %d",
			aw.track.signalID, uint8(a.Storage))
	}
	offset, err := aw.track.raw.writeChunk(TagAnnotationData, aw.track.signalID&0x0fff,
		encodeAnnotation(a), false)
	if err != nil {
		return err
	}
	return aw.track.record(a.SampleID, offset)
}

func (aw *annotationWriter) close() error {
	return aw.track.close()
}
