package jls

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jlskit/jls/internal/encoding"
)

func TestCopyCleanFile(t *testing.T) {
	srcPath := writeRecording(t)
	dstPath := filepath.Join(t.TempDir(), "copy.jls")

	var messages []string
	var lastProgress float64
	err := Copy(srcPath, dstPath,
		func(m string) { messages = append(messages, m) },
		func(p float64) { lastProgress = p })
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Errorf("clean copy reported: %v", messages)
	}
	if lastProgress != 1.0 {
		t.Errorf("final progress = %v, want 1.0", lastProgress)
	}

	src := openRecording(t, srcPath)
	dst := openRecording(t, dstPath)

	sd, err := src.Signal(2)
	if err != nil {
		t.Fatal(err)
	}
	dd, err := dst.Signal(2)
	if err != nil {
		t.Fatal(err)
	}
	if dd.Length != sd.Length {
		t.Fatalf("copied length = %d, want %d", dd.Length, sd.Length)
	}
	want, err := src.ReadRaw(2, 0, sd.Length)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dst.ReadRaw(2, 0, dd.Length)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("copied sample %d = %v, want %v", i, got[i], want[i])
		}
	}

	countAnns := func(r *Reader, id uint16) int {
		n := 0
		if err := r.Annotations(id, 0, func(*Annotation) bool { n++; return true }); err != nil {
			t.Fatal(err)
		}
		return n
	}
	if countAnns(dst, 2) != countAnns(src, 2) || countAnns(dst, 0) != countAnns(src, 0) {
		t.Error("annotation counts differ after copy")
	}

	var records int
	if err := dst.UserData(func(uint16, StorageType, []byte) bool { records++; return true }); err != nil {
		t.Fatal(err)
	}
	if records != 3 {
		t.Errorf("user records = %d, want 3", records)
	}
}

// findDataChunk locates the FSR data chunk whose first sample id matches.
func findDataChunk(t *testing.T, path string, firstSampleID int64) (offset int64, payloadLength uint32) {
	t.Helper()
	rr, err := openRawReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rr.close()
	pos := int64(fileHeaderSize)
	for pos+chunkHeaderSize <= rr.size {
		h, payload, next, err := rr.readChunkAt(pos)
		if err != nil {
			t.Fatal(err)
		}
		if h.tag == TagFSRData {
			ph := decodePayloadHeader(encoding.NewReader(payload))
			if ph.timestamp == firstSampleID {
				return pos, h.payloadLength
			}
		}
		pos = next
	}
	t.Fatalf("no data chunk starting at sample %d", firstSampleID)
	return 0, 0
}

func TestCopyRecoversFromCorruptPayload(t *testing.T) {
	srcPath := writeRecording(t)
	dstPath := filepath.Join(t.TempDir(), "copy.jls")

	// Corrupt the final data chunk so everything before it survives.
	offset, _ := findDataChunk(t, srcPath, 2500)
	f, err := os.OpenFile(srcPath, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0xff}, offset+chunkHeaderSize+payloadHeaderSize+1); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	var messages []string
	err = Copy(srcPath, dstPath, func(m string) { messages = append(messages, m) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) == 0 {
		t.Fatal("corrupt payload produced no message")
	}
	found := false
	for _, m := range messages {
		if strings.Contains(m, "skipping") {
			found = true
		}
	}
	if !found {
		t.Errorf("messages lack a skip report: %v", messages)
	}

	dst := openRecording(t, dstPath)
	d, err := dst.Signal(2)
	if err != nil {
		t.Fatal(err)
	}
	if d.Length != 2500 {
		t.Fatalf("recovered length = %d, want 2500", d.Length)
	}
	values, err := dst.ReadRaw(2, 0, 2500)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2500; i += 499 {
		if values[i] != float64(i) {
			t.Fatalf("recovered sample %d = %v, want %d", i, values[i], i)
		}
	}
}

func TestCopyResynchronizesAfterCorruptHeader(t *testing.T) {
	srcPath := writeRecording(t)
	dstPath := filepath.Join(t.TempDir(), "copy.jls")

	offset, _ := findDataChunk(t, srcPath, 2500)
	f, err := os.OpenFile(srcPath, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Destroy the chunk header itself.
	if _, err := f.WriteAt(make([]byte, chunkHeaderSize), offset); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	var messages []string
	err = Copy(srcPath, dstPath, func(m string) { messages = append(messages, m) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	resync := false
	for _, m := range messages {
		if strings.Contains(m, "resynchronizing") {
			resync = true
		}
	}
	if !resync {
		t.Fatalf("no resynchronization reported: %v", messages)
	}

	dst := openRecording(t, dstPath)
	d, err := dst.Signal(2)
	if err != nil {
		t.Fatal(err)
	}
	if d.Length != 2500 {
		t.Errorf("recovered length = %d, want 2500", d.Length)
	}
	var records int
	if err := dst.UserData(func(uint16, StorageType, []byte) bool { records++; return true }); err != nil {
		t.Fatal(err)
	}
	if records != 3 {
		t.Errorf("user records = %d, want 3", records)
	}
}
