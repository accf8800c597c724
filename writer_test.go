package jls

import (
	"errors"
	"path/filepath"
	"testing"
)

// testSignal returns a small but fully decimating geometry so that tests
// exercise chunk and summary boundaries without millions of samples.
func testSignal(signalID uint16) *SignalDef {
	return &SignalDef{
		SignalID:              signalID,
		SourceID:              1,
		SignalType:            SignalTypeFSR,
		DataType:              F32,
		SampleRate:            1000,
		SamplesPerData:        100,
		SampleDecimateFactor:  10,
		EntriesPerSummary:     20,
		SummaryDecimateFactor: 10,
		Name:                  "current",
		Units:                 "A",
	}
}

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.jls")
	w, err := NewWriter(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.DefineSource(&SourceDef{SourceID: 1, Name: "probe"}); err != nil {
		t.Fatal(err)
	}
	return w, path
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestWriterDefinitionErrors(t *testing.T) {
	w, _ := newTestWriter(t)
	defer w.Close()

	if err := w.DefineSource(&SourceDef{SourceID: 0}); !errors.Is(err, ErrDefinition) {
		t.Errorf("reserved source id: err = %v, want ErrDefinition", err)
	}
	if err := w.DefineSource(&SourceDef{SourceID: 1}); !errors.Is(err, ErrDefinition) {
		t.Errorf("duplicate source: err = %v, want ErrDefinition", err)
	}
	if err := w.DefineSignal(&SignalDef{SignalID: 0}); !errors.Is(err, ErrDefinition) {
		t.Errorf("reserved signal id: err = %v, want ErrDefinition", err)
	}
	d := testSignal(2)
	d.SourceID = 9
	if err := w.DefineSignal(d); !errors.Is(err, ErrDefinition) {
		t.Errorf("undefined source: err = %v, want ErrDefinition", err)
	}
	if err := w.DefineSignal(testSignal(2)); err != nil {
		t.Fatal(err)
	}
	if err := w.DefineSignal(testSignal(2)); !errors.Is(err, ErrDefinition) {
		t.Errorf("duplicate signal: err = %v, want ErrDefinition", err)
	}
	if err := w.WriteFSR(5, 0, ramp(10)); !errors.Is(err, ErrDefinition) {
		t.Errorf("undefined signal write: err = %v, want ErrDefinition", err)
	}
}

func TestWriterOutOfOrder(t *testing.T) {
	w, _ := newTestWriter(t)
	defer w.Close()
	if err := w.DefineSignal(testSignal(2)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFSR(2, 0, ramp(50)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFSR(2, 40, ramp(10)); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("rewind: err = %v, want ErrOutOfOrder", err)
	}
	if err := w.WriteFSR(2, 60, ramp(10)); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("gap: err = %v, want ErrOutOfOrder", err)
	}
	n, err := w.SignalLength(2)
	if err != nil || n != 50 {
		t.Errorf("length = %d (%v), want 50", n, err)
	}
}

func TestWriterAnnotationOrder(t *testing.T) {
	w, _ := newTestWriter(t)
	defer w.Close()
	if err := w.DefineSignal(testSignal(2)); err != nil {
		t.Fatal(err)
	}
	a := &Annotation{SampleID: 100, Storage: StorageString, Data: []byte("hi")}
	if err := w.WriteAnnotation(2, a); err != nil {
		t.Fatal(err)
	}
	// Ties are legal; rewinds are not.
	if err := w.WriteAnnotation(2, a); err != nil {
		t.Fatalf("tie rejected: %v", err)
	}
	if err := w.WriteAnnotation(2, &Annotation{SampleID: 99, Storage: StorageString}); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("rewind: err = %v, want ErrOutOfOrder", err)
	}
	if err := w.WriteAnnotation(2, &Annotation{SampleID: 200, Storage: StorageInvalid}); !errors.Is(err, ErrDefinition) {
		t.Errorf("invalid storage: err = %v, want ErrDefinition", err)
	}
}

func TestWriterUserDataValidation(t *testing.T) {
	w, _ := newTestWriter(t)
	defer w.Close()
	if err := w.WriteUserData(0x1000, StorageBinary, nil); !errors.Is(err, ErrDefinition) {
		t.Errorf("oversized tag: err = %v, want ErrDefinition", err)
	}
	if err := w.WriteUserData(1, StorageInvalid, nil); !errors.Is(err, ErrDefinition) {
		t.Errorf("invalid storage: err = %v, want ErrDefinition", err)
	}
	if err := w.WriteUserData(1, StorageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
}

func TestWriterClosedOperations(t *testing.T) {
	w, _ := newTestWriter(t)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := w.DefineSource(&SourceDef{SourceID: 2}); !errors.Is(err, ErrClosed) {
		t.Errorf("define after close: err = %v, want ErrClosed", err)
	}
	if err := w.WriteFSR(2, 0, ramp(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close: err = %v, want ErrClosed", err)
	}
	if err := w.Flush(); !errors.Is(err, ErrClosed) {
		t.Errorf("flush after close: err = %v, want ErrClosed", err)
	}
}

func TestWriterUTCRequiresFSR(t *testing.T) {
	w, _ := newTestWriter(t)
	defer w.Close()
	d := &SignalDef{SignalID: 2, SourceID: 1, SignalType: SignalTypeVSR, DataType: F32, Name: "events"}
	if err := w.DefineSignal(d); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteUTC(2, UTCEntry{}); !errors.Is(err, ErrDefinition) {
		t.Errorf("utc on vsr: err = %v, want ErrDefinition", err)
	}
	if err := w.WriteFSR(2, 0, ramp(1)); !errors.Is(err, ErrDefinition) {
		t.Errorf("fsr on vsr: err = %v, want ErrDefinition", err)
	}
}
