// Package jls implements a self-describing, chunked binary container format
// for long-duration, high-rate instrumentation recordings, together with the
// engine that writes and reads it.
//
// A recording holds sources (instruments), signals (channels), raw
// fixed-sample-rate data, a multi-resolution pyramid of statistical summaries
// (mean, standard deviation, min, max), annotations, UTC time correlation,
// and arbitrary user records. The file is a chain of checksummed chunks, so a
// truncated or partially corrupted recording remains salvageable.
//
// # Writing
//
// Open a writer, define the recording topology, then stream samples:
//
//	w, err := jls.NewWriter("capture.jls", jls.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	w.DefineSource(&jls.SourceDef{SourceID: 1, Name: "JS220", Vendor: "Jetperch"})
//	w.DefineSignal(&jls.SignalDef{
//	    SignalID:   1,
//	    SourceID:   1,
//	    DataType:   jls.F32,
//	    SampleRate: 1000000,
//	    Name:       "current",
//	    Units:      "A",
//	})
//	w.WriteFSR(1, 0, samples)
//
// For acquisition loops that must not block on disk latency, wrap the same
// surface in a [StagedWriter], which stages appends through a bounded ring
// buffer serviced by a single background worker.
//
// # Reading
//
// A [Reader] rebuilds the registry by scanning the chunk chain, then serves
// random-access reads of raw samples or decimated summaries:
//
//	r, err := jls.OpenReader("capture.jls")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	raw, err := r.ReadRaw(1, 0, 1000)
//	sum, err := r.ReadSummary(1, 0, 10000, 100)
//
// # Recovery
//
// [Copy] replays a possibly damaged recording into a fresh file, validating
// every chunk, skipping (with a diagnostic) anything that fails its checksum,
// and resynchronizing on the next valid chunk boundary. Summaries, seek
// indexes, and back-links are regenerated from the surviving data.
package jls
