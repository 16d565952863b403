package hdf5store

import (
	"errors"
	"path/filepath"
	"testing"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

func TestSource_ShouldReadRawHitsWritten(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "raw.h5")
	hits := []eventbuilder.RawHit{
		{Module: 0, Channel: 1, Timestamp: 1234567.0, EnergyLong: 100, EnergyShort: 10, Valid: true},
		{Module: 3, Channel: 15, Timestamp: 1234999.5, EnergyLong: 4000, EnergyShort: 20, Valid: false},
	}
	if err := WriteRawHits(filename, hits, 4); err != nil {
		t.Fatalf("WriteRawHits: %v", err)
	}

	source := NewSource()
	n, err := source.CountHits(filename)
	if err != nil {
		t.Fatalf("CountHits: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 hits, got %d", n)
	}
	got, err := source.ReadHits(filename)
	if err != nil {
		t.Fatalf("ReadHits: %v", err)
	}
	if len(got) != len(hits) {
		t.Fatalf("expected %d hits, got %d", len(hits), len(got))
	}
	for i := range hits {
		if got[i] != hits[i] {
			t.Errorf("hit %d: expected %+v, got %+v", i, hits[i], got[i])
		}
	}
}

func TestSource_WhenHitTableMissing_ShouldReturnErrMissingDataset(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "events.h5")
	w, err := Open(filename, true, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = NewSource().ReadHits(filename)
	var missing *eventbuilder.ErrMissingDataset
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingDataset, got %v", err)
	}
}

func TestSource_WhenFileMissing_ShouldReturnErrOpenFile(t *testing.T) {
	_, err := NewSource().CountHits(filepath.Join(t.TempDir(), "missing.h5"))
	var openErr *eventbuilder.ErrOpenFile
	if !errors.As(err, &openErr) {
		t.Fatalf("expected ErrOpenFile, got %v", err)
	}
}

func testEvents(firstTS float64) []eventbuilder.EventRecord {
	return []eventbuilder.EventRecord{
		{
			Hits: []eventbuilder.Hit{
				{Module: 0, Channel: 0, Timestamp: 0, EnergyLong: 10},
				{Module: 1, Channel: 2, Timestamp: 12.5, EnergyLong: 20},
			},
			TriggerDetectorID: 0, TriggerTimestamp: firstTS,
			Multiplicity: 2, MultiplicityA: 1, MultiplicityB: 1,
			SumEnergy: 30, IsCandidateTrigger: true,
		},
		{
			Hits: []eventbuilder.Hit{
				{Module: 0, Channel: 5, Timestamp: -3},
				{Module: 0, Channel: 1, Timestamp: 0},
				{Module: 1, Channel: 4, Timestamp: 8},
			},
			TriggerDetectorID: 4, TriggerTimestamp: firstTS + 1000,
			Multiplicity: 3, MultiplicityC: 2,
		},
	}
}

func TestWriter_ShouldCreateThenAppend(t *testing.T) {
	dir := t.TempDir()
	open := OpenerFor(dir, 4)

	w, err := open(5, 1, true)
	if err != nil {
		t.Fatalf("open (create): %v", err)
	}
	if err := w.WriteEvents(testEvents(1e6)); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w, err = open(5, 1, false)
	if err != nil {
		t.Fatalf("open (append): %v", err)
	}
	if err := w.WriteEvents(testEvents(2e6)); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	filename := EventFileName(dir, 5, 1)
	if filepath.Base(filename) != "event_run5_t1.h5" {
		t.Errorf("unexpected file name %s", filename)
	}
	events, hits, err := ReadEvents(filename)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 4 || len(hits) != 10 {
		t.Fatalf("expected 4 events and 10 hits, got %d and %d", len(events), len(hits))
	}
	for i, event := range events {
		if event.EventID != uint64(i) {
			t.Errorf("event %d has ID %d", i, event.EventID)
		}
	}
	third := events[2]
	if third.TriggerTS != 2e6 || third.FirstHit != 5 || third.NHits != 2 || third.Candidate != 1 {
		t.Errorf("unexpected appended event %+v", third)
	}
	if hits[third.FirstHit].EventID != 2 || hits[third.FirstHit+1].Timestamp != 12.5 {
		t.Errorf("hits not linked to their event: %+v", hits[third.FirstHit])
	}

	// create truncates
	w, err = open(5, 1, true)
	if err != nil {
		t.Fatalf("open (recreate): %v", err)
	}
	w.Close()
	events, _, err = ReadEvents(filename)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected an empty file after recreate, got %d events", len(events))
	}
}

func TestWriter_WhenMultiplicityAbove16Bits_ShouldKeepIt(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenerFor(dir, 0)(3, 0, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	event := testEvents(0)[0]
	event.Multiplicity = 70000
	event.MultiplicityA = 65536
	event.MultiplicityB = 4000
	event.MultiplicityC = 464
	if err := w.WriteEvents([]eventbuilder.EventRecord{event}); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, _, err := ReadEvents(EventFileName(dir, 3, 0))
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.Multiplicity != 70000 || got.MultiplicityA != 65536 || got.MultiplicityB != 4000 || got.MultiplicityC != 464 {
		t.Errorf("multiplicities not preserved: %+v", got)
	}
}

func TestHistogramWriter_ShouldWriteOneTablePerHistogram(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "timeOffset.h5")
	h0 := eventbuilder.NewHistogram("histTimeOffsetMod0", "", 10, -5, 5)
	h1 := eventbuilder.NewHistogram("histTimeOffsetMod1", "", 10, -5, 5)
	h1.Fill(2.5)
	h1.Fill(9)

	var writer eventbuilder.HistogramWriter = HistogramWriter{CompressionLevel: 4}
	if err := writer.WriteHistograms(filename, []*eventbuilder.Histogram{h0, h1}); err != nil {
		t.Fatalf("WriteHistograms: %v", err)
	}

	rows := histogramRows(h1)
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}
	if rows[8].LowEdge != 2 || rows[8].Content != 1 || rows[11].Content != 1 {
		t.Errorf("unexpected rows %+v", rows)
	}
}
