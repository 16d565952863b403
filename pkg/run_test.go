package eventbuilder

import "testing"

func TestRunEventBuilding_WhenBatchEmpty_ShouldMoveToNextBatch(t *testing.T) {
	rec := useRecordingLogger(t)
	registry := builderRegistry(t)
	source := newMemorySource()
	source.files["flagged"] = []RawHit{
		{Module: 0, Channel: 0, Timestamp: 100},
		{Module: 1, Channel: 0, Timestamp: 110},
	}
	source.files["good1"] = []RawHit{
		{Module: 0, Channel: 0, Timestamp: 1000, Valid: true},
		{Module: 1, Channel: 0, Timestamp: 1010, Valid: true},
	}
	source.files["good2"] = []RawHit{
		{Module: 0, Channel: 0, Timestamp: 5000, Valid: true},
		{Module: 0, Channel: 2, Timestamp: 5020, Valid: true},
	}

	store := newMemoryStore()
	loader := NewHitLoader(registry, source, 2, 1)
	builder := NewEventBuilder(registry, buildParams(100, 1), store.opener())

	stats, err := RunEventBuilding([]string{"flagged", "good1", "good2"}, 1, loader, builder)
	if err != nil {
		t.Fatalf("RunEventBuilding: %v", err)
	}
	if stats.Batches != 3 || stats.EmptyBatches != 1 {
		t.Errorf("expected 3 batches with 1 empty, got %d and %d", stats.Batches, stats.EmptyBatches)
	}
	if stats.Build.Events != 2 || len(store.all()) != 2 {
		t.Errorf("expected 2 events, got %d", stats.Build.Events)
	}
	if stats.Load.Hits != 4 || stats.Load.InvalidHits != 2 {
		t.Errorf("unexpected load stats %+v", stats.Load)
	}
	if len(store.opens) != 2 || !store.opens[0].create || store.opens[1].create {
		t.Errorf("expected the output created once and appended once, got %+v", store.opens)
	}
	if !rec.warned("batch 1 has no hits") {
		t.Errorf("expected a warning for the empty batch, got %v", rec.warnings)
	}
}

func TestRunEventBuilding_WhenFilesPerLoopUnset_ShouldUseOneBatch(t *testing.T) {
	registry := builderRegistry(t)
	source := newMemorySource()
	source.files["a"] = []RawHit{{Module: 0, Channel: 0, Timestamp: 1000, Valid: true}}
	source.files["b"] = []RawHit{{Module: 1, Channel: 0, Timestamp: 1020, Valid: true}}

	store := newMemoryStore()
	stats, err := RunEventBuilding([]string{"a", "b"}, 0,
		NewHitLoader(registry, source, 2, 1),
		NewEventBuilder(registry, buildParams(100, 1), store.opener()))
	if err != nil {
		t.Fatalf("RunEventBuilding: %v", err)
	}
	// hits from different files end up in the same event
	if stats.Batches != 1 || stats.Build.Events != 1 {
		t.Errorf("expected 1 batch and 1 event, got %d and %d", stats.Batches, stats.Build.Events)
	}
}
