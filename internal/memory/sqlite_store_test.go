package memory

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return store
}

func sampleEntry(id string, ts time.Time) CareerEntry {
	return CareerEntry{
		EntryID:         id,
		Timestamp:       ts,
		RawInput:        "raw " + id,
		Category:        CategoryAchievement,
		Skills:          []string{"Go"},
		ImpactSummary:   "Summary " + id,
		Confidence:      ConfidenceMedium,
		Inquiry:         AwaitingClarification("What changed?"),
		RefinementState: RefinementPending,
	}
}

// TestNewSQLiteStore tests SQLite store creation and initialization.
func TestNewSQLiteStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	// Schema creation is idempotent
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.Version != 0 || len(snap.Entries) != 0 || snap.LastReflection != nil || snap.PendingCapture != nil {
		t.Errorf("empty store snapshot = %+v", snap)
	}
}

func TestSQLiteStore_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	snap := &Snapshot{
		Entries:  []CareerEntry{sampleEntry("b", base.Add(time.Hour)), sampleEntry("a", base)},
		Timezone: "Europe/Berlin",
		LastReflection: &ReflectionRecord{
			At:        base,
			Summary:   "Quiet week",
			ChangeLog: []ChangeLogEntry{{Action: "merge", EntryIDs: []string{"a", "b"}, Detail: "same work"}},
		},
		PendingCapture: &PendingCapture{
			Draft:         sampleEntry("draft", base),
			DuplicateOfID: "a",
			Question:      "Same as the search launch?",
			CreatedAt:     base,
		},
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("version after save = %d, want 1", snap.Version)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Version != 1 || got.Timezone != "Europe/Berlin" {
		t.Errorf("version/timezone = %d/%q", got.Version, got.Timezone)
	}
	if len(got.Entries) != 2 || got.Entries[0].EntryID != "b" {
		t.Fatalf("entries = %+v, want newest first", got.Entries)
	}
	e := got.Entries[1]
	if e.Inquiry.State != InquiryAwaitingClarification || e.Inquiry.Question != "What changed?" {
		t.Errorf("inquiry not preserved: %+v", e.Inquiry)
	}
	if !e.Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", e.Timestamp, base)
	}
	if got.LastReflection == nil || got.LastReflection.ChangeLog[0].Action != "merge" {
		t.Errorf("last reflection = %+v", got.LastReflection)
	}
	if got.PendingCapture == nil || got.PendingCapture.Draft.EntryID != "draft" {
		t.Errorf("pending capture = %+v", got.PendingCapture)
	}

	// Clearing optional state persists as absent
	got.LastReflection = nil
	got.PendingCapture = nil
	if err := store.Save(ctx, got); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	again, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.LastReflection != nil || again.PendingCapture != nil {
		t.Errorf("optional state not cleared: %+v", again)
	}
}

func TestSQLiteStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	first, _ := store.Load(ctx)
	stale, _ := store.Load(ctx)

	first.Entries = []CareerEntry{sampleEntry("a", time.Now())}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	stale.Entries = []CareerEntry{sampleEntry("b", time.Now())}
	err := store.Save(ctx, stale)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale Save() error = %v, want ErrVersionConflict", err)
	}

	got, _ := store.Load(ctx)
	if len(got.Entries) != 1 || got.Entries[0].EntryID != "a" {
		t.Errorf("conflicting save changed the store: %+v", got.Entries)
	}
}

func TestSQLiteStore_PruneKeepsEmbeddings(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	snap := &Snapshot{Entries: []CareerEntry{sampleEntry("keep", now), sampleEntry("merged", now)}}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveEmbedding(ctx, "keep", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveEmbedding(ctx, "merged", []float32{0.9, 0.1, 0}); err != nil {
		t.Fatal(err)
	}

	// A reflection merged "merged" away and edited "keep"
	edited := sampleEntry("keep", now)
	edited.ImpactSummary = "Merged summary"
	snap.Entries = []CareerEntry{edited}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Entries) != 1 || got.Entries[0].ImpactSummary != "Merged summary" {
		t.Errorf("entries after prune = %+v", got.Entries)
	}

	results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Entry.EntryID != "keep" {
		t.Fatalf("search after prune = %+v", results)
	}
	if results[0].Entry.ImpactSummary != "Merged summary" {
		t.Error("search should return the current entry data")
	}
}

func TestSQLiteStore_SearchSimilar(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	now := time.Now().UTC()

	snap := &Snapshot{Entries: []CareerEntry{
		sampleEntry("near", now), sampleEntry("far", now), sampleEntry("none", now), sampleEntry("short", now),
	}}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatal(err)
	}
	vectors := map[string][]float32{
		"near":  {1, 0.1, 0},
		"far":   {0, 1, 0},
		"short": {1, 0},
	}
	for id, v := range vectors {
		if err := store.SaveEmbedding(ctx, id, v); err != nil {
			t.Fatal(err)
		}
	}
	// Unknown ids are ignored
	if err := store.SaveEmbedding(ctx, "ghost", []float32{1, 1, 1}); err != nil {
		t.Fatalf("SaveEmbedding(ghost) error = %v", err)
	}

	results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (no embedding and wrong dimension skipped)", len(results))
	}
	if results[0].Entry.EntryID != "near" || results[0].SimilarityScore <= results[1].SimilarityScore {
		t.Errorf("results not ordered by similarity: %+v", results)
	}

	limited, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d results", len(limited))
	}
}

// TestVectorEncodeDecode tests the vector encoding and decoding functions.
func TestVectorEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{name: "nil vector", vector: nil},
		{name: "empty vector", vector: []float32{}},
		{name: "single element", vector: []float32{3.14159}},
		{name: "multiple elements", vector: []float32{1.0, 2.0, 3.0, -4.5, 0.0}},
		{name: "768 dimension vector", vector: make768Vector()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := decodeVector(encodeVector(tt.vector))

			if len(tt.vector) == 0 {
				if len(decoded) != 0 {
					t.Errorf("expected empty vector, got length %d", len(decoded))
				}
				return
			}
			if len(decoded) != len(tt.vector) {
				t.Fatalf("length mismatch: expected %d, got %d", len(tt.vector), len(decoded))
			}
			for i := range tt.vector {
				if decoded[i] != tt.vector[i] {
					t.Errorf("element %d mismatch: expected %f, got %f", i, tt.vector[i], decoded[i])
				}
			}
		})
	}
}

// TestCosineSimilarity tests the cosine similarity function.
func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite vectors", []float32{1, 2, 3}, []float32{-1, -2, -3}, -1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"different length vectors", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty vectors", []float32{}, []float32{}, 0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(result-tt.expected)) > 0.0001 {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func make768Vector() []float32 {
	v := make([]float32, 768)
	for i := range v {
		v[i] = float32(i) / 768.0
	}
	return v
}
