package memory

import "context"

// Store defines the contract for persisting career memory.
// The entry collection is stored and replaced as a single versioned snapshot;
// embeddings are kept alongside entries for similarity search.
type Store interface {
	// Load returns the full persisted snapshot. An empty store yields a
	// snapshot with Version 0 and no entries.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the persisted snapshot with snap. snap.Version must equal
	// the persisted version, otherwise ErrVersionConflict is returned. On
	// success snap.Version is advanced to the new persisted version.
	Save(ctx context.Context, snap *Snapshot) error

	// SaveEmbedding attaches a vector to an existing entry.
	SaveEmbedding(ctx context.Context, entryID string, vector []float32) error

	// SearchSimilar returns the entries closest to queryVector, most similar first.
	SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]ScoredEntry, error)

	// Close releases any resources held by the store.
	Close() error
}
