package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
// Entries are stored as JSON documents keyed by entry id, together with an
// optional embedding blob. Vector similarity search is performed in
// application memory using cosine similarity.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore connected to the given database path.
// The path should be a file path (e.g., "./memory.db") or ":memory:" for an in-memory database.
// It opens the database connection and verifies connectivity with a ping.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the necessary tables if they don't exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS career_entries (
			entry_id TEXT PRIMARY KEY,
			occurred_at TEXT NOT NULL,
			data TEXT NOT NULL,
			embedding BLOB
		);

		CREATE INDEX IF NOT EXISTS idx_entries_occurred_at ON career_entries(occurred_at);

		-- Snapshot-level values: version, timezone, last reflection, pending capture
		CREATE TABLE IF NOT EXISTS memory_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

const (
	stateVersion        = "version"
	stateTimezone       = "timezone"
	stateLastReflection = "last_reflection"
	statePendingCapture = "pending_capture"
)

// Load reads the whole snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	state, err := s.readState(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if v, ok := state[stateVersion]; ok {
		snap.Version, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse snapshot version %q: %w", v, err)
		}
	}
	snap.Timezone = state[stateTimezone]
	if v := state[stateLastReflection]; v != "" {
		snap.LastReflection = &ReflectionRecord{}
		if err := json.Unmarshal([]byte(v), snap.LastReflection); err != nil {
			return nil, fmt.Errorf("failed to decode last reflection: %w", err)
		}
	}
	if v := state[statePendingCapture]; v != "" {
		snap.PendingCapture = &PendingCapture{}
		if err := json.Unmarshal([]byte(v), snap.PendingCapture); err != nil {
			return nil, fmt.Errorf("failed to decode pending capture: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM career_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry, err := decodeEntry([]byte(data))
		if err != nil {
			return nil, err
		}
		snap.Entries = append(snap.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	SortEntries(snap.Entries)
	return snap, nil
}

// Save replaces the snapshot inside a single transaction. Rows for entries
// that no longer exist (merged away or reset) are deleted; embeddings of
// surviving entries are preserved.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := s.readState(ctx, tx)
	if err != nil {
		return err
	}
	var current int64
	if v, ok := state[stateVersion]; ok {
		current, _ = strconv.ParseInt(v, 10, 64)
	}
	if current != snap.Version {
		return fmt.Errorf("%w: have %d, store has %d", ErrVersionConflict, snap.Version, current)
	}

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS keep_ids (entry_id TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("failed to prepare id table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keep_ids`); err != nil {
		return fmt.Errorf("failed to reset id table: %w", err)
	}

	upsert := `
		INSERT INTO career_entries (entry_id, occurred_at, data)
		VALUES (?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET occurred_at = excluded.occurred_at, data = excluded.data
	`
	for _, e := range snap.Entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", e.EntryID, err)
		}
		if _, err := tx.ExecContext(ctx, upsert, e.EntryID, e.Timestamp.UTC().Format(time.RFC3339Nano), string(data)); err != nil {
			return fmt.Errorf("failed to save entry %s: %w", e.EntryID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO keep_ids (entry_id) VALUES (?)`, e.EntryID); err != nil {
			return fmt.Errorf("failed to track entry %s: %w", e.EntryID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM career_entries WHERE entry_id NOT IN (SELECT entry_id FROM keep_ids)`); err != nil {
		return fmt.Errorf("failed to prune entries: %w", err)
	}

	next := snap.Version + 1
	values := map[string]string{
		stateVersion:  strconv.FormatInt(next, 10),
		stateTimezone: snap.Timezone,
	}
	if values[stateLastReflection], err = encodeOptional(snap.LastReflection); err != nil {
		return err
	}
	if values[statePendingCapture], err = encodeOptional(snap.PendingCapture); err != nil {
		return err
	}
	for k, v := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v)
		if err != nil {
			return fmt.Errorf("failed to save state %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	snap.Version = next
	return nil
}

// SaveEmbedding stores the vector for an entry. Unknown ids are ignored.
func (s *SQLiteStore) SaveEmbedding(ctx context.Context, entryID string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `UPDATE career_entries SET embedding = ? WHERE entry_id = ?`, encodeVector(vector), entryID)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

// SearchSimilar finds entries similar to the query vector using cosine similarity.
// Unlike PostgreSQL with pgvector, this implementation loads all embeddings into memory
// and computes similarity scores in the application layer, which suits a
// personal-scale memory.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]ScoredEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data, embedding FROM career_entries WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var results []ScoredEntry
	for rows.Next() {
		var data string
		var blob []byte
		if err := rows.Scan(&data, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		stored := decodeVector(blob)
		if len(stored) == 0 || len(stored) != len(queryVector) {
			continue
		}
		entry, err := decodeEntry([]byte(data))
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredEntry{
			Entry:           entry,
			SimilarityScore: cosineSimilarity(queryVector, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})

	return results[:min(limit, len(results))], nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) readState(ctx context.Context, q queryer) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM memory_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	defer rows.Close()

	state := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		state[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state: %w", err)
	}
	return state, nil
}

func decodeEntry(data []byte) (CareerEntry, error) {
	var e CareerEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("failed to decode entry: %w", err)
	}
	if e.Inquiry.IsZero() {
		e.Inquiry = NoInquiry()
	}
	return e, nil
}

// encodeOptional marshals v, mapping nil pointers to the empty string.
func encodeOptional[T any](v *T) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	return string(data), nil
}

// encodeVector converts a float32 slice to a byte slice for storage.
// Each float32 is encoded as 4 bytes in little-endian format.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts a byte slice back to a float32 slice.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity calculates the cosine similarity between two vectors.
// The result is in range [-1, 1], where 1 means identical direction,
// 0 means orthogonal, and -1 means opposite direction.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
