package service

import (
	"context"
	"strings"

	"github.com/easeaico/careertrack-agent/internal/memory"
)

const similarContextLimit = 5

// CaptureContext is the memory shown to the classifier for duplicate
// detection: the most recent entries plus the nearest neighbours of the new
// text by embedding.
type CaptureContext struct {
	// Recent are the newest entries, newest first.
	Recent []memory.CareerEntry

	// Similar are entries close to the input that are not already in Recent.
	Similar []memory.ScoredEntry
}

// Entries flattens the context, recent entries first.
func (c *CaptureContext) Entries() []memory.CareerEntry {
	out := make([]memory.CareerEntry, 0, len(c.Recent)+len(c.Similar))
	out = append(out, c.Recent...)
	for _, s := range c.Similar {
		out = append(out, s.Entry)
	}
	return out
}

// buildCaptureContext never fails: a missing embedder or a failing search only
// narrows the context to the recent entries.
func (e *Engine) buildCaptureContext(ctx context.Context, entries []memory.CareerEntry, text string) *CaptureContext {
	n := min(e.recentContext, len(entries))
	cc := &CaptureContext{Recent: memory.CloneEntries(entries[:n])}
	if e.embedder == nil || len(entries) == n {
		return cc
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("capture context: embedding failed", "error", err)
		return cc
	}
	similar, err := e.store.SearchSimilar(ctx, vec, similarContextLimit+n)
	if err != nil {
		e.logger.Warn("capture context: similarity search failed", "error", err)
		return cc
	}

	for _, s := range similar {
		if len(cc.Similar) == similarContextLimit {
			break
		}
		if memory.FindEntry(cc.Recent, s.Entry.EntryID) >= 0 {
			continue
		}
		cc.Similar = append(cc.Similar, s)
	}
	return cc
}

// embedText is the text indexed for similarity search.
func embedText(e memory.CareerEntry) string {
	parts := []string{e.ImpactSummary, e.RawInput}
	if len(e.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(e.Skills, ", "))
	}
	return strings.Join(parts, "\n")
}

// refreshEmbeddings stores vectors for the given entries. Failures are logged
// and never fail the operation that triggered them.
func (e *Engine) refreshEmbeddings(ctx context.Context, entries ...memory.CareerEntry) {
	if e.embedder == nil {
		return
	}
	for _, entry := range entries {
		vec, err := e.embedder.Embed(ctx, embedText(entry))
		if err != nil {
			e.logger.Warn("failed to embed entry", "entry_id", entry.EntryID, "error", err)
			continue
		}
		if err := e.store.SaveEmbedding(ctx, entry.EntryID, vec); err != nil {
			e.logger.Warn("failed to save embedding", "entry_id", entry.EntryID, "error", err)
		}
	}
}
