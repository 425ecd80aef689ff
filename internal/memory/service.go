package memory

import (
	"context"
	"fmt"
	"strings"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

// Embedder is an interface for generating text embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service exposes stored career entries to an ADK agent as long-term memory.
type Service struct {
	store    Store
	embedder Embedder // Optional; without it Search returns nothing
	limit    int
}

// NewService creates a new memory service with the given store and embedder.
func NewService(store Store, embedder Embedder) *Service {
	return &Service{store: store, embedder: embedder, limit: 10}
}

// AddSession implements memory.Service interface.
// Career entries only enter memory through the capture tool, which runs the
// classifier and clarification queue, so raw sessions are not ingested.
func (s *Service) AddSession(ctx context.Context, sess session.Session) error {
	return nil
}

// Search implements memory.Service interface.
// It performs a vector similarity search over career entries.
func (s *Service) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	if s.embedder == nil || strings.TrimSpace(req.Query) == "" {
		return &adkmemory.SearchResponse{Memories: []adkmemory.Entry{}}, nil
	}

	queryVector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	scored, err := s.store.SearchSimilar(ctx, queryVector, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar entries: %w", err)
	}

	memories := make([]adkmemory.Entry, 0, len(scored))
	for _, se := range scored {
		content := describeEntry(se.Entry)
		if content == "" {
			continue
		}

		// genai.Text returns []*Content, we need the first one
		contentParts := genai.Text(content)
		if len(contentParts) == 0 {
			continue
		}

		memories = append(memories, adkmemory.Entry{
			Content:   contentParts[0],
			Author:    "careertrack",
			Timestamp: se.Entry.Timestamp,
		})
	}

	return &adkmemory.SearchResponse{Memories: memories}, nil
}

// describeEntry renders an entry as plain text for the agent's context.
func describeEntry(e CareerEntry) string {
	var parts []string
	if e.ImpactSummary != "" {
		parts = append(parts, fmt.Sprintf("[%s, confidence %s] %s", e.Category, e.Confidence, e.ImpactSummary))
	}
	if len(e.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(e.Skills, ", "))
	}
	if len(e.EvidenceLinks) > 0 {
		parts = append(parts, "Evidence: "+strings.Join(e.EvidenceLinks, ", "))
	}
	if !e.Verified() {
		parts = append(parts, "Unverified: the user has not confirmed the outcome.")
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("Entry %s (%s)\n%s", e.EntryID, e.Timestamp.Format("2006-01-02"), strings.Join(parts, "\n"))
}
