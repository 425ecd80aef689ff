// Package appraisal builds the read-only appraisal summary from the full
// entry set.
package appraisal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
)

// Reasoner is the part of the collaborator the synthesizer needs.
type Reasoner interface {
	SynthesizeAppraisal(ctx context.Context, req *llm.AppraisalRequest) (*llm.AppraisalResponse, error)
}

// Synthesizer produces appraisal summaries. It never modifies entries.
type Synthesizer struct {
	reasoner Reasoner
	logger   *slog.Logger
}

// NewSynthesizer creates a synthesizer. A nil logger uses slog.Default().
func NewSynthesizer(reasoner Reasoner, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{reasoner: reasoner, logger: logger}
}

// Synthesize regenerates the appraisal summary for entries. Every achievement
// must cite stored entries; achievements resting only on unverified entries
// are moved into the gap analysis.
func (s *Synthesizer) Synthesize(ctx context.Context, entries []memory.CareerEntry, now time.Time) (*memory.AppraisalSummary, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries to summarize", memory.ErrUserInputRejected)
	}

	verified := make(map[string]bool, len(entries))
	contexts := make([]llm.EntryContext, 0, len(entries))
	var unverified []string
	for _, e := range entries {
		ok := e.Verified()
		verified[e.EntryID] = ok
		ec := llm.NewEntryContext(e)
		ec.Verified = &ok
		contexts = append(contexts, ec)
		if !ok {
			unverified = append(unverified, e.EntryID)
		}
	}

	resp, err := s.reasoner.SynthesizeAppraisal(ctx, &llm.AppraisalRequest{Entries: contexts})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize appraisal: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("failed to synthesize appraisal: %w", memory.ErrCollaboratorUnavailable)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}

	out := &memory.AppraisalSummary{
		ExecutiveSummary:    resp.ExecutiveSummary,
		KeyAchievements:     []memory.Achievement{},
		SkillsAndGrowth:     resp.SkillsAndGrowth,
		AreasForDevelopment: resp.AreasForDevelopment,
		GapAnalysis:         resp.GapAnalysis,
		UnverifiedEntryIDs:  unverified,
		GeneratedAt:         now,
	}

	var demoted []string
	for _, a := range resp.KeyAchievements {
		var cited []string
		for _, id := range a.EntryIDs {
			ok, known := verified[id]
			if !known {
				return nil, memory.SchemaErrorf("synthesize_appraisal: achievement cites unknown entry %q", id)
			}
			if ok {
				cited = append(cited, id)
			}
		}
		if len(cited) == 0 {
			demoted = append(demoted, a.Narrative)
			continue
		}
		// unverified ids never back a confirmed claim
		out.KeyAchievements = append(out.KeyAchievements, memory.Achievement{Narrative: a.Narrative, EntryIDs: cited})
	}

	if len(demoted) > 0 {
		s.logger.Warn("achievements citing only unverified entries removed", "count", len(demoted))
		out.GapAnalysis += "\n\nNot presented as confirmed (unverified): " + strings.Join(demoted, "; ")
	}
	if len(unverified) > 0 && !mentionsAll(out.GapAnalysis, unverified) {
		out.GapAnalysis += fmt.Sprintf("\n\n%d entries lack a confirmed outcome and are unverified: %s.", len(unverified), strings.Join(unverified, ", "))
	}
	return out, nil
}

func mentionsAll(text string, ids []string) bool {
	for _, id := range ids {
		if !strings.Contains(text, id) {
			return false
		}
	}
	return true
}
