package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
)

// DefaultThreshold is the minimum match score accepted as a match.
const DefaultThreshold = 0.7

// Reasoner is the part of the collaborator the attacher needs.
type Reasoner interface {
	AttachEvidence(ctx context.Context, req *llm.AttachRequest) (*llm.AttachResponse, error)
}

// Match is the decision for one artifact.
type Match struct {
	EntryID             string            `json:"entry_id,omitempty"`
	Matched             bool              `json:"is_match"`
	SuggestedConfidence memory.Confidence `json:"suggested_confidence,omitempty"`
	Reasoning           string            `json:"reasoning"`
	Score               float64           `json:"match_score"`
}

// Attacher decides which entry, if any, an artifact supports.
type Attacher struct {
	reasoner  Reasoner
	threshold float64
	logger    *slog.Logger
}

// NewAttacher creates an attacher. A threshold outside (0,1] uses DefaultThreshold.
func NewAttacher(reasoner Reasoner, threshold float64, logger *slog.Logger) *Attacher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Attacher{reasoner: reasoner, threshold: threshold, logger: logger}
}

// Attach asks the collaborator to match a against entries. The returned match
// is accepted only when the collaborator claims a match, the score clears the
// threshold, and the id names one of entries.
func (a *Attacher) Attach(ctx context.Context, art Artifact, entries []memory.CareerEntry) (*Match, error) {
	if len(art.Content) == 0 {
		return nil, fmt.Errorf("%w: artifact is empty", memory.ErrUserInputRejected)
	}
	if len(entries) == 0 {
		return &Match{Reasoning: "There are no entries to attach evidence to."}, nil
	}

	resp, err := a.reasoner.AttachEvidence(ctx, &llm.AttachRequest{
		Content:  art.Content,
		MIMEType: art.MIMEType,
		Label:    art.Label,
		Entries:  llm.NewEntryContexts(entries),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to match evidence: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("failed to match evidence: %w", memory.ErrCollaboratorUnavailable)
	}

	suggested, ok := memory.ParseConfidence(resp.SuggestedConfidence)
	if !ok || suggested == memory.ConfidenceLow {
		return nil, memory.SchemaErrorf("attach_evidence: suggested_confidence %q", resp.SuggestedConfidence)
	}

	m := &Match{
		EntryID:             resp.MatchID,
		SuggestedConfidence: suggested,
		Reasoning:           resp.Reasoning,
	}
	if resp.MatchScore != nil {
		m.Score = *resp.MatchScore
	}
	claimed := resp.IsMatch != nil && *resp.IsMatch

	switch {
	case !claimed:
	case m.Score < a.threshold:
		a.logger.Info("evidence match below threshold", "entry_id", m.EntryID, "score", m.Score, "threshold", a.threshold)
	case memory.FindEntry(entries, m.EntryID) < 0:
		a.logger.Warn("evidence matched unknown entry", "entry_id", m.EntryID)
	default:
		m.Matched = true
	}
	return m, nil
}

// Apply attaches label to the matched entry: the label is appended once,
// confidence moves one step toward the suggestion, and the entry is marked
// refined. It mutates at most one element of entries and reports whether it did.
// A label already on the entry changes nothing.
func Apply(entries []memory.CareerEntry, m *Match, label string, now time.Time) (bool, error) {
	if m == nil || !m.Matched {
		return false, nil
	}
	i := memory.FindEntry(entries, m.EntryID)
	if i < 0 {
		return false, fmt.Errorf("entry %s: %w", m.EntryID, memory.ErrEntryNotFound)
	}

	e := &entries[i]
	prev := e.Confidence
	if !e.AddEvidence(label) {
		return false, nil
	}
	e.Confidence = prev.StepToward(m.SuggestedConfidence)
	e.RefinementState = memory.RefinementRefined
	e.Audit(now, memory.ActionEvidenceAttached, string(prev), fmt.Sprintf("%s (%s): %s", label, e.Confidence, m.Reasoning))
	return true, nil
}
