// Package capture turns free-text work logs into structured career entry
// drafts using the reasoning collaborator.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
)

// Plausibility window for collaborator-provided timestamps.
const (
	maxFutureSkew = 24 * time.Hour
	maxAge        = 365 * 24 * time.Hour
)

// Reasoner is the part of the collaborator the classifier needs.
type Reasoner interface {
	ClassifyEntry(ctx context.Context, req *llm.ClassifyRequest) (*llm.ClassifyResponse, error)
}

// Result is the outcome of classifying one input. Exactly one of OffTask or
// Draft is meaningful; Duplicate qualifies Draft.
type Result struct {
	OffTask          bool
	RejectionMessage string

	Draft             *memory.CareerEntry
	Duplicate         bool
	DuplicateOfID     string
	DuplicateQuestion string
}

// Classifier wraps the classify_entry contract with normalization rules.
type Classifier struct {
	reasoner Reasoner
	logger   *slog.Logger
	newID    func() string
}

// NewClassifier creates a classifier. A nil logger uses slog.Default().
func NewClassifier(reasoner Reasoner, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{reasoner: reasoner, logger: logger, newID: uuid.NewString}
}

// Classify structures text into a draft entry. existing is the context sent
// for duplicate detection. Nothing is stored.
func (c *Classifier) Classify(ctx context.Context, text string, now time.Time, tz string, existing []memory.CareerEntry) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: log text is empty", memory.ErrUserInputRejected)
	}

	resp, err := c.reasoner.ClassifyEntry(ctx, &llm.ClassifyRequest{
		Text:     text,
		Now:      now,
		Timezone: tz,
		Existing: llm.NewEntryContexts(existing),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to classify entry: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("failed to classify entry: %w", memory.ErrCollaboratorUnavailable)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}

	if resp.OffTask() {
		c.logger.Info("input rejected as off-task")
		return &Result{OffTask: true, RejectionMessage: resp.RejectionMessage}, nil
	}

	draft, err := c.normalize(resp, text, now, tz)
	if err != nil {
		return nil, err
	}

	res := &Result{Draft: draft}
	if resp.DuplicateRisk() {
		res.Duplicate = true
		res.DuplicateQuestion = resp.DuplicateConfirmationQuestion
		if memory.FindEntry(existing, resp.DuplicateOfID) >= 0 {
			res.DuplicateOfID = resp.DuplicateOfID
		}
		if res.DuplicateQuestion == "" {
			res.DuplicateQuestion = "This looks similar to an existing entry. Link to it or log as new?"
		}
	}
	return res, nil
}

func (c *Classifier) normalize(resp *llm.ClassifyResponse, text string, now time.Time, tz string) (*memory.CareerEntry, error) {
	conf, ok := memory.ParseConfidence(resp.ConfidenceScore)
	if !ok {
		return nil, memory.SchemaErrorf("classify_entry: invalid confidence_score %q", resp.ConfidenceScore)
	}
	cat, ok := memory.ParseCategory(resp.Category)
	if !ok {
		c.logger.Warn("unknown category coerced", "category", resp.Category, "default", memory.CategoryAchievement)
		cat = memory.CategoryAchievement
	}

	e := &memory.CareerEntry{
		EntryID:          c.newID(),
		ThoughtSignature: strings.TrimSpace(resp.ThoughtSignature),
		Timestamp:        ResolveTimestamp(resp.Timestamp, now, tz),
		RawInput:         text,
		Category:         cat,
		Skills:           memory.NormalizeSkills(resp.Skills),
		ImpactSummary:    strings.TrimSpace(resp.ImpactSummary),
		Confidence:       conf,
		EvidenceLinks:    memory.UnionLinks(resp.EvidenceLinks),
		RefinementState:  memory.RefinementPending,
		Inquiry:          memory.NoInquiry(),
	}
	e.Audit(now, memory.ActionCaptured, "", string(conf))
	return e, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ResolveTimestamp parses a collaborator timestamp. Values without a zone are
// read in tz. Missing, unparseable or implausible values (more than a day
// ahead, or older than a year) resolve to now.
func ResolveTimestamp(raw string, now time.Time, tz string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}

	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		if t.After(now.Add(maxFutureSkew)) || t.Before(now.Add(-maxAge)) {
			return now
		}
		return t
	}
	return now
}
