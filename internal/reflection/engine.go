// Package reflection implements the weekly reflection pass: selecting the
// entries worth re-examining, merging clusters the collaborator proposes, and
// resolving pending responses and skipped questions.
package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/careertrack-agent/internal/clarify"
	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
)

// DefaultWindowDays is the trailing window reflected over.
const DefaultWindowDays = 7

// NothingToAnalyze is the summary returned when no entry is selected.
const NothingToAnalyze = "Nothing to analyze: no recent entries or pending responses."

// Change log actions written by the engine.
const (
	ChangeMerge    = "merge"
	ChangeResolve  = "resolve"
	ChangeQuestion = "question"
	ChangeRefine   = "refine"
)

// Reasoner is the part of the collaborator a reflection pass needs.
type Reasoner interface {
	clarify.Reasoner
	WeeklyReflect(ctx context.Context, req *llm.ReflectRequest) (*llm.ReflectResponse, error)
}

// Result is the outcome of a reflection pass. Entries is the complete, sorted
// next entry set.
type Result struct {
	Entries   []memory.CareerEntry    `json:"entries"`
	Summary   string                  `json:"reflection_summary"`
	ChangeLog []memory.ChangeLogEntry `json:"change_log"`
	Analyzed  int                     `json:"analyzed"`
	Touched   []string                `json:"touched"`
}

// Engine runs reflection passes.
type Engine struct {
	reasoner Reasoner
	queue    *clarify.Queue
	logger   *slog.Logger
}

// NewEngine creates a reflection engine. A nil logger uses slog.Default().
func NewEngine(reasoner Reasoner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{reasoner: reasoner, queue: clarify.NewQueue(reasoner, logger), logger: logger}
}

// Selected reports whether e takes part in a pass whose window starts at cutoff.
func Selected(e memory.CareerEntry, cutoff time.Time) bool {
	return !e.Timestamp.Before(cutoff) ||
		e.Inquiry.HasUnconsumedResponse() ||
		e.Inquiry.State == memory.InquirySkipped
}

// Reflect computes the next entry set. entries is never modified. Either the
// whole proposal is applied or an error is returned.
func (r *Engine) Reflect(ctx context.Context, entries []memory.CareerEntry, windowDays int, now time.Time, tz string) (*Result, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	cutoff := now.AddDate(0, 0, -windowDays)

	var selected, untouched []memory.CareerEntry
	for _, e := range entries {
		if Selected(e, cutoff) {
			selected = append(selected, e.Clone())
		} else {
			untouched = append(untouched, e.Clone())
		}
	}

	if len(selected) == 0 {
		out := memory.CloneEntries(entries)
		memory.SortEntries(out)
		return &Result{Entries: out, Summary: NothingToAnalyze}, nil
	}

	resp, err := r.reasoner.WeeklyReflect(ctx, &llm.ReflectRequest{
		Entries:    llm.NewEntryContexts(selected),
		Now:        now,
		Timezone:   tz,
		WindowDays: windowDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run reflection: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("failed to run reflection: %w", memory.ErrCollaboratorUnavailable)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}

	clusters, err := buildClusters(resp.RefinedEntries, selected)
	if err != nil {
		return nil, err
	}

	res := &Result{Summary: resp.ReflectionSummary, Analyzed: len(selected)}
	refined := make([]memory.CareerEntry, 0, len(clusters))
	var refinedIDs []string
	for _, c := range clusters {
		e, changes, changed, err := r.apply(ctx, c, now)
		if err != nil {
			return nil, err
		}
		refined = append(refined, e)
		if changed {
			refinedIDs = append(refinedIDs, e.EntryID)
		}
		res.ChangeLog = append(res.ChangeLog, changes...)
	}
	res.ChangeLog = append(res.ChangeLog, memory.ChangeLogEntry{
		Action:   ChangeRefine,
		EntryIDs: refinedIDs,
		Detail:   fmt.Sprintf("Refined %d entries from %d analyzed.", len(refinedIDs), len(selected)),
	})
	for _, n := range resp.ChangeLog {
		res.ChangeLog = append(res.ChangeLog, memory.ChangeLogEntry{
			Action:   strings.ToLower(strings.TrimSpace(n.Action)),
			EntryIDs: n.EntryIDs,
			Detail:   n.Detail,
		})
	}

	res.Entries = append(untouched, refined...)
	memory.SortEntries(res.Entries)
	res.Touched = refinedIDs

	r.logger.Info("reflection applied", "analyzed", len(selected), "refined", len(refinedIDs), "untouched", len(untouched))
	return res, nil
}

type cluster struct {
	proposal llm.RefinedEntry
	members  []memory.CareerEntry // survivor first
}

// buildClusters checks that every selected id is covered exactly once, as a
// survivor or as a merged id, and groups the originals per proposal.
func buildClusters(proposals []llm.RefinedEntry, selected []memory.CareerEntry) ([]cluster, error) {
	byID := make(map[string]memory.CareerEntry, len(selected))
	for _, e := range selected {
		byID[e.EntryID] = e
	}
	seen := make(map[string]bool, len(selected))

	take := func(id string) (memory.CareerEntry, error) {
		e, ok := byID[id]
		if !ok {
			return memory.CareerEntry{}, memory.SchemaErrorf("weekly_reflect: unknown entry id %q", id)
		}
		if seen[id] {
			return memory.CareerEntry{}, memory.SchemaErrorf("weekly_reflect: entry id %q appears more than once", id)
		}
		seen[id] = true
		return e, nil
	}

	clusters := make([]cluster, 0, len(proposals))
	for _, p := range proposals {
		survivor, err := take(p.EntryID)
		if err != nil {
			return nil, err
		}
		c := cluster{proposal: p, members: []memory.CareerEntry{survivor}}
		for _, id := range p.MergedFrom {
			m, err := take(id)
			if err != nil {
				return nil, err
			}
			c.members = append(c.members, m)
		}
		clusters = append(clusters, c)
	}

	for _, e := range selected {
		if !seen[e.EntryID] {
			return nil, memory.SchemaErrorf("weekly_reflect: entry %q missing from refined_entries", e.EntryID)
		}
	}
	return clusters, nil
}

// apply folds one cluster into its surviving entry. It reports false when the
// cluster is a single refined entry the proposal leaves as it was; that entry
// is returned unchanged.
func (r *Engine) apply(ctx context.Context, c cluster, now time.Time) (memory.CareerEntry, []memory.ChangeLogEntry, bool, error) {
	p := c.proposal
	members := c.members
	orig := members[0].Clone()
	var changes []memory.ChangeLogEntry

	// consume answered responses on the originals so the audit trail keeps them
	var responses []string
	for i := range members {
		if resp, ok := clarify.Consume(&members[i], now); ok {
			responses = append(responses, resp)
		}
	}

	chrono := append([]memory.CareerEntry(nil), members...)
	sort.SliceStable(chrono, func(i, j int) bool { return chrono[i].Timestamp.Before(chrono[j].Timestamp) })

	e := members[0].Clone()
	prevSummary := e.ImpactSummary

	var (
		skills, links [][]string
		levels        []memory.Confidence
		raws          []string
		audit         []memory.AuditLogEntry
	)
	for _, m := range chrono {
		skills = append(skills, m.Skills)
		links = append(links, m.EvidenceLinks)
		levels = append(levels, m.Confidence)
		raws = append(raws, m.RawInput)
		audit = append(audit, m.AuditLog...)
		if m.Timestamp.After(e.Timestamp) {
			e.Timestamp = m.Timestamp
		}
	}
	sort.SliceStable(audit, func(i, j int) bool { return audit[i].Timestamp.Before(audit[j].Timestamp) })

	e.Skills = memory.NormalizeSkills(append(skills, p.Skills)...)
	e.EvidenceLinks = memory.UnionLinks(links...)
	e.AuditLog = audit
	e.Category = memory.CoerceCategory(p.Category)
	e.ImpactSummary = strings.TrimSpace(p.ImpactSummary)
	if sig := strings.TrimSpace(p.ThoughtSignature); sig != "" {
		e.ThoughtSignature = sig
	}
	switch raw := strings.TrimSpace(p.RawInput); {
	case raw != "":
		e.RawInput = raw
	case len(members) > 1:
		e.RawInput = strings.Join(raws, "\n\n")
	}

	proposed, _ := memory.ParseConfidence(p.ConfidenceScore)
	prevConf := memory.MaxConfidence(levels...)
	e.Confidence = prevConf.StepToward(proposed)
	if e.Confidence != prevConf {
		e.Audit(now, memory.ActionConfidenceRaised, string(prevConf), string(e.Confidence))
	}

	if len(members) > 1 {
		merged := make([]string, 0, len(members)-1)
		for _, m := range members[1:] {
			merged = append(merged, m.EntryID)
		}
		e.Audit(now, memory.ActionMerged, strings.Join(merged, ","), e.EntryID)
		changes = append(changes, memory.ChangeLogEntry{
			Action:   ChangeMerge,
			EntryIDs: append([]string{e.EntryID}, merged...),
			Detail:   fmt.Sprintf("Merged %d related entries into %s.", len(members), e.EntryID),
		})
	}

	inquiry, question, err := r.resolveInquiry(ctx, &e, members, responses, p.ReflectionQuestion)
	if err != nil {
		return memory.CareerEntry{}, nil, false, err
	}
	switch {
	case question != "":
		e.Inquiry = memory.Skipped()
		if err := clarify.RaiseReflection(&e, question, now); err != nil {
			return memory.CareerEntry{}, nil, false, err
		}
		changes = append(changes, memory.ChangeLogEntry{
			Action:   ChangeQuestion,
			EntryIDs: []string{e.EntryID},
			Detail:   e.Inquiry.Question,
		})
	default:
		e.Inquiry = inquiry
	}
	if len(responses) > 0 && e.Inquiry.State == memory.InquiryResolved {
		changes = append(changes, memory.ChangeLogEntry{
			Action:   ChangeResolve,
			EntryIDs: []string{e.EntryID},
			Detail:   "Wove the user's response into the impact summary.",
		})
	}

	if len(members) == 1 && len(responses) == 0 && orig.RefinementState == memory.RefinementRefined && sameContent(orig, e) {
		return orig, nil, false, nil
	}

	e.Audit(now, memory.ActionRefined, prevSummary, e.ImpactSummary)
	e.RefinementState = memory.RefinementRefined
	return e, changes, true, nil
}

// sameContent reports whether b carries the same claims and lifecycle state
// as a, ignoring the audit log.
func sameContent(a, b memory.CareerEntry) bool {
	return a.ImpactSummary == b.ImpactSummary &&
		a.RawInput == b.RawInput &&
		a.Category == b.Category &&
		a.Confidence == b.Confidence &&
		a.ThoughtSignature == b.ThoughtSignature &&
		a.Inquiry == b.Inquiry &&
		a.Timestamp.Equal(b.Timestamp) &&
		slices.Equal(a.Skills, b.Skills) &&
		slices.Equal(a.EvidenceLinks, b.EvidenceLinks)
}

// resolveInquiry picks the merged entry's single question/response slot. An
// outstanding question is kept as is. Otherwise consumed responses resolve
// the entry, and a skip gets a reflection question. A non-empty question
// return means one must be raised.
func (r *Engine) resolveInquiry(ctx context.Context, e *memory.CareerEntry, members []memory.CareerEntry, responses []string, proposed string) (memory.Inquiry, string, error) {
	var skipped bool
	var resolved memory.Inquiry
	for _, m := range members {
		switch {
		case m.Inquiry.Outstanding():
			return m.Inquiry, "", nil
		case m.Inquiry.State == memory.InquirySkipped:
			skipped = true
		case m.Inquiry.State == memory.InquiryResolved && resolved.IsZero():
			resolved = m.Inquiry
		}
	}

	if len(responses) > 0 {
		return memory.Resolved(strings.Join(responses, "; ")), "", nil
	}
	if skipped {
		question := strings.TrimSpace(proposed)
		if question == "" {
			probe := e.Clone()
			probe.Inquiry = memory.Skipped()
			q, err := r.queue.Ask(ctx, &probe, true)
			if err != nil {
				return memory.Inquiry{}, "", err
			}
			question = q
		}
		return memory.Inquiry{}, question, nil
	}
	if !resolved.IsZero() {
		return resolved, "", nil
	}
	return memory.NoInquiry(), "", nil
}
