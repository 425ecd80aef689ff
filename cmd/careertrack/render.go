package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/easeaico/careertrack-agent/internal/memory"
	"github.com/easeaico/careertrack-agent/internal/service"
	"github.com/easeaico/careertrack-agent/internal/tools"
)

// render prints a tool result for humans.
func render(w io.Writer, data any) {
	switch v := data.(type) {
	case *service.CaptureResult:
		renderCapture(w, v)
	case *memory.CareerEntry:
		renderEntry(w, v)
	case *service.AttachResult:
		renderAttach(w, v)
	case tools.ReflectionReport:
		renderReflection(w, v)
	case *memory.AppraisalSummary:
		renderAppraisal(w, v)
	case []tools.EntrySummary:
		renderList(w, v)
	case tools.PendingReport:
		renderPending(w, v)
	case []tools.SearchHit:
		renderSearch(w, v)
	case service.Stats:
		renderStats(w, v)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(v)
	}
}

func renderCapture(w io.Writer, r *service.CaptureResult) {
	switch r.Status {
	case service.StatusDuplicate:
		fmt.Fprintf(w, "This looks like something already logged (%s).\n", r.DuplicateOfID)
		fmt.Fprintf(w, "  %s\n", r.Question)
		fmt.Fprintln(w, "Resolve with: careertrack resolve link|new|discard")
		return
	case service.StatusDiscarded:
		fmt.Fprintln(w, "Draft discarded.")
		return
	case service.StatusLinked:
		fmt.Fprintf(w, "Linked into %s.\n", r.Entry.EntryID)
	default:
		fmt.Fprintf(w, "Logged %s.\n", r.Entry.EntryID)
	}
	renderEntry(w, r.Entry)
	if r.Question != "" {
		fmt.Fprintf(w, "\nQuestion: %s\n", r.Question)
		fmt.Fprintf(w, "Answer with: careertrack answer %s <response>\n", r.Entry.EntryID)
	}
}

func renderEntry(w io.Writer, e *memory.CareerEntry) {
	fmt.Fprintf(w, "  [%s] %s\n", e.Category, e.ImpactSummary)
	fmt.Fprintf(w, "  date: %s  confidence: %s  refinement: %s\n",
		e.Timestamp.Format("2006-01-02"), e.Confidence, e.RefinementState)
	if len(e.Skills) > 0 {
		fmt.Fprintf(w, "  skills: %s\n", strings.Join(e.Skills, ", "))
	}
	for _, link := range e.EvidenceLinks {
		fmt.Fprintf(w, "  evidence: %s\n", link)
	}
	if q := e.Inquiry.Question; q != "" && e.Inquiry.Outstanding() {
		fmt.Fprintf(w, "  open question: %s\n", q)
	}
}

func renderAttach(w io.Writer, r *service.AttachResult) {
	if r.Entry == nil {
		fmt.Fprintln(w, "No matching entry found; nothing was changed.")
		if r.Match != nil && r.Match.Reasoning != "" {
			fmt.Fprintf(w, "  %s\n", r.Match.Reasoning)
		}
		return
	}
	if r.AlreadyAttached {
		fmt.Fprintf(w, "%s already carries this evidence; nothing changed.\n", r.Entry.EntryID)
		return
	}
	fmt.Fprintf(w, "Evidence attached to %s (score %.2f).\n", r.Entry.EntryID, r.Match.Score)
	if r.Match.Reasoning != "" {
		fmt.Fprintf(w, "  %s\n", r.Match.Reasoning)
	}
	renderEntry(w, r.Entry)
}

func renderReflection(w io.Writer, r tools.ReflectionReport) {
	fmt.Fprintln(w, r.Summary)
	if r.Analyzed == 0 {
		return
	}
	fmt.Fprintf(w, "\nAnalyzed %d entries, updated %d.\n", r.Analyzed, len(r.Touched))
	for _, c := range r.ChangeLog {
		fmt.Fprintf(w, "  - %s: %s", c.Action, c.Detail)
		if len(c.EntryIDs) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(c.EntryIDs, ", "))
		}
		fmt.Fprintln(w)
	}
}

func renderAppraisal(w io.Writer, s *memory.AppraisalSummary) {
	fmt.Fprintln(w, "# Executive summary")
	fmt.Fprintln(w, s.ExecutiveSummary)
	fmt.Fprintln(w, "\n# Key achievements")
	for _, a := range s.KeyAchievements {
		fmt.Fprintf(w, "- %s [%s]\n", a.Narrative, strings.Join(a.EntryIDs, ", "))
	}
	fmt.Fprintln(w, "\n# Skills and growth")
	fmt.Fprintln(w, s.SkillsAndGrowth)
	fmt.Fprintln(w, "\n# Areas for development")
	for _, a := range s.AreasForDevelopment {
		fmt.Fprintf(w, "- %s\n", a)
	}
	fmt.Fprintln(w, "\n# Gap analysis")
	fmt.Fprintln(w, s.GapAnalysis)
}

func renderList(w io.Writer, entries []tools.EntrySummary) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries yet. Log one with: careertrack capture <text>")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tCONFIDENCE\tSUMMARY")
	for _, e := range entries {
		summary := e.Summary
		if !e.Verified {
			summary += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Category, e.Confidence, summary)
	}
	tw.Flush()
	if slices.ContainsFunc(entries, func(e tools.EntrySummary) bool { return !e.Verified }) {
		fmt.Fprintln(w, "\n* unverified: question skipped or still open")
	}
}

func renderPending(w io.Writer, r tools.PendingReport) {
	if r.Duplicate != nil {
		fmt.Fprintf(w, "Duplicate decision pending: %s\n", r.Duplicate.Question)
		fmt.Fprintf(w, "  draft: %s\n", r.Duplicate.Draft)
		fmt.Fprintln(w, "  resolve with: careertrack resolve link|new|discard")
		fmt.Fprintln(w)
	}
	if len(r.Questions) == 0 {
		fmt.Fprintln(w, "No open questions.")
		return
	}
	for _, q := range r.Questions {
		fmt.Fprintf(w, "%s (%s): %s\n", q.EntryID, q.Kind, q.Question)
	}
}

func renderSearch(w io.Writer, hits []tools.SearchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No similar entries found.")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%s  %s  [%s] %s\n", h.Similarity, h.Entry.ID, h.Entry.Category, h.Entry.Summary)
	}
}

func renderStats(w io.Writer, s service.Stats) {
	fmt.Fprintf(w, "Entries:              %d\n", s.Total)
	for _, c := range []memory.Category{memory.CategoryAchievement, memory.CategoryChallenge, memory.CategoryLearning} {
		fmt.Fprintf(w, "  %-20s%d\n", string(c)+":", s.ByCategory[c])
	}
	fmt.Fprintf(w, "Open questions:       %d\n", s.PendingClarifications)
	fmt.Fprintf(w, "Awaiting reflection:  %d\n", s.PendingRefinement)
	fmt.Fprintf(w, "With evidence:        %d\n", s.WithEvidence)
	fmt.Fprintf(w, "Unverified:           %d\n", s.Unverified)
	fmt.Fprintf(w, "Average confidence:   %d%%\n", s.AverageConfidence)
	if s.LastReflectionAt != nil {
		fmt.Fprintf(w, "Last reflection:      %s\n", s.LastReflectionAt.Format("2006-01-02 15:04"))
	}
}
