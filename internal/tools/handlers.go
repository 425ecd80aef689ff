package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/easeaico/careertrack-agent/internal/clarify"
	"github.com/easeaico/careertrack-agent/internal/evidence"
	"github.com/easeaico/careertrack-agent/internal/memory"
	"github.com/easeaico/careertrack-agent/internal/service"
)

const (
	defaultListLimit = 20
	maxPreviewBytes  = 280
)

// Handler implements every tool over the engine. The ADK and MCP surfaces
// both call into it.
type Handler struct {
	engine  *service.Engine
	workDir string
}

// NewHandler creates a new tool handler. Evidence files must live under workDir.
func NewHandler(engine *service.Engine, workDir string) *Handler {
	return &Handler{engine: engine, workDir: workDir}
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// Guidance is shown to the user when input was rejected rather than failed.
	Guidance string `json:"guidance,omitempty"`
}

func ok(data any) ToolResult { return ToolResult{Success: true, Data: data} }

func failed(err error) ToolResult {
	var offTask *memory.OffTaskError
	switch {
	case errors.As(err, &offTask):
		return ToolResult{Error: "not a work activity", Guidance: offTask.Message}
	case errors.Is(err, memory.ErrUserInputRejected):
		return ToolResult{Error: err.Error(), Guidance: "Please rephrase and try again."}
	case errors.Is(err, memory.ErrPendingDecision):
		return ToolResult{Error: err.Error(), Guidance: "Answer the duplicate question first: link, new or discard."}
	case errors.Is(err, memory.ErrBusy):
		return ToolResult{Error: err.Error(), Guidance: "Wait for the current operation to finish."}
	}
	return ToolResult{Error: err.Error()}
}

// LogActivity captures a work activity.
func (h *Handler) LogActivity(ctx context.Context, text string) ToolResult {
	res, err := h.engine.Capture(ctx, text)
	if err != nil {
		return failed(err)
	}
	return ok(res)
}

// ResolveDuplicate applies link, new or discard to the parked draft.
func (h *Handler) ResolveDuplicate(ctx context.Context, decision string) ToolResult {
	d, err := service.ParseDecision(decision)
	if err != nil {
		return failed(err)
	}
	res, err := h.engine.ResolveDuplicate(ctx, d)
	if err != nil {
		return failed(err)
	}
	return ok(res)
}

// AnswerQuestion answers an outstanding clarification or reflection question.
func (h *Handler) AnswerQuestion(ctx context.Context, entryID, response string) ToolResult {
	if entryID == "" {
		return ToolResult{Error: "entry_id is required"}
	}
	e, err := h.engine.AnswerQuestion(ctx, entryID, response)
	if err != nil {
		return failed(err)
	}
	return ok(e)
}

// SkipQuestion skips an outstanding clarification question.
func (h *Handler) SkipQuestion(ctx context.Context, entryID string) ToolResult {
	if entryID == "" {
		return ToolResult{Error: "entry_id is required"}
	}
	e, err := h.engine.SkipClarification(ctx, entryID)
	if err != nil {
		return failed(err)
	}
	return ok(e)
}

// AttachEvidence offers a URL, pasted text, or a file under the working
// directory as evidence. Exactly one of content and path must be set.
func (h *Handler) AttachEvidence(ctx context.Context, content, path string) ToolResult {
	var (
		art evidence.Artifact
		err error
	)
	switch {
	case content != "" && path != "":
		return ToolResult{Error: "provide either content or path, not both"}
	case path != "":
		var abs string
		abs, err = h.resolvePath(path)
		if err != nil {
			return failed(err)
		}
		art, err = evidence.FileArtifact(abs)
	default:
		art, err = evidence.TextArtifact(content)
	}
	if err != nil {
		return failed(err)
	}

	res, err := h.engine.AttachEvidence(ctx, art)
	if err != nil {
		return failed(err)
	}
	return ok(res)
}

// resolvePath resolves p against the working directory and refuses paths
// that escape it.
func (h *Handler) resolvePath(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.workDir, p)
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	absWorkDir, err := filepath.Abs(h.workDir)
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	rel, err := filepath.Rel(absWorkDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path is outside working directory", memory.ErrUserInputRejected)
	}
	return absPath, nil
}

// ReflectionReport is the outcome of a reflection pass.
type ReflectionReport struct {
	Summary   string                  `json:"reflection_summary"`
	ChangeLog []memory.ChangeLogEntry `json:"change_log"`
	Analyzed  int                     `json:"analyzed"`
	Touched   []string                `json:"touched"`
}

// Reflect runs a reflection pass.
func (h *Handler) Reflect(ctx context.Context) ToolResult {
	res, err := h.engine.Reflect(ctx)
	if err != nil {
		return failed(err)
	}
	return ok(ReflectionReport{
		Summary:   res.Summary,
		ChangeLog: res.ChangeLog,
		Analyzed:  res.Analyzed,
		Touched:   res.Touched,
	})
}

// Appraisal synthesizes the appraisal summary.
func (h *Handler) Appraisal(ctx context.Context) ToolResult {
	s, err := h.engine.Synthesize(ctx)
	if err != nil {
		return failed(err)
	}
	return ok(s)
}

// EntrySummary is the compact listing form of an entry.
type EntrySummary struct {
	ID         string   `json:"id"`
	Date       string   `json:"date"`
	Category   string   `json:"category"`
	Confidence string   `json:"confidence"`
	Summary    string   `json:"summary"`
	Skills     []string `json:"skills,omitempty"`
	Evidence   int      `json:"evidence"`
	Question   string   `json:"question,omitempty"`
	Verified   bool     `json:"verified"`
}

// ListEntries lists the newest entries, optionally filtered by category.
func (h *Handler) ListEntries(category string, limit int) ToolResult {
	var want memory.Category
	if category != "" {
		c, valid := memory.ParseCategory(category)
		if !valid {
			return ToolResult{Error: fmt.Sprintf("unknown category %q", category)}
		}
		want = c
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	out := []EntrySummary{}
	for _, e := range h.engine.Entries() {
		if want != "" && e.Category != want {
			continue
		}
		out = append(out, summarize(e))
		if len(out) == limit {
			break
		}
	}
	return ok(out)
}

func summarize(e memory.CareerEntry) EntrySummary {
	return EntrySummary{
		ID:         e.EntryID,
		Date:       e.Timestamp.Format("2006-01-02"),
		Category:   string(e.Category),
		Confidence: string(e.Confidence),
		Summary:    truncateString(e.ImpactSummary, maxPreviewBytes),
		Skills:     e.Skills,
		Evidence:   len(e.EvidenceLinks),
		Question:   e.Inquiry.Question,
		Verified:   e.Verified(),
	}
}

// PendingReport lists what is waiting for the user.
type PendingReport struct {
	Questions []clarify.PendingQuestion `json:"questions"`
	Duplicate *DuplicateDecision        `json:"duplicate_decision,omitempty"`
}

// DuplicateDecision describes a parked draft.
type DuplicateDecision struct {
	Question      string `json:"question"`
	DuplicateOfID string `json:"duplicate_of_id,omitempty"`
	Draft         string `json:"draft"`
}

// PendingQuestions lists outstanding questions and any parked duplicate.
func (h *Handler) PendingQuestions() ToolResult {
	report := PendingReport{Questions: h.engine.PendingQuestions()}
	if report.Questions == nil {
		report.Questions = []clarify.PendingQuestion{}
	}
	if p := h.engine.PendingCapture(); p != nil {
		report.Duplicate = &DuplicateDecision{
			Question:      p.Question,
			DuplicateOfID: p.DuplicateOfID,
			Draft:         truncateString(p.Draft.RawInput, maxPreviewBytes),
		}
	}
	return ok(report)
}

// Stats reports memory statistics.
func (h *Handler) Stats() ToolResult {
	return ok(h.engine.Stats())
}

// SearchMemory finds entries similar to query.
func (h *Handler) SearchMemory(ctx context.Context, query string, limit int) ToolResult {
	if strings.TrimSpace(query) == "" {
		return ToolResult{Error: "query is required"}
	}
	scored, err := h.engine.Search(ctx, query, limit)
	if err != nil {
		return failed(err)
	}
	hits := make([]SearchHit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, SearchHit{
			Entry:      summarize(s.Entry),
			Similarity: fmt.Sprintf("%.2f%%", s.SimilarityScore*100),
		})
	}
	return ok(hits)
}

// SearchHit is one similarity search result.
type SearchHit struct {
	Entry      EntrySummary `json:"entry"`
	Similarity string       `json:"similarity"`
}

// truncateString cuts s to at most limit bytes without splitting a rune.
func truncateString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
