// Package llm defines the typed contracts of the reasoning collaborator and a
// Gemini-backed implementation of them.
package llm

import (
	"context"
	"time"

	"github.com/easeaico/careertrack-agent/internal/memory"
)

// Embedder provides text embedding capability.
type Embedder interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reasoner is the full reasoning collaborator. Components depend on the
// single method they need; this interface exists for wiring.
type Reasoner interface {
	ClassifyEntry(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error)
	RequestClarification(ctx context.Context, req *ClarificationRequest) (*ClarificationResponse, error)
	AttachEvidence(ctx context.Context, req *AttachRequest) (*AttachResponse, error)
	WeeklyReflect(ctx context.Context, req *ReflectRequest) (*ReflectResponse, error)
	SynthesizeAppraisal(ctx context.Context, req *AppraisalRequest) (*AppraisalResponse, error)
}

// EntryContext is the view of an entry sent to the collaborator.
type EntryContext struct {
	ID                        string   `json:"id"`
	Timestamp                 string   `json:"timestamp"`
	Category                  string   `json:"category"`
	Summary                   string   `json:"summary"`
	Signature                 string   `json:"signature,omitempty"`
	Raw                       string   `json:"raw"`
	Skills                    []string `json:"skills,omitempty"`
	Confidence                string   `json:"confidence_score,omitempty"`
	EvidenceLinks             []string `json:"evidence_links,omitempty"`
	RefinementState           string   `json:"refinement_state,omitempty"`
	ClarificationQuestion     string   `json:"clarification_question,omitempty"`
	ReflectionQuestion        string   `json:"reflection_question,omitempty"`
	UserClarificationResponse string   `json:"user_clarification_response,omitempty"`
	Verified                  *bool    `json:"verified,omitempty"`
}

// NewEntryContext builds the full collaborator view of e.
func NewEntryContext(e memory.CareerEntry) EntryContext {
	return EntryContext{
		ID:                        e.EntryID,
		Timestamp:                 e.Timestamp.UTC().Format(time.RFC3339),
		Category:                  string(e.Category),
		Summary:                   e.ImpactSummary,
		Signature:                 e.ThoughtSignature,
		Raw:                       e.RawInput,
		Skills:                    e.Skills,
		Confidence:                string(e.Confidence),
		EvidenceLinks:             e.EvidenceLinks,
		RefinementState:           string(e.RefinementState),
		ClarificationQuestion:     e.Inquiry.ClarificationQuestion(),
		ReflectionQuestion:        e.Inquiry.ReflectionQuestion(),
		UserClarificationResponse: e.Inquiry.UserClarificationResponse(),
	}
}

// NewEntryContexts maps NewEntryContext over entries.
func NewEntryContexts(entries []memory.CareerEntry) []EntryContext {
	out := make([]EntryContext, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewEntryContext(e))
	}
	return out
}

// --- classify_entry ---

// ClassifyRequest asks the collaborator to structure one raw log.
type ClassifyRequest struct {
	Text     string
	Now      time.Time
	Timezone string
	Existing []EntryContext
}

// ClassifyResponse is the classify_entry output.
type ClassifyResponse struct {
	IsOffTask                     *bool    `json:"is_off_task"`
	RejectionMessage              string   `json:"rejection_message,omitempty"`
	DuplicateRiskDetected         *bool    `json:"duplicate_risk_detected"`
	DuplicateConfirmationQuestion string   `json:"duplicate_confirmation_question,omitempty"`
	DuplicateOfID                 string   `json:"duplicate_of_id,omitempty"`
	ThoughtSignature              string   `json:"thought_signature,omitempty"`
	Timestamp                     string   `json:"timestamp,omitempty"`
	RawInput                      string   `json:"raw_input,omitempty"`
	Category                      string   `json:"category,omitempty"`
	Skills                        []string `json:"skills,omitempty"`
	ImpactSummary                 string   `json:"impact_summary,omitempty"`
	ConfidenceScore               string   `json:"confidence_score,omitempty"`
	EvidenceLinks                 []string `json:"evidence_links,omitempty"`
}

// OffTask reports the is_off_task flag.
func (r *ClassifyResponse) OffTask() bool { return r.IsOffTask != nil && *r.IsOffTask }

// DuplicateRisk reports the duplicate_risk_detected flag.
func (r *ClassifyResponse) DuplicateRisk() bool {
	return r.DuplicateRiskDetected != nil && *r.DuplicateRiskDetected
}

// Validate enforces the classify_entry schema.
func (r *ClassifyResponse) Validate() error {
	if r.IsOffTask == nil {
		return memory.SchemaErrorf("classify_entry: missing is_off_task")
	}
	if r.DuplicateRiskDetected == nil {
		return memory.SchemaErrorf("classify_entry: missing duplicate_risk_detected")
	}
	if r.OffTask() {
		return nil
	}
	if r.Category == "" {
		return memory.SchemaErrorf("classify_entry: missing category")
	}
	if r.ImpactSummary == "" {
		return memory.SchemaErrorf("classify_entry: missing impact_summary")
	}
	if _, ok := memory.ParseConfidence(r.ConfidenceScore); !ok {
		return memory.SchemaErrorf("classify_entry: invalid confidence_score %q", r.ConfidenceScore)
	}
	return nil
}

// --- request_clarification ---

// ClarificationRequest asks for one question about a vague entry.
type ClarificationRequest struct {
	Entry EntryContext
	// Reflection marks a question raised for a previously skipped entry.
	Reflection bool
}

// ClarificationResponse carries exactly one question.
type ClarificationResponse struct {
	Question string `json:"question"`
}

// Validate enforces the request_clarification schema.
func (r *ClarificationResponse) Validate() error {
	if r.Question == "" {
		return memory.SchemaErrorf("request_clarification: missing question")
	}
	return nil
}

// --- attach_evidence ---

// AttachRequest carries one artifact and the candidate entries.
type AttachRequest struct {
	Content  []byte
	MIMEType string
	Label    string
	Entries  []EntryContext
}

// AttachResponse is the attach_evidence output.
type AttachResponse struct {
	MatchID             string   `json:"match_id"`
	IsMatch             *bool    `json:"is_match"`
	SuggestedConfidence string   `json:"suggested_confidence"`
	Reasoning           string   `json:"reasoning"`
	MatchScore          *float64 `json:"match_score"`
}

// Validate enforces the attach_evidence schema.
func (r *AttachResponse) Validate() error {
	if r.IsMatch == nil {
		return memory.SchemaErrorf("attach_evidence: missing is_match")
	}
	if r.Reasoning == "" {
		return memory.SchemaErrorf("attach_evidence: missing reasoning")
	}
	c, ok := memory.ParseConfidence(r.SuggestedConfidence)
	if !ok || c == memory.ConfidenceLow {
		return memory.SchemaErrorf("attach_evidence: suggested_confidence must be medium or high, got %q", r.SuggestedConfidence)
	}
	if r.MatchScore == nil || *r.MatchScore < 0 || *r.MatchScore > 1 {
		return memory.SchemaErrorf("attach_evidence: match_score must be within [0,1]")
	}
	if *r.IsMatch && r.MatchID == "" {
		return memory.SchemaErrorf("attach_evidence: match_id required when is_match")
	}
	return nil
}

// --- weekly_reflect ---

// ReflectRequest carries the selected subset of entries.
type ReflectRequest struct {
	Entries    []EntryContext
	Now        time.Time
	Timezone   string
	WindowDays int
}

// RefinedEntry is one entry proposed by a reflection pass. EntryID names the
// surviving entry of a cluster; MergedFrom lists the ids folded into it.
type RefinedEntry struct {
	EntryID            string   `json:"entry_id"`
	MergedFrom         []string `json:"merged_from,omitempty"`
	ThoughtSignature   string   `json:"thought_signature,omitempty"`
	RawInput           string   `json:"raw_input,omitempty"`
	Category           string   `json:"category"`
	Skills             []string `json:"skills,omitempty"`
	ImpactSummary      string   `json:"impact_summary"`
	ConfidenceScore    string   `json:"confidence_score"`
	ReflectionQuestion string   `json:"reflection_question,omitempty"`
}

// ChangeNote is a change the collaborator reports in its own words.
type ChangeNote struct {
	Action   string   `json:"action"`
	EntryIDs []string `json:"entry_ids,omitempty"`
	Detail   string   `json:"detail"`
}

// ReflectResponse is the weekly_reflect output.
type ReflectResponse struct {
	RefinedEntries    []RefinedEntry `json:"refined_entries"`
	ReflectionSummary string         `json:"reflection_summary"`
	ChangeLog         []ChangeNote   `json:"change_log,omitempty"`
}

// Validate enforces the weekly_reflect schema.
func (r *ReflectResponse) Validate() error {
	if r.RefinedEntries == nil {
		return memory.SchemaErrorf("weekly_reflect: missing refined_entries")
	}
	if r.ReflectionSummary == "" {
		return memory.SchemaErrorf("weekly_reflect: missing reflection_summary")
	}
	for i, e := range r.RefinedEntries {
		if e.EntryID == "" {
			return memory.SchemaErrorf("weekly_reflect: refined_entries[%d] missing entry_id", i)
		}
		if e.Category == "" {
			return memory.SchemaErrorf("weekly_reflect: entry %s missing category", e.EntryID)
		}
		if e.ImpactSummary == "" {
			return memory.SchemaErrorf("weekly_reflect: entry %s missing impact_summary", e.EntryID)
		}
		if _, ok := memory.ParseConfidence(e.ConfidenceScore); !ok {
			return memory.SchemaErrorf("weekly_reflect: entry %s invalid confidence_score %q", e.EntryID, e.ConfidenceScore)
		}
	}
	for i, n := range r.ChangeLog {
		if n.Action == "" {
			return memory.SchemaErrorf("weekly_reflect: change_log[%d] missing action", i)
		}
	}
	return nil
}

// --- synthesize_appraisal ---

// AppraisalRequest carries the full entry set.
type AppraisalRequest struct {
	Entries []EntryContext
}

// AchievementClaim is one narrative and the entries it is drawn from.
type AchievementClaim struct {
	Narrative string   `json:"narrative"`
	EntryIDs  []string `json:"entry_ids"`
}

// AppraisalResponse is the synthesize_appraisal output.
type AppraisalResponse struct {
	ExecutiveSummary    string             `json:"executive_summary"`
	KeyAchievements     []AchievementClaim `json:"key_achievements"`
	SkillsAndGrowth     string             `json:"skills_and_growth"`
	AreasForDevelopment []string           `json:"areas_for_development"`
	GapAnalysis         string             `json:"gap_analysis"`
}

// Validate enforces the synthesize_appraisal schema.
func (r *AppraisalResponse) Validate() error {
	switch {
	case r.ExecutiveSummary == "":
		return memory.SchemaErrorf("synthesize_appraisal: missing executive_summary")
	case r.KeyAchievements == nil:
		return memory.SchemaErrorf("synthesize_appraisal: missing key_achievements")
	case r.SkillsAndGrowth == "":
		return memory.SchemaErrorf("synthesize_appraisal: missing skills_and_growth")
	case r.AreasForDevelopment == nil:
		return memory.SchemaErrorf("synthesize_appraisal: missing areas_for_development")
	case r.GapAnalysis == "":
		return memory.SchemaErrorf("synthesize_appraisal: missing gap_analysis")
	}
	for i, a := range r.KeyAchievements {
		if a.Narrative == "" || len(a.EntryIDs) == 0 {
			return memory.SchemaErrorf("synthesize_appraisal: key_achievements[%d] needs narrative and entry_ids", i)
		}
	}
	return nil
}
