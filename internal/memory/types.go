// Package memory provides the career memory data model, its lifecycle
// invariants, and the storage implementations that persist it.
package memory

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// Category classifies what kind of work activity an entry records.
type Category string

const (
	CategoryAchievement Category = "achievement"
	CategoryChallenge   Category = "challenge"
	CategoryLearning    Category = "learning"
)

// ParseCategory case-folds and trims s. ok is false when s is not one of the
// three known categories.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryAchievement, CategoryChallenge, CategoryLearning:
		return c, true
	}
	return "", false
}

// CoerceCategory is ParseCategory with the achievement fallback applied.
func CoerceCategory(s string) Category {
	if c, ok := ParseCategory(s); ok {
		return c
	}
	return CategoryAchievement
}

// Confidence is the ordered certainty that an entry's impact claim is supported.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

var confidenceOrder = []Confidence{ConfidenceLow, ConfidenceMedium, ConfidenceHigh}

// ParseConfidence case-folds and trims s.
func ParseConfidence(s string) (Confidence, bool) {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(confidenceOrder, c) {
		return c, true
	}
	return "", false
}

// Rank returns 0 for low, 1 for medium, 2 for high and -1 for unknown values.
func (c Confidence) Rank() int {
	return slices.Index(confidenceOrder, c)
}

// Score maps the level onto the 33/66/100 scale used by the dashboard stats.
func (c Confidence) Score() int {
	switch c {
	case ConfidenceHigh:
		return 100
	case ConfidenceMedium:
		return 66
	case ConfidenceLow:
		return 33
	}
	return 0
}

// StepToward moves c at most one level up toward target. It never lowers c.
func (c Confidence) StepToward(target Confidence) Confidence {
	cur, want := c.Rank(), target.Rank()
	if want <= cur || want < 0 {
		return c
	}
	if cur < 0 {
		return ConfidenceLow
	}
	return confidenceOrder[cur+1]
}

// MaxConfidence returns the highest of the given levels.
func MaxConfidence(levels ...Confidence) Confidence {
	best := ConfidenceLow
	for _, l := range levels {
		if l.Rank() > best.Rank() {
			best = l
		}
	}
	return best
}

// RefinementState records whether a reflection or evidence pass has touched an entry
// since its last user-driven change.
type RefinementState string

const (
	RefinementPending RefinementState = "pending"
	RefinementRefined RefinementState = "refined"
)

// AuditLogEntry is one durable record of a mutation.
type AuditLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	PreviousValue string    `json:"previous_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
}

// Audit actions.
const (
	ActionCaptured           = "captured"
	ActionClarificationAsked = "clarification_requested"
	ActionClarified          = "clarification_answered"
	ActionConfidenceRaised   = "confidence_raised"
	ActionSkipped            = "clarification_skipped"
	ActionReflectionAsked    = "reflection_question_raised"
	ActionReflectionAnswered = "reflection_answered"
	ActionResponseConsumed   = "response_consumed"
	ActionEvidenceAttached   = "evidence_attached"
	ActionDuplicateLinked    = "duplicate_linked"
	ActionMerged             = "merged"
	ActionRefined            = "reflection_refined"
)

// CareerEntry is the unit of memory: one structured work activity.
type CareerEntry struct {
	EntryID          string          `json:"entry_id"`
	ThoughtSignature string          `json:"thought_signature,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	RawInput         string          `json:"raw_input"`
	Category         Category        `json:"category"`
	Skills           []string        `json:"skills"`
	ImpactSummary    string          `json:"impact_summary"`
	Confidence       Confidence      `json:"confidence_score"`
	EvidenceLinks    []string        `json:"evidence_links"`
	RefinementState  RefinementState `json:"refinement_state"`
	Inquiry          Inquiry         `json:"inquiry"`
	AuditLog         []AuditLogEntry `json:"audit_log"`
}

// Clone returns a deep copy so callers can compute a next state without
// touching the committed one.
func (e CareerEntry) Clone() CareerEntry {
	e.Skills = slices.Clone(e.Skills)
	e.EvidenceLinks = slices.Clone(e.EvidenceLinks)
	e.AuditLog = slices.Clone(e.AuditLog)
	return e
}

// Audit appends a record to the entry's audit log.
func (e *CareerEntry) Audit(at time.Time, action, prev, next string) {
	e.AuditLog = append(e.AuditLog, AuditLogEntry{
		Timestamp:     at,
		Action:        action,
		PreviousValue: prev,
		NewValue:      next,
	})
}

// AddEvidence appends label unless it is already attached. It reports whether
// the slice changed.
func (e *CareerEntry) AddEvidence(label string) bool {
	if label == "" || slices.Contains(e.EvidenceLinks, label) {
		return false
	}
	e.EvidenceLinks = append(e.EvidenceLinks, label)
	return true
}

// Verified reports whether the entry's claims can be presented as confirmed.
// Skipped clarifications and unanswered questions are not.
func (e CareerEntry) Verified() bool {
	switch e.Inquiry.State {
	case InquirySkipped, InquiryAwaitingClarification, InquiryAwaitingReflection:
		return false
	}
	return true
}

// CloneEntries deep-copies a slice of entries.
func CloneEntries(entries []CareerEntry) []CareerEntry {
	if entries == nil {
		return nil
	}
	out := make([]CareerEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// SortEntries orders entries by timestamp descending, breaking ties by id so
// the order is stable across runs.
func SortEntries(entries []CareerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].EntryID < entries[j].EntryID
	})
}

// FindEntry returns the index of the entry with the given id, or -1.
func FindEntry(entries []CareerEntry, id string) int {
	return slices.IndexFunc(entries, func(e CareerEntry) bool { return e.EntryID == id })
}

// NormalizeSkills trims, drops empties and removes case-insensitive duplicates
// while keeping the first spelling seen.
func NormalizeSkills(groups ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, g := range groups {
		for _, s := range g {
			s = strings.TrimSpace(s)
			key := strings.ToLower(s)
			if s == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

// UnionLinks concatenates link lists, keeping first occurrence order and
// dropping exact duplicates and blanks.
func UnionLinks(groups ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, g := range groups {
		for _, l := range g {
			l = strings.TrimSpace(l)
			if l == "" || seen[l] {
				continue
			}
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// ChangeLogEntry describes one change made by a reflection pass.
type ChangeLogEntry struct {
	Action   string   `json:"action"`
	EntryIDs []string `json:"entry_ids,omitempty"`
	Detail   string   `json:"detail"`
}

// ReflectionRecord is the outcome of the most recent reflection pass.
type ReflectionRecord struct {
	At        time.Time        `json:"at"`
	Summary   string           `json:"summary"`
	ChangeLog []ChangeLogEntry `json:"change_log"`
}

// PendingCapture is a classified draft that overlaps an existing entry and
// waits for the user to choose between linking and logging it as new.
type PendingCapture struct {
	Draft         CareerEntry `json:"draft"`
	DuplicateOfID string      `json:"duplicate_of_id,omitempty"`
	Question      string      `json:"question"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Snapshot is the whole persisted state, handled as one versioned value.
type Snapshot struct {
	Version        int64             `json:"version"`
	Entries        []CareerEntry     `json:"entries"`
	LastReflection *ReflectionRecord `json:"last_reflection,omitempty"`
	Timezone       string            `json:"timezone"`
	PendingCapture *PendingCapture   `json:"pending_capture,omitempty"`
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return &Snapshot{}
	}
	out := *s
	out.Entries = CloneEntries(s.Entries)
	if s.LastReflection != nil {
		r := *s.LastReflection
		r.ChangeLog = slices.Clone(r.ChangeLog)
		out.LastReflection = &r
	}
	if s.PendingCapture != nil {
		p := *s.PendingCapture
		p.Draft = p.Draft.Clone()
		out.PendingCapture = &p
	}
	return &out
}

// ScoredEntry is an entry returned by a similarity search.
type ScoredEntry struct {
	Entry           CareerEntry
	SimilarityScore float32
}

// Achievement is one appraisal narrative and the entries backing it.
type Achievement struct {
	Narrative string   `json:"narrative"`
	EntryIDs  []string `json:"entry_ids"`
}

// AppraisalSummary is the derived, read-only appraisal document.
type AppraisalSummary struct {
	ExecutiveSummary    string        `json:"executive_summary"`
	KeyAchievements     []Achievement `json:"key_achievements"`
	SkillsAndGrowth     string        `json:"skills_and_growth"`
	AreasForDevelopment []string      `json:"areas_for_development"`
	GapAnalysis         string        `json:"gap_analysis"`
	UnverifiedEntryIDs  []string      `json:"unverified_entry_ids,omitempty"`
	GeneratedAt         time.Time     `json:"generated_at"`
}
