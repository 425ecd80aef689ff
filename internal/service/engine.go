// Package service orchestrates the career memory lifecycle. It owns the
// single versioned snapshot, runs one operation at a time, and persists the
// next state after every mutation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/easeaico/careertrack-agent/internal/appraisal"
	"github.com/easeaico/careertrack-agent/internal/capture"
	"github.com/easeaico/careertrack-agent/internal/clarify"
	"github.com/easeaico/careertrack-agent/internal/evidence"
	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
	"github.com/easeaico/careertrack-agent/internal/reflection"
)

const defaultRecentContext = 10

// Options configures an Engine.
type Options struct {
	Store    memory.Store
	Reasoner llm.Reasoner
	Embedder llm.Embedder // optional
	Logger   *slog.Logger

	WindowDays      int
	MatchThreshold  float64
	RecentContext   int
	DefaultTimezone string

	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// Engine is the single entry point for every memory operation.
type Engine struct {
	op sync.Mutex // held for the whole of a user operation

	mu   sync.RWMutex
	snap *memory.Snapshot

	store       memory.Store
	embedder    llm.Embedder
	classifier  *capture.Classifier
	queue       *clarify.Queue
	attacher    *evidence.Attacher
	reflector   *reflection.Engine
	synthesizer *appraisal.Synthesizer
	logger      *slog.Logger

	windowDays    int
	recentContext int
	clock         func() time.Time
}

// Open loads the persisted snapshot and returns a ready engine.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Reasoner == nil {
		return nil, errors.New("reasoner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	snap, err := opts.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}
	if snap.Timezone == "" {
		snap.Timezone = opts.DefaultTimezone
	}
	if snap.Timezone == "" {
		snap.Timezone = "UTC"
	}

	e := &Engine{
		snap:          snap,
		store:         opts.Store,
		embedder:      opts.Embedder,
		classifier:    capture.NewClassifier(opts.Reasoner, logger),
		queue:         clarify.NewQueue(opts.Reasoner, logger),
		attacher:      evidence.NewAttacher(opts.Reasoner, opts.MatchThreshold, logger),
		reflector:     reflection.NewEngine(opts.Reasoner, logger),
		synthesizer:   appraisal.NewSynthesizer(opts.Reasoner, logger),
		logger:        logger,
		windowDays:    opts.WindowDays,
		recentContext: opts.RecentContext,
		clock:         opts.Clock,
	}
	if e.windowDays <= 0 {
		e.windowDays = reflection.DefaultWindowDays
	}
	if e.recentContext <= 0 {
		e.recentContext = defaultRecentContext
	}
	if e.clock == nil {
		e.clock = time.Now
	}

	logger.Info("memory loaded", "entries", len(snap.Entries), "version", snap.Version)
	return e, nil
}

func (e *Engine) now() time.Time { return e.clock().UTC() }

// begin acquires the operation slot and returns a private copy of the state.
func (e *Engine) begin() (*memory.Snapshot, func(), error) {
	if !e.op.TryLock() {
		return nil, nil, memory.ErrBusy
	}
	e.mu.RLock()
	next := e.snap.Clone()
	e.mu.RUnlock()
	return next, e.op.Unlock, nil
}

// commit persists next and makes it the current state. The in-memory state
// only advances after a successful save.
func (e *Engine) commit(ctx context.Context, next *memory.Snapshot) error {
	memory.SortEntries(next.Entries)
	if err := e.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	e.mu.Lock()
	e.snap = next
	e.mu.Unlock()
	return nil
}

// CaptureStatus describes what a capture produced.
type CaptureStatus string

const (
	StatusCaptured           CaptureStatus = "captured"
	StatusNeedsClarification CaptureStatus = "needs_clarification"
	StatusDuplicate          CaptureStatus = "duplicate_pending"
	StatusLinked             CaptureStatus = "linked"
	StatusDiscarded          CaptureStatus = "discarded"
)

// CaptureResult is returned by Capture and ResolveDuplicate.
type CaptureResult struct {
	Status        CaptureStatus       `json:"status"`
	Entry         *memory.CareerEntry `json:"entry,omitempty"`
	Question      string              `json:"question,omitempty"`
	DuplicateOfID string              `json:"duplicate_of_id,omitempty"`
}

// Capture classifies text and stores the resulting entry. Off-task input
// returns an *memory.OffTaskError. Likely duplicates are parked as a pending
// decision until ResolveDuplicate is called.
func (e *Engine) Capture(ctx context.Context, text string) (*CaptureResult, error) {
	next, done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	if next.PendingCapture != nil {
		return nil, memory.ErrPendingDecision
	}

	now := e.now()
	cc := e.buildCaptureContext(ctx, next.Entries, text)
	res, err := e.classifier.Classify(ctx, text, now, next.Timezone, cc.Entries())
	if err != nil {
		return nil, err
	}
	if res.OffTask {
		return nil, &memory.OffTaskError{Message: res.RejectionMessage}
	}

	if res.Duplicate {
		next.PendingCapture = &memory.PendingCapture{
			Draft:         *res.Draft,
			DuplicateOfID: res.DuplicateOfID,
			Question:      res.DuplicateQuestion,
			CreatedAt:     now,
		}
		if err := e.commit(ctx, next); err != nil {
			return nil, err
		}
		e.logger.Info("capture waiting for duplicate decision", "duplicate_of", res.DuplicateOfID)
		return &CaptureResult{
			Status:        StatusDuplicate,
			Entry:         res.Draft,
			Question:      res.DuplicateQuestion,
			DuplicateOfID: res.DuplicateOfID,
		}, nil
	}

	return e.admit(ctx, next, *res.Draft, now)
}

// admit stores a new entry, raising a clarification question first when its
// confidence is low. A failed question request still stores the entry.
func (e *Engine) admit(ctx context.Context, next *memory.Snapshot, draft memory.CareerEntry, now time.Time) (*CaptureResult, error) {
	raised, err := e.queue.Enqueue(ctx, &draft, now)
	if err != nil {
		e.logger.Warn("entry stored without clarification question", "entry_id", draft.EntryID, "error", err)
	}

	next.Entries = append(next.Entries, draft)
	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}
	e.refreshEmbeddings(ctx, draft)
	e.logger.Info("entry captured", "entry_id", draft.EntryID, "category", draft.Category, "confidence", draft.Confidence)

	out := &CaptureResult{Status: StatusCaptured, Entry: &draft}
	if raised {
		out.Status = StatusNeedsClarification
		out.Question = draft.Inquiry.Question
	}
	return out, nil
}

// Decision answers a pending duplicate question.
type Decision string

const (
	DecisionLink    Decision = "link"
	DecisionNew     Decision = "new"
	DecisionDiscard Decision = "discard"
)

// ParseDecision accepts link, new and discard in any case.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DecisionLink, DecisionNew, DecisionDiscard:
		return d, nil
	}
	return "", fmt.Errorf("%w: decision must be link, new or discard", memory.ErrUserInputRejected)
}

// ResolveDuplicate applies the user's choice for the parked draft. Linking
// folds the draft into the existing entry; new stores it as its own entry.
func (e *Engine) ResolveDuplicate(ctx context.Context, d Decision) (*CaptureResult, error) {
	next, done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	pending := next.PendingCapture
	if pending == nil {
		return nil, memory.ErrNoPendingDecision
	}
	now := e.now()

	switch d {
	case DecisionNew:
		next.PendingCapture = nil
		return e.admit(ctx, next, pending.Draft, now)

	case DecisionDiscard:
		next.PendingCapture = nil
		if err := e.commit(ctx, next); err != nil {
			return nil, err
		}
		return &CaptureResult{Status: StatusDiscarded}, nil

	case DecisionLink:
		i := memory.FindEntry(next.Entries, pending.DuplicateOfID)
		if i < 0 {
			return nil, fmt.Errorf("duplicate target %q: %w", pending.DuplicateOfID, memory.ErrEntryNotFound)
		}
		target := &next.Entries[i]
		linkDraft(target, pending.Draft, now)
		next.PendingCapture = nil
		if err := e.commit(ctx, next); err != nil {
			return nil, err
		}
		linked := next.Entries[memory.FindEntry(next.Entries, pending.DuplicateOfID)]
		e.refreshEmbeddings(ctx, linked)
		return &CaptureResult{Status: StatusLinked, Entry: &linked, DuplicateOfID: linked.EntryID}, nil
	}
	return nil, fmt.Errorf("%w: unknown decision %q", memory.ErrUserInputRejected, d)
}

// linkDraft folds a duplicate draft into an existing entry without losing
// skills or evidence. Summary rewriting is left to the next reflection pass.
func linkDraft(target *memory.CareerEntry, draft memory.CareerEntry, now time.Time) {
	prev := target.Confidence
	target.RawInput = target.RawInput + "\n\n" + draft.RawInput
	target.Skills = memory.NormalizeSkills(target.Skills, draft.Skills)
	target.EvidenceLinks = memory.UnionLinks(target.EvidenceLinks, draft.EvidenceLinks)
	target.Confidence = memory.MaxConfidence(prev, draft.Confidence)
	target.RefinementState = memory.RefinementPending
	target.Audit(now, memory.ActionDuplicateLinked, "", draft.RawInput)
	if target.Confidence != prev {
		target.Audit(now, memory.ActionConfidenceRaised, string(prev), string(target.Confidence))
	}
}

// AnswerQuestion records a response to the entry's outstanding question.
func (e *Engine) AnswerQuestion(ctx context.Context, entryID, response string) (*memory.CareerEntry, error) {
	return e.mutateEntry(ctx, entryID, func(entry *memory.CareerEntry, now time.Time) error {
		return clarify.Answer(entry, response, now)
	})
}

// SkipClarification closes the entry's clarification question unanswered.
func (e *Engine) SkipClarification(ctx context.Context, entryID string) (*memory.CareerEntry, error) {
	return e.mutateEntry(ctx, entryID, clarify.Skip)
}

func (e *Engine) mutateEntry(ctx context.Context, entryID string, fn func(*memory.CareerEntry, time.Time) error) (*memory.CareerEntry, error) {
	next, done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	i := memory.FindEntry(next.Entries, entryID)
	if i < 0 {
		return nil, fmt.Errorf("entry %q: %w", entryID, memory.ErrEntryNotFound)
	}
	if err := fn(&next.Entries[i], e.now()); err != nil {
		return nil, err
	}
	updated := next.Entries[i]
	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}
	return &updated, nil
}

// AttachResult reports the evidence decision and the updated entry on a match.
// AlreadyAttached is set when the matched entry carried the label already.
type AttachResult struct {
	Match           *evidence.Match     `json:"match"`
	Entry           *memory.CareerEntry `json:"entry,omitempty"`
	AlreadyAttached bool                `json:"already_attached,omitempty"`
}

// AttachEvidence matches an artifact against the stored entries and applies
// it to at most one of them.
func (e *Engine) AttachEvidence(ctx context.Context, art evidence.Artifact) (*AttachResult, error) {
	next, done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	m, err := e.attacher.Attach(ctx, art, next.Entries)
	if err != nil {
		return nil, err
	}
	if !m.Matched {
		return &AttachResult{Match: m}, nil
	}

	changed, err := evidence.Apply(next.Entries, m, art.Label, e.now())
	if err != nil {
		return nil, err
	}
	updated := next.Entries[memory.FindEntry(next.Entries, m.EntryID)]
	if !changed {
		e.logger.Info("evidence already attached", "entry_id", updated.EntryID, "label", art.Label)
		return &AttachResult{Match: m, Entry: &updated, AlreadyAttached: true}, nil
	}
	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}
	e.logger.Info("evidence attached", "entry_id", updated.EntryID, "confidence", updated.Confidence)
	return &AttachResult{Match: m, Entry: &updated}, nil
}

// Reflect runs a reflection pass over the stored entries and persists the
// result together with its summary.
func (e *Engine) Reflect(ctx context.Context) (*reflection.Result, error) {
	next, done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	now := e.now()
	res, err := e.reflector.Reflect(ctx, next.Entries, e.windowDays, now, next.Timezone)
	if err != nil {
		return nil, err
	}
	if res.Analyzed == 0 {
		return res, nil
	}

	next.Entries = res.Entries
	next.LastReflection = &memory.ReflectionRecord{At: now, Summary: res.Summary, ChangeLog: res.ChangeLog}
	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}

	var touched []memory.CareerEntry
	for _, id := range res.Touched {
		if i := memory.FindEntry(next.Entries, id); i >= 0 {
			touched = append(touched, next.Entries[i])
		}
	}
	e.refreshEmbeddings(ctx, touched...)
	return res, nil
}

// Synthesize builds an appraisal summary. Entries are not modified.
func (e *Engine) Synthesize(ctx context.Context) (*memory.AppraisalSummary, error) {
	snap, done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	return e.synthesizer.Synthesize(ctx, snap.Entries, e.now())
}

// SetTimezone stores the user's IANA timezone preference.
func (e *Engine) SetTimezone(ctx context.Context, tz string) error {
	tz = strings.TrimSpace(tz)
	if _, err := time.LoadLocation(tz); err != nil || tz == "" {
		return fmt.Errorf("%w: unknown timezone %q", memory.ErrUserInputRejected, tz)
	}
	next, done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	next.Timezone = tz
	return e.commit(ctx, next)
}

// Reset clears every entry, the pending decision and the last reflection.
// The timezone preference is kept.
func (e *Engine) Reset(ctx context.Context) error {
	next, done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	cleared := &memory.Snapshot{Version: next.Version, Timezone: next.Timezone, Entries: []memory.CareerEntry{}}
	if err := e.commit(ctx, cleared); err != nil {
		return err
	}
	e.logger.Info("memory reset")
	return nil
}

// Search returns stored entries similar to query. Without an embedder it
// returns nothing.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]memory.ScoredEntry, error) {
	if e.embedder == nil || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	return e.store.SearchSimilar(ctx, vec, limit)
}

// Entries returns a copy of the stored entries, newest first.
func (e *Engine) Entries() []memory.CareerEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return memory.CloneEntries(e.snap.Entries)
}

// Entry returns one stored entry.
func (e *Engine) Entry(id string) (*memory.CareerEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := memory.FindEntry(e.snap.Entries, id)
	if i < 0 {
		return nil, fmt.Errorf("entry %q: %w", id, memory.ErrEntryNotFound)
	}
	out := e.snap.Entries[i].Clone()
	return &out, nil
}

// PendingQuestions lists every outstanding question.
func (e *Engine) PendingQuestions() []clarify.PendingQuestion {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return clarify.Pending(e.snap.Entries)
}

// PendingCapture returns the draft waiting for a duplicate decision, if any.
func (e *Engine) PendingCapture() *memory.PendingCapture {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snap.PendingCapture == nil {
		return nil
	}
	p := *e.snap.PendingCapture
	p.Draft = p.Draft.Clone()
	return &p
}

// LastReflection returns the most recent reflection record, if any.
func (e *Engine) LastReflection() *memory.ReflectionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.Clone().LastReflection
}

// Timezone returns the stored timezone preference.
func (e *Engine) Timezone() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.Timezone
}

// WindowDays is the reflection window in days.
func (e *Engine) WindowDays() int { return e.windowDays }

// Stats summarizes the stored memory.
type Stats struct {
	Total                 int                     `json:"total"`
	ByCategory            map[memory.Category]int `json:"by_category"`
	PendingClarifications int                     `json:"pending_clarifications"`
	PendingRefinement     int                     `json:"pending_refinement"`
	WithEvidence          int                     `json:"with_evidence"`
	Unverified            int                     `json:"unverified"`
	AverageConfidence     int                     `json:"average_confidence"`
	LastReflectionAt      *time.Time              `json:"last_reflection_at,omitempty"`
}

// Stats computes memory statistics. AverageConfidence is on the 0-100 scale
// where low, medium and high count 33, 66 and 100.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{ByCategory: map[memory.Category]int{
		memory.CategoryAchievement: 0,
		memory.CategoryChallenge:   0,
		memory.CategoryLearning:    0,
	}}
	var score int
	for _, entry := range e.snap.Entries {
		s.Total++
		s.ByCategory[entry.Category]++
		score += entry.Confidence.Score()
		if entry.Inquiry.Outstanding() {
			s.PendingClarifications++
		}
		if entry.RefinementState == memory.RefinementPending {
			s.PendingRefinement++
		}
		if len(entry.EvidenceLinks) > 0 {
			s.WithEvidence++
		}
		if !entry.Verified() {
			s.Unverified++
		}
	}
	if s.Total > 0 {
		s.AverageConfidence = int(math.Round(float64(score) / float64(s.Total)))
	}
	if r := e.snap.LastReflection; r != nil {
		at := r.At
		s.LastReflectionAt = &at
	}
	return s
}
