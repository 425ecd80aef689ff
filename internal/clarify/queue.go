// Package clarify implements the per-entry question lifecycle: one question
// after a low-confidence capture, a reflection question after a skip, and the
// confidence upgrade an answer brings.
package clarify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
)

// ErrNotSkipped is returned when a reflection question is raised for an entry
// whose clarification was not skipped.
var ErrNotSkipped = errors.New("entry clarification was not skipped")

// Reasoner is the part of the collaborator the queue needs.
type Reasoner interface {
	RequestClarification(ctx context.Context, req *llm.ClarificationRequest) (*llm.ClarificationResponse, error)
}

// Queue asks clarification questions through the collaborator.
type Queue struct {
	reasoner Reasoner
	logger   *slog.Logger
}

// NewQueue creates a queue. A nil logger uses slog.Default().
func NewQueue(reasoner Reasoner, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{reasoner: reasoner, logger: logger}
}

// NeedsClarification reports whether a freshly captured entry should get a question.
func NeedsClarification(e *memory.CareerEntry) bool {
	return e.Confidence == memory.ConfidenceLow && e.Inquiry.State == memory.InquiryNone
}

// Enqueue raises a clarification question on a low-confidence entry. It
// reports whether a question was raised. On error e is unchanged.
func (q *Queue) Enqueue(ctx context.Context, e *memory.CareerEntry, now time.Time) (bool, error) {
	if !NeedsClarification(e) {
		return false, nil
	}

	question, err := q.Ask(ctx, e, false)
	if err != nil {
		return false, err
	}

	e.Inquiry = memory.AwaitingClarification(question)
	e.Audit(now, memory.ActionClarificationAsked, "", question)
	q.logger.Info("clarification requested", "entry_id", e.EntryID)
	return true, nil
}

// Ask requests one question for e without changing it. reflection selects the
// re-ask wording used for previously skipped entries.
func (q *Queue) Ask(ctx context.Context, e *memory.CareerEntry, reflection bool) (string, error) {
	resp, err := q.reasoner.RequestClarification(ctx, &llm.ClarificationRequest{
		Entry:      llm.NewEntryContext(*e),
		Reflection: reflection,
	})
	if err != nil {
		return "", fmt.Errorf("failed to request clarification: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("failed to request clarification: %w", memory.ErrCollaboratorUnavailable)
	}

	question := firstLine(resp.Question)
	if question == "" {
		return "", memory.SchemaErrorf("request_clarification: empty question")
	}
	if n := len(strings.Fields(question)); n > 15 {
		q.logger.Warn("clarification question longer than 15 words", "entry_id", e.EntryID, "words", n)
	}
	return question, nil
}

// Answer records the user's response to the outstanding question. The entry
// becomes high confidence and waits for the next reflection pass.
func Answer(e *memory.CareerEntry, response string, now time.Time) error {
	response = strings.TrimSpace(response)
	if response == "" {
		return fmt.Errorf("%w: response is empty", memory.ErrUserInputRejected)
	}

	var action string
	switch e.Inquiry.State {
	case memory.InquiryAwaitingClarification:
		action = memory.ActionClarified
		e.Inquiry = memory.Clarified(response)
	case memory.InquiryAwaitingReflection:
		action = memory.ActionReflectionAnswered
		e.Inquiry = memory.ReflectionAnswered(response)
	default:
		return fmt.Errorf("entry %s: %w", e.EntryID, memory.ErrNoOutstandingQuestion)
	}

	e.Audit(now, action, "", response)
	if prev := e.Confidence; prev != memory.ConfidenceHigh {
		e.Confidence = memory.ConfidenceHigh
		e.Audit(now, memory.ActionConfidenceRaised, string(prev), string(memory.ConfidenceHigh))
	}
	e.RefinementState = memory.RefinementPending
	return nil
}

// Skip closes an outstanding clarification question without an answer.
// Content fields are never touched. Reflection questions cannot be skipped.
func Skip(e *memory.CareerEntry, now time.Time) error {
	if e.Inquiry.State != memory.InquiryAwaitingClarification {
		return fmt.Errorf("entry %s: %w", e.EntryID, memory.ErrNoOutstandingQuestion)
	}
	question := e.Inquiry.Question
	e.Inquiry = memory.Skipped()
	e.Audit(now, memory.ActionSkipped, question, memory.SkippedSentinel)
	return nil
}

// RaiseReflection turns a skipped entry into one awaiting a reflection question.
func RaiseReflection(e *memory.CareerEntry, question string, now time.Time) error {
	question = firstLine(question)
	if question == "" {
		return memory.SchemaErrorf("reflection question is empty")
	}
	if e.Inquiry.State != memory.InquirySkipped {
		return fmt.Errorf("entry %s: %w", e.EntryID, ErrNotSkipped)
	}
	e.Inquiry = memory.AwaitingReflection(question)
	e.Audit(now, memory.ActionReflectionAsked, memory.SkippedSentinel, question)
	return nil
}

// Consume marks an answered response as woven into the entry and returns it.
func Consume(e *memory.CareerEntry, now time.Time) (string, bool) {
	if !e.Inquiry.HasUnconsumedResponse() {
		return "", false
	}
	resp := e.Inquiry.Response
	e.Inquiry = memory.Resolved(resp)
	e.Audit(now, memory.ActionResponseConsumed, "", resp)
	return resp, true
}

// Kind names which question slot is outstanding.
type Kind string

const (
	KindClarification Kind = "clarification"
	KindReflection    Kind = "reflection"
)

// PendingQuestion is an outstanding question waiting for the user.
type PendingQuestion struct {
	EntryID  string    `json:"entry_id"`
	Kind     Kind      `json:"kind"`
	Question string    `json:"question"`
	RawInput string    `json:"raw_input"`
	AskedAt  time.Time `json:"asked_at"`
}

// Pending lists outstanding questions in entry order.
func Pending(entries []memory.CareerEntry) []PendingQuestion {
	var out []PendingQuestion
	for _, e := range entries {
		if !e.Inquiry.Outstanding() {
			continue
		}
		kind := KindClarification
		action := memory.ActionClarificationAsked
		if e.Inquiry.State == memory.InquiryAwaitingReflection {
			kind = KindReflection
			action = memory.ActionReflectionAsked
		}
		out = append(out, PendingQuestion{
			EntryID:  e.EntryID,
			Kind:     kind,
			Question: e.Inquiry.Question,
			RawInput: e.RawInput,
			AskedAt:  lastAudit(e.AuditLog, action),
		})
	}
	return out
}

func lastAudit(log []memory.AuditLogEntry, action string) time.Time {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Action == action {
			return log[i].Timestamp
		}
	}
	return time.Time{}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
