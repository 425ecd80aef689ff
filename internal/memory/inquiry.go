package memory

// InquiryState is the tag of an entry's question/response variant.
type InquiryState string

const (
	InquiryNone                  InquiryState = "none"
	InquiryAwaitingClarification InquiryState = "awaiting_clarification"
	InquiryClarified             InquiryState = "clarified"
	InquirySkipped               InquiryState = "skipped"
	InquiryAwaitingReflection    InquiryState = "awaiting_reflection"
	InquiryReflectionAnswered    InquiryState = "reflection_answered"
	InquiryResolved              InquiryState = "resolved"
)

// SkippedSentinel is the legacy user_clarification_response value for a skip.
const SkippedSentinel = "skipped"

// Inquiry holds at most one question or one response for an entry. Question is
// only set in the two awaiting states; Response only in clarified,
// reflection_answered and resolved.
type Inquiry struct {
	State    InquiryState `json:"state"`
	Question string       `json:"question,omitempty"`
	Response string       `json:"response,omitempty"`
}

// NoInquiry is the initial state.
func NoInquiry() Inquiry { return Inquiry{State: InquiryNone} }

// AwaitingClarification is an open post-capture question.
func AwaitingClarification(q string) Inquiry {
	return Inquiry{State: InquiryAwaitingClarification, Question: q}
}

// AwaitingReflection is an open question raised by a reflection pass.
func AwaitingReflection(q string) Inquiry {
	return Inquiry{State: InquiryAwaitingReflection, Question: q}
}

// Clarified holds an answer to a clarification question.
func Clarified(resp string) Inquiry { return Inquiry{State: InquiryClarified, Response: resp} }

// ReflectionAnswered holds an answer to a reflection question.
func ReflectionAnswered(resp string) Inquiry {
	return Inquiry{State: InquiryReflectionAnswered, Response: resp}
}

// Skipped records that the user declined the clarification question.
func Skipped() Inquiry { return Inquiry{State: InquirySkipped} }

// Resolved records a response already woven in by reflection.
func Resolved(resp string) Inquiry { return Inquiry{State: InquiryResolved, Response: resp} }

// IsZero reports whether the inquiry was never set, e.g. on legacy records.
func (q Inquiry) IsZero() bool { return q.State == "" }

// Outstanding reports whether a question is waiting for the user.
func (q Inquiry) Outstanding() bool {
	return q.State == InquiryAwaitingClarification || q.State == InquiryAwaitingReflection
}

// HasUnconsumedResponse reports whether an answer still needs to be woven into
// the entry by a reflection pass.
func (q Inquiry) HasUnconsumedResponse() bool {
	return q.State == InquiryClarified || q.State == InquiryReflectionAnswered
}

// ClarificationQuestion is the legacy clarification_question view.
func (q Inquiry) ClarificationQuestion() string {
	if q.State == InquiryAwaitingClarification {
		return q.Question
	}
	return ""
}

// ReflectionQuestion is the legacy reflection_question view.
func (q Inquiry) ReflectionQuestion() string {
	if q.State == InquiryAwaitingReflection {
		return q.Question
	}
	return ""
}

// UserClarificationResponse is the legacy user_clarification_response view,
// including the "skipped" sentinel.
func (q Inquiry) UserClarificationResponse() string {
	switch q.State {
	case InquirySkipped:
		return SkippedSentinel
	case InquiryClarified, InquiryReflectionAnswered, InquiryResolved:
		return q.Response
	}
	return ""
}
