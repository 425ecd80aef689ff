package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/easeaico/careertrack-agent/internal/evidence"
	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
	"github.com/easeaico/careertrack-agent/internal/reflection"
)

// mockStore keeps the snapshot in memory and enforces versioning like the
// real stores.
type mockStore struct {
	mu         sync.Mutex
	snap       *memory.Snapshot
	saves      int
	saveErr    error
	embeddings map[string][]float32
	similar    []memory.ScoredEntry
}

func newMockStore(entries ...memory.CareerEntry) *mockStore {
	return &mockStore{
		snap:       &memory.Snapshot{Entries: entries},
		embeddings: make(map[string][]float32),
	}
}

func (m *mockStore) Load(ctx context.Context) (*memory.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

func (m *mockStore) Save(ctx context.Context, snap *memory.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if snap.Version != m.snap.Version {
		return memory.ErrVersionConflict
	}
	snap.Version++
	m.snap = snap.Clone()
	m.saves++
	return nil
}

func (m *mockStore) SaveEmbedding(ctx context.Context, id string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[id] = vec
	return nil
}

func (m *mockStore) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]memory.ScoredEntry, error) {
	return m.similar, nil
}

func (m *mockStore) Close() error { return nil }

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// mockReasoner answers every contract from canned values.
type mockReasoner struct {
	classify     *llm.ClassifyResponse
	classifyErr  error
	lastExisting []llm.EntryContext

	question    string
	questionErr error

	attach    *llm.AttachResponse
	reflect   *llm.ReflectResponse
	reflectFn func(*llm.ReflectRequest) (*llm.ReflectResponse, error)
	appraisal *llm.AppraisalResponse

	block chan struct{} // when set, ClassifyEntry waits on it
}

func (m *mockReasoner) ClassifyEntry(ctx context.Context, req *llm.ClassifyRequest) (*llm.ClassifyResponse, error) {
	if m.block != nil {
		<-m.block
	}
	m.lastExisting = req.Existing
	return m.classify, m.classifyErr
}

func (m *mockReasoner) RequestClarification(ctx context.Context, req *llm.ClarificationRequest) (*llm.ClarificationResponse, error) {
	if m.questionErr != nil {
		return nil, m.questionErr
	}
	return &llm.ClarificationResponse{Question: m.question}, nil
}

func (m *mockReasoner) AttachEvidence(ctx context.Context, req *llm.AttachRequest) (*llm.AttachResponse, error) {
	return m.attach, nil
}

func (m *mockReasoner) WeeklyReflect(ctx context.Context, req *llm.ReflectRequest) (*llm.ReflectResponse, error) {
	if m.reflectFn != nil {
		return m.reflectFn(req)
	}
	return m.reflect, nil
}

func (m *mockReasoner) SynthesizeAppraisal(ctx context.Context, req *llm.AppraisalRequest) (*llm.AppraisalResponse, error) {
	return m.appraisal, nil
}

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func boolPtr(b bool) *bool { return &b }

func classified(confidence string) *llm.ClassifyResponse {
	return &llm.ClassifyResponse{
		IsOffTask:             boolPtr(false),
		DuplicateRiskDetected: boolPtr(false),
		Category:              "achievement",
		Skills:                []string{"Go"},
		ImpactSummary:         "Worked on the checkout service",
		ConfidenceScore:       confidence,
	}
}

func openEngine(t *testing.T, store *mockStore, r *mockReasoner, emb llm.Embedder) *Engine {
	t.Helper()
	e, err := Open(context.Background(), Options{
		Store:    store,
		Reasoner: r,
		Embedder: emb,
		Clock:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return e
}

func storedEntry(id string, age time.Duration) memory.CareerEntry {
	return memory.CareerEntry{
		EntryID:         id,
		Timestamp:       testNow.Add(-age),
		RawInput:        "raw " + id,
		Category:        memory.CategoryAchievement,
		Skills:          []string{"Go"},
		ImpactSummary:   "summary " + id,
		Confidence:      memory.ConfidenceMedium,
		EvidenceLinks:   []string{},
		RefinementState: memory.RefinementPending,
		Inquiry:         memory.NoInquiry(),
	}
}

func TestScenario_CaptureClarifyAnswer(t *testing.T) {
	store := newMockStore()
	r := &mockReasoner{classify: classified("low"), question: "What measurable result came from this work?"}
	e := openEngine(t, store, r, &mockEmbedder{})

	res, err := e.Capture(context.Background(), "worked on stuff")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if res.Status != StatusNeedsClarification || res.Question == "" {
		t.Fatalf("capture result = %+v", res)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want one save per capture", store.saves)
	}
	if _, ok := store.embeddings[res.Entry.EntryID]; !ok {
		t.Error("embedding not stored after capture")
	}
	if qs := e.PendingQuestions(); len(qs) != 1 || qs[0].EntryID != res.Entry.EntryID {
		t.Errorf("pending questions = %+v", qs)
	}

	updated, err := e.AnswerQuestion(context.Background(), res.Entry.EntryID, "Reduced checkout latency by 30ms")
	if err != nil {
		t.Fatalf("AnswerQuestion() error = %v", err)
	}
	if updated.Confidence != memory.ConfidenceHigh || updated.Inquiry.ClarificationQuestion() != "" {
		t.Errorf("answered entry = %+v", updated)
	}

	persisted := store.snap.Entries[0]
	if persisted.Confidence != memory.ConfidenceHigh {
		t.Error("answer not persisted")
	}
	if len(e.PendingQuestions()) != 0 {
		t.Error("question still pending after answer")
	}
}

func TestCapture_QuestionFailureStillStores(t *testing.T) {
	store := newMockStore()
	r := &mockReasoner{classify: classified("low"), questionErr: memory.ErrCollaboratorUnavailable}
	e := openEngine(t, store, r, nil)

	res, err := e.Capture(context.Background(), "worked on stuff")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if res.Status != StatusCaptured || len(store.snap.Entries) != 1 {
		t.Errorf("entry should be stored without a question: %+v", res)
	}
	if store.snap.Entries[0].Inquiry.State != memory.InquiryNone {
		t.Errorf("inquiry = %+v", store.snap.Entries[0].Inquiry)
	}
}

func TestScenario_OffTaskStoresNothing(t *testing.T) {
	store := newMockStore()
	r := &mockReasoner{classify: &llm.ClassifyResponse{
		IsOffTask:             boolPtr(true),
		DuplicateRiskDetected: boolPtr(false),
		RejectionMessage:      "Tell me about work you did instead.",
	}}
	e := openEngine(t, store, r, nil)

	_, err := e.Capture(context.Background(), "Write my appraisal now")
	var offTask *memory.OffTaskError
	if !errors.As(err, &offTask) || !errors.Is(err, memory.ErrUserInputRejected) {
		t.Fatalf("Capture() error = %v, want off-task rejection", err)
	}
	if offTask.Message == "" {
		t.Error("rejection message lost")
	}
	if store.saves != 0 || len(e.Entries()) != 0 {
		t.Error("off-task input must not produce an entry")
	}
}

func TestCapture_CollaboratorFailureCommitsNothing(t *testing.T) {
	store := newMockStore(storedEntry("a", time.Hour))
	r := &mockReasoner{classifyErr: memory.ErrSchemaViolation}
	e := openEngine(t, store, r, nil)

	if _, err := e.Capture(context.Background(), "shipped v2"); !errors.Is(err, memory.ErrSchemaViolation) {
		t.Fatalf("Capture() error = %v", err)
	}
	if store.saves != 0 || len(e.Entries()) != 1 {
		t.Error("failed capture changed state")
	}
}

func TestDuplicateDecisions(t *testing.T) {
	dup := classified("high")
	dup.DuplicateRiskDetected = boolPtr(true)
	dup.DuplicateOfID = "a"
	dup.DuplicateConfirmationQuestion = "Link to the CI entry or log as new?"
	dup.Skills = []string{"GitHub Actions"}
	dup.EvidenceLinks = []string{"https://github.com/acme/ci/pull/9"}

	t.Run("link", func(t *testing.T) {
		store := newMockStore(storedEntry("a", time.Hour))
		e := openEngine(t, store, &mockReasoner{classify: dup}, nil)

		res, err := e.Capture(context.Background(), "Fixed the CI again")
		if err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		if res.Status != StatusDuplicate || res.DuplicateOfID != "a" {
			t.Fatalf("capture result = %+v", res)
		}
		if len(store.snap.Entries) != 1 || store.snap.PendingCapture == nil {
			t.Fatal("draft must be parked, not stored")
		}
		if _, err := e.Capture(context.Background(), "another"); !errors.Is(err, memory.ErrPendingDecision) {
			t.Errorf("capture during pending decision error = %v", err)
		}

		res, err = e.ResolveDuplicate(context.Background(), DecisionLink)
		if err != nil {
			t.Fatalf("ResolveDuplicate() error = %v", err)
		}
		got := res.Entry
		if res.Status != StatusLinked || got.EntryID != "a" {
			t.Fatalf("link result = %+v", res)
		}
		if !slices.Contains(got.Skills, "Go") || !slices.Contains(got.Skills, "GitHub Actions") {
			t.Errorf("skills = %v", got.Skills)
		}
		if !slices.Contains(got.EvidenceLinks, "https://github.com/acme/ci/pull/9") {
			t.Errorf("evidence = %v", got.EvidenceLinks)
		}
		if got.Confidence != memory.ConfidenceHigh || got.RefinementState != memory.RefinementPending {
			t.Errorf("confidence %q refinement %q", got.Confidence, got.RefinementState)
		}
		if len(e.Entries()) != 1 || e.PendingCapture() != nil {
			t.Error("link should not add an entry and must clear the decision")
		}
	})

	t.Run("new", func(t *testing.T) {
		store := newMockStore(storedEntry("a", time.Hour))
		e := openEngine(t, store, &mockReasoner{classify: dup}, nil)
		if _, err := e.Capture(context.Background(), "Fixed the CI again"); err != nil {
			t.Fatal(err)
		}
		res, err := e.ResolveDuplicate(context.Background(), DecisionNew)
		if err != nil {
			t.Fatalf("ResolveDuplicate() error = %v", err)
		}
		if res.Status != StatusCaptured || len(e.Entries()) != 2 {
			t.Errorf("new result = %+v, entries %d", res, len(e.Entries()))
		}
	})

	t.Run("discard", func(t *testing.T) {
		store := newMockStore(storedEntry("a", time.Hour))
		e := openEngine(t, store, &mockReasoner{classify: dup}, nil)
		if _, err := e.Capture(context.Background(), "Fixed the CI again"); err != nil {
			t.Fatal(err)
		}
		if _, err := e.ResolveDuplicate(context.Background(), DecisionDiscard); err != nil {
			t.Fatal(err)
		}
		if len(e.Entries()) != 1 || e.PendingCapture() != nil {
			t.Error("discard should drop the draft")
		}
		if _, err := e.ResolveDuplicate(context.Background(), DecisionNew); !errors.Is(err, memory.ErrNoPendingDecision) {
			t.Errorf("second decision error = %v", err)
		}
	})
}

func TestAttachEvidence_UpdatesOneEntry(t *testing.T) {
	store := newMockStore(storedEntry("a", time.Hour), storedEntry("b", 2*time.Hour))
	score := 0.9
	r := &mockReasoner{attach: &llm.AttachResponse{
		MatchID: "b", IsMatch: boolPtr(true), SuggestedConfidence: "high", Reasoning: "PR matches", MatchScore: &score,
	}}
	e := openEngine(t, store, r, nil)

	art, _ := evidence.TextArtifact("https://github.com/acme/ci/pull/9")
	res, err := e.AttachEvidence(context.Background(), art)
	if err != nil {
		t.Fatalf("AttachEvidence() error = %v", err)
	}
	if res.Entry == nil || res.Entry.EntryID != "b" || res.Entry.Confidence != memory.ConfidenceHigh {
		t.Fatalf("attach result = %+v", res)
	}
	a, _ := e.Entry("a")
	if len(a.EvidenceLinks) != 0 || a.Confidence != memory.ConfidenceMedium {
		t.Error("unmatched entry changed")
	}

	// the same artifact again is reported and not saved
	saves := store.saves
	res, err = e.AttachEvidence(context.Background(), art)
	if err != nil {
		t.Fatalf("second AttachEvidence() error = %v", err)
	}
	if !res.AlreadyAttached || store.saves != saves {
		t.Errorf("already attached = %v, saves %d -> %d", res.AlreadyAttached, saves, store.saves)
	}
	b, _ := e.Entry("b")
	if len(b.EvidenceLinks) != 1 || len(b.AuditLog) != 1 {
		t.Errorf("entry b after re-attach = %+v", b)
	}
}

func TestReflect_PersistsAndAllOrNothing(t *testing.T) {
	store := newMockStore(storedEntry("a", time.Hour), storedEntry("b", 30*24*time.Hour))
	r := &mockReasoner{reflect: &llm.ReflectResponse{
		RefinedEntries:    []llm.RefinedEntry{{EntryID: "a", Category: "achievement", ImpactSummary: "Refined a", ConfidenceScore: "medium"}},
		ReflectionSummary: "Refined one entry.",
	}}
	e := openEngine(t, store, r, &mockEmbedder{})

	res, err := e.Reflect(context.Background())
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}
	if res.Analyzed != 1 {
		t.Errorf("analyzed = %d", res.Analyzed)
	}
	if store.snap.LastReflection == nil || store.snap.LastReflection.Summary != "Refined one entry." {
		t.Error("last reflection not persisted")
	}
	a, _ := e.Entry("a")
	if a.ImpactSummary != "Refined a" || a.RefinementState != memory.RefinementRefined {
		t.Errorf("entry a = %+v", a)
	}

	saves := store.saves
	r.reflectFn = func(*llm.ReflectRequest) (*llm.ReflectResponse, error) {
		return nil, memory.ErrCollaboratorUnavailable
	}
	before := e.Entries()
	if _, err := e.Reflect(context.Background()); !errors.Is(err, memory.ErrCollaboratorUnavailable) {
		t.Fatalf("Reflect() error = %v", err)
	}
	if store.saves != saves || len(e.Entries()) != len(before) || e.Entries()[0].ImpactSummary != before[0].ImpactSummary {
		t.Error("failed reflection changed state")
	}
}

func TestReflect_NothingToAnalyzeSkipsSave(t *testing.T) {
	store := newMockStore(storedEntry("old", 60*24*time.Hour))
	e := openEngine(t, store, &mockReasoner{}, nil)

	res, err := e.Reflect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary != reflection.NothingToAnalyze || store.saves != 0 {
		t.Errorf("summary %q saves %d", res.Summary, store.saves)
	}
}

func TestSaveFailureKeepsState(t *testing.T) {
	store := newMockStore(storedEntry("a", time.Hour))
	e := openEngine(t, store, &mockReasoner{classify: classified("high")}, nil)
	store.saveErr = errors.New("disk full")

	if _, err := e.Capture(context.Background(), "shipped v2"); err == nil {
		t.Fatal("expected save error")
	}
	if len(e.Entries()) != 1 {
		t.Error("in-memory state advanced despite failed save")
	}
}

func TestBusy(t *testing.T) {
	store := newMockStore()
	r := &mockReasoner{classify: classified("high"), block: make(chan struct{})}
	e := openEngine(t, store, r, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := e.Capture(context.Background(), "first")
		errc <- err
	}()

	// wait until the first capture holds the operation slot
	deadline := time.Now().Add(2 * time.Second)
	for e.op.TryLock() {
		e.op.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("first capture never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := e.Capture(context.Background(), "second"); !errors.Is(err, memory.ErrBusy) {
		t.Errorf("concurrent Capture() error = %v, want ErrBusy", err)
	}
	if err := e.Reset(context.Background()); !errors.Is(err, memory.ErrBusy) {
		t.Errorf("concurrent Reset() error = %v, want ErrBusy", err)
	}

	close(r.block)
	if err := <-errc; err != nil {
		t.Fatalf("first Capture() error = %v", err)
	}
	if len(e.Entries()) != 1 {
		t.Error("first capture not stored")
	}
}

func TestCaptureContext(t *testing.T) {
	var entries []memory.CareerEntry
	for i, id := range []string{"e1", "e2", "e3", "e4"} {
		entries = append(entries, storedEntry(id, time.Duration(i+1)*time.Hour))
	}
	store := newMockStore(entries...)
	store.similar = []memory.ScoredEntry{
		{Entry: entries[0], SimilarityScore: 0.99},
		{Entry: entries[3], SimilarityScore: 0.8},
	}
	r := &mockReasoner{classify: classified("high")}
	e, err := Open(context.Background(), Options{
		Store: store, Reasoner: r, Embedder: &mockEmbedder{}, RecentContext: 2,
		Clock: func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Capture(context.Background(), "new work"); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range r.lastExisting {
		ids = append(ids, c.ID)
	}
	if !slices.Equal(ids, []string{"e1", "e2", "e4"}) {
		t.Errorf("classifier context = %v, want recent e1 e2 plus similar e4", ids)
	}

	// embedding failures only narrow the context
	e.embedder = &mockEmbedder{err: errors.New("quota")}
	cc := e.buildCaptureContext(context.Background(), e.Entries(), "more work")
	if len(cc.Similar) != 0 || len(cc.Recent) != 2 {
		t.Errorf("context = %+v", cc)
	}
}

func TestStatsTimezoneReset(t *testing.T) {
	a := storedEntry("a", time.Hour)
	a.Confidence = memory.ConfidenceHigh
	a.EvidenceLinks = []string{"x"}
	b := storedEntry("b", 2*time.Hour)
	b.Category = memory.CategoryLearning
	b.Confidence = memory.ConfidenceLow
	b.Inquiry = memory.AwaitingClarification("Which?")
	store := newMockStore(a, b)
	e := openEngine(t, store, &mockReasoner{}, nil)

	s := e.Stats()
	if s.Total != 2 || s.ByCategory[memory.CategoryLearning] != 1 || s.PendingClarifications != 1 || s.WithEvidence != 1 || s.Unverified != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.AverageConfidence != 67 {
		t.Errorf("average confidence = %d, want 67", s.AverageConfidence)
	}

	if err := e.SetTimezone(context.Background(), "Not/AZone"); !errors.Is(err, memory.ErrUserInputRejected) {
		t.Errorf("SetTimezone() error = %v", err)
	}
	if err := e.SetTimezone(context.Background(), "UTC"); err != nil {
		t.Fatal(err)
	}

	if err := e.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(e.Entries()) != 0 || len(store.snap.Entries) != 0 {
		t.Error("reset left entries")
	}
	if e.Timezone() != "UTC" || store.snap.Timezone != "UTC" {
		t.Error("reset should keep the timezone preference")
	}
}
