package appraisal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
)

type mockReasoner struct {
	resp  *llm.AppraisalResponse
	err   error
	calls int
	last  *llm.AppraisalRequest
}

func (m *mockReasoner) SynthesizeAppraisal(ctx context.Context, req *llm.AppraisalRequest) (*llm.AppraisalResponse, error) {
	m.calls++
	m.last = req
	return m.resp, m.err
}

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func testEntries() []memory.CareerEntry {
	return []memory.CareerEntry{
		{EntryID: "v1", RawInput: "Cut p99 latency 30%", Category: memory.CategoryAchievement, ImpactSummary: "Cut p99 latency by 30%", Confidence: memory.ConfidenceHigh, Inquiry: memory.NoInquiry()},
		{EntryID: "s1", RawInput: "helped with migration", Category: memory.CategoryAchievement, ImpactSummary: "Helped with a migration", Confidence: memory.ConfidenceLow, Inquiry: memory.Skipped()},
		{EntryID: "q1", RawInput: "cache work", Category: memory.CategoryChallenge, ImpactSummary: "Worked on caching", Confidence: memory.ConfidenceLow, Inquiry: memory.AwaitingClarification("Which cache?")},
	}
}

func response(achievements ...llm.AchievementClaim) *llm.AppraisalResponse {
	return &llm.AppraisalResponse{
		ExecutiveSummary:    "Strong quarter on performance work.",
		KeyAchievements:     achievements,
		SkillsAndGrowth:     "Performance engineering.",
		AreasForDevelopment: []string{"Document migrations"},
		GapAnalysis:         "Few quantified outcomes.",
	}
}

func TestSynthesize_UnverifiedHandling(t *testing.T) {
	m := &mockReasoner{resp: response(
		llm.AchievementClaim{Narrative: "Reduced latency by 30%", EntryIDs: []string{"v1"}},
		llm.AchievementClaim{Narrative: "Led the database migration", EntryIDs: []string{"s1"}},
	)}
	entries := testEntries()
	before, _ := json.Marshal(entries)

	got, err := NewSynthesizer(m, nil).Synthesize(context.Background(), entries, now)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if len(got.KeyAchievements) != 1 || got.KeyAchievements[0].EntryIDs[0] != "v1" {
		t.Errorf("key achievements = %+v, want only the verified one", got.KeyAchievements)
	}
	if !strings.Contains(got.GapAnalysis, "Led the database migration") {
		t.Errorf("gap analysis should surface the demoted claim: %q", got.GapAnalysis)
	}
	if len(got.UnverifiedEntryIDs) != 2 {
		t.Errorf("unverified ids = %v, want s1 and q1", got.UnverifiedEntryIDs)
	}
	if !strings.Contains(got.GapAnalysis, "s1") || !strings.Contains(got.GapAnalysis, "q1") {
		t.Errorf("gap analysis should list unverified entries: %q", got.GapAnalysis)
	}
	if !got.GeneratedAt.Equal(now) {
		t.Errorf("generated at = %v", got.GeneratedAt)
	}

	// verified flags reach the collaborator
	for _, ec := range m.last.Entries {
		want := ec.ID == "v1"
		if ec.Verified == nil || *ec.Verified != want {
			t.Errorf("entry %s verified flag = %v, want %v", ec.ID, ec.Verified, want)
		}
	}

	after, _ := json.Marshal(entries)
	if string(before) != string(after) {
		t.Error("synthesis must not modify entries")
	}
}

func TestSynthesize_Regenerate(t *testing.T) {
	m := &mockReasoner{resp: response(llm.AchievementClaim{Narrative: "Latency", EntryIDs: []string{"v1", "s1"}})}
	s := NewSynthesizer(m, nil)

	first, err := s.Synthesize(context.Background(), testEntries(), now)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Synthesize(context.Background(), testEntries(), now)
	if err != nil {
		t.Fatal(err)
	}
	if first.GapAnalysis != second.GapAnalysis || len(first.KeyAchievements) != len(second.KeyAchievements) {
		t.Error("regenerating accumulated state")
	}
	if len(first.KeyAchievements) != 1 {
		t.Fatal("an achievement citing at least one verified entry is kept")
	}
	if ids := first.KeyAchievements[0].EntryIDs; len(ids) != 1 || ids[0] != "v1" {
		t.Errorf("kept achievement cites %v, want only the verified v1", ids)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries []memory.CareerEntry
		m       *mockReasoner
		wantErr error
	}{
		{"no entries", nil, &mockReasoner{}, memory.ErrUserInputRejected},
		{"unavailable", testEntries(), &mockReasoner{err: memory.ErrCollaboratorUnavailable}, memory.ErrCollaboratorUnavailable},
		{"nil reply", testEntries(), &mockReasoner{}, memory.ErrCollaboratorUnavailable},
		{"unknown entry", testEntries(), &mockReasoner{resp: response(llm.AchievementClaim{Narrative: "Invented", EntryIDs: []string{"nope"}})}, memory.ErrSchemaViolation},
		{"missing field", testEntries(), &mockReasoner{resp: &llm.AppraisalResponse{ExecutiveSummary: "x"}}, memory.ErrSchemaViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSynthesizer(tt.m, nil).Synthesize(context.Background(), tt.entries, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Synthesize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
