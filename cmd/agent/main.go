// Package main is the entry point for the CareerTrack conversational agent.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/template"
	"time"

	"github.com/easeaico/careertrack-agent/internal/app"
	"github.com/easeaico/careertrack-agent/internal/config"
	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
	"github.com/easeaico/careertrack-agent/internal/service"
	"github.com/easeaico/careertrack-agent/internal/tools"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/cmd/launcher"
	"google.golang.org/adk/cmd/launcher/full"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	llmAgent, err := newAgent(ctx, a)
	if err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}

	launchCfg := &launcher.Config{
		AgentLoader:   agent.NewSingleLoader(llmAgent),
		MemoryService: memory.NewService(a.Store, a.Client),
	}
	l := full.NewLauncher()
	if err := l.Execute(ctx, launchCfg, os.Args[1:]); err != nil {
		log.Fatalf("Failed to run agent: %v\n\n%s", err, l.CommandLineSyntax())
	}
}

// newAgent builds the LLM agent over the engine's tools.
func newAgent(ctx context.Context, a *app.App) (agent.Agent, error) {
	agentTools, err := tools.BuildTools(tools.ToolsConfig{
		Engine:  a.Engine,
		WorkDir: a.Config.WorkDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}

	modelName := a.Config.Model
	if modelName == "" {
		modelName = llm.DefaultModel
	}
	llmModel, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{
		APIKey:  a.Config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}

	llmAgent, err := llmagent.New(llmagent.Config{
		Name:        "careertrack",
		Description: "Keeps a running record of work achievements and turns it into appraisal material",
		Model:       llmModel,
		Instruction: buildSystemPrompt(a.Engine),
		Tools:       agentTools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	st := a.Engine.Stats()
	log.Printf("Agent initialized with %d entries, %d open questions", st.Total, st.PendingClarifications)
	return llmAgent, nil
}

var systemPromptTmpl = template.Must(template.New("systemPrompt").Funcs(template.FuncMap{"inc": inc}).Parse(`
You are CareerTrack, a career coach that keeps a factual record of the user's
work so that appraisal time is easy.

You can:
1. Log work activities the user mentions with log_activity
2. Ask and record answers to follow-up questions
3. Attach evidence such as PR links, documents or screenshots
4. Run a reflection over the last {{.WindowDays}} days and generate an appraisal

{{- if .Questions }}

These questions are still waiting for the user. Raise the first one when the
conversation allows:
{{- range $i, $q := .Questions }}
{{inc $i}}. [{{$q.EntryID}}] {{$q.Question}}
{{- end }}
{{- end }}

{{- if .PendingDuplicate }}

A logged activity looks like a duplicate and needs a decision first:
{{.PendingDuplicate}} Use resolve_duplicate with link, new or discard.
{{- end }}

When talking to the user:
- Log every concrete work activity, even small ones
- Never invent outcomes or metrics; ask instead
- Keep questions short, one at a time
- When something is off-topic, say so briefly and steer back to work
- The user's timezone is {{.Timezone}}; today is {{.Today}}
`))

// inc is a small helper for 1-based numbering.
func inc(i int) int { return i + 1 }

// buildSystemPrompt renders the instruction with the current open questions.
func buildSystemPrompt(e *service.Engine) string {
	data := struct {
		WindowDays       int
		Questions        []questionLine
		PendingDuplicate string
		Timezone         string
		Today            string
	}{
		WindowDays: e.WindowDays(),
		Timezone:   e.Timezone(),
		Today:      time.Now().Format("Monday, 2006-01-02"),
	}
	for _, q := range e.PendingQuestions() {
		data.Questions = append(data.Questions, questionLine{EntryID: q.EntryID, Question: q.Question})
	}
	if p := e.PendingCapture(); p != nil {
		data.PendingDuplicate = p.Question
	}

	var buf bytes.Buffer
	_ = systemPromptTmpl.Execute(&buf, data)
	return buf.String()
}

type questionLine struct {
	EntryID  string
	Question string
}
