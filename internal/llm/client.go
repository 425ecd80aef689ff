package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/easeaico/careertrack-agent/internal/memory"
)

const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultProModel       = "gemini-2.5-pro"
	DefaultEmbeddingModel = "text-embedding-004"
)

// ClientConfig configures a Gemini-backed collaborator.
type ClientConfig struct {
	APIKey         string
	Model          string // classification, clarification, evidence and reflection
	ProModel       string // appraisal synthesis
	EmbeddingModel string
	Logger         *slog.Logger
}

// Client wraps the Google GenAI client and implements Reasoner and Embedder.
type Client struct {
	client         *genai.Client
	model          string
	proModel       string
	embeddingModel string
	logger         *slog.Logger
}

// NewClient creates a new collaborator client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := &Client{
		client:         client,
		model:          cfg.Model,
		proModel:       cfg.ProModel,
		embeddingModel: cfg.EmbeddingModel,
		logger:         cfg.Logger,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.proModel == "" {
		c.proModel = DefaultProModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Embed generates an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("no embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}

// generate sends one JSON-mode request and strictly decodes the reply into out.
func (c *Client) generate(ctx context.Context, task, model string, parts []*genai.Part, schema *genai.Schema, out validator) error {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", memory.ErrCollaboratorUnavailable, task, err)
	}

	if err := decodeStrict(resp.Text(), out); err != nil {
		c.logger.Warn("collaborator reply rejected", "task", task, "model", model, "error", err)
		return fmt.Errorf("%s: %w", task, err)
	}
	c.logger.Debug("collaborator reply accepted", "task", task, "model", model)
	return nil
}

func (c *Client) generateText(ctx context.Context, task, model, prompt string, schema *genai.Schema, out validator) error {
	return c.generate(ctx, task, model, []*genai.Part{genai.NewPartFromText(prompt)}, schema, out)
}

// ClassifyEntry implements Reasoner.
func (c *Client) ClassifyEntry(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error) {
	prompt, err := render(classifyPrompt, req)
	if err != nil {
		return nil, err
	}
	var out ClassifyResponse
	if err := c.generateText(ctx, "classify_entry", c.model, prompt, classifySchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestClarification implements Reasoner.
func (c *Client) RequestClarification(ctx context.Context, req *ClarificationRequest) (*ClarificationResponse, error) {
	prompt, err := render(clarificationPrompt, req)
	if err != nil {
		return nil, err
	}
	var out ClarificationResponse
	if err := c.generateText(ctx, "request_clarification", c.model, prompt, clarificationSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AttachEvidence implements Reasoner. Textual artifacts are inlined into the
// prompt; anything else is sent as an inline data part.
func (c *Client) AttachEvidence(ctx context.Context, req *AttachRequest) (*AttachResponse, error) {
	data := struct {
		Label    string
		MIMEType string
		Text     string
		Entries  []EntryContext
	}{Label: req.Label, MIMEType: req.MIMEType, Entries: req.Entries}

	inline := !isTextual(req.MIMEType, req.Content)
	if !inline {
		data.Text = string(req.Content)
	}

	prompt, err := render(attachPrompt, data)
	if err != nil {
		return nil, err
	}
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if inline {
		parts = append(parts, genai.NewPartFromBytes(req.Content, req.MIMEType))
	}

	var out AttachResponse
	if err := c.generate(ctx, "attach_evidence", c.model, parts, attachSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WeeklyReflect implements Reasoner.
func (c *Client) WeeklyReflect(ctx context.Context, req *ReflectRequest) (*ReflectResponse, error) {
	prompt, err := render(reflectPrompt, req)
	if err != nil {
		return nil, err
	}
	var out ReflectResponse
	if err := c.generateText(ctx, "weekly_reflect", c.model, prompt, reflectSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SynthesizeAppraisal implements Reasoner.
func (c *Client) SynthesizeAppraisal(ctx context.Context, req *AppraisalRequest) (*AppraisalResponse, error) {
	prompt, err := render(appraisalPrompt, req)
	if err != nil {
		return nil, err
	}
	var out AppraisalResponse
	if err := c.generateText(ctx, "synthesize_appraisal", c.proModel, prompt, appraisalSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func isTextual(mimeType string, content []byte) bool {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "text/"),
		strings.HasPrefix(mt, "application/json"),
		strings.HasPrefix(mt, "application/xml"),
		strings.HasPrefix(mt, "application/x-yaml"):
		return true
	case mt == "":
		return utf8.Valid(content)
	}
	return false
}

var (
	_ Reasoner = (*Client)(nil)
	_ Embedder = (*Client)(nil)
)
