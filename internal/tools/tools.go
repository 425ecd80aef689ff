// Package tools exposes the career memory operations as agent tools. The same
// handlers back the ADK function tools and the MCP server.
package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/easeaico/careertrack-agent/internal/service"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

// ToolsConfig holds dependencies for creating tools.
type ToolsConfig struct {
	Engine  *service.Engine
	WorkDir string
}

// --- Tool Input Structs ---

// LogActivityArgs is the input for log_activity.
type LogActivityArgs struct {
	Text string `json:"text" jsonschema:"the work activity in the user's own words"`
}

// ResolveDuplicateArgs is the input for resolve_duplicate.
type ResolveDuplicateArgs struct {
	Decision string `json:"decision" jsonschema:"one of link, new or discard"`
}

// AnswerQuestionArgs is the input for answer_question.
type AnswerQuestionArgs struct {
	EntryID  string `json:"entry_id" jsonschema:"id of the entry the question belongs to"`
	Response string `json:"response" jsonschema:"the user's answer"`
}

// SkipQuestionArgs is the input for skip_question.
type SkipQuestionArgs struct {
	EntryID string `json:"entry_id" jsonschema:"id of the entry whose question is skipped"`
}

// AttachEvidenceArgs is the input for attach_evidence.
type AttachEvidenceArgs struct {
	Content string `json:"content,omitempty" jsonschema:"a URL or pasted text"`
	Path    string `json:"path,omitempty" jsonschema:"path of a file under the working directory"`
}

// ListEntriesArgs is the input for list_entries.
type ListEntriesArgs struct {
	Category string `json:"category,omitempty" jsonschema:"optional filter: achievement, challenge or learning"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of entries, default 20"`
}

// SearchMemoryArgs is the input for search_memory.
type SearchMemoryArgs struct {
	Query string `json:"query" jsonschema:"what to look for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// NoArgs is the input for tools without parameters.
type NoArgs struct{}

// --- Tool Definitions ---

// toolDef binds one handler method to both tool surfaces.
type toolDef struct {
	name        string
	description string
	adk         func(h *Handler) (tool.Tool, error)
	mcp         func(srv *mcp.Server, h *Handler)
}

func define[A any](name, description string, run func(h *Handler, ctx context.Context, args A) ToolResult) toolDef {
	return toolDef{
		name:        name,
		description: description,
		adk: func(h *Handler) (tool.Tool, error) {
			return functiontool.New(functiontool.Config{
				Name:        name,
				Description: description,
			}, func(ctx tool.Context, args A) (ToolResult, error) {
				return run(h, ctx, args), nil
			})
		},
		mcp: func(srv *mcp.Server, h *Handler) {
			mcp.AddTool(srv, &mcp.Tool{Name: name, Description: description},
				func(ctx context.Context, _ *mcp.CallToolRequest, args A) (*mcp.CallToolResult, any, error) {
					return toMCP(run(h, ctx, args))
				})
		},
	}
}

var toolDefs = []toolDef{
	define("log_activity",
		"Record a work activity the user describes. Returns the stored entry, a clarifying question, or a duplicate question that must be resolved with resolve_duplicate.",
		func(h *Handler, ctx context.Context, a LogActivityArgs) ToolResult {
			return h.LogActivity(ctx, a.Text)
		}),
	define("resolve_duplicate",
		"Resolve a pending duplicate: link merges into the existing entry, new stores a separate entry, discard drops the draft.",
		func(h *Handler, ctx context.Context, a ResolveDuplicateArgs) ToolResult {
			return h.ResolveDuplicate(ctx, a.Decision)
		}),
	define("answer_question",
		"Answer an outstanding clarification or reflection question for an entry.",
		func(h *Handler, ctx context.Context, a AnswerQuestionArgs) ToolResult {
			return h.AnswerQuestion(ctx, a.EntryID, a.Response)
		}),
	define("skip_question",
		"Skip an outstanding clarification question. The entry may be asked about again during reflection.",
		func(h *Handler, ctx context.Context, a SkipQuestionArgs) ToolResult {
			return h.SkipQuestion(ctx, a.EntryID)
		}),
	define("attach_evidence",
		"Attach a URL, pasted text or a file as evidence. It is linked to the best matching entry, if any.",
		func(h *Handler, ctx context.Context, a AttachEvidenceArgs) ToolResult {
			return h.AttachEvidence(ctx, a.Content, a.Path)
		}),
	define("run_reflection",
		"Review recent entries: merge duplicates, resolve answered questions and ask follow-ups. Returns a summary and change log.",
		func(h *Handler, ctx context.Context, _ NoArgs) ToolResult {
			return h.Reflect(ctx)
		}),
	define("generate_appraisal",
		"Generate a performance appraisal summary from all entries. Unverified entries are called out in the gap analysis.",
		func(h *Handler, ctx context.Context, _ NoArgs) ToolResult {
			return h.Appraisal(ctx)
		}),
	define("list_entries",
		"List the newest career entries, optionally filtered by category.",
		func(h *Handler, _ context.Context, a ListEntriesArgs) ToolResult {
			return h.ListEntries(a.Category, a.Limit)
		}),
	define("pending_questions",
		"List questions waiting for the user and any pending duplicate decision.",
		func(h *Handler, _ context.Context, _ NoArgs) ToolResult {
			return h.PendingQuestions()
		}),
	define("memory_stats",
		"Summarize the memory: entry counts, confidence and open questions.",
		func(h *Handler, _ context.Context, _ NoArgs) ToolResult {
			return h.Stats()
		}),
	define("search_memory",
		"Find past entries similar to a query.",
		func(h *Handler, ctx context.Context, a SearchMemoryArgs) ToolResult {
			return h.SearchMemory(ctx, a.Query, a.Limit)
		}),
}

// BuildTools creates all agent tools with the given configuration.
func BuildTools(cfg ToolsConfig) ([]tool.Tool, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	h := NewHandler(cfg.Engine, cfg.WorkDir)

	tools := make([]tool.Tool, 0, len(toolDefs))
	for _, def := range toolDefs {
		t, err := def.adk(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tool: %w", def.name, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}
