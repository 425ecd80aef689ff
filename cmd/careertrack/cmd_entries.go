package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easeaico/careertrack-agent/internal/tools"
)

func newCaptureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture [text...]",
		Short: "Log a work activity",
		Long: `Log a work activity in your own words. Without arguments the text is read
from stdin.

Example:
  careertrack capture "migrated the billing service to Go, p99 down 40%"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := argsOrStdin(cmd, args)
			if err != nil {
				return err
			}
			return runTool(cmd, func(ctx context.Context, h *tools.Handler) tools.ToolResult {
				return h.LogActivity(ctx, text)
			})
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "resolve link|new|discard",
		Short:     "Resolve a pending duplicate",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"link", "new", "discard"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, func(ctx context.Context, h *tools.Handler) tools.ToolResult {
				return h.ResolveDuplicate(ctx, args[0])
			})
		},
	}
}

func newAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <entry-id> [response...]",
		Short: "Answer an outstanding question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := argsOrStdin(cmd, args[1:])
			if err != nil {
				return err
			}
			return runTool(cmd, func(ctx context.Context, h *tools.Handler) tools.ToolResult {
				return h.AnswerQuestion(ctx, args[0], response)
			})
		},
	}
}

func newSkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip <entry-id>",
		Short: "Skip a clarification question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, func(ctx context.Context, h *tools.Handler) tools.ToolResult {
				return h.SkipQuestion(ctx, args[0])
			})
		},
	}
}

func newAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach [url-or-text]",
		Short: "Attach evidence to the best matching entry",
		Long: `Attach a URL, pasted text or a file as evidence. The best matching entry,
if any, gains the evidence link and a confidence step.

Examples:
  careertrack attach https://github.com/acme/billing/pull/812
  careertrack attach --file docs/postmortem.pdf`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			var content string
			if len(args) == 1 {
				content = args[0]
			}
			if content == "" && file == "" {
				return errors.New("provide a URL, text or --file")
			}
			return runTool(cmd, func(ctx context.Context, h *tools.Handler) tools.ToolResult {
				return h.AttachEvidence(ctx, content, file)
			})
		},
	}
	cmd.Flags().String("file", "", "Path of a file under the working directory")
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			limit, _ := cmd.Flags().GetInt("limit")
			return runTool(cmd, func(_ context.Context, h *tools.Handler) tools.ToolResult {
				return h.ListEntries(category, limit)
			})
		},
	}
	cmd.Flags().String("category", "", "Filter by category (achievement, challenge, learning)")
	cmd.Flags().Int("limit", 20, "Maximum number of entries")
	return cmd
}

func newQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "Show questions waiting for an answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, func(_ context.Context, h *tools.Handler) tools.ToolResult {
				return h.PendingQuestions()
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Find entries similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runTool(cmd, func(ctx context.Context, h *tools.Handler) tools.ToolResult {
				return h.SearchMemory(ctx, strings.Join(args, " "), limit)
			})
		},
	}
	cmd.Flags().Int("limit", 5, "Maximum number of results")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, func(_ context.Context, h *tools.Handler) tools.ToolResult {
				return h.Stats()
			})
		},
	}
}

// argsOrStdin joins args, or reads stdin when there are none.
func argsOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no text given: pass it as arguments or on stdin")
	}
	return text, nil
}
