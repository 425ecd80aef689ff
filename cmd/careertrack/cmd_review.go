package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easeaico/careertrack-agent/internal/app"
	"github.com/easeaico/careertrack-agent/internal/tools"
)

func newReflectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reflect",
		Short: "Consolidate and refine recent entries",
		Long: `Run a reflection pass over the entries of the last reflection window
(7 days by default). Related entries are merged, answered questions are folded
in, and new follow-up questions are raised where evidence is still thin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, func(ctx context.Context, h *tools.Handler) tools.ToolResult {
				return h.Reflect(ctx)
			})
		},
	}
}

func newAppraiseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "appraise",
		Short: "Generate an appraisal summary from all entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, func(ctx context.Context, h *tools.Handler) tools.ToolResult {
				return h.Appraisal(ctx)
			})
		},
	}
}

func newTimezoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timezone [IANA-name]",
		Short: "Show or set the timezone used to date entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					if err := a.Engine.SetTimezone(ctx, args[0]); err != nil {
						return err
					}
				}
				tz := a.Engine.Timezone()
				if jsonOutput(cmd) {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"timezone": tz})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Timezone: %s\n", tz)
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every entry (irreversible)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("reset deletes all entries; rerun with --yes to confirm")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Engine.Reset(ctx); err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"status": "reset"})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Memory cleared.")
				return nil
			})
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm deletion")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the CareerTrack tools over MCP (stdio)",
		Long: `Start an MCP server that exposes the CareerTrack tools over stdin/stdout,
so editors and assistants can log activities and answer questions directly.

Example client configuration:

  {
    "mcpServers": {
      "careertrack": { "command": "careertrack", "args": ["mcp"] }
    }
  }
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Logger.Info("careertrack MCP server starting (stdio)")
				return tools.RunMCP(ctx, a.Engine, a.Config.WorkDir, version)
			})
		},
	}
}
