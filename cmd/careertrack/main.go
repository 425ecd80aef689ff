// Command careertrack logs work activities, refines them over time and
// produces appraisal summaries from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/easeaico/careertrack-agent/internal/app"
	"github.com/easeaico/careertrack-agent/internal/config"
	"github.com/easeaico/careertrack-agent/internal/tools"
)

var version = "0.1.0-dev"

// openApp is replaced in tests.
var openApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app.Open(ctx, cfg)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "careertrack",
		Short: "CareerTrack - a running record of your work for appraisal time",
		Long: `careertrack captures work activities as you go, asks short follow-up
questions, links evidence, and consolidates everything into an appraisal
summary when review season comes.

Configuration is read from ~/.careertrack/config.yaml (or CAREERTRACK_CONFIG)
and environment variables such as GOOGLE_API_KEY and DATABASE_URL.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newCaptureCmd(),
		newResolveCmd(),
		newAnswerCmd(),
		newSkipCmd(),
		newAttachCmd(),
		newListCmd(),
		newQuestionsCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newReflectCmd(),
		newAppraiseCmd(),
		newTimezoneCmd(),
		newResetCmd(),
		newMCPCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput(cmd) {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "careertrack version %s\n", version)
			}
		},
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// withApp opens the application for one command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// runTool runs one tool handler and prints its result.
func runTool(cmd *cobra.Command, fn func(ctx context.Context, h *tools.Handler) tools.ToolResult) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		h := tools.NewHandler(a.Engine, a.Config.WorkDir)
		return writeResult(cmd, fn(ctx, h))
	})
}

func writeResult(cmd *cobra.Command, res tools.ToolResult) error {
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if !res.Success {
			return errors.New(res.Error)
		}
		return nil
	}

	if !res.Success {
		if res.Guidance != "" {
			return fmt.Errorf("%s\n%s", res.Error, res.Guidance)
		}
		return errors.New(res.Error)
	}
	render(out, res.Data)
	return nil
}
