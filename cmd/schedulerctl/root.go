package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/callback-scheduler/cmd/mainconfig"
	appconfig "github.com/wolfman30/callback-scheduler/internal/config"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// env is filled in by the root command before any subcommand runs.
type env struct {
	cfg    *appconfig.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	cmd := &cobra.Command{
		Use:          "schedulerctl",
		Short:        "Inspect and exercise the callback scheduler",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			e.cfg = mainconfig.Load()
			level, _ := cmd.Flags().GetString("log-level")
			if level == "" {
				level = "error"
			}
			e.logger = logging.NewWithWriter(level, cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().String("log-level", "error", "Log level for diagnostics written to stderr.")

	cmd.AddCommand(newResolveCmd(e))
	cmd.AddCommand(newClassifyCmd(e))
	cmd.AddCommand(newAnalyzeCmd(e))
	cmd.AddCommand(newConflictsCmd(e))
	cmd.AddCommand(newSessionsCmd(e))
	cmd.AddCommand(newBookingsCmd(e))
	return cmd
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
