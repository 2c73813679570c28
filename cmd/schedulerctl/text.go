package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/callback-scheduler/cmd/mainconfig"
	"github.com/wolfman30/callback-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/callback-scheduler/internal/intent"
	"github.com/wolfman30/callback-scheduler/internal/llm"
	"github.com/wolfman30/callback-scheduler/internal/temporal"
)

func newResolveCmd(e *env) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "resolve <text>",
		Short: "Resolve a date and time expression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if ref != "" {
				parsed, err := time.Parse(time.RFC3339, ref)
				if err != nil {
					return fmt.Errorf("invalid --ref: %w", err)
				}
				now = parsed
			}
			res := temporal.NewResolver(e.logger).Resolve(joinArgs(args), now)
			return writeJSON(cmd.OutOrStdout(), struct {
				temporal.Result
				Past bool `json:"past"`
			}{Result: res, Past: res.Complete() && temporal.IsPast(res, now)})
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "Reference instant (RFC3339); defaults to now.")
	return cmd
}

func newClassifyCmd(e *env) *cobra.Command {
	var (
		tag      string
		useModel bool
	)
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify a reply as positive, negative or neutral",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var model llm.Client
			if useModel {
				client, release, err := bootstrap.BuildTextModel(ctx, e.cfg, mainconfig.LoadAWSConfig, e.logger)
				if err != nil {
					return err
				}
				defer release()
				model = client
			}
			classifier, err := bootstrap.BuildClassifier(e.cfg, model, e.logger)
			if err != nil {
				return err
			}
			text := joinArgs(args)
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"sentiment": classifier.Classify(ctx, text, intent.ContextTag(tag)),
				"keywords":  intent.AnalyzeYesNoKeywords(text),
				"optOut":    intent.IsOptOut(text),
				"policy":    classifier.Policy(),
			})
		},
	}
	cmd.Flags().StringVar(&tag, "context", string(intent.General), "Question context: general or yes_no_question.")
	cmd.Flags().BoolVar(&useModel, "model", false, "Consult the configured text model.")
	return cmd
}

func newAnalyzeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <text>",
		Short: "Extract urgency, tone and other message features",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			features := intent.NewAnalyzer(e.logger).Analyze(cmd.Context(), joinArgs(args))
			return writeJSON(cmd.OutOrStdout(), features)
		},
	}
}
