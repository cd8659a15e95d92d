package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicelead/calltrack/internal/analysis"
	"github.com/voicelead/calltrack/internal/store"
	"github.com/voicelead/calltrack/pkg/openai"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <call-sid>",
	Short: "Run post-call analysis for one call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateAnalysis(); err != nil {
			return err
		}

		st, err := store.NewPostgres(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		pipeline := analysis.NewPipeline(st, openai.NewClient(cfg.OpenAI.Key), cfg.OpenAI, cfg.Analysis)

		result, err := pipeline.Analyze(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("call:      %s\n", result.CallSID)
		fmt.Printf("sentiment: %s\n", result.Sentiment)
		if tag, ok := result.PrimaryTag(); ok {
			fmt.Printf("tag:       %s\n", tag)
		}
		fmt.Printf("fallback:  %t\n", result.Fallback)
		fmt.Printf("summary:   %s\n", result.Summary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
