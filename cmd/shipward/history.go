package main

import (
	"github.com/spf13/cobra"

	"github.com/artpar/shipward/internal/shell/output"
	"github.com/artpar/shipward/internal/shell/store"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded deployment runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.History.DSN)
		if err != nil {
			printer.FormatError(&output.CLIError{
				Summary:  "run history unavailable",
				Detail:   err.Error(),
				ExitCode: output.ExitUsageError,
			})
			return &exitError{code: output.ExitUsageError}
		}
		defer st.Close()

		recs, err := st.ListRuns(cmd.Context(), flagHistoryLimit)
		if err != nil {
			printer.FormatError(&output.CLIError{
				Summary:  "could not read run history",
				Detail:   err.Error(),
				ExitCode: output.ExitUsageError,
			})
			return &exitError{code: output.ExitUsageError}
		}

		printer.RenderRuns(recs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(historyCmd)
}
