package commands

import (
	"fmt"
	"os"
	"stickerwatch/internal/journal"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().Int("limit", 50, "The maximum amount of attempts to print.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--limit <n>]",
	Short: "Prints the most recent purchase attempts recorded in the journal.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer env.shutdown()

		if env.config.State.JournalPath == "" {
			return fmt.Errorf("state.journal_path is not configured, nothing has been recorded")
		}
		j, err := journal.Open(cmd.Context(), env.config.State.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()

		detections, err := j.Detections(cmd.Context())
		if err != nil {
			return err
		}
		records, err := j.Recent(cmd.Context(), *historyLimit)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Collection", "#", "Outcome", "Low balance", "Detail"})
		for _, r := range records {
			t.AppendRow(table.Row{
				r.CreatedAt.Format(time.DateTime),
				r.ResourceID,
				r.Index,
				r.Outcome,
				r.InsufficientBalance,
				r.Detail,
			})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d detected", len(detections))})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
