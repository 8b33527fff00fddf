package commands

import (
	"context"
	"fmt"
	"os"
	"stickerwatch/internal/components/osutil"
	"stickerwatch/internal/platform/telegram"
	"stickerwatch/internal/purchase"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var buyCount *int

func init() {
	buyCount = buyCmd.Flags().Int("count", 0, "The amount of purchase attempts, defaults to monitor.purchase_count.")
	rootCmd.AddCommand(buyCmd)
}

var buyCmd = &cobra.Command{
	Use:   "buy <resource id> [character id] [--count <n>]",
	Short: "Runs a single purchase batch for a known collection.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resourceID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || resourceID <= 0 {
			return fmt.Errorf("invalid resource id %q", args[0])
		}

		interrupt := osutil.SignalContext(cmd.Context())

		env, err := setup(interrupt, false)
		if err != nil {
			return err
		}
		defer env.shutdown()

		characterID := env.config.Monitor.CharacterId
		if len(args) == 2 {
			characterID, err = strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid character id %q", args[1])
			}
		}
		count := env.config.Monitor.PurchaseCount
		if *buyCount > 0 {
			count = *buyCount
		}

		journal, closeJournal, err := env.journal(interrupt)
		if err != nil {
			return err
		}
		defer closeJournal()

		catalogClient := env.catalog()

		var batch purchase.Batch
		err = env.runTelegram(interrupt, func(ctx context.Context, client *telegram.Client) error {
			orchestrator, err := purchase.New(purchase.Options{
				Catalog:      catalogClient,
				Credentials:  env.credentials(),
				Payer:        client,
				CharacterID:  characterID,
				Delay:        env.config.AttemptDelay(),
				ForwardLinks: env.config.ForwardPaymentLinks(),
				Journal:      journal,
			}, env.tel)
			if err != nil {
				return err
			}
			batch, err = orchestrator.PurchaseBatch(ctx, resourceID, count)
			return err
		})

		printBatch(batch)
		if interrupt.Received() {
			return nil
		}
		return err
	},
}

func printBatch(batch purchase.Batch) {
	if len(batch.Attempts) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Outcome", "Payment url", "Detail"})
	for _, a := range batch.Attempts {
		detail := ""
		if a.Err != nil {
			detail = a.Err.Error()
		}
		t.AppendRow(table.Row{a.Index, a.Outcome.String(), a.PaymentURL, detail})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d submitted", batch.Count(purchase.OutcomeSubmitted), len(batch.Attempts))})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
