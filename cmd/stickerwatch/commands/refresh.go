package commands

import (
	"context"
	"stickerwatch/internal/components/osutil"
	"stickerwatch/internal/platform/telegram"
	"stickerwatch/internal/refresher"

	"github.com/spf13/cobra"
)

var refreshOnce *bool

func init() {
	refreshOnce = refreshCmd.Flags().Bool("once", false, "Refresh the credential a single time and exit.")
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [--once]",
	Short: "Keeps the bearer credential file fresh for monitors started with --no-refresh.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interrupt := osutil.SignalContext(cmd.Context())

		env, err := setup(interrupt, false)
		if err != nil {
			return err
		}
		defer env.shutdown()

		catalogClient := env.catalog()
		credentials := env.credentials()

		err = env.runTelegram(interrupt, func(ctx context.Context, client *telegram.Client) error {
			refresh, err := refresher.New(refresher.Options{
				Source:   client,
				Auth:     catalogClient,
				Store:    credentials,
				Interval: env.config.RefreshInterval(),
			}, env.tel)
			if err != nil {
				return err
			}

			if *refreshOnce {
				err := refresh.RefreshCycle(ctx)
				if err != nil {
					return err
				}
				env.tel.ReportInfo("credential written", "path", credentials.Path())
				return nil
			}
			return refresh.Run(ctx)
		})
		if interrupt.Received() {
			return nil
		}
		return err
	},
}
