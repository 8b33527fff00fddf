package commands

import (
	"context"
	"stickerwatch/internal/components/chrono"
	"stickerwatch/internal/components/osutil"
	"stickerwatch/internal/detector"
	"stickerwatch/internal/platform/telegram"
	"stickerwatch/internal/purchase"
	"stickerwatch/internal/refresher"
	"stickerwatch/internal/status"
	"time"

	"github.com/spf13/cobra"
)

var noRefresh *bool

func init() {
	noRefresh = monitorCmd.Flags().Bool(
		"no-refresh",
		false,
		"Do not refresh the bearer credential, another `stickerwatch refresh` process keeps the credential file fresh.",
	)
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor [--no-refresh]",
	Short: "Polls the catalog for new collections and fires a purchase batch for every one found.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interrupt := osutil.SignalContext(cmd.Context())

		env, err := setup(interrupt, false)
		if err != nil {
			return err
		}
		defer env.shutdown()

		journal, closeJournal, err := env.journal(interrupt)
		if err != nil {
			return err
		}
		defer closeJournal()

		catalogClient := env.catalog()
		credentials := env.credentials()
		cfg := env.config

		err = env.runTelegram(interrupt, func(ctx context.Context, client *telegram.Client) error {
			orchestrator, err := purchase.New(purchase.Options{
				Catalog:      catalogClient,
				Credentials:  credentials,
				Payer:        client,
				CharacterID:  cfg.Monitor.CharacterId,
				Delay:        cfg.AttemptDelay(),
				ForwardLinks: cfg.ForwardPaymentLinks(),
				Journal:      journal,
			}, env.tel)
			if err != nil {
				return err
			}

			watcher, err := detector.New(detector.Options{
				Catalog:      catalogClient,
				Credentials:  credentials,
				Cursor:       env.cursor(),
				Purchaser:    orchestrator,
				AttemptCount: cfg.Monitor.PurchaseCount,
				Backoff:      detector.FixedBackoff{Base: cfg.PollInterval()},
				Journal:      journal,
			}, env.tel)
			if err != nil {
				return err
			}

			var lastRefresh func() time.Time
			var refresh *refresher.Refresher
			if !*noRefresh {
				refresh, err = refresher.New(refresher.Options{
					Source:   client,
					Auth:     catalogClient,
					Store:    credentials,
					Interval: cfg.RefreshInterval(),
				}, env.tel)
				if err != nil {
					return err
				}
				lastRefresh = refresh.LastRefresh
			}

			heartbeat, err := status.New(status.Options{
				Cursor:      watcher.Cursor,
				LastRefresh: lastRefresh,
			}, env.tel)
			if err != nil {
				return err
			}
			err = heartbeat.Schedule(ctx, chrono.NewStandardCron(ctx, env.tel), cfg.Status.Cron)
			if err != nil {
				env.tel.ReportWarning("monitor.status", err)
			}

			background := []loop{}
			if refresh != nil {
				background = append(background, refresh)
			}
			return runLoops(ctx, watcher, background...)
		})
		if interrupt.Received() {
			env.tel.ReportInfo("interrupted, shutting down")
			return nil
		}
		return err
	},
}
