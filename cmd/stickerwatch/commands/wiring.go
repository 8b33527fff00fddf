package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"stickerwatch/internal/catalog"
	"stickerwatch/internal/components/telemetry"
	"stickerwatch/internal/config"
	"stickerwatch/internal/journal"
	"stickerwatch/internal/platform/telegram"
	"stickerwatch/internal/store"
	"time"
)

const serviceName = "stickerwatch"

type environment struct {
	config config.Config
	tel    telemetry.API
	otel   telemetry.Otel
}

// setup loads the config and installs logging and telemetry. When allowMissing is set a
// missing config file means running on defaults.
func setup(ctx context.Context, allowMissing bool) (environment, error) {
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) && allowMissing {
		cfg, err = config.WithDefaults(config.Config{})
	}
	if err != nil {
		return environment{}, err
	}
	err = cfg.ValidateCatalog()
	if err != nil {
		return environment{}, err
	}

	telemetry.InitSlog(cfg.LogLevel)

	otel, err := telemetry.SetupOtel(ctx, serviceName, cfg.Telemetry)
	if err != nil {
		return environment{}, fmt.Errorf("setup otel: %w", err)
	}

	return environment{
		config: cfg,
		tel:    telemetry.SlogAPI{},
		otel:   otel,
	}, nil
}

func (e environment) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := e.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err.Error())
	}
}

func (e environment) catalog() *catalog.Client {
	return catalog.NewClient(catalog.Options{
		CollectionUrl:     e.config.Catalog.CollectionUrl,
		ShopUrl:           e.config.Catalog.ShopUrl,
		AuthUrl:           e.config.Catalog.AuthUrl,
		WebAppUrl:         e.config.Catalog.WebAppUrl,
		RequestsPerSecond: e.config.Catalog.RequestsPerSecond,
		CloudflareBypass:  e.config.Catalog.CloudflareBypass,
	}, e.tel)
}

func (e environment) credentials() *store.FileCredentials {
	return store.NewFileCredentials(e.config.State.CredentialPath)
}

func (e environment) cursor() *store.FileCursor {
	cursor := store.NewFileCursor(e.config.State.CursorPath)
	cursor.OnInvalid = func(contents string, err error) {
		e.tel.ReportWarning("state.cursor", fmt.Sprintf("ignoring cursor file contents %q", contents), err)
	}
	return cursor
}

// journal opens the configured journal, without one attempts are only logged.
func (e environment) journal(ctx context.Context) (journal.Journal, func(), error) {
	if e.config.State.JournalPath == "" {
		return journal.NopJournal{}, func() {}, nil
	}
	j, err := journal.Open(ctx, e.config.State.JournalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	return j, func() {
		err := j.Close()
		if err != nil {
			e.tel.ReportWarning("state.journal", err)
		}
	}, nil
}

func (e environment) runTelegram(ctx context.Context, fn func(ctx context.Context, client *telegram.Client) error) error {
	err := e.config.ValidateTelegram()
	if err != nil {
		return err
	}
	return telegram.Run(ctx, telegram.Options{
		ApiId:       e.config.Telegram.ApiId,
		ApiHash:     e.config.Telegram.ApiHash,
		SessionPath: e.config.Telegram.SessionPath,
		Phone:       e.config.Telegram.Phone,
		Password:    e.config.Telegram.Password,
		BotUsername: e.config.Telegram.BotUsername,
		WebAppUrl:   e.config.Catalog.WebAppUrl,
		Debug:       e.config.LogLevel == "debug",
	}, e.tel, fn)
}
