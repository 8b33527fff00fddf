// Package config holds the settings of every stickerwatch command.
package config

import (
	"errors"
	"fmt"
	"stickerwatch/internal/components/configutil"
	"stickerwatch/internal/components/telemetry"
	"time"

	"dario.cat/mergo"
)

type Catalog struct {
	CollectionUrl     string  `json:"collection_url"`
	ShopUrl           string  `json:"shop_url"`
	AuthUrl           string  `json:"auth_url"`
	WebAppUrl         string  `json:"web_app_url"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
}

type Telegram struct {
	ApiId       int    `json:"api_id"`
	ApiHash     string `json:"api_hash"`
	SessionPath string `json:"session_path"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	BotUsername string `json:"bot_username"`
}

type Monitor struct {
	PollIntervalSeconds int `json:"poll_interval_seconds"`
	PurchaseCount       int `json:"purchase_count"`
	CharacterId         int `json:"character_id"`
	AttemptDelayMs      int `json:"attempt_delay_ms"`
	// pointer so that an explicit false in the config survives the defaults merge.
	ForwardPaymentLinks *bool `json:"forward_payment_links"`
}

type Refresh struct {
	IntervalSeconds int `json:"interval_seconds"`
}

type State struct {
	CursorPath     string `json:"cursor_path"`
	CredentialPath string `json:"credential_path"`
	JournalPath    string `json:"journal_path"`
}

type Status struct {
	Cron string `json:"cron"`
}

type Config struct {
	Catalog   Catalog          `json:"catalog"`
	Telegram  Telegram         `json:"telegram"`
	Monitor   Monitor          `json:"monitor"`
	Refresh   Refresh          `json:"refresh"`
	State     State            `json:"state"`
	Status    Status           `json:"status"`
	LogLevel  string           `json:"log_level"`
	Telemetry telemetry.Config `json:"telemetry"`
}

var ErrInvalid = errors.New("invalid configuration")

func Defaults() Config {
	forward := true
	return Config{
		Catalog: Catalog{
			CollectionUrl:     "https://api.stickerdom.store/api/v1/collection",
			ShopUrl:           "https://api.stickerdom.store/api/v1/shop",
			AuthUrl:           "https://api.stickerdom.store/api/v1/auth",
			WebAppUrl:         "https://app.stickerdom.store/",
			RequestsPerSecond: 5,
		},
		Telegram: Telegram{
			SessionPath: "telegram.session.json",
			BotUsername: "sticker_bot",
		},
		Monitor: Monitor{
			PollIntervalSeconds: 5,
			PurchaseCount:       10,
			CharacterId:         2,
			AttemptDelayMs:      1000,
			ForwardPaymentLinks: &forward,
		},
		Refresh: Refresh{
			IntervalSeconds: 30 * 60,
		},
		State: State{
			CursorPath:     "last_sticker_id.txt",
			CredentialPath: "bearer_token.txt",
		},
		Status: Status{
			Cron: "@every 5m",
		},
		LogLevel: "info",
	}
}

// Load reads `name` (plus its local override) and fills everything left unset with Defaults.
func Load(name string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](name)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", name, err)
	}
	return WithDefaults(cfg)
}

func WithDefaults(cfg Config) (Config, error) {
	err := mergo.Merge(&cfg, Defaults())
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateCatalog checks the settings every command needs.
func (c Config) ValidateCatalog() error {
	var errs []error
	if c.Catalog.CollectionUrl == "" || c.Catalog.ShopUrl == "" || c.Catalog.AuthUrl == "" {
		errs = append(errs, fmt.Errorf("catalog urls must be set"))
	}
	if c.Catalog.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("catalog.requests_per_second must be positive"))
	}
	if c.Monitor.PollIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("monitor.poll_interval_seconds must be positive"))
	}
	if c.Monitor.PurchaseCount <= 0 {
		errs = append(errs, fmt.Errorf("monitor.purchase_count must be positive"))
	}
	if c.Monitor.AttemptDelayMs < 0 {
		errs = append(errs, fmt.Errorf("monitor.attempt_delay_ms must not be negative"))
	}
	if c.Refresh.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("refresh.interval_seconds must be positive"))
	}
	if c.State.CursorPath == "" || c.State.CredentialPath == "" {
		errs = append(errs, fmt.Errorf("state.cursor_path and state.credential_path must be set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ValidateTelegram checks the settings needed to open a telegram session.
func (c Config) ValidateTelegram() error {
	if c.Telegram.ApiId == 0 || c.Telegram.ApiHash == "" {
		return fmt.Errorf("%w: telegram.api_id and telegram.api_hash are required", ErrInvalid)
	}
	if c.Telegram.SessionPath == "" {
		return fmt.Errorf("%w: telegram.session_path must be set", ErrInvalid)
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalSeconds) * time.Second
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalSeconds) * time.Second
}

func (c Config) AttemptDelay() time.Duration {
	return time.Duration(c.Monitor.AttemptDelayMs) * time.Millisecond
}

func (c Config) ForwardPaymentLinks() bool {
	return c.Monitor.ForwardPaymentLinks == nil || *c.Monitor.ForwardPaymentLinks
}
