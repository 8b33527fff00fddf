// Package telegram implements the platform ports on top of a user account session
// using github.com/gotd/td.
package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"stickerwatch/internal/components/assert"
	"stickerwatch/internal/components/telemetry"
	"stickerwatch/internal/platform"
	"strings"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"
)

const (
	report_client_authorize    = "client.authorize"
	report_client_resolve_bot  = "client.resolve-bot"
	report_client_web_view     = "client.web-view"
	report_client_payment_form = "client.payment-form"
	report_client_pay_stars    = "client.pay-stars"
)

var ErrNotAuthorized = errors.New("telegram session is not authorized and no phone number is configured")

type Options struct {
	ApiId       int
	ApiHash     string
	SessionPath string
	// Phone and Password are only used when the session file holds no authorization yet.
	Phone    string
	Password string
	// BotUsername is the catalog's bot, with or without the leading @.
	BotUsername string
	WebAppUrl   string
	// CodePrompt returns the login code telegram sent, defaults to reading a line from stdin.
	CodePrompt func(ctx context.Context) (string, error)
	// Debug routes gotd's own logs to stderr.
	Debug bool
}

// Client is an authorized telegram session, it is only valid inside the callback given to Run.
type Client struct {
	api     *tg.Client
	sender  *message.Sender
	options Options
	tel     telemetry.API

	botMutex sync.Mutex
	bot      *tg.InputPeerUser
}

var _ platform.Platform = (*Client)(nil)

// Run connects to telegram, authorizes the session if needed and calls fn with the ready
// client. The connection is closed once fn returns or ctx is done.
func Run(ctx context.Context, options Options, tel telemetry.API, fn func(ctx context.Context, client *Client) error) error {
	assert.NotNil(tel)
	assert.NotEmptyStr(options.ApiHash)
	assert.NotEmptyStr(options.SessionPath)
	assert.NotEmptyStr(options.BotUsername)
	assert.NotEmptyStr(options.WebAppUrl)

	tel = telemetry.NewScopedAPI("telegram", tel)

	logger := zap.NewNop()
	if options.Debug {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync()
	}

	tgClient := telegram.NewClient(options.ApiId, options.ApiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: options.SessionPath},
		Logger:         logger,
	})

	return tgClient.Run(ctx, func(ctx context.Context) error {
		err := authorize(ctx, tgClient, options)
		if err != nil {
			tel.ReportBroken(report_client_authorize, err)
			return err
		}

		self, err := tgClient.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		tel.ReportInfo("authorized", "user", self.Username, "first_name", self.FirstName)

		api := tgClient.API()
		return fn(ctx, &Client{
			api:     api,
			sender:  message.NewSender(api),
			options: options,
			tel:     tel,
		})
	})
}

func authorize(ctx context.Context, tgClient *telegram.Client, options Options) error {
	status, err := tgClient.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		return nil
	}
	if options.Phone == "" {
		return ErrNotAuthorized
	}

	prompt := options.CodePrompt
	if prompt == nil {
		prompt = promptStdin
	}
	flow := auth.NewFlow(
		auth.Constant(
			options.Phone,
			options.Password,
			auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
				return prompt(ctx)
			}),
		),
		auth.SendCodeOptions{},
	)
	return tgClient.Auth().IfNecessary(ctx, flow)
}

func promptStdin(context.Context) (string, error) {
	fmt.Fprint(os.Stderr, "Enter the login code telegram sent you: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Client) resolveBot(ctx context.Context) (*tg.InputPeerUser, error) {
	c.botMutex.Lock()
	defer c.botMutex.Unlock()
	if c.bot != nil {
		return c.bot, nil
	}

	username := "@" + strings.TrimPrefix(c.options.BotUsername, "@")
	peer, err := c.sender.Resolve(username).AsInputPeer(ctx)
	if err != nil {
		c.tel.ReportBroken(report_client_resolve_bot, err, username)
		return nil, fmt.Errorf("resolve %s: %w", username, err)
	}
	user, ok := peer.(*tg.InputPeerUser)
	if !ok {
		err := fmt.Errorf("%s resolved to %T, not a user", username, peer)
		c.tel.ReportBroken(report_client_resolve_bot, err)
		return nil, err
	}
	c.bot = user
	return user, nil
}

// WebAppPayload opens the catalog's mini-app inside the bot chat and returns its init data.
func (c *Client) WebAppPayload(ctx context.Context) (string, error) {
	bot, err := c.resolveBot(ctx)
	if err != nil {
		return "", err
	}

	result, err := c.api.MessagesRequestWebView(ctx, &tg.MessagesRequestWebViewRequest{
		Peer:     bot,
		Bot:      &tg.InputUser{UserID: bot.UserID, AccessHash: bot.AccessHash},
		URL:      c.options.WebAppUrl,
		Platform: "web",
	})
	if err != nil {
		c.tel.ReportWarning(report_client_web_view, err)
		return "", fmt.Errorf("request web view: %w", err)
	}

	payload, err := extractWebAppData(result.URL)
	if err != nil {
		c.tel.ReportBroken(report_client_web_view, err, result.URL)
		return "", err
	}
	return payload, nil
}

// PaymentForm fetches the invoice behind a payment link slug.
func (c *Client) PaymentForm(ctx context.Context, slug string) (platform.PaymentForm, error) {
	res, err := c.api.PaymentsGetPaymentForm(ctx, &tg.PaymentsGetPaymentFormRequest{
		Invoice: &tg.InputInvoiceSlug{Slug: slug},
	})
	if err != nil {
		return platform.PaymentForm{}, fmt.Errorf("get payment form: %w", err)
	}

	switch form := res.(type) {
	case *tg.PaymentsPaymentFormStars:
		return platform.PaymentForm{
			ID:     form.FormID,
			Slug:   slug,
			Title:  form.Title,
			Amount: invoiceTotal(form.Invoice),
		}, nil
	case *tg.PaymentsPaymentForm:
		return platform.PaymentForm{
			ID:     form.FormID,
			Slug:   slug,
			Title:  form.Title,
			Amount: invoiceTotal(form.Invoice),
		}, nil
	default:
		err := fmt.Errorf("unsupported payment form %T", res)
		c.tel.ReportBroken(report_client_payment_form, err, slug)
		return platform.PaymentForm{}, err
	}
}

func invoiceTotal(invoice tg.Invoice) int64 {
	var total int64
	for _, price := range invoice.Prices {
		total += price.Amount
	}
	return total
}

// PayStars pays a fetched form with the account's Stars balance.
func (c *Client) PayStars(ctx context.Context, form platform.PaymentForm) error {
	_, err := c.api.PaymentsSendStarsForm(ctx, &tg.PaymentsSendStarsFormRequest{
		FormID:  form.ID,
		Invoice: &tg.InputInvoiceSlug{Slug: form.Slug},
	})
	if err == nil {
		return nil
	}
	if tgerr.Is(err, "BALANCE_TOO_LOW", "PAYMENT_FAILED") {
		return fmt.Errorf("%w: %w", platform.ErrInsufficientBalance, err)
	}
	c.tel.ReportDebug(report_client_pay_stars, form.Slug, err)
	return fmt.Errorf("send stars form: %w", err)
}

func (c *Client) SendSelf(ctx context.Context, text string) error {
	_, err := c.sender.Self().Text(ctx, text)
	return err
}
