// Package purchase runs the fixed-size batches of purchase attempts fired when a new
// collection shows up.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"stickerwatch/internal/catalog"
	"stickerwatch/internal/components/assert"
	"stickerwatch/internal/components/chrono"
	"stickerwatch/internal/components/telemetry"
	"stickerwatch/internal/journal"
	"stickerwatch/internal/platform"
	"stickerwatch/internal/store"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("stickerwatch/purchase")
var meter = otel.Meter("stickerwatch/purchase")

const (
	report_orchestrator_attempt = "orchestrator.attempt"
	report_orchestrator_forward = "orchestrator.forward-link"
	report_orchestrator_journal = "orchestrator.journal"
)

// PaymentRequester issues payment handles for a collection.
type PaymentRequester interface {
	RequestPaymentURL(ctx context.Context, token string, collection int64, character int) (string, error)
}

type Options struct {
	Catalog     PaymentRequester
	Credentials store.CredentialReader
	Payer       platform.Payer
	// CharacterID is the character bought with every attempt.
	CharacterID int
	// Delay is waited between two attempts.
	Delay time.Duration
	// ForwardLinks sends every acquired payment url to the account's Saved Messages.
	ForwardLinks bool
	Journal      journal.Journal
	Sleep        chrono.SleepAPI
}

type Orchestrator struct {
	catalog      PaymentRequester
	credentials  store.CredentialReader
	payer        platform.Payer
	characterID  int
	delay        time.Duration
	forwardLinks bool
	journal      journal.Journal
	sleep        chrono.SleepAPI
	tel          telemetry.API

	attemptCounter metric.Int64Counter
}

func New(options Options, tel telemetry.API) (*Orchestrator, error) {
	assert.NotNil(options.Catalog)
	assert.NotNil(options.Credentials)
	assert.NotNil(options.Payer)
	assert.NotNil(tel)

	if options.Journal == nil {
		options.Journal = journal.NopJournal{}
	}
	if options.Sleep == nil {
		options.Sleep = chrono.NewStandardTime()
	}

	attemptCounter, err := meter.Int64Counter(
		"purchase_attempts_total",
		metric.WithDescription("The total amount of purchase attempts, by outcome."),
	)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		catalog:        options.Catalog,
		credentials:    options.Credentials,
		payer:          options.Payer,
		characterID:    options.CharacterID,
		delay:          options.Delay,
		forwardLinks:   options.ForwardLinks,
		journal:        options.Journal,
		sleep:          options.Sleep,
		tel:            telemetry.NewScopedAPI("purchase", tel),
		attemptCounter: attemptCounter,
	}, nil
}

// PurchaseBatch fires exactly attemptCount sequential purchase attempts for a collection.
// The outcome of one attempt never affects whether the next one runs, only cancellation of ctx
// ends a batch early, in which case the attempts made so far are returned with ctx.Err().
func (o *Orchestrator) PurchaseBatch(ctx context.Context, resourceID int64, attemptCount int) (Batch, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:PurchaseBatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("resource_id", resourceID),
		attribute.Int("attempt_count", attemptCount),
	)

	batch := Batch{
		ResourceID: resourceID,
		Attempts:   make([]Attempt, 0, attemptCount),
	}
	for i := 1; i <= attemptCount; i++ {
		if i > 1 {
			err := o.sleep.Sleep(ctx, o.delay)
			if err != nil {
				span.SetStatus(codes.Error, "batch cancelled")
				return batch, err
			}
		}

		o.tel.ReportInfo("purchase attempt", "resource_id", resourceID, "attempt", fmt.Sprintf("%d/%d", i, attemptCount))
		attempt := o.attempt(ctx, resourceID, i)
		batch.Attempts = append(batch.Attempts, attempt)
		o.report(ctx, attempt, attemptCount)

		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "batch cancelled")
			return batch, ctx.Err()
		}
	}

	o.tel.ReportInfo(
		"purchase batch finished",
		"resource_id", resourceID,
		"submitted", batch.Count(OutcomeSubmitted),
		"attempts", len(batch.Attempts),
	)
	return batch, nil
}

func (o *Orchestrator) attempt(ctx context.Context, resourceID int64, index int) Attempt {
	attempt := Attempt{ResourceID: resourceID, Index: index}

	// read per attempt so a refresh in the middle of a batch is picked up.
	token, err := o.credentials.Credential(ctx)
	if err != nil {
		attempt.Outcome = OutcomeHandleMissing
		attempt.Err = fmt.Errorf("read credential: %w", err)
		return attempt
	}

	paymentURL, err := o.catalog.RequestPaymentURL(ctx, token, resourceID, o.characterID)
	if err != nil {
		attempt.Err = err
		attempt.Outcome = OutcomeHandleMissing
		if catalog.IsTransport(err) {
			attempt.Outcome = OutcomeTransportError
		}
		return attempt
	}
	attempt.PaymentURL = paymentURL

	slug, err := platform.InvoiceSlug(paymentURL)
	if err != nil {
		attempt.Outcome = OutcomeHandleMissing
		attempt.Err = err
		return attempt
	}

	form, err := o.payer.PaymentForm(ctx, slug)
	if err != nil {
		attempt.Outcome = OutcomeSubmissionFailed
		attempt.Err = err
		return attempt
	}

	attempt.Err = o.payer.PayStars(ctx, form)
	if attempt.Err != nil {
		attempt.Outcome = OutcomeSubmissionFailed
		attempt.InsufficientBalance = errors.Is(attempt.Err, platform.ErrInsufficientBalance)
	} else {
		attempt.Outcome = OutcomeSubmitted
	}

	// only links whose invoice could be fetched are worth paying by hand.
	if o.forwardLinks {
		err := o.payer.SendSelf(ctx, fmt.Sprintf("💳 Payment link for collection %d:\n%s", resourceID, paymentURL))
		if err != nil {
			o.tel.ReportDebug(report_orchestrator_forward, err)
		}
	}
	return attempt
}

func (o *Orchestrator) report(ctx context.Context, attempt Attempt, attemptCount int) {
	o.attemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", attempt.Outcome.String()),
	))

	err := o.journal.RecordAttempt(ctx, journal.AttemptRecord{
		ResourceID:          attempt.ResourceID,
		Index:               attempt.Index,
		Outcome:             attempt.Outcome.String(),
		InsufficientBalance: attempt.InsufficientBalance,
		PaymentURL:          attempt.PaymentURL,
		Detail:              errString(attempt.Err),
	})
	if err != nil {
		o.tel.ReportWarning(report_orchestrator_journal, err)
	}

	progress := fmt.Sprintf("%d/%d", attempt.Index, attemptCount)
	switch attempt.Outcome {
	case OutcomeSubmitted:
		o.tel.ReportInfo("payment submitted", "resource_id", attempt.ResourceID, "attempt", progress)
	case OutcomeSubmissionFailed:
		// the automation worked, the platform just declined to take the money.
		o.tel.ReportInfo(
			"payment declined",
			"resource_id", attempt.ResourceID,
			"attempt", progress,
			"insufficient_balance", attempt.InsufficientBalance,
			"err", attempt.Err,
		)
	default:
		o.tel.ReportWarning(
			report_orchestrator_attempt,
			attempt.Outcome.String(),
			attempt.ResourceID,
			progress,
			attempt.Err,
		)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
