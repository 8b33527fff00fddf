// Package detector finds newly published collections by probing sequential ids.
package detector

import (
	"context"
	"fmt"
	"stickerwatch/internal/catalog"
	"stickerwatch/internal/components/assert"
	"stickerwatch/internal/components/chrono"
	"stickerwatch/internal/components/telemetry"
	"stickerwatch/internal/journal"
	"stickerwatch/internal/purchase"
	"stickerwatch/internal/store"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("stickerwatch/detector")
var meter = otel.Meter("stickerwatch/detector")

const (
	report_detector_poll    = "detector.poll"
	report_detector_cursor  = "detector.cursor"
	report_detector_journal = "detector.journal"
	report_detector_batch   = "detector.batch"
)

// Catalog looks collections up by id.
type Catalog interface {
	Lookup(ctx context.Context, token string, id int64) (catalog.Response, error)
}

// Purchaser runs the purchase batch for a newly found collection.
type Purchaser interface {
	PurchaseBatch(ctx context.Context, resourceID int64, attemptCount int) (purchase.Batch, error)
}

type Options struct {
	Catalog     Catalog
	Credentials store.CredentialReader
	Cursor      store.CursorStore
	Purchaser   Purchaser
	// AttemptCount is the size of the purchase batch fired for every found collection.
	AttemptCount int
	Backoff      BackoffPolicy
	Sleep        chrono.SleepAPI
	Journal      journal.Journal
}

type Detector struct {
	catalog      Catalog
	credentials  store.CredentialReader
	cursorStore  store.CursorStore
	purchaser    Purchaser
	attemptCount int
	backoff      BackoffPolicy
	sleep        chrono.SleepAPI
	journal      journal.Journal
	tel          telemetry.API

	// cursor is only advanced by the goroutine running PollNext, it is atomic so that
	// the status heartbeat can read it.
	cursor atomic.Int64
	loaded bool

	pollCounter metric.Int64Counter
}

func New(options Options, tel telemetry.API) (*Detector, error) {
	assert.NotNil(options.Catalog)
	assert.NotNil(options.Credentials)
	assert.NotNil(options.Cursor)
	assert.NotNil(options.Purchaser)
	assert.NotNil(options.Backoff)
	assert.NotNil(tel)
	assert.Positive(options.AttemptCount)

	if options.Sleep == nil {
		options.Sleep = chrono.NewStandardTime()
	}
	if options.Journal == nil {
		options.Journal = journal.NopJournal{}
	}

	pollCounter, err := meter.Int64Counter(
		"detector_polls_total",
		metric.WithDescription("The total amount of catalog probes, by classification."),
	)
	if err != nil {
		return nil, err
	}

	return &Detector{
		catalog:      options.Catalog,
		credentials:  options.Credentials,
		cursorStore:  options.Cursor,
		purchaser:    options.Purchaser,
		attemptCount: options.AttemptCount,
		backoff:      options.Backoff,
		sleep:        options.Sleep,
		journal:      options.Journal,
		tel:          telemetry.NewScopedAPI("detector", tel),
		pollCounter:  pollCounter,
	}, nil
}

// Cursor returns the highest collection id known to exist.
func (d *Detector) Cursor() int64 {
	return d.cursor.Load()
}

// Load reads the persisted cursor, PollNext calls it on first use.
func (d *Detector) Load(ctx context.Context) error {
	cursor, err := d.cursorStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	d.cursor.Store(cursor)
	d.loaded = true
	d.tel.ReportInfo("starting check", "from_id", cursor+1)
	return nil
}

// PollNext probes the id right after the cursor. When the collection exists the cursor is
// durably advanced before its purchase batch runs, so a crash mid-batch never re-detects it.
func (d *Detector) PollNext(ctx context.Context) (CheckResult, error) {
	if !d.loaded {
		err := d.Load(ctx)
		if err != nil {
			return TransientError, err
		}
	}

	candidate := d.cursor.Load() + 1

	ctx, span := tracer.Start(ctx, "detector:PollNext")
	defer span.End()
	span.SetAttributes(attribute.Int64("candidate", candidate))

	result := d.probe(ctx, candidate)
	d.pollCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result.String())))
	span.SetAttributes(attribute.String("result", result.String()))
	if result != Found {
		return result, nil
	}

	d.tel.ReportInfo("found new collection", "id", candidate)

	err := d.cursorStore.Save(ctx, candidate)
	if err != nil {
		// without a durable cursor the batch could run twice after a restart.
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist cursor")
		d.tel.ReportBroken(report_detector_cursor, err, candidate)
		return TransientError, nil
	}
	d.cursor.Store(candidate)

	err = d.journal.RecordDetection(ctx, candidate)
	if err != nil {
		d.tel.ReportWarning(report_detector_journal, err)
	}

	batch, err := d.purchaser.PurchaseBatch(ctx, candidate, d.attemptCount)
	if err != nil {
		d.tel.ReportDebug(report_detector_batch, candidate, err)
	}
	d.tel.ReportInfo(
		"finished purchase attempts",
		"id", candidate,
		"attempts", len(batch.Attempts),
		"submitted", batch.Count(purchase.OutcomeSubmitted),
	)
	return Found, nil
}

func (d *Detector) probe(ctx context.Context, candidate int64) CheckResult {
	d.tel.ReportDebug("checking for collection", candidate)

	token, err := d.credentials.Credential(ctx)
	if err != nil {
		d.tel.ReportWarning(report_detector_poll, candidate, err)
		return TransientError
	}

	res, err := d.catalog.Lookup(ctx, token, candidate)
	result := classify(res, err)
	if result == TransientError && ctx.Err() == nil {
		if err != nil {
			d.tel.ReportWarning(report_detector_poll, candidate, err)
		} else {
			// the summary keeps the line readable, the body is for diagnosing what the catalog sent.
			d.tel.ReportWarning(
				report_detector_poll,
				candidate,
				fmt.Sprintf("status %d", res.StatusCode),
				catalog.Describe(res.Body),
				string(res.Body),
			)
		}
	}
	return result
}

// Run polls until ctx is done. Errors of a single iteration never end the loop, it returns
// nil once cancelled and an error only if the cursor could not be loaded at startup.
func (d *Detector) Run(ctx context.Context) error {
	err := d.Load(ctx)
	if err != nil {
		return err
	}

	for {
		result, err := d.PollNext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			d.tel.ReportWarning(report_detector_poll, err)
		}

		delay := d.backoff.Delay(result)
		if delay <= 0 {
			continue
		}
		if result == NotFound {
			d.tel.ReportDebug("not found, waiting", delay.String())
		} else {
			d.tel.ReportDebug("retrying after error, waiting", delay.String())
		}
		err = d.sleep.Sleep(ctx, delay)
		if err != nil {
			return nil
		}
	}
}
