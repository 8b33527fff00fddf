// Package refresher keeps the catalog bearer credential fresh by periodically exchanging a
// new web-app payload for it.
package refresher

import (
	"context"
	"fmt"
	"stickerwatch/internal/components/assert"
	"stickerwatch/internal/components/chrono"
	"stickerwatch/internal/components/telemetry"
	"stickerwatch/internal/platform"
	"stickerwatch/internal/store"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("stickerwatch/refresher")
var meter = otel.Meter("stickerwatch/refresher")

const (
	report_refresher_cycle = "refresher.cycle"
	report_refresher_count = "refresher.refreshed"
)

// Authenticator exchanges a web-app payload for a bearer credential.
type Authenticator interface {
	Authenticate(ctx context.Context, payload string) (string, error)
}

type Options struct {
	Source   platform.WebAppSource
	Auth     Authenticator
	Store    store.CredentialWriter
	Interval time.Duration
	Time     chrono.TimeAPI
	Sleep    chrono.SleepAPI
}

type Refresher struct {
	source   platform.WebAppSource
	auth     Authenticator
	store    store.CredentialWriter
	interval time.Duration
	time     chrono.TimeAPI
	sleep    chrono.SleepAPI
	tel      telemetry.API

	refreshCounter metric.Int64Counter

	mutex       sync.Mutex
	lastRefresh time.Time
	refreshed   int64
}

func New(options Options, tel telemetry.API) (*Refresher, error) {
	assert.NotNil(options.Source)
	assert.NotNil(options.Auth)
	assert.NotNil(options.Store)
	assert.NotNil(tel)
	assert.Positive(options.Interval)

	if options.Time == nil {
		options.Time = chrono.NewStandardTime()
	}
	if options.Sleep == nil {
		options.Sleep = chrono.NewStandardTime()
	}

	refreshCounter, err := meter.Int64Counter(
		"refresher_refresh_total",
		metric.WithDescription("The total amount of times the bearer credential has been refreshed."),
	)
	if err != nil {
		return nil, err
	}

	return &Refresher{
		source:         options.Source,
		auth:           options.Auth,
		store:          options.Store,
		interval:       options.Interval,
		time:           options.Time,
		sleep:          options.Sleep,
		tel:            telemetry.NewScopedAPI("refresher", tel),
		refreshCounter: refreshCounter,
	}, nil
}

// RefreshCycle obtains a new payload, exchanges it for a credential and stores it.
func (r *Refresher) RefreshCycle(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "refresher:RefreshCycle")
	defer span.End()

	payload, err := r.source.WebAppPayload(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to obtain web-app payload")
		return fmt.Errorf("obtain web-app payload: %w", err)
	}

	token, err := r.auth.Authenticate(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to exchange payload for credential")
		return fmt.Errorf("authenticate: %w", err)
	}

	err = r.store.SetCredential(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store credential")
		return fmt.Errorf("store credential: %w", err)
	}

	r.refreshCounter.Add(ctx, 1)

	r.mutex.Lock()
	r.lastRefresh = r.time.Now()
	r.refreshed++
	refreshed := r.refreshed
	r.mutex.Unlock()

	r.tel.ReportInfo("bearer credential refreshed")
	r.tel.ReportCount(report_refresher_count, refreshed)
	return nil
}

// Run refreshes the credential every interval until ctx is done. A failed cycle never stops
// the loop, the previous credential stays in place until a later cycle succeeds.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		err := r.RefreshCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			r.tel.ReportWarning(report_refresher_cycle, err)
		}

		r.tel.ReportDebug("waiting for next refresh", r.interval.String())
		err = r.sleep.Sleep(ctx, r.interval)
		if err != nil {
			return nil
		}
	}
}

// LastRefresh returns when the credential was last refreshed, zero if it never was.
func (r *Refresher) LastRefresh() time.Time {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lastRefresh
}
