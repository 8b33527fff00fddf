// Package status periodically reports how far the monitor got and how the process is doing.
package status

import (
	"context"
	"runtime"
	"stickerwatch/internal/components/assert"
	"stickerwatch/internal/components/chrono"
	"stickerwatch/internal/components/telemetry"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("stickerwatch/status")

const report_status_cpu = "status.cpu"

type Options struct {
	// Cursor returns the highest collection id known to exist.
	Cursor func() int64
	// LastRefresh returns when the credential was last refreshed, nil when this process
	// does not refresh it.
	LastRefresh func() time.Time
	Time        chrono.TimeAPI
	// CPUPercent defaults to gopsutil's usage since the previous call.
	CPUPercent func(ctx context.Context) (float64, error)
}

// Snapshot is one heartbeat.
type Snapshot struct {
	Cursor int64
	// CredentialAge is negative when no refresh has happened (yet).
	CredentialAge time.Duration
	CPUPercent    float64
	AllocatedMB   int64
	Goroutines    int64
}

type Heartbeat struct {
	cursor      func() int64
	lastRefresh func() time.Time
	time        chrono.TimeAPI
	cpuPercent  func(ctx context.Context) (float64, error)
	tel         telemetry.API

	cursorGauge    metric.Int64Gauge
	credAgeGauge   metric.Float64Gauge
	cpuGauge       metric.Float64Gauge
	memoryGauge    metric.Int64Gauge
	goroutineGauge metric.Int64Gauge
}

func New(options Options, tel telemetry.API) (*Heartbeat, error) {
	assert.NotNil(options.Cursor)
	assert.NotNil(tel)

	if options.Time == nil {
		options.Time = chrono.NewStandardTime()
	}
	if options.CPUPercent == nil {
		options.CPUPercent = processorUsage
	}

	h := &Heartbeat{
		cursor:      options.Cursor,
		lastRefresh: options.LastRefresh,
		time:        options.Time,
		cpuPercent:  options.CPUPercent,
		tel:         telemetry.NewScopedAPI("status", tel),
	}

	var err error
	h.cursorGauge, err = meter.Int64Gauge("cursor", metric.WithDescription("The highest collection id known to exist."))
	if err != nil {
		return nil, err
	}
	h.credAgeGauge, err = meter.Float64Gauge("credential_age_seconds")
	if err != nil {
		return nil, err
	}
	h.cpuGauge, err = meter.Float64Gauge("cpu_usage")
	if err != nil {
		return nil, err
	}
	h.memoryGauge, err = meter.Int64Gauge("allocated_mb")
	if err != nil {
		return nil, err
	}
	h.goroutineGauge, err = meter.Int64Gauge("goroutine_count")
	if err != nil {
		return nil, err
	}
	return h, nil
}

func processorUsage(ctx context.Context) (float64, error) {
	usage, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(usage) == 0 {
		return 0, nil
	}
	return usage[0], nil
}

// Snapshot collects the current status.
func (h *Heartbeat) Snapshot(ctx context.Context) Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	out := Snapshot{
		Cursor:        h.cursor(),
		CredentialAge: -1,
		AllocatedMB:   int64(memStats.Alloc / 1_000_000),
		Goroutines:    int64(runtime.NumGoroutine()),
	}
	if h.lastRefresh != nil {
		last := h.lastRefresh()
		if !last.IsZero() {
			out.CredentialAge = h.time.Now().Sub(last)
		}
	}

	usage, err := h.cpuPercent(ctx)
	if err != nil {
		h.tel.ReportDebug(report_status_cpu, err)
	} else {
		out.CPUPercent = usage
	}
	return out
}

// Report records a snapshot as gauges and a log line.
func (h *Heartbeat) Report(ctx context.Context) Snapshot {
	snapshot := h.Snapshot(ctx)

	h.cursorGauge.Record(ctx, snapshot.Cursor)
	if snapshot.CredentialAge >= 0 {
		h.credAgeGauge.Record(ctx, snapshot.CredentialAge.Seconds())
	}
	h.cpuGauge.Record(ctx, snapshot.CPUPercent)
	h.memoryGauge.Record(ctx, snapshot.AllocatedMB)
	h.goroutineGauge.Record(ctx, snapshot.Goroutines)

	credentialAge := "unknown"
	if snapshot.CredentialAge >= 0 {
		credentialAge = snapshot.CredentialAge.Truncate(time.Second).String()
	}
	h.tel.ReportInfo(
		"heartbeat",
		"cursor", snapshot.Cursor,
		"credential_age", credentialAge,
		"cpu_percent", snapshot.CPUPercent,
		"allocated_mb", snapshot.AllocatedMB,
		"goroutines", snapshot.Goroutines,
	)
	return snapshot
}

// Schedule reports on every tick of the cron spec until ctx is done.
func (h *Heartbeat) Schedule(ctx context.Context, cron chrono.CronAPI, spec string) error {
	return cron.Cron(spec, func() {
		if ctx.Err() != nil {
			return
		}
		h.Report(ctx)
	})
}
