package chrono

import (
	"context"
	"fmt"
	"stickerwatch/internal/components/telemetry"
	"strings"

	"github.com/robfig/cron/v3"
)

const report_cron_job = "cron.job"

// CronAPI schedules a callback on a cron expression or an `@every <duration>` descriptor.
type CronAPI interface {
	Cron(spec string, callback func()) error
}

// StandardCron runs jobs with github.com/robfig/cron/v3. A job still running when its next
// tick arrives is skipped, so a slow heartbeat never piles up.
type StandardCron struct {
	scheduler *cron.Cron
}

// NewStandardCron starts the scheduler, it stops (and waits for running jobs) once ctx is done.
func NewStandardCron(ctx context.Context, tel telemetry.API) StandardCron {
	logger := cronLogger{tel: telemetry.NewScopedAPI("chrono", tel)}
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	scheduler.Start()
	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()

	return StandardCron{scheduler: scheduler}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.scheduler.Schedule(schedule, cron.FuncJob(callback))
	return nil
}

// cronLogger forwards the scheduler's own logs, which are key/value pairs like slog's.
type cronLogger struct {
	tel telemetry.API
}

func joinPairs(keysAndValues []any) string {
	pairs := make([]string, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return strings.Join(pairs, " ")
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug("cron "+msg, joinPairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportWarning(report_cron_job, fmt.Errorf("%s: %w", msg, err), joinPairs(keysAndValues))
}
