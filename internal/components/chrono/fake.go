package chrono

import (
	"context"
	"sync"
	"time"
)

// FakeSleep is a SleepAPI that returns immediately and remembers every requested duration.
type FakeSleep struct {
	// OnSleep, if set, runs on every call with the number of calls so far (starting at 1).
	OnSleep func(call int, d time.Duration)

	mutex sync.Mutex
	calls []time.Duration
}

func (f *FakeSleep) Sleep(ctx context.Context, d time.Duration) error {
	f.mutex.Lock()
	f.calls = append(f.calls, d)
	call := len(f.calls)
	f.mutex.Unlock()

	if f.OnSleep != nil {
		f.OnSleep(call, d)
	}
	return ctx.Err()
}

func (f *FakeSleep) Calls() []time.Duration {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]time.Duration, len(f.calls))
	copy(out, f.calls)
	return out
}

// FakeTime is a TimeAPI frozen at a settable instant.
type FakeTime struct {
	mutex sync.Mutex
	now   time.Time
}

func NewFakeTime(now time.Time) *FakeTime {
	return &FakeTime{now: now}
}

func (f *FakeTime) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

func (f *FakeTime) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = f.now.Add(d)
}
