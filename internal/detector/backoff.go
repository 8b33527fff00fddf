package detector

import "time"

// CheckResult is the classification of one catalog probe.
type CheckResult int

const (
	Found CheckResult = iota
	NotFound
	TransientError
)

func (r CheckResult) String() string {
	switch r {
	case Found:
		return "found"
	case NotFound:
		return "not-found"
	case TransientError:
		return "transient-error"
	default:
		return "unknown"
	}
}

// BackoffPolicy decides how long to wait before the next probe.
type BackoffPolicy interface {
	Delay(result CheckResult) time.Duration
}

// FixedBackoff polls again right away after a find, waits Base after a miss and
// twice Base after an error.
type FixedBackoff struct {
	Base time.Duration
}

func (b FixedBackoff) Delay(result CheckResult) time.Duration {
	switch result {
	case Found:
		return 0
	case NotFound:
		return b.Base
	default:
		return b.Base * 2
	}
}
