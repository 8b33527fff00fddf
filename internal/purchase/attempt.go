package purchase

import "fmt"

type Outcome int

const (
	// OutcomeSubmitted means a payment handle was acquired and the payment went through.
	OutcomeSubmitted Outcome = iota
	// OutcomeHandleMissing means the catalog did not issue a payment url.
	OutcomeHandleMissing
	// OutcomeSubmissionFailed means the platform refused the payment (low balance, expired invoice).
	OutcomeSubmissionFailed
	// OutcomeTransportError means the catalog could not be reached.
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeHandleMissing:
		return "handle-missing"
	case OutcomeSubmissionFailed:
		return "submission-failed"
	case OutcomeTransportError:
		return "transport-error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Attempt is the result of one purchase attempt within a batch.
type Attempt struct {
	ResourceID int64
	// Index is 1-based.
	Index   int
	Outcome Outcome
	// InsufficientBalance is only meaningful with OutcomeSubmissionFailed.
	InsufficientBalance bool
	PaymentURL          string
	Err                 error
}

// Batch is the result of PurchaseBatch.
type Batch struct {
	ResourceID int64
	Attempts   []Attempt
}

// Count returns how many attempts ended with the given outcome.
func (b Batch) Count(outcome Outcome) int {
	n := 0
	for _, a := range b.Attempts {
		if a.Outcome == outcome {
			n++
		}
	}
	return n
}
