package purchase

import (
	"context"
	"errors"
	"fmt"
	"stickerwatch/internal/catalog"
	"stickerwatch/internal/components/chrono"
	"stickerwatch/internal/components/telemetry"
	"stickerwatch/internal/journal"
	"stickerwatch/internal/platform"
	"stickerwatch/internal/store"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type paymentRequest struct {
	token      string
	collection int64
	character  int
}

type fakeRequester struct {
	mutex    sync.Mutex
	requests []paymentRequest
	// answer decides the reply to the n-th request (starting at 1).
	answer func(n int) (string, error)
}

func (f *fakeRequester) RequestPaymentURL(_ context.Context, token string, collection int64, character int) (string, error) {
	f.mutex.Lock()
	f.requests = append(f.requests, paymentRequest{token: token, collection: collection, character: character})
	n := len(f.requests)
	f.mutex.Unlock()

	if f.answer == nil {
		return fmt.Sprintf("https://t.me/$invoice%d", n), nil
	}
	return f.answer(n)
}

type fakePayer struct {
	mutex    sync.Mutex
	forms    []string
	paid     []platform.PaymentForm
	messages []string
	// formErr is returned from PaymentForm for the slugs it names.
	formErr map[string]error
	// payErr is returned from every PayStars call.
	payErr error
	onPay  func(n int)
}

func (f *fakePayer) PaymentForm(_ context.Context, slug string) (platform.PaymentForm, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.forms = append(f.forms, slug)
	if err, ok := f.formErr[slug]; ok {
		return platform.PaymentForm{}, err
	}
	return platform.PaymentForm{ID: int64(len(f.forms)), Slug: slug, Amount: 1}, nil
}

func (f *fakePayer) PayStars(_ context.Context, form platform.PaymentForm) error {
	f.mutex.Lock()
	f.paid = append(f.paid, form)
	n := len(f.paid)
	f.mutex.Unlock()

	if f.onPay != nil {
		f.onPay(n)
	}
	return f.payErr
}

func (f *fakePayer) SendSelf(_ context.Context, text string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

type fixture struct {
	orchestrator *Orchestrator
	requester    *fakeRequester
	payer        *fakePayer
	credentials  *store.MemoryCredentials
	sleep        *chrono.FakeSleep
	tel          *telemetry.Recorder
}

func setup(t testing.TB, configure func(o *Options)) fixture {
	credentials := store.NewMemoryCredentials()
	err := credentials.SetCredential(context.Background(), "token-1")
	if err != nil {
		t.Fatal(err)
	}

	requester := &fakeRequester{}
	payer := &fakePayer{}
	sleep := &chrono.FakeSleep{}
	tel := telemetry.NewRecorder()

	options := Options{
		Catalog:     requester,
		Credentials: credentials,
		Payer:       payer,
		CharacterID: 2,
		Delay:       time.Second,
		Sleep:       sleep,
	}
	if configure != nil {
		configure(&options)
	}

	o, err := New(options, tel)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{
		orchestrator: o,
		requester:    requester,
		payer:        payer,
		credentials:  credentials,
		sleep:        sleep,
		tel:          tel,
	}
}

func outcomes(batch Batch) []Outcome {
	out := make([]Outcome, len(batch.Attempts))
	for i, a := range batch.Attempts {
		out[i] = a.Outcome
	}
	return out
}

func TestBatchSubmitsEveryAttempt(t *testing.T) {
	f := setup(t, nil)

	batch, err := f.orchestrator.PurchaseBatch(context.Background(), 42, 3)
	require.NoError(t, err)
	require.Equal(t, int64(42), batch.ResourceID)
	require.Equal(t, []Outcome{OutcomeSubmitted, OutcomeSubmitted, OutcomeSubmitted}, outcomes(batch))
	require.Equal(t, 3, batch.Count(OutcomeSubmitted))

	for i, a := range batch.Attempts {
		require.Equal(t, i+1, a.Index)
		require.NoError(t, a.Err)
	}
	require.Equal(t, []string{"invoice1", "invoice2", "invoice3"}, f.payer.forms)
	for _, req := range f.requester.requests {
		require.Equal(t, paymentRequest{token: "token-1", collection: 42, character: 2}, req)
	}

	// the delay is only waited between attempts.
	require.Equal(t, []time.Duration{time.Second, time.Second}, f.sleep.Calls())
}

func TestInsufficientBalanceCompletesBatch(t *testing.T) {
	f := setup(t, nil)
	f.payer.payErr = fmt.Errorf("send stars form: %w", platform.ErrInsufficientBalance)

	batch, err := f.orchestrator.PurchaseBatch(context.Background(), 42, 10)
	require.NoError(t, err)
	require.Len(t, batch.Attempts, 10)
	require.Equal(t, 10, batch.Count(OutcomeSubmissionFailed))
	for _, a := range batch.Attempts {
		require.True(t, a.InsufficientBalance)
		require.ErrorIs(t, a.Err, platform.ErrInsufficientBalance)
	}
	require.Len(t, f.sleep.Calls(), 9)

	// declined payments are logged apart from automation failures.
	require.Len(t, f.tel.Matching(telemetry.KindInfo, "payment declined"), 10)
	require.Empty(t, f.tel.Matching(telemetry.KindWarning, report_orchestrator_attempt))
}

func TestFailuresNeverShortenBatch(t *testing.T) {
	f := setup(t, nil)
	f.requester.answer = func(n int) (string, error) {
		switch n % 4 {
		case 1:
			return "", &catalog.TransportError{Err: errors.New("connection reset")}
		case 2:
			return "", fmt.Errorf("%w: sold out", catalog.ErrNoPaymentHandle)
		case 3:
			return "https://t.me/$", nil
		default:
			return "https://t.me/$paid", nil
		}
	}
	f.payer.payErr = errors.New("INVOICE_EXPIRED")

	batch, err := f.orchestrator.PurchaseBatch(context.Background(), 7, 8)
	require.NoError(t, err)
	require.Equal(t, []Outcome{
		OutcomeTransportError,
		OutcomeHandleMissing,
		OutcomeHandleMissing,
		OutcomeSubmissionFailed,
		OutcomeTransportError,
		OutcomeHandleMissing,
		OutcomeHandleMissing,
		OutcomeSubmissionFailed,
	}, outcomes(batch))
	require.False(t, batch.Attempts[3].InsufficientBalance)
	require.Len(t, f.requester.requests, 8)
	require.Len(t, f.tel.Matching(telemetry.KindWarning, report_orchestrator_attempt), 6)
}

func TestCredentialRefreshMidBatch(t *testing.T) {
	f := setup(t, nil)
	f.payer.onPay = func(n int) {
		if n == 2 {
			err := f.credentials.SetCredential(context.Background(), "token-2")
			if err != nil {
				panic(err)
			}
		}
	}

	_, err := f.orchestrator.PurchaseBatch(context.Background(), 1, 4)
	require.NoError(t, err)

	tokens := []string{}
	for _, req := range f.requester.requests {
		tokens = append(tokens, req.token)
	}
	require.Equal(t, []string{"token-1", "token-1", "token-2", "token-2"}, tokens)
}

func TestMissingCredential(t *testing.T) {
	f := setup(t, func(o *Options) {
		o.Credentials = store.NewMemoryCredentials()
	})

	batch, err := f.orchestrator.PurchaseBatch(context.Background(), 5, 3)
	require.NoError(t, err)
	require.Equal(t, 3, batch.Count(OutcomeHandleMissing))
	for _, a := range batch.Attempts {
		require.ErrorIs(t, a.Err, store.ErrNoCredential)
	}
	require.Empty(t, f.requester.requests)
}

func TestCancelEndsBatchEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := setup(t, nil)
	f.sleep.OnSleep = func(call int, _ time.Duration) {
		if call == 3 {
			cancel()
		}
	}

	batch, err := f.orchestrator.PurchaseBatch(ctx, 9, 10)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, batch.Attempts, 3)
	require.Equal(t, 3, batch.Count(OutcomeSubmitted))
}

func TestForwardLinks(t *testing.T) {
	f := setup(t, func(o *Options) {
		o.ForwardLinks = true
	})
	f.requester.answer = func(n int) (string, error) {
		if n == 2 {
			return "", catalog.ErrNoPaymentHandle
		}
		return fmt.Sprintf("https://t.me/$link%d", n), nil
	}

	_, err := f.orchestrator.PurchaseBatch(context.Background(), 3, 3)
	require.NoError(t, err)
	require.Len(t, f.payer.messages, 2)
	require.Contains(t, f.payer.messages[0], "https://t.me/$link1")
	require.Contains(t, f.payer.messages[1], "https://t.me/$link3")

	quiet := setup(t, nil)
	_, err = quiet.orchestrator.PurchaseBatch(context.Background(), 3, 3)
	require.NoError(t, err)
	require.Empty(t, quiet.payer.messages)
}

func TestAttemptsAreJournaled(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer j.Close()

	f := setup(t, func(o *Options) {
		o.Journal = j
	})
	f.payer.payErr = platform.ErrInsufficientBalance

	_, err = f.orchestrator.PurchaseBatch(ctx, 11, 2)
	require.NoError(t, err)

	records, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 2, records[0].Index)
	require.Equal(t, 1, records[1].Index)
	for _, r := range records {
		require.Equal(t, int64(11), r.ResourceID)
		require.Equal(t, OutcomeSubmissionFailed.String(), r.Outcome)
		require.True(t, r.InsufficientBalance)
		require.NotEmpty(t, r.PaymentURL)
	}
}

func TestUnfetchableInvoiceIsNotForwarded(t *testing.T) {
	f := setup(t, func(o *Options) {
		o.ForwardLinks = true
	})
	f.payer.formErr = map[string]error{"invoice2": errors.New("INVOICE_INVALID")}

	batch, err := f.orchestrator.PurchaseBatch(context.Background(), 4, 3)
	require.NoError(t, err)
	require.Equal(t, []Outcome{OutcomeSubmitted, OutcomeSubmissionFailed, OutcomeSubmitted}, outcomes(batch))
	require.False(t, batch.Attempts[1].InsufficientBalance)

	require.Len(t, f.payer.paid, 2)
	require.Len(t, f.payer.messages, 2)
	require.Contains(t, f.payer.messages[0], "https://t.me/$invoice1")
	require.Contains(t, f.payer.messages[1], "https://t.me/$invoice3")
}
