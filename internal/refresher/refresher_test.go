package refresher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"stickerwatch/internal/catalog"
	"stickerwatch/internal/components/chrono"
	"stickerwatch/internal/components/telemetry"
	"stickerwatch/internal/store"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mutex    sync.Mutex
	calls    int
	payloads []string
	errs     []error
}

func (f *fakeSource) WebAppPayload(context.Context) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.payloads) {
		return f.payloads[i], nil
	}
	return "payload", nil
}

type fakeAuth struct {
	tokens map[string]string
}

func (f fakeAuth) Authenticate(_ context.Context, payload string) (string, error) {
	token, ok := f.tokens[payload]
	if !ok {
		return "", catalog.ErrAuthRejected
	}
	return token, nil
}

func TestRefreshCycle(t *testing.T) {
	creds := store.NewMemoryCredentials()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r, err := New(Options{
		Source:   &fakeSource{payloads: []string{"p1"}},
		Auth:     fakeAuth{tokens: map[string]string{"p1": "token-1"}},
		Store:    creds,
		Interval: time.Minute,
		Time:     chrono.NewFakeTime(now),
		Sleep:    &chrono.FakeSleep{},
	}, telemetry.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}

	require.True(t, r.LastRefresh().IsZero())
	require.NoError(t, r.RefreshCycle(context.Background()))

	token, err := creds.Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-1", token)
	require.Equal(t, now, r.LastRefresh())
}

func TestRunSurvivesFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	creds := store.NewMemoryCredentials()
	require.NoError(t, creds.SetCredential(ctx, "stale"))

	source := &fakeSource{
		payloads: []string{"", "", "p3", "p4"},
		errs:     []error{errors.New("flood wait"), nil, nil, nil},
	}
	sleep := &chrono.FakeSleep{}
	tel := telemetry.NewRecorder()

	r, err := New(Options{
		Source: source,
		// "" (second cycle) is rejected by the catalog
		Auth:     fakeAuth{tokens: map[string]string{"p3": "token-3", "p4": "token-4"}},
		Store:    creds,
		Interval: time.Minute * 30,
		Sleep:    sleep,
	}, tel)
	if err != nil {
		t.Fatal(err)
	}

	observed := []string{}
	sleep.OnSleep = func(call int, d time.Duration) {
		token, _ := creds.Credential(ctx)
		observed = append(observed, token)
		if call == 4 {
			cancel()
		}
	}

	require.NoError(t, r.Run(ctx))

	// failed cycles leave the previous credential in place.
	require.Equal(t, []string{"stale", "stale", "token-3", "token-4"}, observed)
	require.Equal(t, []time.Duration{
		time.Minute * 30,
		time.Minute * 30,
		time.Minute * 30,
		time.Minute * 30,
	}, sleep.Calls())
	require.Len(t, tel.Matching(telemetry.KindWarning, report_refresher_cycle), 2)
}

func TestRefreshAgainstCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true, "data": "server-token"}`))
	}))
	defer server.Close()

	client := catalog.NewClient(catalog.Options{
		CollectionUrl:     server.URL + "/collection",
		ShopUrl:           server.URL + "/shop",
		AuthUrl:           server.URL + "/auth",
		WebAppUrl:         "https://app.example.test/",
		RequestsPerSecond: 100,
	}, telemetry.NewRecorder())

	creds := store.NewMemoryCredentials()
	r, err := New(Options{
		Source:   &fakeSource{},
		Auth:     client,
		Store:    creds,
		Interval: time.Minute,
	}, telemetry.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}

	require.NoError(t, r.RefreshCycle(context.Background()))
	token, err := creds.Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "server-token", token)
}
