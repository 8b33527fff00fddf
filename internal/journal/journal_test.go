package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestJournal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	j, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	now := time.Unix(1_700_000_000, 0)
	j.now = func() time.Time { return now }

	require.NoError(t, j.RecordDetection(ctx, 42))
	require.NoError(t, j.RecordDetection(ctx, 42))
	require.NoError(t, j.RecordDetection(ctx, 43))

	require.NoError(t, j.RecordAttempt(ctx, AttemptRecord{
		ResourceID: 42,
		Index:      1,
		Outcome:    "transport-error",
		Detail:     "connection reset",
	}))
	require.NoError(t, j.RecordAttempt(ctx, AttemptRecord{
		ResourceID:          42,
		Index:               2,
		Outcome:             "submission-failed",
		InsufficientBalance: true,
		PaymentURL:          "https://t.me/$abc",
	}))

	detections, err := j.Detections(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{42, 43}, detections)

	recent, err := j.Recent(ctx, 10)
	require.NoError(t, err)

	expected := []AttemptRecord{
		{
			ResourceID:          42,
			Index:               2,
			Outcome:             "submission-failed",
			InsufficientBalance: true,
			PaymentURL:          "https://t.me/$abc",
			CreatedAt:           now,
		},
		{
			ResourceID: 42,
			Index:      1,
			Outcome:    "transport-error",
			Detail:     "connection reset",
			CreatedAt:  now,
		},
	}
	if diff := cmp.Diff(expected, recent); diff != "" {
		t.Fatalf("recent attempts mismatch (-want +got):\n%s", diff)
	}

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestJournalPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	require.NoError(t, j.RecordDetection(ctx, 7))
	require.NoError(t, j.Close())

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	detections, err := reopened.Detections(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, detections)
}
