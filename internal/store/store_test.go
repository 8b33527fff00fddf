package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "last_sticker_id.txt")

	cursor := NewFileCursor(path)
	id, err := cursor.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(0), id)

	for _, value := range []int64{1, 42, 42, 1000} {
		err := cursor.Save(ctx, value)
		if err != nil {
			t.Fatal(err)
		}

		// a fresh store is what a restarted process sees.
		restarted := NewFileCursor(path)
		loaded, err := restarted.Load(ctx)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, value, loaded)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "1000\n", string(contents))
}

func TestCursorNeverRewinds(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cursor.txt")
	err := os.WriteFile(path, []byte("42"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	cursor := NewFileCursor(path)
	err = cursor.Save(ctx, 41)
	require.ErrorIs(t, err, ErrCursorRewind)

	loaded, err := NewFileCursor(path).Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(42), loaded)
}

func TestCursorInvalidContents(t *testing.T) {
	table := []string{"", "abc", "12.5", "-4", "  \n"}

	for _, contents := range table {
		path := filepath.Join(t.TempDir(), "cursor.txt")
		err := os.WriteFile(path, []byte(contents), 0600)
		if err != nil {
			t.Fatal(err)
		}

		invalid := 0
		cursor := NewFileCursor(path)
		cursor.OnInvalid = func(string, error) { invalid++ }

		id, err := cursor.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, int64(0), id, "contents %q", contents)
		require.Equal(t, 1, invalid, "contents %q", contents)
	}
}

func TestCursorTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.txt")
	err := os.WriteFile(path, []byte(" 17 \n"), 0600)
	if err != nil {
		t.Fatal(err)
	}
	id, err := NewFileCursor(path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(17), id)
}

func TestMemoryCredentials(t *testing.T) {
	ctx := context.Background()
	creds := NewMemoryCredentials()

	_, err := creds.Credential(ctx)
	require.ErrorIs(t, err, ErrNoCredential)
	require.Error(t, creds.SetCredential(ctx, ""))

	require.NoError(t, creds.SetCredential(ctx, "first"))
	require.NoError(t, creds.SetCredential(ctx, "second"))

	token, err := creds.Credential(ctx)
	require.NoError(t, err)
	require.Equal(t, "second", token)
}

func TestFileCredentials(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bearer_token.txt")

	creds := NewFileCredentials(path)
	_, err := creds.Credential(ctx)
	require.ErrorIs(t, err, ErrNoCredential)

	// written by another process before this one refreshed anything.
	err = os.WriteFile(path, []byte("external-token\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}
	token, err := creds.Credential(ctx)
	require.NoError(t, err)
	require.Equal(t, "external-token", token)

	require.NoError(t, creds.SetCredential(ctx, "own-token"))
	token, err = creds.Credential(ctx)
	require.NoError(t, err)
	require.Equal(t, "own-token", token)

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "own-token", string(contents))

	restarted := NewFileCredentials(path)
	token, err = restarted.Credential(ctx)
	require.NoError(t, err)
	require.Equal(t, "own-token", token)
}

func TestFileCredentialsConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	creds := NewFileCredentials(filepath.Join(t.TempDir(), "bearer_token.txt"))
	require.NoError(t, creds.SetCredential(ctx, "token-0"))

	valid := map[string]bool{}
	tokens := []string{}
	for i := 0; i < 20; i++ {
		token := "token-" + string(rune('a'+i))
		tokens = append(tokens, token)
		valid[token] = true
	}
	valid["token-0"] = true

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, token := range tokens {
			err := creds.SetCredential(ctx, token)
			if err != nil {
				t.Error(err)
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				token, err := creds.Credential(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				if !valid[token] {
					t.Errorf("torn read: %q", token)
				}
			}
		}()
	}
	wg.Wait()
}
