package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var ErrNoCredential = errors.New("bearer credential has not been obtained yet")

// CredentialReader serves the current bearer credential (without the "Bearer " prefix).
type CredentialReader interface {
	Credential(ctx context.Context) (string, error)
}

// CredentialWriter replaces the current bearer credential.
type CredentialWriter interface {
	SetCredential(ctx context.Context, token string) error
}

type CredentialStore interface {
	CredentialReader
	CredentialWriter
}

// MemoryCredentials keeps the credential in process memory only.
type MemoryCredentials struct {
	mutex sync.RWMutex
	token string
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{}
}

func (m *MemoryCredentials) Credential(context.Context) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.token == "" {
		return "", ErrNoCredential
	}
	return m.token, nil
}

func (m *MemoryCredentials) SetCredential(_ context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("refusing to store an empty credential")
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.token = token
	return nil
}

// FileCredentials persists the credential to a file so it survives restarts and can be
// shared with another process running the refresher.
//
// Once this process has written a credential it is served from memory, before that the file
// is read on every call.
type FileCredentials struct {
	path   string
	cached MemoryCredentials
}

func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

func (f *FileCredentials) Path() string {
	return f.path
}

func (f *FileCredentials) Credential(ctx context.Context) (string, error) {
	token, err := f.cached.Credential(ctx)
	if err == nil {
		return token, nil
	}

	contents, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("read credential file: %w", err)
	}
	token = strings.TrimSpace(string(contents))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (f *FileCredentials) SetCredential(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("refusing to store an empty credential")
	}

	// holding the lock across the write keeps the file and the cached value in the same order.
	f.cached.mutex.Lock()
	defer f.cached.mutex.Unlock()

	err := writeFileAtomic(f.path, []byte(token))
	if err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	f.cached.token = token
	return nil
}
