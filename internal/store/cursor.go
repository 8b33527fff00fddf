package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

var ErrCursorRewind = errors.New("cursor cannot move backwards")

// CursorStore persists the highest resource id confirmed to exist.
type CursorStore interface {
	// Load returns the persisted cursor, 0 if nothing has been persisted.
	Load(ctx context.Context) (int64, error)
	// Save durably replaces the cursor, it never moves backwards.
	Save(ctx context.Context, id int64) error
}

// FileCursor stores the cursor as a single decimal line in a text file.
type FileCursor struct {
	path string
	// OnInvalid is called when the file exists but does not hold a number.
	OnInvalid func(contents string, err error)

	mutex sync.Mutex
	last  int64
	known bool
}

func NewFileCursor(path string) *FileCursor {
	return &FileCursor{path: path}
}

func (f *FileCursor) Path() string {
	return f.path
}

func (f *FileCursor) Load(context.Context) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	id, err := f.read()
	if err != nil {
		return 0, err
	}
	f.last = id
	f.known = true
	return id, nil
}

func (f *FileCursor) read() (int64, error) {
	contents, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor file: %w", err)
	}

	trimmed := strings.TrimSpace(string(contents))
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id < 0 {
		if err == nil {
			err = fmt.Errorf("negative cursor %d", id)
		}
		if f.OnInvalid != nil {
			f.OnInvalid(trimmed, err)
		}
		return 0, nil
	}
	return id, nil
}

func (f *FileCursor) Save(_ context.Context, id int64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.known {
		current, err := f.read()
		if err != nil {
			return err
		}
		f.last = current
		f.known = true
	}
	if id < f.last {
		return fmt.Errorf("%w: %d < %d", ErrCursorRewind, id, f.last)
	}

	err := writeFileAtomic(f.path, []byte(strconv.FormatInt(id, 10)+"\n"))
	if err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}
	f.last = id
	return nil
}
