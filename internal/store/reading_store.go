package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"wisefido-power/internal/models"
)

// ReadingStore single-slot, last-write-wins holder of the latest raw power value.
//
// Read returns ok=false when nothing well-formed has been written yet
// (missing, empty, negative or non-numeric content). err is reserved for
// faults other than "never written".
type ReadingStore interface {
	Write(ctx context.Context, raw string) error
	Read(ctx context.Context) (models.Reading, bool, error)
}

// FileReadingStore keeps the latest value in one small file, overwritten in place
// by rename so a reader never observes a partial value.
type FileReadingStore struct {
	path string
}

// NewFileReadingStore ensures the parent directory exists
func NewFileReadingStore(path string) (*FileReadingStore, error) {
	if path == "" {
		return nil, errors.New("reading store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reading store dir: %w", err)
	}
	return &FileReadingStore{path: path}, nil
}

// Path location of the slot file
func (s *FileReadingStore) Path() string { return s.path }

// Write replaces the current value atomically (temp file + rename)
func (s *FileReadingStore) Write(_ context.Context, raw string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp reading file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.WriteString(tmp, raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write reading: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp reading file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod reading file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to swap reading file: %w", err)
	}
	return nil
}

const maxReadingBytes = 64

// Read returns the current reading stamped with the file's modification time
func (s *FileReadingStore) Read(_ context.Context) (models.Reading, bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Reading{}, false, nil
		}
		return models.Reading{}, false, fmt.Errorf("failed to open reading file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.Reading{}, false, fmt.Errorf("failed to stat reading file: %w", err)
	}

	// the slot holds one short number; anything longer is not a reading
	raw, err := io.ReadAll(io.LimitReader(f, maxReadingBytes+1))
	if err != nil {
		return models.Reading{}, false, fmt.Errorf("failed to read reading file: %w", err)
	}
	if len(raw) > maxReadingBytes {
		return models.Reading{}, false, nil
	}

	r, ok := models.NewReading(string(raw), info.ModTime())
	return r, ok, nil
}
