package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RamXX/plansync/internal/lock"
	"github.com/RamXX/plansync/internal/model"
)

// document constrains the pointer type of a persisted kind.
type document[T any] interface {
	*T
	model.Document
}

// readDoc parses path, distinguishing absence from corruption.
func readDoc[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptDocumentError{Path: path, Err: err}
	}
	return &doc, nil
}

// loadDoc is readDoc with missing and corrupt files both reported as nil.
func loadDoc[T any](s *Store, path string) (*T, error) {
	doc, err := readDoc[T](path)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case IsCorrupt(err):
		s.logger.Warn("corrupt document treated as absent", "path", path, "err", err)
		return nil, nil
	}
	return nil, err
}

func saveDoc[T any, PT document[T]](ctx context.Context, s *Store, kind, key, path string, doc PT) error {
	if problems := doc.Validate(); len(problems) > 0 {
		return &ValidationError{Kind: kind, Key: key, Problems: problems}
	}
	return lock.With(ctx, s.locker, path, func() error {
		doc.Touch(s.now())
		return s.WriteJSON(path, doc)
	})
}

// updateDoc is the read-modify-write cycle: the authoritative copy is read
// after the lock is taken, so fn always sees the latest state.
func updateDoc[T any, PT document[T]](ctx context.Context, s *Store, kind, key, path string, fn func(PT) error) (PT, error) {
	var out PT
	err := lock.With(ctx, s.locker, path, func() error {
		raw, err := readDoc[T](path)
		if err != nil {
			return err
		}
		doc := PT(raw)
		if err := fn(doc); err != nil {
			return err
		}
		if problems := doc.Validate(); len(problems) > 0 {
			return &ValidationError{Kind: kind, Key: key, Problems: problems}
		}
		doc.Touch(s.now())
		if err := s.WriteJSON(path, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		var zero PT
		return zero, err
	}
	return out, nil
}

// WriteJSON writes v as indented JSON via temp file and rename. If the rename
// path fails the file is overwritten in place and the failure logged.
func (s *Store) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	if err := s.writeAtomic(path, bytes.NewReader(data)); err != nil {
		s.logger.Warn("atomic write failed, overwriting in place", "path", path, "err", err)
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			return fmt.Errorf("write %s: %w", path, werr)
		}
	}
	return nil
}
