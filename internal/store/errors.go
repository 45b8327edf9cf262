package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Read*/Update* when the document file is absent.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned when creating a document that is already on disk.
	ErrExists = errors.New("document already exists")
	// ErrNotInitialized means the root has no config.yaml.
	ErrNotInitialized = errors.New("plansync root not initialized")
)

// ValidationError lists every rule a document violates. Nothing is written
// when it is returned.
type ValidationError struct {
	Kind     string
	Key      string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Kind, e.Key, strings.Join(e.Problems, "; "))
}

// CorruptDocumentError means the file exists but does not parse.
type CorruptDocumentError struct {
	Path string
	Err  error
}

func (e *CorruptDocumentError) Error() string {
	return fmt.Sprintf("corrupt document %s: %v", e.Path, e.Err)
}

func (e *CorruptDocumentError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err carries a *CorruptDocumentError.
func IsCorrupt(err error) bool {
	var ce *CorruptDocumentError
	return errors.As(err, &ce)
}
