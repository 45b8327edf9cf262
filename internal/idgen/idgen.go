package idgen

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxSlugLen = 48

// Slugify lowercases title and collapses every run of non-alphanumerics into
// a single dash. An empty result becomes "untitled".
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// UniqueSlug returns base if it is free, otherwise base-2, base-3, ...
// existsFn reports whether a candidate is taken.
func UniqueSlug(base string, existsFn func(string) bool) (string, error) {
	const maxRetries = 1000
	if existsFn == nil || !existsFn(base) {
		return base, nil
	}
	for n := 2; n < maxRetries; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !existsFn(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxRetries)
}

// NewID returns a prefixed random id such as "vision-3f2a9c1e".
func NewID(prefix string) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return short
	}
	return prefix + "-" + short
}

// SequentialID returns the first "prefix-N" (N from 0) that existsFn rejects.
func SequentialID(prefix string, existsFn func(string) bool) string {
	for n := 0; ; n++ {
		id := fmt.Sprintf("%s-%d", prefix, n)
		if existsFn == nil || !existsFn(id) {
			return id
		}
	}
}
