// Package bugs detects, classifies, and deduplicates defects from
// validation reports.
package bugs

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Signature derives the deduplication key for a finding from its
// story, component, and normalized description. At most one open bug
// exists per signature.
func Signature(storyID, component, description string) string {
	key := storyID + "|" + component + "|" + normalizeDescription(description)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// normalizeDescription lowercases the description, replaces digit runs
// with a placeholder, and collapses whitespace. Line numbers, counts,
// and timings vary between runs of the same failure and must not
// produce distinct signatures.
func normalizeDescription(description string) string {
	var b strings.Builder
	b.Grow(len(description))

	lastSpace := false
	lastDigit := false
	for _, r := range strings.ToLower(description) {
		switch {
		case unicode.IsDigit(r):
			if !lastDigit {
				b.WriteByte('#')
			}
			lastDigit = true
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastSpace = true
			lastDigit = false
		default:
			b.WriteRune(r)
			lastSpace = false
			lastDigit = false
		}
	}
	return strings.TrimSpace(b.String())
}
