package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxKeyLength bounds incoming metadata keys. Batched keys are comma joined,
// so this allows a few hundred qualified ids per request.
const maxKeyLength = 8192

// ValidateKey validates a metadata key taken from a request path before it is
// handed to the identifier codec.
//
// The validation rules are intentionally conservative:
//   - No empty keys
//   - No control characters or null bytes
//   - No backslashes
//   - Maximum length of 8192 bytes
func ValidateKey(key string) error {
	if key == "" {
		return New(ErrCodeInvalidInput, "metadata key cannot be empty")
	}
	if len(key) > maxKeyLength {
		return New(ErrCodeInvalidInput, "metadata key too long (max %d bytes)", maxKeyLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "metadata key contains invalid control characters")
		}
	}
	if strings.Contains(key, "\\") {
		return New(ErrCodeInvalidInput, "metadata key contains invalid characters: %q", "\\")
	}
	return nil
}

var slugRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateSlug validates a source slug. Slugs prefix every qualified
// identifier, so they are restricted to lowercase letters, digits, '-' and '_'
// and never need percent-encoding.
func ValidateSlug(slug string) error {
	if slug == "" {
		return New(ErrCodeInvalidInput, "source slug cannot be empty")
	}
	if !slugRE.MatchString(slug) {
		return New(ErrCodeInvalidInput, "invalid source slug %q (allowed: a-z, 0-9, '-', '_')", slug)
	}
	return nil
}
