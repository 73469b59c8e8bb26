// Package sanitize cleans inbound chat text before it reaches a flow.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/botaas/flowengine/pkg/domain"
)

// DefaultMaxInputSize matches the longest Telegram text message, in bytes of a
// single-byte script.
const DefaultMaxInputSize = 4096

var ErrInvalidUTF8 = errors.New("input contains invalid UTF-8 sequences")

// Input enforces the size limit, validates UTF-8 and strips control
// characters other than newline, tab and carriage return.
// A limit of zero or less selects DefaultMaxInputSize.
func Input(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	// Rejected rather than truncated so the branch taken never depends on a cut.
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", domain.ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
