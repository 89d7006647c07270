package chat

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize is 4KB (conservative default)
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize is the environment variable to override the default
	EnvMaxInputSize = "THREADGRAPH_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
	ErrEmptyInput    = errors.New("input is empty")
)

// SanitizeInput applies the default size limit (or EnvMaxInputSize) and strips
// control characters other than newline, tab and carriage return.
func SanitizeInput(input string) (string, error) {
	return sanitize(input, maxInputSize())
}

func sanitize(input string, limit int) (string, error) {
	if len(input) > limit {
		// Reject rather than truncate so the transcript never holds a partial message.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
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
	if !clean {
		var b strings.Builder
		b.Grow(len(input))
		for _, r := range input {
			if !unicode.IsControl(r) || isSafeControl(r) {
				b.WriteRune(r)
			}
		}
		input = b.String()
	}

	if strings.TrimSpace(input) == "" {
		return "", ErrEmptyInput
	}
	return input, nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func maxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
