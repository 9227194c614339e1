package room

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxBodyBytes is the maximum encoded size of a message body.
	MaxBodyBytes = 4096

	// MaxBodyChars is the maximum character count of a message body.
	MaxBodyChars = 2000
)

// ValidateBody checks that a candidate message body meets content
// requirements before any moderation work is done. Invalid bodies never
// reach the moderation engine and leave no ledger record.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("message body is empty")
	}
	if len(body) > MaxBodyBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxBodyBytes)
	}
	if utf8.RuneCountInString(body) > MaxBodyChars {
		return fmt.Errorf("message exceeds %d character limit", MaxBodyChars)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
