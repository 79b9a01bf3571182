package security

import (
	"regexp"
	"strings"

	apperrors "botwatch/internal/errors"
)

// Execution ids go into request paths, so they are restricted to a safe set.
var executionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_:-]{1,64}$`)

// ValidateExecutionID checks an execution id before it is placed in a URL.
func ValidateExecutionID(id string) error {
	if id == "" {
		return apperrors.NewValidationError("executionId", id, "execution id is required")
	}
	if !executionIDPattern.MatchString(id) {
		return apperrors.NewValidationError("executionId", id, "execution id contains invalid characters")
	}
	return nil
}

// ValidateInstrumentCode checks an instrument code before it is placed in a URL.
func ValidateInstrumentCode(code string) error {
	if code == "" || strings.ContainsAny(code, "/?#%\\") {
		return apperrors.NewValidationError("instrument", code, "invalid instrument code")
	}
	return nil
}

// SanitizeText removes control characters from server-provided text before
// it reaches the terminal.
func SanitizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
