package tools

import (
	"fmt"
	"strings"
)

// Outcome prefixes. Callers outside this module only understand these
// strings, so every operation result starts with exactly one of them.
const (
	ErrorPrefix   = "Error:"
	WarningPrefix = "Warning:"
	SuccessPrefix = "Success:"
)

// ErrorOutcome renders err as an outcome string.
func ErrorOutcome(err error) string {
	return ErrorPrefix + " " + err.Error()
}

// Errorf formats an outcome string carrying the error prefix.
func Errorf(format string, args ...any) string {
	return ErrorPrefix + " " + fmt.Sprintf(format, args...)
}

// CreatedOutcome is the result of a successful creation.
func CreatedOutcome(name string) string {
	return fmt.Sprintf("%s tool '%s' created.", SuccessPrefix, name)
}

// ExistsOutcome is the non-error result of creating a name that is taken.
func ExistsOutcome(name string) string {
	return fmt.Sprintf("%s tool '%s' already exists; creation skipped.", WarningPrefix, name)
}

// IsError reports whether an outcome string signals failure.
func IsError(outcome string) bool {
	return strings.HasPrefix(outcome, ErrorPrefix)
}
