// Package errs holds the sentinel errors storage and commands mark their
// failures with, so callers can branch on them without importing a driver.
package errs

import (
	"fmt"

	cr "github.com/cockroachdb/errors"
)

var (
	ErrNotFound = cr.New("not found")
	// ErrConflict marks a write that lost a race or a state change the current
	// state does not allow.
	ErrConflict  = cr.New("conflict")
	ErrDuplicate = cr.New("duplicate")
	ErrInvalid   = cr.New("invalid")
)

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Mark(err error, mark error) error {
	if err == nil {
		return mark
	}
	return cr.Mark(err, mark)
}

func Is(err, target error) bool {
	return cr.Is(err, target)
}

// Public builds an error marked with mark whose message is safe to show to
// the caller. The message survives wrapping as a hint.
func Public(mark error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return cr.WithHint(cr.Mark(cr.New(msg), mark), msg)
}

// PublicMessage returns the caller-facing message attached by Public, or "".
func PublicMessage(err error) string {
	return cr.FlattenHints(err)
}
