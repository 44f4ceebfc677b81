package tracking

import (
	"errors"
	"fmt"
)

// TemporaryError marks a failure worth retrying later (network, 5xx).
type TemporaryError struct{ msg string }

func (e TemporaryError) Error() string   { return e.msg }
func (e TemporaryError) Temporary() bool { return true }

// PermanentError marks a rejection that retrying will not fix (4xx).
type PermanentError struct{ msg string }

func (e PermanentError) Error() string   { return e.msg }
func (e PermanentError) Permanent() bool { return true }

func NewTemporaryError(format string, args ...any) error {
	return TemporaryError{msg: fmt.Sprintf(format, args...)}
}

func NewPermanentError(format string, args ...any) error {
	return PermanentError{msg: fmt.Sprintf(format, args...)}
}

type permanentMarker interface{ Permanent() bool }

func isPermanent(err error) bool {
	var pm permanentMarker
	return errors.As(err, &pm) && pm.Permanent()
}
