package main

import (
	"errors"

	"github.com/absfs/encpack"
)

// Process exit codes
const (
	exitFailure   = 1
	exitUsage     = 2
	exitCorrupt   = 3
	exitAuth      = 4
	exitUnsafe    = 5
	exitIOFailure = 6
)

// exitError carries an explicit exit code
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps an error to the process exit code
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, encpack.ErrAuthFailed):
		return exitAuth
	case errors.Is(err, encpack.ErrPathEscape):
		return exitUnsafe
	case errors.Is(err, encpack.ErrNotAPackage),
		errors.Is(err, encpack.ErrTruncatedFile),
		errors.Is(err, encpack.ErrInvalidMetadata),
		errors.Is(err, encpack.ErrUnsupportedVersion):
		return exitCorrupt
	case errors.Is(err, encpack.ErrInvalidParameter),
		errors.Is(err, encpack.ErrUnsupportedCipher),
		errors.Is(err, errPasswordMismatch):
		return exitUsage
	case errors.Is(err, encpack.ErrIOFailure):
		return exitIOFailure
	default:
		return exitFailure
	}
}

// userError rewrites authentication failures so the message does not
// suggest which of the two causes applies
func userError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, encpack.ErrAuthFailed) {
		return &exitError{code: exitAuth, err: errors.New("wrong password or corrupted file")}
	}
	return err
}
