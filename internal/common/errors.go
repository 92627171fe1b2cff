// Package common contains shared constants, sentinel errors and small
// helpers used across envault components.
package common

import (
	"errors"
	"fmt"
)

var (

	// repository specific errors
	ErrorNotFound = errors.New("not found")

	// ErrorDecryptionFailed covers every ciphertext/key mismatch: wrong
	// passphrase, wrong private key, truncated or corrupted data. Callers
	// must not be able to tell these apart.
	ErrorDecryptionFailed = errors.New("decryption failed")

	// key-setup specific errors
	ErrorAlreadyConfigured = errors.New("keys already configured")

	// ErrorConflict signals a lost race, e.g. a duplicate wrap insert or a
	// concurrently consumed invitation.
	ErrorConflict = errors.New("conflict")

	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	ErrInvalidToken = errors.New("invalid token")
)

// ExternalPushError reports a failed push of a single named secret to the
// external recipient. Pushes are never aggregated silently: callers get one
// error per secret name.
type ExternalPushError struct {
	Name   string
	Status int
	Err    error
}

func (e *ExternalPushError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("external push of %q failed: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("external push of %q failed: status %d", e.Name, e.Status)
}

func (e *ExternalPushError) Unwrap() error {
	return e.Err
}
