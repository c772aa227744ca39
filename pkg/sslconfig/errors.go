package sslconfig

import (
	"errors"
	"fmt"

	"github.com/cloudpki/tlsconfig/pkg/platform"
)

var (
	// ErrCertificateInvalid indicates an X.509 structural failure.
	ErrCertificateInvalid = errors.New("sslconfig: certificate invalid")

	// ErrTrustFailure indicates a peer chain did not validate against the
	// current trust material.
	ErrTrustFailure = errors.New("sslconfig: trust failure")

	// ErrHostnameMismatch is returned when post-connect hostname
	// verification fails; the socket has already been closed.
	ErrHostnameMismatch = errors.New("sslconfig: hostname mismatch")

	// ErrInvalidArgument indicates a configuration precondition breach:
	// unknown cipher/protocol name, negative timeout.
	ErrInvalidArgument = errors.New("sslconfig: invalid argument")

	// ErrPlatformFailure indicates the underlying TLS engine refused the
	// operation.
	ErrPlatformFailure = errors.New("sslconfig: platform failure")
)

// LateInitError tags a typed configuration failure that surfaced from a
// socket-producing call instead of from the mutator that caused it — the
// point past which, per §4.6/§4.8 of the state machine, a typed error
// becomes an "unchecked" one. The typed cause remains available through
// errors.Unwrap. It wraps platform.NewRuntimeException's result, which is
// §4.8's newRuntimeException(typed_error) operation itself.
type LateInitError struct {
	cause error
}

// NewLateInitError wraps cause, or returns nil if cause is nil.
func NewLateInitError(cause error) error {
	if cause == nil {
		return nil
	}
	return &LateInitError{cause: platform.NewRuntimeException(cause)}
}

func (e *LateInitError) Error() string {
	return fmt.Sprintf("sslconfig: late init failed: %v", e.cause)
}

func (e *LateInitError) Unwrap() error { return e.cause }

// IsLateInit reports whether err (or something it wraps) was produced by
// NewLateInitError.
func IsLateInit(err error) bool {
	var lie *LateInitError
	return errors.As(err, &lie)
}
