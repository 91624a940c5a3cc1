// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package commitment

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTransport marks network or RPC failures. Retryable.
	ErrTransport = errors.New("transport failure")
	// ErrNotFound marks a snapshot that is not built yet. Retryable with backoff.
	ErrNotFound = errors.New("snapshot not found")
	// ErrMalformedData marks a backend payload violating the metadata contract.
	ErrMalformedData = errors.New("malformed snapshot metadata")
	// ErrConsistency marks disagreement between two observations of the same epoch.
	ErrConsistency = errors.New("epoch consistency violation")
	// ErrAuth marks a missing, malformed or unauthorized signing credential.
	ErrAuth = errors.New("credential error")
	// ErrRejected marks a domain error reported by the backend or a reverted
	// transaction. Not retryable without a change of external state.
	ErrRejected = errors.New("request rejected by backend")
	// ErrPollTimeout is returned when the snapshot never became available.
	ErrPollTimeout = errors.New("timed out waiting for snapshot")
)

// Transportf marks err as a transport failure. Both ErrTransport and err stay
// reachable through errors.Is and errors.As.
func Transportf(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, fmt.Sprintf(format, args...), err)
}

func Malformedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedData, format, args...)
}

func Inconsistentf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConsistency, format, args...)
}

func Authf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrAuth, format, args...)
}

// IsRetryable reports whether a later attempt may succeed without any change
// of external state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrNotFound)
}

// Phase names the step of a commitment that produced an error.
type Phase string

const (
	PhaseBuild   Phase = "build"
	PhaseFetch   Phase = "fetch"
	PhasePublish Phase = "publish"
	PhaseVerify  Phase = "verify"
)

// PhaseError carries enough context to diagnose a failed commitment from the
// error message alone.
type PhaseError struct {
	Epoch uint64
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("epoch %d: %s phase failed: %v", e.Epoch, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Kind returns the name of the taxonomy class err belongs to, for logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrMalformedData):
		return "malformed-data"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrPollTimeout):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
