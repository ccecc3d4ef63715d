package verification

import (
	"errors"
	"fmt"

	"trustkit/internal/domain"
)

var (
	// ErrAlreadyPending indicates a live handshake already exists for the
	// device pair. Recoverable: reuse the existing transaction.
	ErrAlreadyPending = errors.New("a verification is already pending for this device")

	// ErrTransactionNotFound indicates the transaction id is unknown or the
	// transaction already reached a terminal state and was removed.
	ErrTransactionNotFound = errors.New("no such verification transaction")

	// ErrBadState guards transitions: the requested operation is not valid in
	// the transaction's current state.
	ErrBadState = errors.New("operation not valid in current transaction state")

	// ErrMacMismatch means the remote MAC failed verification. Fail-closed:
	// the transaction is cancelled, never completed.
	ErrMacMismatch = errors.New("remote MAC did not verify")

	// ErrDeviceUnknown means no key material is available for the device.
	// Not fatal: the session bootstrapper can resolve it.
	ErrDeviceUnknown = errors.New("no key material known for device")
)

// DeliveryError reports a transient transport failure while flushing an
// outgoing message. The caller decides whether to retry; nothing is retried
// automatically so a cancelled or stale transaction is never resurrected.
type DeliveryError struct {
	ID    domain.TransactionID
	State domain.State
	Err   error
}

// Error describes the failure with transaction context. Never includes key
// material.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed for transaction %s (state %s): %v", e.ID, e.State, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *DeliveryError) Unwrap() error { return e.Err }
