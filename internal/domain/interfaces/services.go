package interfaces

import (
	"context"

	domaintypes "trustkit/internal/domain/types"
)

// Verifier drives SAS verification handshakes and owns their state.
type Verifier interface {
	// ListPending returns snapshots of every non-terminal transaction.
	ListPending() []domaintypes.VerificationTransaction

	// Start opens an outbound handshake with a device we hold keys for.
	Start(
		ctx context.Context,
		user domaintypes.UserID,
		device domaintypes.DeviceID,
	) (domaintypes.TransactionID, error)

	// Accept moves an inbound handshake forward and returns the short code
	// to display.
	Accept(ctx context.Context, id domaintypes.TransactionID) (domaintypes.ShortCode, error)

	// Confirm attests that the displayed codes match. Never implicit: it must
	// come from a human decision or the unattended policy flag.
	Confirm(ctx context.Context, id domaintypes.TransactionID) error

	// Reject cancels a handshake. The transaction is terminal when this
	// returns; the outgoing cancel message is best effort.
	Reject(ctx context.Context, id domaintypes.TransactionID) error

	// AutoAcceptAll accepts and confirms every pending inbound request,
	// recording the results as auto-trusted.
	AutoAcceptAll(ctx context.Context) ([]domaintypes.TransactionID, error)

	// HandleEvent feeds one transport event through the state machines.
	HandleEvent(ctx context.Context, ev domaintypes.Event) error

	// IsTrusted reports whether the device completed verification.
	IsTrusted(user domaintypes.UserID, device domaintypes.DeviceID) (bool, error)
}

// Bootstrapper reacts to undecryptable traffic by establishing a session with
// the sending device so decryption and verification become possible.
type Bootstrapper interface {
	Bootstrap(
		ctx context.Context,
		user domaintypes.UserID,
		device domaintypes.DeviceID,
		session domaintypes.SessionID,
	) error
	// MarkEstablished clears the pending entry once a session exists.
	MarkEstablished(user domaintypes.UserID, device domaintypes.DeviceID)
}
