package interfaces

import (
	"context"

	domaintypes "trustkit/internal/domain/types"
)

// Transport is how we talk to the encrypted messaging layer, all with context.
//
// The Send* methods only enqueue a to-device message on the outgoing queue;
// nothing reaches the wire until FlushOutgoing is called. Callers must flush
// after every state transition that produced a message.
type Transport interface {
	SendVerificationStart(
		ctx context.Context,
		user domaintypes.UserID,
		device domaintypes.DeviceID,
		id domaintypes.TransactionID,
	) error
	SendVerificationAccept(ctx context.Context, id domaintypes.TransactionID) error
	SendVerificationMac(ctx context.Context, id domaintypes.TransactionID, mac []byte) error
	SendVerificationCancel(ctx context.Context, id domaintypes.TransactionID, reason string) error
	FlushOutgoing(ctx context.Context) error

	// FetchEvents polls for inbound verification events, mapped to the
	// closed event union at this boundary.
	FetchEvents(ctx context.Context) ([]domaintypes.Event, error)

	QueryDeviceKeys(
		ctx context.Context,
		user domaintypes.UserID,
	) ([]domaintypes.DeviceKeys, error)
	ClaimOneTimeKey(
		ctx context.Context,
		user domaintypes.UserID,
		device domaintypes.DeviceID,
	) (domaintypes.OneTimeKey, error)
	RequestRoomKey(
		ctx context.Context,
		user domaintypes.UserID,
		device domaintypes.DeviceID,
		session domaintypes.SessionID,
	) error
}
