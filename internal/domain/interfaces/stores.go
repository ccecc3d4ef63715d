package interfaces

import domaintypes "trustkit/internal/domain/types"

// TrustStore persists completed verifications across restarts.
//
// Writes are append-only. Re-verifying a device supersedes the old record
// rather than deleting it, so the full history stays available for audit.
// Reads are safe for concurrent callers.
type TrustStore interface {
	Record(rec domaintypes.TrustRecord) error
	IsVerified(user domaintypes.UserID, device domaintypes.DeviceID) (bool, error)
	// ListVerified returns the newest non-superseded record per device.
	ListVerified() ([]domaintypes.TrustRecord, error)
	// History returns every record ever written for the device, oldest first.
	History(user domaintypes.UserID, device domaintypes.DeviceID) ([]domaintypes.TrustRecord, error)
}
