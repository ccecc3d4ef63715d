package types

// UserID identifies an account on the homeserver.
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// DeviceID identifies one device belonging to a user.
type DeviceID string

// String returns the string form of the device id.
func (d DeviceID) String() string { return string(d) }

// TransactionID is the opaque id of one verification attempt, assigned by
// whichever side initiates.
type TransactionID string

// String returns the string form of the transaction id.
func (id TransactionID) String() string { return string(id) }

// SessionID identifies the encrypted session a room key belongs to.
type SessionID string

// String returns the string form of the session id.
func (id SessionID) String() string { return string(id) }
