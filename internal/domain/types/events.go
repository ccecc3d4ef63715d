package types

// Event is the closed set of protocol events the transport can deliver to the
// verification subsystem. The duck-typed callbacks of the underlying library
// are mapped to these at the boundary and matched exhaustively, so an
// unhandled event kind fails loudly instead of silently no-oping.
type Event interface {
	verificationEvent()
}

// VerificationRequested is an inbound request to start a handshake with us.
type VerificationRequested struct {
	TransactionID TransactionID
	User          UserID
	Device        DeviceID
}

// VerificationKeyReceived carries the remote side's public key material.
type VerificationKeyReceived struct {
	TransactionID TransactionID
	// User and Device may correct an identity that was unresolved when the
	// request event arrived.
	User        UserID
	Device      DeviceID
	KeyMaterial KeyMaterial
}

// VerificationMacReceived carries the remote side's MAC over the handshake.
type VerificationMacReceived struct {
	TransactionID TransactionID
	Mac           []byte
}

// VerificationCancelled reports a remote cancel with its reason code.
type VerificationCancelled struct {
	TransactionID TransactionID
	Reason        string
}

func (VerificationRequested) verificationEvent()   {}
func (VerificationKeyReceived) verificationEvent() {}
func (VerificationMacReceived) verificationEvent() {}
func (VerificationCancelled) verificationEvent()   {}
