package domain

import (
	interfaces "trustkit/internal/domain/interfaces"
	types "trustkit/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID                  = types.UserID
	DeviceID                = types.DeviceID
	TransactionID           = types.TransactionID
	SessionID               = types.SessionID
	Role                    = types.Role
	State                   = types.State
	Symbol                  = types.Symbol
	ShortCode               = types.ShortCode
	VerificationTransaction = types.VerificationTransaction
	TrustMethod             = types.TrustMethod
	TrustRecord             = types.TrustRecord
	KeyMaterial             = types.KeyMaterial
	DeviceKeys              = types.DeviceKeys
	OneTimeKey              = types.OneTimeKey
	Event                   = types.Event
	VerificationRequested   = types.VerificationRequested
	VerificationKeyReceived = types.VerificationKeyReceived
	VerificationMacReceived = types.VerificationMacReceived
	VerificationCancelled   = types.VerificationCancelled
)

// Re-exported enum values for compact use at call sites.
const (
	Initiator = types.Initiator
	Responder = types.Responder

	Created        = types.Created
	KeyExchanged   = types.KeyExchanged
	ShortCodeReady = types.ShortCodeReady
	Confirmed      = types.Confirmed
	MacExchanged   = types.MacExchanged
	Done           = types.Done
	Cancelled      = types.Cancelled
	TimedOut       = types.TimedOut

	MethodSAS         = types.MethodSAS
	MethodQRCode      = types.MethodQRCode
	MethodFingerprint = types.MethodFingerprint
	MethodAutoTrusted = types.MethodAutoTrusted

	ShortCodeLen = types.ShortCodeLen
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Transport    = interfaces.Transport
	TrustStore   = interfaces.TrustStore
	Verifier     = interfaces.Verifier
	Bootstrapper = interfaces.Bootstrapper
)
