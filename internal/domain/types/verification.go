package types

// Role says which side of the handshake we are. Fixed at creation.
type Role int

const (
	// Initiator started the handshake locally.
	Initiator Role = iota
	// Responder is answering a request from the remote device.
	Responder
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "unknown"
	}
}

// State is the position of a verification transaction in the SAS handshake.
type State int

const (
	// Created means the transaction exists but no key material has arrived.
	Created State = iota
	// KeyExchanged means the remote key was received; awaiting local accept.
	KeyExchanged
	// ShortCodeReady means the short authentication string can be displayed.
	ShortCodeReady
	// Confirmed means the local user attested the codes match; MAC was sent.
	Confirmed
	// MacExchanged means the remote MAC arrived and checked out.
	MacExchanged
	// Done is terminal success; a trust record has been written.
	Done
	// Cancelled is terminal failure: local reject, remote cancel, or mismatch.
	Cancelled
	// TimedOut is terminal: the transaction exceeded its maximum lifetime.
	TimedOut
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case KeyExchanged:
		return "key-exchanged"
	case ShortCodeReady:
		return "short-code-ready"
	case Confirmed:
		return "confirmed"
	case MacExchanged:
		return "mac-exchanged"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state the transaction cannot leave.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled || s == TimedOut
}

// ShortCodeLen is the number of display symbols in a short authentication
// string.
const ShortCodeLen = 7

// Symbol is one element of the short authentication string presented to the
// user for comparison.
type Symbol struct {
	Emoji string `json:"emoji"`
	Name  string `json:"name"`
}

// ShortCode is the ordered sequence of symbols both sides compare out of band.
type ShortCode [ShortCodeLen]Symbol

// String renders the code as "emoji (name)" pairs separated by spaces.
func (c ShortCode) String() string {
	out := ""
	for i, s := range c {
		if i > 0 {
			out += " "
		}
		out += s.Emoji + " (" + s.Name + ")"
	}
	return out
}

// VerificationTransaction is a read-only snapshot of one verification attempt.
type VerificationTransaction struct {
	TransactionID TransactionID `json:"transaction_id"`
	RemoteUser    UserID        `json:"remote_user"`
	RemoteDevice  DeviceID      `json:"remote_device"`
	Role          Role          `json:"role"`
	State         State         `json:"state"`
	ShortCode     ShortCode     `json:"short_code"`
	CreatedUTC    int64         `json:"created_utc"`
}
