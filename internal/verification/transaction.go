package verification

import (
	"crypto/hmac"
	"fmt"
	"sync"
	"time"

	"trustkit/internal/domain"
	"trustkit/internal/util/memzero"
)

// Transaction is one SAS handshake with a single remote device.
//
// All transitions are guarded by the current state and run under the
// transaction's lock, so a transition either happens completely or not at
// all. The zero value is not usable; construct with newTransaction via
// Tracker.Register.
type Transaction struct {
	id           domain.TransactionID
	remoteUser   domain.UserID
	remoteDevice domain.DeviceID
	role         domain.Role
	createdAt    time.Time

	mu          sync.Mutex
	state       domain.State
	keyMaterial domain.KeyMaterial
	shortCode   domain.ShortCode
	localMac    []byte
	method      domain.TrustMethod
}

func newTransaction(
	id domain.TransactionID,
	user domain.UserID,
	device domain.DeviceID,
	role domain.Role,
	now time.Time,
) *Transaction {
	return &Transaction{
		id:           id,
		remoteUser:   user,
		remoteDevice: device,
		role:         role,
		createdAt:    now,
		state:        domain.Created,
	}
}

// ID returns the transaction id.
func (t *Transaction) ID() domain.TransactionID { return t.id }

// Role returns which side of the handshake we are.
func (t *Transaction) Role() domain.Role { return t.role }

// Snapshot returns a read-only copy for display and listing.
func (t *Transaction) Snapshot() domain.VerificationTransaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.VerificationTransaction{
		TransactionID: t.id,
		RemoteUser:    t.remoteUser,
		RemoteDevice:  t.remoteDevice,
		Role:          t.role,
		State:         t.state,
		ShortCode:     t.shortCode,
		CreatedUTC:    t.createdAt.Unix(),
	}
}

// ReceiveKey stores the remote key material: Created -> KeyExchanged.
func (t *Transaction) ReceiveKey(material domain.KeyMaterial) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.Created {
		return t.badState("receive key")
	}
	t.keyMaterial = append(domain.KeyMaterial(nil), material...)
	t.state = domain.KeyExchanged
	return nil
}

// Accept derives the short code: KeyExchanged -> ShortCodeReady.
func (t *Transaction) Accept() (domain.ShortCode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.KeyExchanged {
		return domain.ShortCode{}, t.badState("accept")
	}
	code, err := deriveShortCode(t.keyMaterial, t.id)
	if err != nil {
		return domain.ShortCode{}, err
	}
	t.shortCode = code
	t.state = domain.ShortCodeReady
	return code, nil
}

// Confirm records the explicit match decision and produces our MAC to send:
// ShortCodeReady -> Confirmed. Confirmation is never implicit; the caller
// supplies it from a human decision or the unattended policy flag, and method
// records which of the two it was for the eventual trust record.
func (t *Transaction) Confirm(method domain.TrustMethod) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.ShortCodeReady {
		return nil, t.badState("confirm")
	}
	mac, err := deriveMac(t.keyMaterial, t.id, t.role)
	if err != nil {
		return nil, err
	}
	t.localMac = mac
	t.method = method
	t.state = domain.Confirmed
	return mac, nil
}

// Method returns how the confirmation was made. Only meaningful from
// Confirmed onward.
func (t *Transaction) Method() domain.TrustMethod {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.method
}

// ReceiveMac checks the remote MAC: Confirmed -> MacExchanged -> Done on a
// constant-time match, Cancelled on anything else. Reaching Done is what
// makes trust permanent, so this guard fails closed.
func (t *Transaction) ReceiveMac(mac []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.Confirmed {
		return t.badState("receive mac")
	}
	expected, err := deriveMac(t.keyMaterial, t.id, otherRole(t.role))
	if err != nil {
		t.terminate(domain.Cancelled)
		return err
	}
	if !hmac.Equal(mac, expected) {
		t.terminate(domain.Cancelled)
		return fmt.Errorf("transaction %s: %w", t.id, ErrMacMismatch)
	}
	t.state = domain.MacExchanged
	t.terminate(domain.Done)
	return nil
}

// Cancel forces the transaction into Cancelled from any non-terminal state.
func (t *Transaction) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return t.badState("cancel")
	}
	t.terminate(domain.Cancelled)
	return nil
}

// Expire forces TimedOut from any non-terminal state. Used by the sweep.
func (t *Transaction) Expire() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return t.badState("expire")
	}
	t.terminate(domain.TimedOut)
	return nil
}

// OlderThan reports whether the transaction exceeded maxAge at now.
func (t *Transaction) OlderThan(now time.Time, maxAge time.Duration) bool {
	return now.Sub(t.createdAt) > maxAge
}

func (t *Transaction) resolveIdentity(user domain.UserID, device domain.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteUser = user
	t.remoteDevice = device
}

// terminate moves to a terminal state and wipes the key material. Callers
// hold t.mu.
func (t *Transaction) terminate(s domain.State) {
	t.state = s
	memzero.Zero(t.keyMaterial)
	t.keyMaterial = nil
}

func (t *Transaction) badState(op string) error {
	return fmt.Errorf("transaction %s: cannot %s in state %s: %w", t.id, op, t.state, ErrBadState)
}

func otherRole(r domain.Role) domain.Role {
	if r == domain.Initiator {
		return domain.Responder
	}
	return domain.Initiator
}
