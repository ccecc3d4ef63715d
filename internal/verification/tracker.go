package verification

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"trustkit/internal/domain"
)

// Tracker is the in-memory registry of live verification transactions.
//
// It enforces the one-live-handshake-per-device invariant: Register refuses a
// second transaction for a (user, device) pair while one is still live. Two
// concurrent handshakes for the same pair would race on the shared session
// state underneath, so this exclusivity is load-bearing.
type Tracker struct {
	maxAge time.Duration
	clock  func() time.Time

	mu     sync.Mutex
	byID   map[domain.TransactionID]*Transaction
	byPair map[string]domain.TransactionID
}

// NewTracker returns an empty tracker. Transactions older than maxAge are
// eligible for the timeout sweep. clock may be nil; time.Now is used.
func NewTracker(maxAge time.Duration, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		maxAge: maxAge,
		clock:  clock,
		byID:   make(map[domain.TransactionID]*Transaction),
		byPair: make(map[string]domain.TransactionID),
	}
}

// Register creates and indexes a new transaction. id may be empty for
// outbound handshakes, in which case a fresh one is generated. Fails with
// ErrAlreadyPending if a live transaction exists for the pair.
//
// An inbound request may arrive before the transport has resolved the real
// device identity; registering with an empty device id is allowed and the
// pair index is corrected later via ResolveIdentity.
func (tr *Tracker) Register(
	id domain.TransactionID,
	user domain.UserID,
	device domain.DeviceID,
	role domain.Role,
) (*Transaction, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	pair := pairKey(user, device)
	if existing, ok := tr.byPair[pair]; ok {
		return nil, fmt.Errorf("pair %s already owned by transaction %s: %w",
			pair, existing, ErrAlreadyPending)
	}
	if id == "" {
		generated, err := newTransactionID()
		if err != nil {
			return nil, err
		}
		id = generated
	}
	if _, ok := tr.byID[id]; ok {
		return nil, fmt.Errorf("transaction id %s already registered: %w", id, ErrAlreadyPending)
	}

	tx := newTransaction(id, user, device, role, tr.clock())
	tr.byID[id] = tx
	tr.byPair[pair] = id
	return tx, nil
}

// Get returns the live transaction with the given id, if any.
func (tr *Tracker) Get(id domain.TransactionID) (*Transaction, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tx, ok := tr.byID[id]
	return tx, ok
}

// Remove drops the transaction from both indexes. It must be called on every
// terminal transition; a transaction only ever leaves the tracker this way.
func (tr *Tracker) Remove(id domain.TransactionID) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tx, ok := tr.byID[id]
	if !ok {
		return
	}
	snap := tx.Snapshot()
	delete(tr.byPair, pairKey(snap.RemoteUser, snap.RemoteDevice))
	delete(tr.byID, id)
}

// Live returns the currently tracked transactions in no particular order.
func (tr *Tracker) Live() []*Transaction {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]*Transaction, 0, len(tr.byID))
	for _, tx := range tr.byID {
		out = append(out, tx)
	}
	return out
}

// ResolveIdentity updates a transaction whose remote identity only became
// known with the key event, and re-runs the pair dedup for the resolved
// identity. If another live transaction already owns the resolved pair, the
// caller's transaction loses and ErrAlreadyPending is returned; the caller is
// expected to cancel it.
func (tr *Tracker) ResolveIdentity(
	id domain.TransactionID,
	user domain.UserID,
	device domain.DeviceID,
) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tx, ok := tr.byID[id]
	if !ok {
		return ErrTransactionNotFound
	}
	snap := tx.Snapshot()
	if snap.RemoteUser == user && snap.RemoteDevice == device {
		return nil
	}
	resolved := pairKey(user, device)
	if owner, taken := tr.byPair[resolved]; taken && owner != id {
		return fmt.Errorf("resolved pair %s already owned by transaction %s: %w",
			resolved, owner, ErrAlreadyPending)
	}
	delete(tr.byPair, pairKey(snap.RemoteUser, snap.RemoteDevice))
	tx.resolveIdentity(user, device)
	tr.byPair[resolved] = id
	return nil
}

// SweepExpired forces every transaction past its maximum lifetime into
// TimedOut through the normal transition path and removes it. The expired
// transactions are returned so the caller can send best-effort cancels.
func (tr *Tracker) SweepExpired() []*Transaction {
	now := tr.clock()

	var expired []*Transaction
	for _, tx := range tr.Live() {
		if tx.Snapshot().State.Terminal() {
			// A terminal transaction still in the tracker is leftover from a
			// failed completion; drop it so the pair is usable again.
			tr.Remove(tx.ID())
			continue
		}
		if !tx.OlderThan(now, tr.maxAge) {
			continue
		}
		if err := tx.Expire(); err != nil {
			tr.Remove(tx.ID()) // lost a race with a terminal transition
			continue
		}
		tr.Remove(tx.ID())
		expired = append(expired, tx)
	}
	return expired
}

func pairKey(user domain.UserID, device domain.DeviceID) string {
	return string(user) + "/" + string(device)
}

func newTransactionID() (domain.TransactionID, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return domain.TransactionID(hex.EncodeToString(b[:])), nil
}
