package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trustkit/internal/domain"
	"trustkit/internal/verification"
)

// Cancel reason codes sent to the counterpart.
const (
	reasonDuplicate   = "duplicate"
	reasonMacMismatch = "mac_mismatch"
	reasonTimeout     = "timeout"
	reasonUser        = "user"
)

// Service implements domain.Verifier.
//
// Every outward transition that queued a protocol message flushes the
// transport's outgoing queue before returning; queuing without flushing looks
// like success locally but the counterpart never hears from us.
type Service struct {
	tracker   *verification.Tracker
	trust     domain.TrustStore
	bootstrap domain.Bootstrapper
	transport domain.Transport
	clock     func() time.Time
	log       *slog.Logger
}

// New constructs the orchestrator facade. clock may be nil; time.Now is used.
func New(
	tracker *verification.Tracker,
	trust domain.TrustStore,
	bootstrap domain.Bootstrapper,
	tp domain.Transport,
	clock func() time.Time,
	log *slog.Logger,
) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		tracker:   tracker,
		trust:     trust,
		bootstrap: bootstrap,
		transport: tp,
		clock:     clock,
		log:       log,
	}
}

// ListPending returns snapshots of every non-terminal transaction.
func (s *Service) ListPending() []domain.VerificationTransaction {
	var out []domain.VerificationTransaction
	for _, tx := range s.tracker.Live() {
		snap := tx.Snapshot()
		if !snap.State.Terminal() {
			out = append(out, snap)
		}
	}
	return out
}

// Start opens an outbound handshake with one device of user.
//
// Fails with ErrDeviceUnknown when the key query does not list the device;
// the caller should bootstrap a session first. Fails with ErrAlreadyPending
// when a handshake with the device is already live.
func (s *Service) Start(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
) (domain.TransactionID, error) {
	keys, err := s.transport.QueryDeviceKeys(ctx, user)
	if err != nil {
		return "", fmt.Errorf("querying device keys for %s: %w", user, err)
	}
	known := false
	for _, k := range keys {
		if k.UserID == user && k.DeviceID == device {
			known = true
			break
		}
	}
	if !known {
		// Kick a session bootstrap so the device's keys become available;
		// there is no failed session to re-key, hence the empty session id.
		// The caller retries once the keys are published.
		if berr := s.bootstrap.Bootstrap(ctx, user, device, ""); berr != nil {
			s.log.Warn("bootstrap for unknown device failed", "user", user, "device", device, "err", berr)
		}
		return "", fmt.Errorf("%s/%s: %w", user, device, verification.ErrDeviceUnknown)
	}

	tx, err := s.tracker.Register("", user, device, domain.Initiator)
	if err != nil {
		return "", err
	}
	if err := s.transport.SendVerificationStart(ctx, user, device, tx.ID()); err != nil {
		return tx.ID(), err
	}
	if err := s.flush(ctx, tx); err != nil {
		return tx.ID(), err
	}
	s.log.Info("verification started", "transaction", tx.ID(), "user", user, "device", device)
	return tx.ID(), nil
}

// Accept advances a key-exchanged handshake and returns the short code to
// display. For inbound handshakes this also sends the accept message.
func (s *Service) Accept(ctx context.Context, id domain.TransactionID) (domain.ShortCode, error) {
	tx, ok := s.tracker.Get(id)
	if !ok {
		return domain.ShortCode{}, verification.ErrTransactionNotFound
	}
	code, err := tx.Accept()
	if err != nil {
		return domain.ShortCode{}, err
	}
	if tx.Role() == domain.Responder {
		if err := s.transport.SendVerificationAccept(ctx, id); err != nil {
			return code, err
		}
		if err := s.flush(ctx, tx); err != nil {
			return code, err
		}
	}
	s.log.Info("short code ready", "transaction", id)
	return code, nil
}

// Confirm attests that the displayed codes match and sends our MAC.
func (s *Service) Confirm(ctx context.Context, id domain.TransactionID) error {
	return s.confirmAs(ctx, id, domain.MethodSAS)
}

func (s *Service) confirmAs(ctx context.Context, id domain.TransactionID, method domain.TrustMethod) error {
	tx, ok := s.tracker.Get(id)
	if !ok {
		return verification.ErrTransactionNotFound
	}
	mac, err := tx.Confirm(method)
	if err != nil {
		return err
	}
	if err := s.transport.SendVerificationMac(ctx, id, mac); err != nil {
		return err
	}
	if err := s.flush(ctx, tx); err != nil {
		return err
	}
	s.log.Info("verification confirmed", "transaction", id, "method", method)
	return nil
}

// Reject cancels a handshake. The transaction is terminal and removed when
// this returns; delivery of the cancel message itself is best effort.
func (s *Service) Reject(ctx context.Context, id domain.TransactionID) error {
	tx, ok := s.tracker.Get(id)
	if !ok {
		return verification.ErrTransactionNotFound
	}
	if err := tx.Cancel(); err != nil {
		return err
	}
	s.tracker.Remove(id)
	s.cancelRemote(ctx, tx, reasonUser)
	s.log.Info("verification rejected", "transaction", id)
	return nil
}

// AutoAcceptAll accepts and confirms every pending inbound handshake that has
// key material, recording the results as auto-trusted. Returns the ids it
// completed the local side of.
func (s *Service) AutoAcceptAll(ctx context.Context) ([]domain.TransactionID, error) {
	var done []domain.TransactionID
	for _, tx := range s.tracker.Live() {
		snap := tx.Snapshot()
		if snap.Role != domain.Responder || snap.State != domain.KeyExchanged {
			continue
		}
		if _, err := s.Accept(ctx, snap.TransactionID); err != nil {
			return done, err
		}
		if err := s.confirmAs(ctx, snap.TransactionID, domain.MethodAutoTrusted); err != nil {
			return done, err
		}
		done = append(done, snap.TransactionID)
	}
	return done, nil
}

// HandleEvent feeds one transport event through the state machines. The event
// union is matched exhaustively; an unknown kind is an error, never a silent
// no-op.
func (s *Service) HandleEvent(ctx context.Context, ev domain.Event) error {
	switch ev := ev.(type) {
	case domain.VerificationRequested:
		return s.onRequested(ctx, ev)
	case domain.VerificationKeyReceived:
		return s.onKeyReceived(ctx, ev)
	case domain.VerificationMacReceived:
		return s.onMacReceived(ctx, ev)
	case domain.VerificationCancelled:
		return s.onCancelled(ev)
	default:
		return fmt.Errorf("unhandled transport event %T", ev)
	}
}

func (s *Service) onRequested(ctx context.Context, ev domain.VerificationRequested) error {
	tx, err := s.tracker.Register(ev.TransactionID, ev.User, ev.Device, domain.Responder)
	if errors.Is(err, verification.ErrAlreadyPending) {
		// Reject the duplicate rather than racing two handshakes on the same
		// underlying session.
		s.log.Warn("duplicate verification request rejected",
			"transaction", ev.TransactionID, "user", ev.User, "device", ev.Device)
		_ = s.transport.SendVerificationCancel(ctx, ev.TransactionID, reasonDuplicate)
		if err := s.transport.FlushOutgoing(ctx); err != nil {
			s.log.Warn("cancel delivery failed", "transaction", ev.TransactionID, "err", err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("verification requested", "transaction", tx.ID(), "user", ev.User, "device", ev.Device)
	return nil
}

func (s *Service) onKeyReceived(ctx context.Context, ev domain.VerificationKeyReceived) error {
	tx, ok := s.tracker.Get(ev.TransactionID)
	if !ok {
		return verification.ErrTransactionNotFound
	}
	if ev.User != "" || ev.Device != "" {
		// The request event may have carried an unresolved identity; dedup
		// again now that the key event names the real device.
		if err := s.tracker.ResolveIdentity(ev.TransactionID, ev.User, ev.Device); err != nil {
			if errors.Is(err, verification.ErrAlreadyPending) {
				_ = tx.Cancel()
				s.tracker.Remove(ev.TransactionID)
				s.cancelRemote(ctx, tx, reasonDuplicate)
				return nil
			}
			return err
		}
	}
	return tx.ReceiveKey(ev.KeyMaterial)
}

func (s *Service) onMacReceived(ctx context.Context, ev domain.VerificationMacReceived) error {
	tx, ok := s.tracker.Get(ev.TransactionID)
	if !ok {
		return verification.ErrTransactionNotFound
	}
	if err := tx.ReceiveMac(ev.Mac); err != nil {
		s.tracker.Remove(ev.TransactionID)
		if errors.Is(err, verification.ErrMacMismatch) {
			s.cancelRemote(ctx, tx, reasonMacMismatch)
		}
		return err
	}

	snap := tx.Snapshot()
	rec := domain.TrustRecord{
		UserID:      snap.RemoteUser,
		DeviceID:    snap.RemoteDevice,
		VerifiedUTC: s.clock().Unix(),
		Method:      tx.Method(),
	}
	if err := s.trust.Record(rec); err != nil {
		// Trust stays unwritten (fail closed), but the terminal transaction
		// must still leave the tracker or the pair is wedged for good.
		s.tracker.Remove(ev.TransactionID)
		return fmt.Errorf("recording trust for %s/%s: %w", snap.RemoteUser, snap.RemoteDevice, err)
	}
	s.tracker.Remove(ev.TransactionID)
	s.bootstrap.MarkEstablished(snap.RemoteUser, snap.RemoteDevice)
	s.log.Info("verification complete",
		"transaction", ev.TransactionID, "user", snap.RemoteUser,
		"device", snap.RemoteDevice, "method", rec.Method)
	return nil
}

func (s *Service) onCancelled(ev domain.VerificationCancelled) error {
	tx, ok := s.tracker.Get(ev.TransactionID)
	if !ok {
		return nil // already terminal on our side
	}
	_ = tx.Cancel()
	s.tracker.Remove(ev.TransactionID)
	s.log.Info("verification cancelled by remote", "transaction", ev.TransactionID, "reason", ev.Reason)
	return nil
}

// IsTrusted reports whether the device completed verification.
func (s *Service) IsTrusted(user domain.UserID, device domain.DeviceID) (bool, error) {
	return s.trust.IsVerified(user, device)
}

// OnUndecryptable reacts to a message we could not decrypt by bootstrapping a
// session with the sending device.
func (s *Service) OnUndecryptable(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
	session domain.SessionID,
) error {
	return s.bootstrap.Bootstrap(ctx, user, device, session)
}

// Sweep forces every transaction past its maximum lifetime into TimedOut and
// notifies the counterparts best effort.
func (s *Service) Sweep(ctx context.Context) {
	for _, tx := range s.tracker.SweepExpired() {
		s.cancelRemote(ctx, tx, reasonTimeout)
		s.log.Info("verification timed out", "transaction", tx.ID())
	}
}

// RunSweeper runs the periodic timeout sweep until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// flush drains the outgoing queue, wrapping failures with transaction context
// so the caller can decide whether to retry.
func (s *Service) flush(ctx context.Context, tx *verification.Transaction) error {
	if err := s.transport.FlushOutgoing(ctx); err != nil {
		snap := tx.Snapshot()
		return &verification.DeliveryError{ID: snap.TransactionID, State: snap.State, Err: err}
	}
	return nil
}

// cancelRemote enqueues and flushes a cancel, best effort: the transaction is
// already terminal and a delivery failure must not resurrect it.
func (s *Service) cancelRemote(ctx context.Context, tx *verification.Transaction, reason string) {
	_ = s.transport.SendVerificationCancel(ctx, tx.ID(), reason)
	if err := s.transport.FlushOutgoing(ctx); err != nil {
		s.log.Warn("cancel delivery failed", "transaction", tx.ID(), "err", err)
	}
}

// Compile-time assertion that Service implements domain.Verifier.
var _ domain.Verifier = (*Service)(nil)
