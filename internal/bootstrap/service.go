package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trustkit/internal/domain"
	"trustkit/internal/transport"
)

// Service reacts to undecryptable traffic by bootstrapping a session with the
// sending device.
//
// High-level flow for one device:
//   - Skip entirely if a bootstrap is already pending within the TTL window.
//   - Query the device keys if we have never seen this device.
//   - Claim a one-time key to establish an outbound session.
//   - Ask the device to re-share the room key we failed to decrypt with,
//     and flush the request.
//   - Remember the pair so repeat invocations no-op until the TTL expires
//     or the session is marked established.
type Service struct {
	transport domain.Transport
	ttl       time.Duration
	clock     func() time.Time
	log       *slog.Logger

	mu        sync.Mutex
	requested map[string]time.Time
	known     map[string]bool
}

// New constructs a bootstrapper. clock may be nil; time.Now is used.
func New(tp domain.Transport, ttl time.Duration, clock func() time.Time, log *slog.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		transport: tp,
		ttl:       ttl,
		clock:     clock,
		log:       log,
		requested: make(map[string]time.Time),
		known:     make(map[string]bool),
	}
}

// Bootstrap establishes a session with the device so decryption and
// verification become possible. Idempotent within the TTL window: repeat
// calls for the same pair before the first resolves are no-ops, and a
// duplicate-request rejection from the transport counts as success.
func (s *Service) Bootstrap(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
	session domain.SessionID,
) error {
	pair := string(user) + "/" + string(device)
	now := s.clock()

	s.mu.Lock()
	if at, ok := s.requested[pair]; ok && now.Sub(at) < s.ttl {
		s.mu.Unlock()
		s.log.Debug("bootstrap already pending", "user", user, "device", device)
		return nil
	}
	// Claim the slot before the first network call so concurrent invocations
	// for the same pair cannot both proceed.
	s.requested[pair] = now
	known := s.known[pair]
	s.mu.Unlock()

	if err := s.run(ctx, user, device, session, known); err != nil {
		s.mu.Lock()
		delete(s.requested, pair)
		s.mu.Unlock()
		return err
	}
	s.log.Info("session bootstrap issued", "user", user, "device", device)
	return nil
}

func (s *Service) run(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
	session domain.SessionID,
	known bool,
) error {
	if !known {
		keys, err := s.transport.QueryDeviceKeys(ctx, user)
		if err != nil && !benign(err) {
			return fmt.Errorf("querying device keys for %s: %w", user, err)
		}
		s.mu.Lock()
		for _, k := range keys {
			s.known[string(k.UserID)+"/"+string(k.DeviceID)] = true
		}
		s.mu.Unlock()
	}

	if _, err := s.transport.ClaimOneTimeKey(ctx, user, device); err != nil && !benign(err) {
		return fmt.Errorf("claiming one-time key for %s/%s: %w", user, device, err)
	}

	// An empty session id means there is nothing to re-key, only a session
	// to establish; skip the room key request.
	if session != "" {
		if err := s.transport.RequestRoomKey(ctx, user, device, session); err != nil && !benign(err) {
			return fmt.Errorf("requesting room key from %s/%s: %w", user, device, err)
		}
		if err := s.transport.FlushOutgoing(ctx); err != nil {
			return fmt.Errorf("flushing room key request to %s/%s: %w", user, device, err)
		}
	}
	return nil
}

// MarkEstablished clears the pending entry once a session exists, so a later
// failure can be bootstrapped again without waiting out the TTL.
func (s *Service) MarkEstablished(user domain.UserID, device domain.DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requested, string(user)+"/"+string(device))
}

// benign: the transport already has an identical request in flight. Treating
// it as success keeps repeated invocations idempotent.
func benign(err error) bool {
	return errors.Is(err, transport.ErrDuplicateRequest)
}

// Compile-time assertion that Service implements domain.Bootstrapper.
var _ domain.Bootstrapper = (*Service)(nil)
