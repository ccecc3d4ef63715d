package orchestrator_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"

	"trustkit/internal/bootstrap"
	"trustkit/internal/domain"
	"trustkit/internal/orchestrator"
	"trustkit/internal/truststore"
	"trustkit/internal/verification"
)

// mockTransport records outbound traffic and serves canned key data.
type mockTransport struct {
	mu          sync.Mutex
	starts      int
	accepts     int
	macs        int
	cancels     int
	flushes     int
	queued      int
	claims      int
	roomKeys    int
	flushErr    error
	queryResult []domain.DeviceKeys
	lastCancel  string
}

func (m *mockTransport) SendVerificationStart(_ context.Context, _ domain.UserID, _ domain.DeviceID, _ domain.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.queued++
	return nil
}

func (m *mockTransport) SendVerificationAccept(context.Context, domain.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepts++
	m.queued++
	return nil
}

func (m *mockTransport) SendVerificationMac(context.Context, domain.TransactionID, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.macs++
	m.queued++
	return nil
}

func (m *mockTransport) SendVerificationCancel(_ context.Context, _ domain.TransactionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	m.queued++
	m.lastCancel = reason
	return nil
}

func (m *mockTransport) FlushOutgoing(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	if m.flushErr != nil {
		return m.flushErr
	}
	m.queued = 0
	return nil
}

func (m *mockTransport) QueryDeviceKeys(context.Context, domain.UserID) ([]domain.DeviceKeys, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryResult, nil
}

func (m *mockTransport) ClaimOneTimeKey(_ context.Context, _ domain.UserID, device domain.DeviceID) (domain.OneTimeKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	return domain.OneTimeKey{DeviceID: device, KeyID: "otk", Key: "key"}, nil
}

func (m *mockTransport) RequestRoomKey(context.Context, domain.UserID, domain.DeviceID, domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomKeys++
	return nil
}

func (m *mockTransport) FetchEvents(context.Context) ([]domain.Event, error) {
	return nil, nil
}

// failingTrustStore wraps a real store but refuses every write.
type failingTrustStore struct {
	domain.TrustStore
	recordErr error
}

func (s *failingTrustStore) Record(domain.TrustRecord) error { return s.recordErr }

type fixture struct {
	tp      *mockTransport
	svc     *orchestrator.Service
	trust   domain.TrustStore
	tracker *verification.Tracker
	now     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	tp := &mockTransport{
		queryResult: []domain.DeviceKeys{
			{UserID: "@alice:example.org", DeviceID: "DEVICEX", IdentityKey: "ik"},
			{UserID: "@alice:example.org", DeviceID: "DEVICEY", IdentityKey: "ik2"},
			{UserID: "@bob:example.org", DeviceID: "DEVICEZ", IdentityKey: "ik3"},
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	trust := truststore.NewFileStore(t.TempDir())
	tracker := verification.NewTracker(10*time.Minute, clock)
	boot := bootstrap.New(tp, time.Minute, clock, log)
	svc := orchestrator.New(tracker, trust, boot, tp, clock, log)

	return &fixture{tp: tp, svc: svc, trust: trust, tracker: tracker, now: &now}
}

// remoteMac reproduces the counterpart's MAC: HKDF-SHA256 keyed by the
// exchanged material and role label, HMAC over the transaction id.
func remoteMac(t *testing.T, material []byte, id domain.TransactionID, role string) []byte {
	t.Helper()
	r := hkdf.New(sha256.New, material, []byte(id), []byte("trustkit mac v1 "+role))
	key := make([]byte, sha256.Size)
	_, err := io.ReadFull(r, key)
	require.NoError(t, err)
	m := hmac.New(sha256.New, key)
	m.Write([]byte(id))
	return m.Sum(nil)
}

func TestStart_SecondStartForSamePairReturnsAlreadyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "@alice:example.org", "DEVICEX")
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, "@alice:example.org", "DEVICEX")
	require.ErrorIs(t, err, verification.ErrAlreadyPending)
	require.Len(t, f.svc.ListPending(), 1)
}

func TestStart_UnknownDeviceRejectedAndBootstrapKicked(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), "@alice:example.org", "NOSUCHDEV")
	require.ErrorIs(t, err, verification.ErrDeviceUnknown)
	require.Empty(t, f.svc.ListPending())

	// The miss requests a session bootstrap so the device's keys get
	// published; there is no failed session, so no room key request.
	require.Equal(t, 1, f.tp.claims)
	require.Zero(t, f.tp.roomKeys)
}

func TestStart_FlushesAfterQueueing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), "@alice:example.org", "DEVICEX")
	require.NoError(t, err)
	require.Equal(t, 1, f.tp.starts)
	require.Equal(t, 1, f.tp.flushes)
	require.Zero(t, f.tp.queued)
}

func TestStart_FlushFailureSurfacesDeliveryError(t *testing.T) {
	f := newFixture(t)
	f.tp.flushErr = errors.New("gateway unreachable")

	id, err := f.svc.Start(context.Background(), "@alice:example.org", "DEVICEX")
	var de *verification.DeliveryError
	require.ErrorAs(t, err, &de)
	require.Equal(t, id, de.ID)

	// The transaction stays live so the caller can retry or reject; nothing
	// retries automatically.
	require.Len(t, f.svc.ListPending(), 1)
	require.Equal(t, 1, f.tp.flushes)
}

func TestConfirmWithoutAcceptRejectedAndSendsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationRequested{
		TransactionID: "txn-b", User: "@alice:example.org", Device: "DEVICEX",
	}))
	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationKeyReceived{
		TransactionID: "txn-b", KeyMaterial: domain.KeyMaterial("material"),
	}))

	err := f.svc.Confirm(ctx, "txn-b")
	require.ErrorIs(t, err, verification.ErrBadState)
	require.Zero(t, f.tp.macs)
}

func TestInboundHandshakeCompletesAndRecordsTrust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	material := []byte("exchanged key material")

	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationRequested{
		TransactionID: "txn-ok", User: "@alice:example.org", Device: "DEVICEX",
	}))
	created := f.svc.ListPending()[0].CreatedUTC

	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationKeyReceived{
		TransactionID: "txn-ok", User: "@alice:example.org", Device: "DEVICEX",
		KeyMaterial: material,
	}))

	code, err := f.svc.Accept(ctx, "txn-ok")
	require.NoError(t, err)
	require.NotEmpty(t, code[0].Emoji)
	require.Equal(t, 1, f.tp.accepts)

	require.NoError(t, f.svc.Confirm(ctx, "txn-ok"))
	require.Equal(t, 1, f.tp.macs)

	// We are the responder; the counterpart sends the initiator MAC.
	*f.now = f.now.Add(30 * time.Second)
	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationMacReceived{
		TransactionID: "txn-ok", Mac: remoteMac(t, material, "txn-ok", "initiator"),
	}))

	trusted, err := f.svc.IsTrusted("@alice:example.org", "DEVICEX")
	require.NoError(t, err)
	require.True(t, trusted)
	require.Empty(t, f.svc.ListPending())

	recs, err := f.trust.ListVerified()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.MethodSAS, recs[0].Method)
	require.GreaterOrEqual(t, recs[0].VerifiedUTC, created)
}

func TestMacMismatchCancelsAndNeverTrusts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationRequested{
		TransactionID: "txn-bad", User: "@alice:example.org", Device: "DEVICEX",
	}))
	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationKeyReceived{
		TransactionID: "txn-bad", KeyMaterial: domain.KeyMaterial("material"),
	}))
	_, err := f.svc.Accept(ctx, "txn-bad")
	require.NoError(t, err)
	require.NoError(t, f.svc.Confirm(ctx, "txn-bad"))

	err = f.svc.HandleEvent(ctx, domain.VerificationMacReceived{
		TransactionID: "txn-bad", Mac: []byte("forged"),
	})
	require.ErrorIs(t, err, verification.ErrMacMismatch)

	trusted, err := f.svc.IsTrusted("@alice:example.org", "DEVICEX")
	require.NoError(t, err)
	require.False(t, trusted)
	require.Empty(t, f.svc.ListPending())
	require.Equal(t, "mac_mismatch", f.tp.lastCancel)
}

func TestTrustRecordFailureStillFreesThePair(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	tp := &mockTransport{
		queryResult: []domain.DeviceKeys{
			{UserID: "@alice:example.org", DeviceID: "DEVICEX", IdentityKey: "ik"},
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	trust := &failingTrustStore{
		TrustStore: truststore.NewFileStore(t.TempDir()),
		recordErr:  errors.New("disk full"),
	}
	tracker := verification.NewTracker(10*time.Minute, clock)
	boot := bootstrap.New(tp, time.Minute, clock, log)
	svc := orchestrator.New(tracker, trust, boot, tp, clock, log)

	ctx := context.Background()
	material := []byte("exchanged key material")

	require.NoError(t, svc.HandleEvent(ctx, domain.VerificationRequested{
		TransactionID: "txn-full", User: "@alice:example.org", Device: "DEVICEX",
	}))
	require.NoError(t, svc.HandleEvent(ctx, domain.VerificationKeyReceived{
		TransactionID: "txn-full", KeyMaterial: domain.KeyMaterial(material),
	}))
	_, err := svc.Accept(ctx, "txn-full")
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, "txn-full"))

	err = svc.HandleEvent(ctx, domain.VerificationMacReceived{
		TransactionID: "txn-full", Mac: remoteMac(t, material, "txn-full", "initiator"),
	})
	require.Error(t, err)

	// No trust was written, and the settled transaction must not keep
	// blocking the pair.
	trusted, err := svc.IsTrusted("@alice:example.org", "DEVICEX")
	require.NoError(t, err)
	require.False(t, trusted)
	require.Empty(t, svc.ListPending())

	_, err = svc.Start(ctx, "@alice:example.org", "DEVICEX")
	require.NoError(t, err)
}

func TestSweepTimesOutStaleHandshakes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationRequested{
		TransactionID: "txn-stale", User: "@alice:example.org", Device: "DEVICEX",
	}))

	*f.now = f.now.Add(11 * time.Minute)
	f.svc.Sweep(ctx)

	require.Empty(t, f.svc.ListPending())
	require.Equal(t, 1, f.tp.cancels)
	require.Equal(t, "timeout", f.tp.lastCancel)

	// The pair is free for a fresh handshake.
	_, err := f.svc.Start(ctx, "@alice:example.org", "DEVICEX")
	require.NoError(t, err)
}

func TestAutoAcceptAllTagsRecordsAutoTrusted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []struct {
		id     domain.TransactionID
		user   domain.UserID
		device domain.DeviceID
	}{
		{"txn-a1", "@alice:example.org", "DEVICEX"},
		{"txn-a2", "@bob:example.org", "DEVICEZ"},
	} {
		require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationRequested{
			TransactionID: in.id, User: in.user, Device: in.device,
		}))
		require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationKeyReceived{
			TransactionID: in.id, KeyMaterial: domain.KeyMaterial("material " + string(in.id)),
		}))
	}

	done, err := f.svc.AutoAcceptAll(ctx)
	require.NoError(t, err)
	require.Len(t, done, 2)

	for _, id := range done {
		require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationMacReceived{
			TransactionID: id,
			Mac:           remoteMac(t, []byte("material "+string(id)), id, "initiator"),
		}))
	}

	recs, err := f.trust.ListVerified()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		require.Equal(t, domain.MethodAutoTrusted, r.Method)
	}
}

func TestDuplicateInboundRequestRejectedNotDuplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationRequested{
		TransactionID: "txn-1", User: "@alice:example.org", Device: "DEVICEX",
	}))
	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationRequested{
		TransactionID: "txn-2", User: "@alice:example.org", Device: "DEVICEX",
	}))

	require.Len(t, f.svc.ListPending(), 1)
	require.Equal(t, 1, f.tp.cancels)
	require.Equal(t, "duplicate", f.tp.lastCancel)
}

func TestLateIdentityResolutionDedups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "@alice:example.org", "DEVICEX")
	require.NoError(t, err)

	// An inbound request with an unresolved device turns out to be DEVICEX.
	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationRequested{
		TransactionID: "txn-late", User: "@alice:example.org",
	}))
	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationKeyReceived{
		TransactionID: "txn-late", User: "@alice:example.org", Device: "DEVICEX",
		KeyMaterial: domain.KeyMaterial("material"),
	}))

	require.Len(t, f.svc.ListPending(), 1)
	require.Equal(t, "duplicate", f.tp.lastCancel)
}

func TestRejectIsTerminalEvenIfCancelDeliveryFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Start(ctx, "@alice:example.org", "DEVICEX")
	require.NoError(t, err)

	f.tp.flushErr = errors.New("gateway unreachable")
	require.NoError(t, f.svc.Reject(ctx, id))
	require.Empty(t, f.svc.ListPending())
}

func TestRemoteCancelRemovesTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Start(ctx, "@alice:example.org", "DEVICEX")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationCancelled{
		TransactionID: id, Reason: "user",
	}))
	require.Empty(t, f.svc.ListPending())

	// A cancel for an unknown transaction is not an error.
	require.NoError(t, f.svc.HandleEvent(ctx, domain.VerificationCancelled{
		TransactionID: "txn-gone", Reason: "user",
	}))
}

func TestUnknownEventKindFailsLoudly(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleEvent(context.Background(), nil)
	require.Error(t, err)
}

func TestConcurrentStartsKeepOneLiveTransactionPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pairs := []domain.DeviceID{"DEVICEX", "DEVICEY"}
	const perPair = 8

	var wg sync.WaitGroup
	for _, device := range pairs {
		for i := 0; i < perPair; i++ {
			wg.Add(1)
			go func(device domain.DeviceID) {
				defer wg.Done()
				_, _ = f.svc.Start(ctx, "@alice:example.org", device)
			}(device)
		}
	}
	wg.Wait()

	require.Len(t, f.svc.ListPending(), len(pairs))
	require.Equal(t, len(pairs), f.tp.starts)
}
