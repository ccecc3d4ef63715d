package verification

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trustkit/internal/domain"
)

func TestTracker_SecondRegistrationForPairRejected(t *testing.T) {
	tr := NewTracker(10*time.Minute, nil)

	_, err := tr.Register("", "@alice:example.org", "DEVICEX", domain.Initiator)
	require.NoError(t, err)

	_, err = tr.Register("", "@alice:example.org", "DEVICEX", domain.Initiator)
	require.ErrorIs(t, err, ErrAlreadyPending)

	// A different device of the same user is fine.
	_, err = tr.Register("", "@alice:example.org", "DEVICEY", domain.Initiator)
	require.NoError(t, err)
}

func TestTracker_RemoveFreesPair(t *testing.T) {
	tr := NewTracker(10*time.Minute, nil)

	tx, err := tr.Register("", "@alice:example.org", "DEVICEX", domain.Initiator)
	require.NoError(t, err)
	tr.Remove(tx.ID())

	_, ok := tr.Get(tx.ID())
	require.False(t, ok)
	_, err = tr.Register("", "@alice:example.org", "DEVICEX", domain.Initiator)
	require.NoError(t, err)
}

func TestTracker_GeneratedIDsAreUnique(t *testing.T) {
	tr := NewTracker(10*time.Minute, nil)

	a, err := tr.Register("", "@alice:example.org", "DEVICEX", domain.Initiator)
	require.NoError(t, err)
	b, err := tr.Register("", "@bob:example.org", "DEVICEZ", domain.Initiator)
	require.NoError(t, err)
	require.NotEqual(t, a.ID(), b.ID())
	require.NotEmpty(t, a.ID())
}

func TestTracker_SweepMovesExpiredToTimedOut(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	tr := NewTracker(10*time.Minute, clock)

	tx, err := tr.Register("", "@alice:example.org", "DEVICEX", domain.Responder)
	require.NoError(t, err)

	require.Empty(t, tr.SweepExpired())

	now = now.Add(11 * time.Minute)
	expired := tr.SweepExpired()
	require.Len(t, expired, 1)
	require.Equal(t, tx.ID(), expired[0].ID())
	require.Equal(t, domain.TimedOut, tx.Snapshot().State)

	// The pair is free again after the sweep.
	_, err = tr.Register("", "@alice:example.org", "DEVICEX", domain.Responder)
	require.NoError(t, err)
}

func TestTracker_SweepDropsTerminalLeftovers(t *testing.T) {
	tr := NewTracker(10*time.Minute, nil)

	tx, err := tr.Register("", "@alice:example.org", "DEVICEX", domain.Responder)
	require.NoError(t, err)
	require.NoError(t, tx.Cancel())

	// A transaction that settled but never left the tracker is not expired,
	// just stale; the sweep reclaims it without reporting it.
	require.Empty(t, tr.SweepExpired())
	require.Empty(t, tr.Live())

	_, err = tr.Register("", "@alice:example.org", "DEVICEX", domain.Responder)
	require.NoError(t, err)
}

func TestTracker_ResolveIdentityDedups(t *testing.T) {
	tr := NewTracker(10*time.Minute, nil)

	_, err := tr.Register("owner", "@alice:example.org", "DEVICEX", domain.Initiator)
	require.NoError(t, err)

	// Inbound request arrived before the transport resolved the device.
	late, err := tr.Register("late", "@alice:example.org", "", domain.Responder)
	require.NoError(t, err)

	err = tr.ResolveIdentity("late", "@alice:example.org", "DEVICEX")
	require.ErrorIs(t, err, ErrAlreadyPending)

	// Resolving to a free device re-indexes the pair.
	require.NoError(t, tr.ResolveIdentity("late", "@alice:example.org", "DEVICEY"))
	require.Equal(t, domain.DeviceID("DEVICEY"), late.Snapshot().RemoteDevice)
	_, err = tr.Register("", "@alice:example.org", "DEVICEY", domain.Initiator)
	require.ErrorIs(t, err, ErrAlreadyPending)
}

func TestTracker_ConcurrentRegistersKeepOneLivePerPair(t *testing.T) {
	tr := NewTracker(10*time.Minute, nil)

	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tr.Register("", "@alice:example.org", "DEVICEX", domain.Initiator)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, ErrAlreadyPending)
		}
	}
	require.Equal(t, 1, won)
	require.Len(t, tr.Live(), 1)
}
