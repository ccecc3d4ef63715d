package truststore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"trustkit/internal/domain"
	"trustkit/internal/truststore"
)

func TestFileStore_RecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := truststore.NewFileStore(dir)

	ok, err := s.IsVerified("@alice:example.org", "DEVICEX")
	require.NoError(t, err)
	require.False(t, ok)

	rec := domain.TrustRecord{
		UserID:      "@alice:example.org",
		DeviceID:    "DEVICEX",
		VerifiedUTC: 1_700_000_000,
		Method:      domain.MethodSAS,
	}
	require.NoError(t, s.Record(rec))

	ok, err = s.IsVerified("@alice:example.org", "DEVICEX")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.IsVerified("@alice:example.org", "DEVICEY")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_SupersedeKeepsNewestAndHistory(t *testing.T) {
	dir := t.TempDir()
	s := truststore.NewFileStore(dir)

	older := domain.TrustRecord{
		UserID:      "@alice:example.org",
		DeviceID:    "DEVICEX",
		VerifiedUTC: 1_700_000_000,
		Method:      domain.MethodSAS,
	}
	newer := older
	newer.VerifiedUTC = 1_700_100_000
	newer.Method = domain.MethodAutoTrusted

	require.NoError(t, s.Record(older))
	require.NoError(t, s.Record(newer))

	ok, err := s.IsVerified("@alice:example.org", "DEVICEX")
	require.NoError(t, err)
	require.True(t, ok)

	verified, err := s.ListVerified()
	require.NoError(t, err)
	require.Len(t, verified, 1)
	require.Equal(t, int64(1_700_100_000), verified[0].VerifiedUTC)
	require.Equal(t, domain.MethodAutoTrusted, verified[0].Method)

	history, err := s.History("@alice:example.org", "DEVICEX")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].Superseded)
	require.False(t, history[1].Superseded)
}

func TestFileStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, truststore.NewFileStore(dir).Record(domain.TrustRecord{
		UserID:      "@bob:example.org",
		DeviceID:    "DEVICEZ",
		VerifiedUTC: 1_700_000_000,
		Method:      domain.MethodSAS,
	}))

	// A fresh store over the same dir models a process restart.
	reopened := truststore.NewFileStore(dir)
	ok, err := reopened.IsVerified("@bob:example.org", "DEVICEZ")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFileStore_ListVerifiedSpansDevices(t *testing.T) {
	dir := t.TempDir()
	s := truststore.NewFileStore(dir)

	for _, rec := range []domain.TrustRecord{
		{UserID: "@alice:example.org", DeviceID: "DEVICEX", VerifiedUTC: 1, Method: domain.MethodSAS},
		{UserID: "@alice:example.org", DeviceID: "DEVICEY", VerifiedUTC: 2, Method: domain.MethodSAS},
		{UserID: "@bob:example.org", DeviceID: "DEVICEZ", VerifiedUTC: 3, Method: domain.MethodFingerprint},
	} {
		require.NoError(t, s.Record(rec))
	}

	verified, err := s.ListVerified()
	require.NoError(t, err)
	require.Len(t, verified, 3)
}
