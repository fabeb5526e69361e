package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qchat/internal/domain"
)

type fakeBroker struct {
	triple domain.CredentialTriple
	err    error
	calls  int
}

func (f *fakeBroker) Exchange(_ context.Context, _ string) (domain.CredentialTriple, error) {
	f.calls++
	return f.triple, f.err
}

type fakeStore struct {
	triple     domain.CredentialTriple
	found      bool
	loadErr    error
	saveErr    error
	clearErr   error
	saveCalls  int
	clearCalls int
}

func (f *fakeStore) Load(_ context.Context) (domain.CredentialTriple, bool, error) {
	return f.triple, f.found, f.loadErr
}

func (f *fakeStore) Save(_ context.Context, triple domain.CredentialTriple) error {
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.triple = triple
	f.found = true
	return nil
}

func (f *fakeStore) Clear(_ context.Context) error {
	f.clearCalls++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.triple = domain.CredentialTriple{}
	f.found = false
	return nil
}

func brokerTriple() domain.CredentialTriple {
	return domain.CredentialTriple{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    "session",
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(nil, &fakeStore{})
	require.Error(t, err)
	_, err = NewManager(&fakeBroker{}, nil)
	require.Error(t, err)
}

func TestAcquire_StampsLocalExpirationAndPersists(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	broker := &fakeBroker{triple: brokerTriple()}
	store := &fakeStore{}
	m, err := NewManager(broker, store, WithClock(fixedClock(now)))
	require.NoError(t, err)

	triple, err := m.Acquire(context.Background(), "id-token")
	require.NoError(t, err)
	require.Equal(t, now.Add(FixedTTL), triple.Expiration)
	require.Equal(t, 1, store.saveCalls)
	require.Equal(t, triple, store.triple)
	require.Equal(t, StateValid, m.State())
}

func TestAcquire_BrokerErrorDoesNotPersist(t *testing.T) {
	broker := &fakeBroker{err: errors.New("Exception: bad audience")}
	store := &fakeStore{}
	m, err := NewManager(broker, store)
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "id-token")
	require.Error(t, err)
	require.Zero(t, store.saveCalls)
	require.Equal(t, StateAbsent, m.State())
}

func TestLoadCached_Absent(t *testing.T) {
	m, err := NewManager(&fakeBroker{}, &fakeStore{})
	require.NoError(t, err)

	state, _, err := m.LoadCached(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)
}

func TestLoadCached_ValidDoesNotEvict(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stored := brokerTriple()
	stored.Expiration = now.Add(RefreshThreshold) // boundary: exactly at threshold stays valid
	store := &fakeStore{triple: stored, found: true}
	m, err := NewManager(&fakeBroker{}, store, WithClock(fixedClock(now)))
	require.NoError(t, err)

	state, triple, err := m.LoadCached(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateValid, state)
	require.Equal(t, stored, triple)
	require.Zero(t, store.clearCalls)
}

func TestLoadCached_ExpiringSoonEvictsAndReportsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stored := brokerTriple()
	stored.Expiration = now.Add(RefreshThreshold - time.Second)
	store := &fakeStore{triple: stored, found: true}
	m, err := NewManager(&fakeBroker{}, store, WithClock(fixedClock(now)))
	require.NoError(t, err)

	state, _, err := m.LoadCached(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateExpired, state)
	require.Equal(t, 1, store.clearCalls)

	// Idempotent: the slot is gone now.
	state, _, err = m.LoadCached(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)
}

func TestMarkStale_FlipsDerivedState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(&fakeBroker{triple: brokerTriple()}, &fakeStore{}, WithClock(fixedClock(now)))
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "id-token")
	require.NoError(t, err)
	require.Equal(t, StateValid, m.State())

	m.MarkStale()
	require.Equal(t, StateExpiringSoon, m.State())
}

func TestRefresh_ResetsStaleness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(&fakeBroker{triple: brokerTriple()}, &fakeStore{}, WithClock(fixedClock(now)))
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "id-token")
	require.NoError(t, err)
	m.MarkStale()

	_, err = m.Refresh(context.Background(), "id-token")
	require.NoError(t, err)
	require.Equal(t, StateValid, m.State())
}

func TestClear_EvictsAndResets(t *testing.T) {
	store := &fakeStore{}
	m, err := NewManager(&fakeBroker{triple: brokerTriple()}, store)
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "id-token")
	require.NoError(t, err)

	require.NoError(t, m.Clear(context.Background()))
	require.Equal(t, 1, store.clearCalls)
	require.Equal(t, StateAbsent, m.State())

	_, held := m.Current()
	require.False(t, held)
}

func TestState_ExpiredPastExpiration(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	m, err := NewManager(&fakeBroker{triple: brokerTriple()}, &fakeStore{}, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "id-token")
	require.NoError(t, err)

	clock = now.Add(FixedTTL + time.Minute)
	require.Equal(t, StateExpired, m.State())
}

func TestProvider_RetrievesHeldTriple(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(&fakeBroker{triple: brokerTriple()}, &fakeStore{}, WithClock(fixedClock(now)))
	require.NoError(t, err)

	_, err = m.Provider().Retrieve(context.Background())
	require.Error(t, err, "no triple held yet")

	_, err = m.Acquire(context.Background(), "id-token")
	require.NoError(t, err)

	creds, err := m.Provider().Retrieve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "AKIAEXAMPLE", creds.AccessKeyID)
	require.True(t, creds.CanExpire)
	require.Equal(t, now.Add(FixedTTL), creds.Expires)
}

func TestExportBlock(t *testing.T) {
	got := ExportBlock(brokerTriple())
	require.Equal(t,
		"export AWS_ACCESS_KEY_ID=AKIAEXAMPLE\nexport AWS_SECRET_ACCESS_KEY=secret\nexport AWS_SESSION_TOKEN=session\n",
		got)
}
