package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	snaps   map[string]*Snapshot
	saved   int
	loadErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]*Snapshot)}
}

func (m *memStore) Latest(_ context.Context, stack, region string) (*Snapshot, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	s, ok := m.snaps[region+"/"+stack]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return s, nil
}

func (m *memStore) Save(_ context.Context, s *Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved++
	m.snaps[s.Region+"/"+s.Stack] = s
	return nil
}

type countingProvider struct {
	records []DeploymentRecord
	err     error
	calls   int
}

func (c *countingProvider) Fetch(_ context.Context, _ string, logicalIDs ...string) ([]DeploymentRecord, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return filter(c.records, logicalIDs), nil
}

func newTestCache(live Provider, store Store, clock *time.Time) *CachingProvider {
	p := NewCachingProvider(live, store, "us-east-1", 5*time.Minute, nil)
	p.now = func() time.Time { return *clock }
	return p
}

func TestCachingProvider_MissThenHit(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	live := &countingProvider{records: []DeploymentRecord{
		{LogicalResourceID: "A", PhysicalResourceID: "a"},
		{LogicalResourceID: "B", PhysicalResourceID: "b"},
	}}
	store := newMemStore()
	p := newTestCache(live, store, &clock)

	got, err := p.Fetch(context.Background(), "Stack", "A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].PhysicalResourceID)
	assert.Equal(t, 1, live.calls)
	assert.Equal(t, 1, store.saved)

	snap := store.snaps["us-east-1/Stack"]
	require.NotNil(t, snap)
	assert.Len(t, snap.Records, 2, "the whole stack is cached")
	assert.Equal(t, clock, snap.FetchedAt)

	clock = clock.Add(time.Minute)
	got, err = p.Fetch(context.Background(), "Stack", "B")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].PhysicalResourceID)
	assert.Equal(t, 1, live.calls)
}

func TestCachingProvider_StaleRefreshes(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	live := &countingProvider{records: []DeploymentRecord{{LogicalResourceID: "A", PhysicalResourceID: "new"}}}
	store := newMemStore()
	store.snaps["us-east-1/Stack"] = &Snapshot{
		Stack:     "Stack",
		Region:    "us-east-1",
		FetchedAt: clock.Add(-10 * time.Minute),
		Records:   []DeploymentRecord{{LogicalResourceID: "A", PhysicalResourceID: "old"}},
	}
	p := newTestCache(live, store, &clock)

	got, err := p.Fetch(context.Background(), "Stack", "A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].PhysicalResourceID)
	assert.Equal(t, 1, live.calls)
}

func TestCachingProvider_StoreFailuresFallBackToLive(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	live := &countingProvider{records: []DeploymentRecord{{LogicalResourceID: "A", PhysicalResourceID: "a"}}}
	store := newMemStore()
	store.loadErr = errors.New("connection refused")
	store.saveErr = errors.New("connection refused")
	p := newTestCache(live, store, &clock)

	got, err := p.Fetch(context.Background(), "Stack", "A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, live.calls)
}

func TestCachingProvider_LiveErrorIsReturned(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cause := errors.New("throttled")
	live := &countingProvider{err: cause}
	store := newMemStore()
	p := newTestCache(live, store, &clock)

	got, err := p.Fetch(context.Background(), "Stack", "A")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, got)
	assert.Zero(t, store.saved)
}

func TestCachingProvider_ZeroTTLAlwaysRefreshes(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	live := &countingProvider{records: []DeploymentRecord{{LogicalResourceID: "A"}}}
	p := newTestCache(live, newMemStore(), &clock)
	p.TTL = 0

	for i := 0; i < 3; i++ {
		_, err := p.Fetch(context.Background(), "Stack")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, live.calls)
}
