package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/ingesterr"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]domain.CircuitBreakerRow
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]domain.CircuitBreakerRow{}}
}

func (f *fakeStore) UpsertCircuitBreaker(ctx context.Context, row domain.CircuitBreakerRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.Service] = row
	return nil
}

func (f *fakeStore) GetCircuitBreaker(ctx context.Context, service string) (domain.CircuitBreakerRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[service]
	return row, ok, nil
}

func TestRegistryOpensAfterThreshold(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)

	failing := func() (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := r.Execute(context.Background(), "indexer", failing)
		require.Error(t, err)
	}

	require.False(t, r.IsAvailable("indexer"))

	_, err := r.Execute(context.Background(), "indexer", func() (any, error) { return "ok", nil })
	require.Error(t, err)
	kind, ok := ingesterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ingesterr.ExternalUnavailable, kind)

	row, ok, err := store.GetCircuitBreaker(context.Background(), "indexer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.BreakerOpen, row.State)
}

func TestRegistryStaysClosedOnSuccess(t *testing.T) {
	r := NewRegistry(nil, nil)
	ok := func() (any, error) { return "ok", nil }
	for i := 0; i < 5; i++ {
		_, err := r.Execute(context.Background(), "delivery", ok)
		require.NoError(t, err)
	}
	require.True(t, r.IsAvailable("delivery"))
}
