// Package breaker implements C8: a per-external-service circuit breaker
// with CLOSED/OPEN/HALF_OPEN state, persisted so it survives restart, built
// atop github.com/sony/gobreaker rather than hand-rolling the state
// machine the ecosystem already solved.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/livepeer-forks/ingestctl/internal/config"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/ingesterr"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/metrics"
	"github.com/sony/gobreaker"
)

// Store is the narrow persistence surface Registry needs; satisfied by
// internal/store.Store.
type Store interface {
	UpsertCircuitBreaker(ctx context.Context, row domain.CircuitBreakerRow) error
	GetCircuitBreaker(ctx context.Context, service string) (domain.CircuitBreakerRow, bool, error)
}

// Registry owns one gobreaker.CircuitBreaker per named external service and
// keeps the persisted row in sync on every state change.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	store    Store
	metrics  *metrics.Metrics
}

// NewRegistry builds a Registry backed by store, publishing state-change
// gauges onto m if non-nil.
func NewRegistry(store Store, m *metrics.Metrics) *Registry {
	return &Registry{
		breakers: map[string]*gobreaker.CircuitBreaker{},
		store:    store,
		metrics:  m,
	}
}

func (r *Registry) breakerFor(service string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: uint32(config.BreakerSuccessThreshold),
		Interval:    0,
		Timeout:     config.BreakerHalfOpenAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.BreakerFailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.persist(context.Background(), name, to)
		},
	})
	r.breakers[service] = b
	return b
}

// IsAvailable reports whether calls to service should be attempted right
// now: true when CLOSED or HALF_OPEN, true when OPEN but the cooldown has
// elapsed (gobreaker itself transitions to HALF_OPEN on the next Execute),
// false otherwise.
func (r *Registry) IsAvailable(service string) bool {
	return r.breakerFor(service).State() != gobreaker.StateOpen
}

// Execute runs fn through service's breaker, mapping an open-breaker
// rejection to ingesterr.ExternalUnavailable so steps can translate it into
// shouldRetry=true per spec §7.
func (r *Registry) Execute(ctx context.Context, service string, fn func() (any, error)) (any, error) {
	result, err := r.breakerFor(service).Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		logx.Log(service, "circuit breaker rejected call", "state", r.breakerFor(service).State().String())
		return nil, ingesterr.Wrap(ingesterr.ExternalUnavailable, "circuit breaker open for "+service, err)
	}
	return result, err
}

func (r *Registry) persist(ctx context.Context, service string, to gobreaker.State) {
	if r.store == nil {
		return
	}
	row := domain.CircuitBreakerRow{Service: service, State: mapState(to)}
	now := time.Now()
	switch to {
	case gobreaker.StateOpen:
		row.LastFailure = &now
		opensAt := now.Add(config.BreakerHalfOpenAfter)
		row.OpensAt = &opensAt
	}
	if err := r.store.UpsertCircuitBreaker(ctx, row); err != nil {
		logx.LogError(service, "failed to persist circuit breaker state", err)
	}
	if r.metrics != nil {
		r.metrics.Breaker.State.WithLabelValues(service).Set(stateGauge(to))
	}
}

func mapState(s gobreaker.State) domain.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return domain.BreakerOpen
	case gobreaker.StateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}

func stateGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// WasOpenAndCooldownActive reports whether service's persisted row says the
// breaker was OPEN with opensAt still in the future (CircuitBreaker rows are
// the restart-survival source). gobreaker has no public way to seed
// Counts/state directly, so the in-memory breaker itself starts CLOSED after
// a restart; this check reads the persisted row instead. It returns false
// when there is no store, no row, or the read fails.
func (r *Registry) WasOpenAndCooldownActive(ctx context.Context, service string) bool {
	if r.store == nil {
		return false
	}
	row, ok, err := r.store.GetCircuitBreaker(ctx, service)
	if err != nil || !ok {
		return false
	}
	if row.State != domain.BreakerOpen || row.OpensAt == nil {
		return false
	}
	return time.Now().Before(*row.OpensAt)
}
