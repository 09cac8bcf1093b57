package statemachine

import (
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/ingesterr"
	"github.com/stretchr/testify/require"
)

// TestForwardChainIsLegal asserts every adjacent pair in the forward chain
// is a legal transition, and no pair skips are blocked (skipping forward is
// legal per invariant 1).
func TestForwardChainIsLegal(t *testing.T) {
	order := domain.ForwardOrder()
	for i := range order {
		for j := i; j < len(order); j++ {
			require.True(t, CanTransition(order[i], order[j]), "%s -> %s should be legal", order[i], order[j])
		}
		for j := 0; j < i; j++ {
			require.False(t, CanTransition(order[i], order[j]), "%s -> %s should be illegal (backward)", order[i], order[j])
		}
	}
}

func TestAnyNonTerminalCanFailOrCancel(t *testing.T) {
	for _, s := range domain.ForwardOrder() {
		require.True(t, CanTransition(s, domain.StatusFailed))
		require.True(t, CanTransition(s, domain.StatusCancelled))
	}
}

func TestTerminalStatesCannotFailOrCancelAgain(t *testing.T) {
	require.False(t, CanTransition(domain.StatusCompleted, domain.StatusFailed))
	require.False(t, CanTransition(domain.StatusCancelled, domain.StatusFailed))
	// self-transitions are always a no-op, even from a terminal state.
	require.True(t, CanTransition(domain.StatusFailed, domain.StatusFailed))
}

func TestFailedToPendingIsTheOnlyTerminalEscape(t *testing.T) {
	require.True(t, CanTransition(domain.StatusFailed, domain.StatusPending))
	require.False(t, CanTransition(domain.StatusCancelled, domain.StatusPending))
	require.False(t, CanTransition(domain.StatusCompleted, domain.StatusPending))
}

func TestSelfTransitionIsNoop(t *testing.T) {
	for _, s := range append(domain.ForwardOrder(), domain.StatusFailed, domain.StatusCancelled) {
		got, err := Transition(s, s)
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
}

func TestTransitionReturnsTypedError(t *testing.T) {
	_, err := Transition(domain.StatusEncoding, domain.StatusSearching)
	require.Error(t, err)
	kind, ok := ingesterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, "invalid_transition", string(kind))
}

func TestNaturalNext(t *testing.T) {
	require.Equal(t, domain.StatusSearching, NaturalNext(domain.StatusPending))
	require.Equal(t, domain.ProcessingStatus(""), NaturalNext(domain.StatusCompleted))
	require.Equal(t, domain.ProcessingStatus(""), NaturalNext(domain.StatusFailed))
}

func TestNextStatesIncludesForwardAndFailCancel(t *testing.T) {
	next := NextStates(domain.StatusDownloading)
	require.Contains(t, next, domain.StatusDownloaded)
	require.Contains(t, next, domain.StatusFailed)
	require.Contains(t, next, domain.StatusCancelled)
	require.NotContains(t, next, domain.StatusSearching)
}

func TestIsTerminalAndCanRetry(t *testing.T) {
	require.True(t, IsTerminal(domain.StatusCompleted))
	require.True(t, IsTerminal(domain.StatusFailed))
	require.True(t, IsTerminal(domain.StatusCancelled))
	require.False(t, IsTerminal(domain.StatusEncoding))

	require.True(t, CanRetry(domain.StatusFailed))
	require.False(t, CanRetry(domain.StatusCompleted))
	require.False(t, CanRetry(domain.StatusEncoding))
}

func TestCanRecoveryResetAndCanContinueTVDeliveryAreDisjoint(t *testing.T) {
	require.True(t, CanRecoveryReset(domain.StatusFound))
	require.True(t, CanRecoveryReset(domain.StatusDownloading))
	require.False(t, CanRecoveryReset(domain.StatusDelivering))

	require.True(t, CanContinueTVDelivery(domain.StatusDelivering))
	require.False(t, CanContinueTVDelivery(domain.StatusFound))
	require.False(t, CanContinueTVDelivery(domain.StatusDownloading))
}
