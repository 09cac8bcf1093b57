// Package statemachine implements C1: a pure, side-effect-free state
// machine over domain.ProcessingStatus. It is the only place transition
// legality is decided; the orchestrator (C6) is the only caller that's
// allowed to act on that decision.
package statemachine

import (
	"fmt"

	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/ingesterr"
)

var forwardIndex = func() map[domain.ProcessingStatus]int {
	m := map[domain.ProcessingStatus]int{}
	for i, s := range domain.ForwardOrder() {
		m[s] = i
	}
	return m
}()

// IsTerminal reports whether status is one of the item terminal states.
func IsTerminal(status domain.ProcessingStatus) bool {
	switch status {
	case domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled, domain.StatusSkipped:
		return true
	default:
		return false
	}
}

// CanRetry reports whether status may transition to pending via retry.
func CanRetry(status domain.ProcessingStatus) bool {
	return status == domain.StatusFailed
}

// RequiresValidation reports whether a state requires a pipeline
// re-validation on resume (it was reached by suspension rather than a
// synchronous step chain).
func RequiresValidation(status domain.ProcessingStatus) bool {
	switch status {
	case domain.StatusDownloading, domain.StatusEncoding, domain.StatusDelivering:
		return true
	default:
		return false
	}
}

// CanRecoveryReset reports whether a recovery worker (C7) may force status
// back to pending from from. This is a deliberate, narrowly-scoped bypass of
// invariant 1's forward-only chain: found and downloading are the two states
// a step can get stuck in with no forward progress and no failure recorded,
// so recovery needs a backward edge ordinary callers (retry, cancel) never
// get. Never consulted by CanTransition/Transition.
func CanRecoveryReset(status domain.ProcessingStatus) bool {
	return status == domain.StatusFound || status == domain.StatusDownloading
}

// CanContinueTVDelivery reports whether a recovery worker (C7) may loop a
// delivering item back to pending for another pass (§4.6 TV continuation): a
// delivery that failed leaves the execution paused with no forward progress
// and no failure recorded, the same shape CanRecoveryReset covers for found
// and downloading, kept separate because the two reconcilers answer
// different questions (stuck vs. needs-another-pass) even though both reset
// to pending. Also never consulted by CanTransition/Transition.
func CanContinueTVDelivery(status domain.ProcessingStatus) bool {
	return status == domain.StatusDelivering
}

// CanTransition reports whether from -> to is a legal edge per invariant 1:
// forward-only along the ordered chain, plus any-non-terminal -> failed or
// cancelled, plus failed -> pending (retry).
func CanTransition(from, to domain.ProcessingStatus) bool {
	if from == to {
		return true
	}
	if to == domain.StatusFailed || to == domain.StatusCancelled {
		return !IsTerminal(from)
	}
	if from == domain.StatusFailed && to == domain.StatusPending {
		return true
	}
	fromIdx, fromOK := forwardIndex[from]
	toIdx, toOK := forwardIndex[to]
	if !fromOK || !toOK {
		return false
	}
	return toIdx > fromIdx
}

// Transition validates from -> to and returns to, or a typed
// InvalidTransition error.
func Transition(from, to domain.ProcessingStatus) (domain.ProcessingStatus, error) {
	if !CanTransition(from, to) {
		return from, ingesterr.New(ingesterr.InvalidTransition,
			fmt.Sprintf("cannot transition from %q to %q", from, to))
	}
	return to, nil
}

// NextStates returns the set of statuses reachable directly from from.
func NextStates(from domain.ProcessingStatus) []domain.ProcessingStatus {
	var out []domain.ProcessingStatus
	for _, candidate := range allStatuses() {
		if candidate != from && CanTransition(from, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

// NaturalNext returns the single forward-chain successor of status, or ""
// if status is the last step in the chain or not part of it.
func NaturalNext(status domain.ProcessingStatus) domain.ProcessingStatus {
	idx, ok := forwardIndex[status]
	if !ok {
		return ""
	}
	order := domain.ForwardOrder()
	if idx+1 >= len(order) {
		return ""
	}
	return order[idx+1]
}

func allStatuses() []domain.ProcessingStatus {
	out := append([]domain.ProcessingStatus{}, domain.ForwardOrder()...)
	out = append(out, domain.StatusFailed, domain.StatusCancelled, domain.StatusSkipped)
	return out
}
