package pipeline

import (
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/stretchr/testify/require"
)

func contextWithSearch(resolution string, meetsQuality bool) domain.StepContext {
	return domain.StepContext{
		Search: &domain.SearchContext{
			SelectedRelease: &domain.Release{Resolution: resolution, MeetsQuality: meetsQuality},
		},
	}
}

func TestEvaluateEquality(t *testing.T) {
	ctx := contextWithSearch("1080p", true)
	require.True(t, Evaluate(Condition{Path: "search.selectedRelease.resolution", Operator: "==", Value: "1080p"}, ctx))
	require.False(t, Evaluate(Condition{Path: "search.selectedRelease.resolution", Operator: "==", Value: "720p"}, ctx))
}

func TestEvaluateUnknownOperatorIsFalse(t *testing.T) {
	ctx := contextWithSearch("1080p", true)
	require.False(t, Evaluate(Condition{Path: "search.selectedRelease.resolution", Operator: "~=", Value: "1080p"}, ctx))
}

func TestEvaluateMissingPathIsFalse(t *testing.T) {
	ctx := domain.StepContext{}
	require.False(t, Evaluate(Condition{Path: "search.selectedRelease.resolution", Operator: "==", Value: "1080p"}, ctx))
}

func TestEvaluateAndOr(t *testing.T) {
	ctx := contextWithSearch("1080p", true)
	and := Condition{And: []Condition{
		{Path: "search.selectedRelease.resolution", Operator: "==", Value: "1080p"},
		{Path: "search.selectedRelease.meetsQuality", Operator: "==", Value: true},
	}}
	require.True(t, Evaluate(and, ctx))

	or := Condition{Or: []Condition{
		{Path: "search.selectedRelease.resolution", Operator: "==", Value: "720p"},
		{Path: "search.selectedRelease.resolution", Operator: "==", Value: "1080p"},
	}}
	require.True(t, Evaluate(or, ctx))
}

func TestEvaluateContainsAndIn(t *testing.T) {
	ctx := domain.StepContext{Extra: map[string]any{"tag": "hdr10"}}
	require.True(t, Evaluate(Condition{Path: "tag", Operator: "contains", Value: "hdr"}, ctx))
	require.True(t, Evaluate(Condition{Path: "tag", Operator: "in", Value: []any{"hdr10", "remux"}}, ctx))
	require.False(t, Evaluate(Condition{Path: "tag", Operator: "not_in", Value: []any{"hdr10", "remux"}}, ctx))
}

func TestEvaluateComparisonOperators(t *testing.T) {
	ctx := domain.StepContext{Extra: map[string]any{"seeders": float64(42)}}
	require.True(t, Evaluate(Condition{Path: "seeders", Operator: ">", Value: 10}, ctx))
	require.False(t, Evaluate(Condition{Path: "seeders", Operator: "<", Value: 10}, ctx))
	require.True(t, Evaluate(Condition{Path: "seeders", Operator: ">=", Value: 42}, ctx))
}
