package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/livepeer-forks/ingestctl/internal/domain"
)

// Evaluate implements the condition language from §4.2: comparisons over a
// dotted path into the context, composed with AND/OR. An unknown operator or
// a missing path evaluates to false rather than erroring, so a malformed
// template degrades to "skip the step" instead of crashing the executor.
func Evaluate(c Condition, pctx domain.StepContext) bool {
	if len(c.And) > 0 {
		for _, sub := range c.And {
			if !Evaluate(sub, pctx) {
				return false
			}
		}
		return true
	}
	if len(c.Or) > 0 {
		for _, sub := range c.Or {
			if Evaluate(sub, pctx) {
				return true
			}
		}
		return false
	}
	if c.Path == "" {
		return false
	}
	actual, ok := lookup(pctx, c.Path)
	if !ok {
		return false
	}
	return compare(actual, c.Operator, c.Value)
}

// lookup resolves a dotted path against the context's JSON-shaped view:
// reserved sub-objects first (search, download, encode, deliver, approval),
// falling back to the open Extra map.
func lookup(pctx domain.StepContext, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var root any
	switch parts[0] {
	case "search":
		if pctx.Search == nil {
			return nil, false
		}
		root = toMap(pctx.Search)
	case "download":
		if pctx.Download == nil {
			return nil, false
		}
		root = toMap(pctx.Download)
	case "encode":
		if pctx.Encode == nil {
			return nil, false
		}
		root = toMap(pctx.Encode)
	case "deliver":
		if pctx.Deliver == nil {
			return nil, false
		}
		root = toMap(pctx.Deliver)
	case "approval":
		if pctx.Approval == nil {
			return nil, false
		}
		root = toMap(pctx.Approval)
	default:
		if pctx.Extra == nil {
			return nil, false
		}
		v, ok := pctx.Extra[parts[0]]
		if !ok {
			return nil, false
		}
		root = v
	}
	return descend(root, parts[1:])
}

func descend(root any, rest []string) (any, bool) {
	cur := root
	for _, key := range rest {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// toMap marshals a reserved sub-object struct to a generic map via the
// struct's existing json representation so dotted lookups work uniformly.
func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func compare(actual any, op string, want any) bool {
	switch op {
	case "==":
		return fmt.Sprint(actual) == fmt.Sprint(want)
	case "!=":
		return fmt.Sprint(actual) != fmt.Sprint(want)
	case ">", "<", ">=", "<=":
		a, aok := toFloat(actual)
		w, wok := toFloat(want)
		if !aok || !wok {
			return false
		}
		switch op {
		case ">":
			return a > w
		case "<":
			return a < w
		case ">=":
			return a >= w
		case "<=":
			return a <= w
		}
	case "in":
		return containsAny(want, actual)
	case "not_in":
		return !containsAny(want, actual)
	case "contains":
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(want))
	case "matches":
		return matchesGlob(fmt.Sprint(actual), fmt.Sprint(want))
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func containsAny(collection any, want any) bool {
	items, ok := collection.([]any)
	if !ok {
		return false
	}
	for _, it := range items {
		if fmt.Sprint(it) == fmt.Sprint(want) {
			return true
		}
	}
	return false
}

func matchesGlob(s, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return s == pattern
	}
	prefix, suffix, _ := strings.Cut(pattern, "*")
	return strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix)
}
