// Package delta computes the set of candidate work items that have not yet
// been recorded in the durable store. Dedup lives here and only here: the
// result sink appends blindly, and re-running with a fresh known-key snapshot
// yields an empty delta.
package delta

// KeySet builds a membership set from a slice of identity keys.
func KeySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Select returns the candidates whose identity is not in known, preserving
// input order. candidates must already be deduplicated by identity; known must
// be non-nil — callers that want "treat everything as new" pass an explicitly
// empty set so the fallback is a visible decision, not a silent default.
func Select[T any](candidates []T, identity func(T) string, known map[string]struct{}) []T {
	if len(known) == 0 {
		out := make([]T, len(candidates))
		copy(out, candidates)
		return out
	}
	out := make([]T, 0, len(candidates))
	for _, c := range candidates {
		if _, done := known[identity(c)]; done {
			continue
		}
		out = append(out, c)
	}
	return out
}
