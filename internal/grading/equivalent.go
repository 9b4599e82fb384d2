// Package grading reconciles detected answer-sheet selections against an
// exam's answer key and keeps the per-question rows of a grading session.
package grading

// Equivalent reports whether two selections contain the same option indices.
// Order and duplicates are ignored and nil is the empty set.
func Equivalent(detected, correct []int) bool {
	a, b := toSet(detected), toSet(correct)
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func toSet(in []int) map[int]struct{} {
	m := make(map[int]struct{}, len(in))
	for _, v := range in {
		m[v] = struct{}{}
	}
	return m
}
