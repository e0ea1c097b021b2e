// Package join provides relational-join primitives over slices, keyed by
// caller-supplied extractor functions. The orchestration layer uses them
// to reconcile locally known projects against remotely reported
// environments without assuming either side is complete.
package join

// Pair holds one joined row. For outer joins the missing side is nil.
type Pair[L, R any] struct {
	Left  *L
	Right *R
}

// rightLookup materializes the right side into a key map. Keys need not
// be unique: on duplicates the last element wins, shadowing earlier
// ones. Callers relying on a particular winner among duplicate right
// keys are out of luck; the remote system does not produce duplicates.
func rightLookup[R any, K comparable](rightKey func(*R) K, right []R) map[K]*R {
	lookup := make(map[K]*R, len(right))
	for i := range right {
		lookup[rightKey(&right[i])] = &right[i]
	}
	return lookup
}

// Inner returns the pairs whose key is present on both sides, in left
// order. Unmatched elements on either side are dropped.
func Inner[L, R any, K comparable](leftKey func(*L) K, left []L, rightKey func(*R) K, right []R) []Pair[L, R] {
	lookup := rightLookup(rightKey, right)
	pairs := make([]Pair[L, R], 0, len(left))
	for i := range left {
		if r, ok := lookup[leftKey(&left[i])]; ok {
			pairs = append(pairs, Pair[L, R]{Left: &left[i], Right: r})
		}
	}
	return pairs
}

// Left returns one pair per left element in left order, with Right nil
// where no match exists.
func Left[L, R any, K comparable](leftKey func(*L) K, left []L, rightKey func(*R) K, right []R) []Pair[L, R] {
	lookup := rightLookup(rightKey, right)
	pairs := make([]Pair[L, R], 0, len(left))
	for i := range left {
		pairs = append(pairs, Pair[L, R]{Left: &left[i], Right: lookup[leftKey(&left[i])]})
	}
	return pairs
}

// Right is the mirror of Left: one pair per right element in right
// order, with Left nil where no match exists.
func Right[L, R any, K comparable](leftKey func(*L) K, left []L, rightKey func(*R) K, right []R) []Pair[L, R] {
	mirrored := Left(rightKey, right, leftKey, left)
	pairs := make([]Pair[L, R], 0, len(mirrored))
	for _, p := range mirrored {
		pairs = append(pairs, Pair[L, R]{Left: p.Right, Right: p.Left})
	}
	return pairs
}

// FullOuter returns the union of both sides: left elements without a
// match first (in left order), then every right element in right order,
// matched or not.
func FullOuter[L, R any, K comparable](leftKey func(*L) K, left []L, rightKey func(*R) K, right []R) []Pair[L, R] {
	lookup := rightLookup(rightKey, right)
	pairs := make([]Pair[L, R], 0, len(left)+len(right))
	for i := range left {
		if _, ok := lookup[leftKey(&left[i])]; !ok {
			pairs = append(pairs, Pair[L, R]{Left: &left[i]})
		}
	}
	pairs = append(pairs, Right(leftKey, left, rightKey, right)...)
	return pairs
}
