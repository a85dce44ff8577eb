// Package eytzinger implements the Eytzinger (breadth-first heap) layout
// permutation and the cache-aware binary search that runs against it.
//
// The functions here operate on a label accessor rather than a concrete
// slice so the same search drives both an in-memory index and one fetched
// lazily over an io.ReaderAt.
package eytzinger

import "math/bits"

// Permutation computes P for a sorted input of length n such that
// E[k] = S[P[k-1]] for k in [1, n]: the source index that belongs at each
// Eytzinger array position. It follows the recursion:
//
//	eyt(i, k):
//	  if k > n: return i
//	  i = eyt(i, 2k)
//	  P[k-1] = i; i = i+1
//	  i = eyt(i, 2k+1)
//	  return i
//
// seeded with i=0, k=1. Recursion depth is O(log n).
func Permutation(n int) []int {
	p := make([]int, n)
	if n == 0 {
		return p
	}
	next := 0
	var visit func(k int)
	visit = func(k int) {
		if k > n {
			return
		}
		visit(2 * k)
		p[k-1] = next
		next++
		visit(2*k + 1)
	}
	visit(1)
	return p
}

// lowerBound runs the Eytzinger descent and returns the 0-indexed array
// position of the smallest label >= x, or a value outside
// [0, n) if no such label exists. label(pos) must read the label stored at
// 0-indexed Eytzinger position pos; it is called with pos in [0, n).
func lowerBound(n int, label func(pos int) uint64, x uint64) int {
	k := uint64(1)
	nn := uint64(n)
	for k <= nn {
		if label(int(k-1)) < x {
			k = 2*k + 1
		} else {
			k = 2 * k
		}
	}
	// k overshot past a leaf; back up to the last ancestor reached by a
	// "went left" step, i.e. the position of the lower bound.
	shift := bits.TrailingZeros64(^k) + 1
	k >>= uint(shift)
	return int(k) - 1
}

// Search locates key x among n labels laid out in Eytzinger order and
// reports the 0-indexed array position of an exact match, or ok=false.
func Search(n int, label func(pos int) uint64, x uint64) (pos int, ok bool) {
	if n == 0 {
		return -1, false
	}
	pos = lowerBound(n, label, x)
	if pos < 0 || pos >= n {
		return -1, false
	}
	if label(pos) != x {
		return -1, false
	}
	return pos, true
}

// Successor locates the smallest label strictly greater than x and reports
// its 0-indexed Eytzinger array position, or ok=false if x is the maximum
// label present (or n is 0).
func Successor(n int, label func(pos int) uint64, x uint64) (pos int, ok bool) {
	if n == 0 || x == ^uint64(0) {
		return -1, false
	}
	pos = lowerBound(n, label, x+1)
	if pos < 0 || pos >= n {
		return -1, false
	}
	return pos, true
}
