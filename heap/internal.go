package heap

import (
	"fmt"
	"sort"
)

// Interface is the container a heap operates on. Push appends at Len() and
// Pop removes the element at Len()-1; the functions in this package move
// elements into place around those two calls.
type Interface[VALUE any] interface {
	sort.Interface
	Push(x VALUE)
	Pop() (VALUE, error)
}

// Init establishes the heap invariant over h. It is O(n).
func Init[VALUE any](heap Interface[VALUE]) {
	n := heap.Len()
	for i := n/2 - 1; i >= 0; i-- {
		heapifyDown(heap, i, n)
	}
}

// Push adds x to the heap in O(log n).
func Push[VALUE any](heap Interface[VALUE], x VALUE) {
	heap.Push(x)
	heapifyUp(heap, heap.Len()-1)
}

// Pop removes and returns the minimum element according to Less.
func Pop[VALUE any](heap Interface[VALUE]) (VALUE, error) {
	n := heap.Len() - 1
	if n < 0 {
		var empty VALUE
		return empty, fmt.Errorf("pop a empty heap")
	}

	heap.Swap(0, n)
	heapifyDown(heap, 0, n)
	return heap.Pop()
}

// Remove removes and returns the element at index i.
func Remove[VALUE any](heap Interface[VALUE], i int) (VALUE, error) {
	n := heap.Len() - 1
	if n < 0 {
		var empty VALUE
		return empty, fmt.Errorf("remove a empty heap")
	}
	if i < 0 || i > n {
		var empty VALUE
		return empty, fmt.Errorf("remove index %d out of range [0, %d]", i, n)
	}

	if n != i {
		heap.Swap(i, n)
		if !heapifyDown(heap, i, n) {
			heapifyUp(heap, i)
		}
	}
	return heap.Pop()
}

// Fix re-establishes the ordering after the element at index i has changed.
func Fix[VALUE any](h Interface[VALUE], i int) {
	if !heapifyDown(h, i, h.Len()) {
		heapifyUp(h, i)
	}
}

func heapifyUp[VALUE any](heap Interface[VALUE], i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !heap.Less(i, parent) {
			break
		}

		heap.Swap(parent, i)
		i = parent
	}
}

func heapifyDown[VALUE any](h Interface[VALUE], i0, n int) bool {
	i := i0
	for {
		left := 2*i + 1
		if left >= n || left < 0 { // left < 0 after int overflow
			break
		}

		minimum := left
		if right := left + 1; right < n && h.Less(right, left) {
			minimum = right
		}

		if !h.Less(minimum, i) {
			break
		}

		h.Swap(i, minimum)
		i = minimum
	}
	return i > i0
}
