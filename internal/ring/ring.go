// Package ring is an index-addressed adaption of `container/ring`
// used as the recency list of the kernel row cache.
//
// Nodes are the integers `0..n`. The sentinel is not a node;
// it lives in the list's own front/back fields and is spelled
// [Sentinel] wherever a link points at it.
package ring

import "iter"

// Sentinel is the link value used for the list head/tail.
const Sentinel = -1

// A List is a circular doubly linked list over node indices.
// A node that is not in the list is linked to itself.
// The zero value is an empty list with no nodes.
type List struct {
	next, prev  []int
	front, back int
	initialized bool
}

func (l *List) init() {
	if !l.initialized {
		l.front, l.back = Sentinel, Sentinel
		l.initialized = true
	}
}

// Grow extends the node space to at least n nodes.
// New nodes start unlinked.
func (l *List) Grow(n int) {
	l.init()
	for i := len(l.next); i < n; i++ {
		l.next = append(l.next, i)
		l.prev = append(l.prev, i)
	}
}

// Cap returns the size of the node space.
func (l *List) Cap() int { return len(l.next) }

// Linked reports whether node i is currently in the list.
func (l *List) Linked(i int) bool {
	return i < len(l.next) && l.next[i] != i
}

// Front returns the most recently pushed-front node,
// or [Sentinel] if the list is empty.
func (l *List) Front() int {
	l.init()
	return l.front
}

// Back returns the node at the back of the list,
// or [Sentinel] if the list is empty.
func (l *List) Back() int {
	l.init()
	return l.back
}

func (l *List) setNext(i, n int) {
	if i == Sentinel {
		l.front = n
		return
	}
	l.next[i] = n
}

func (l *List) setPrev(i, p int) {
	if i == Sentinel {
		l.back = p
		return
	}
	l.prev[i] = p
}

// Remove unlinks node i. Removing an unlinked node is a no-op.
func (l *List) Remove(i int) {
	if !l.Linked(i) {
		return
	}
	p, n := l.prev[i], l.next[i]
	l.setNext(p, n)
	l.setPrev(n, p)
	l.next[i] = i
	l.prev[i] = i
}

// PushFront moves node i to the front of the list.
func (l *List) PushFront(i int) {
	l.init()
	l.Remove(i)
	n := l.front
	l.prev[i] = Sentinel
	l.next[i] = n
	l.front = i
	l.setPrev(n, i)
}

// PushBack moves node i to the back of the list.
func (l *List) PushBack(i int) {
	l.init()
	l.Remove(i)
	p := l.back
	l.next[i] = Sentinel
	l.prev[i] = p
	l.back = i
	l.setNext(p, i)
}

// Len computes the number of linked nodes.
// It executes in time proportional to that number.
func (l *List) Len() int {
	n := 0
	for range l.All() {
		n++
	}
	return n
}

// All returns an iterator over the linked nodes from front to back.
// The node being yielded may be removed by the caller;
// other mutations during iteration are undefined.
func (l *List) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := l.Front(); i != Sentinel; {
			next := l.next[i]
			if !yield(i) {
				return
			}
			i = next
		}
	}
}

// Backward is like [List.All] but walks from back to front.
func (l *List) Backward() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := l.Back(); i != Sentinel; {
			prev := l.prev[i]
			if !yield(i) {
				return
			}
			i = prev
		}
	}
}
