package queue

import (
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/LiuYuuChen/timedqueue/heap"
)

type element[V any] struct {
	at    time.Time
	seq   uint64
	value V
}

// entries implements heap.Interface for elements. The oldest element
// (smallest at, then smallest seq) is at the root (index 0).
type entries[V any] []element[V]

func (pq entries[V]) Len() int {
	return len(pq)
}

func (pq entries[V]) Less(i, j int) bool {
	if pq[i].at.Equal(pq[j].at) {
		return pq[i].seq < pq[j].seq
	}
	return pq[i].at.Before(pq[j].at)
}

func (pq entries[V]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

// Push adds an item at index Len(). Use heap.Push instead of calling it
// directly.
func (pq *entries[V]) Push(item element[V]) {
	*pq = append(*pq, item)
}

// Pop removes the item at index Len()-1. Use heap.Pop instead of calling it
// directly.
func (pq *entries[V]) Pop() (element[V], error) {
	n := len(*pq)
	if n == 0 {
		return element[V]{}, fmt.Errorf("pop a empty heap")
	}
	item := (*pq)[n-1]
	(*pq)[n-1] = element[V]{}
	*pq = (*pq)[0 : n-1]
	return item, nil
}

// TimedQueue keeps values for at most maxAge after they were pushed and hands
// them back oldest first.
//
// Expired values are dropped lazily, at the start of the next Push, Pop, Peek,
// Len, Iter, List or Stats call. Nothing runs in the background, so a queue
// that is written to but never read keeps its expired values in memory;
// owners of idle queues should call Len periodically to reclaim them.
//
// A TimedQueue is not safe for concurrent use.
type TimedQueue[V any] struct {
	entries entries[V]
	maxAge  time.Duration
	seq     uint64

	clock  clock.PassiveClock
	last   time.Time
	logger logrus.FieldLogger
}

// NewTimedQueue returns an empty queue that expires values older than maxAge.
func NewTimedQueue[V any](maxAge time.Duration, opts ...Option) *TimedQueue[V] {
	return newTimedQueue[V](maxAge, 0, opts...)
}

// NewTimedQueueWithCapacity is NewTimedQueue with storage reserved for
// capacity values. The hint never limits how many values the queue holds.
func NewTimedQueueWithCapacity[V any](maxAge time.Duration, capacity int, opts ...Option) *TimedQueue[V] {
	return newTimedQueue[V](maxAge, capacity, opts...)
}

func newTimedQueue[V any](maxAge time.Duration, capacity int, opts ...Option) *TimedQueue[V] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.clock == nil {
		cfg.clock = clock.RealClock{}
	}
	if cfg.logger == nil {
		cfg.logger = logrus.StandardLogger()
	}
	if capacity < 0 {
		capacity = 0
	}

	return &TimedQueue[V]{
		entries: make(entries[V], 0, capacity),
		maxAge:  maxAge,
		clock:   cfg.clock,
		logger:  cfg.logger,
	}
}

// Push records value with the current time and returns the number of live
// values, including the new one.
func (q *TimedQueue[V]) Push(value V) int {
	now := q.now()
	q.purge(now)
	heap.Push[element[V]](&q.entries, element[V]{at: now, seq: q.seq, value: value})
	q.seq++
	return len(q.entries)
}

// Pop removes and returns the oldest live value.
func (q *TimedQueue[V]) Pop() (V, bool) {
	q.purge(q.now())
	item, err := heap.Pop[element[V]](&q.entries)
	if err != nil {
		var empty V
		return empty, false
	}
	return item.value, true
}

// Peek returns the oldest live value without removing it.
func (q *TimedQueue[V]) Peek() (V, bool) {
	q.purge(q.now())
	if len(q.entries) == 0 {
		var empty V
		return empty, false
	}
	return q.entries[0].value, true
}

// Len returns the number of live values. It is also the cheapest way to
// release expired values held by an otherwise idle queue.
func (q *TimedQueue[V]) Len() int {
	q.purge(q.now())
	return len(q.entries)
}

func (q *TimedQueue[V]) IsEmpty() bool {
	return q.Len() == 0
}

// Clear drops every value, expired or not. The reserved storage is kept.
func (q *TimedQueue[V]) Clear() {
	clear(q.entries)
	q.entries = q.entries[:0]
}

// Iter drops expired values and returns a sequence over the live ones. Only
// the first value is guaranteed to be the oldest; the rest follow heap order.
// Ranging over the sequence does not modify the queue and may be repeated.
func (q *TimedQueue[V]) Iter() iter.Seq[V] {
	q.purge(q.now())
	return func(yield func(V) bool) {
		for _, item := range q.entries {
			if !yield(item.value) {
				return
			}
		}
	}
}

// List returns a copy of the live values in the order Iter yields them.
func (q *TimedQueue[V]) List() []V {
	q.purge(q.now())
	list := make([]V, 0, len(q.entries))
	for _, item := range q.entries {
		list = append(list, item.value)
	}
	return list
}

// Capacity reports the reserved storage. It does not drop expired values.
func (q *TimedQueue[V]) Capacity() int {
	return cap(q.entries)
}

func (q *TimedQueue[V]) MaxAge() time.Duration {
	return q.maxAge
}

// now reads the clock once and refuses to continue if it moved backwards,
// since every age computed afterwards would be wrong.
func (q *TimedQueue[V]) now() time.Time {
	now := q.clock.Now()
	if now.Before(q.last) {
		err := fmt.Errorf("time source moved backwards: %s is before %s", now, q.last)
		q.logger.WithError(err).WithField("max_age", q.maxAge).Error("timed queue cannot compute element ages")
		panic(err)
	}
	q.last = now
	return now
}

// purge pops from the root while the root is older than maxAge. Every other
// element is at least as young as the root, so it stops at the first one
// still within bound.
func (q *TimedQueue[V]) purge(now time.Time) {
	expired := 0
	for len(q.entries) > 0 {
		if now.Sub(q.entries[0].at) <= q.maxAge {
			break
		}
		if _, err := heap.Pop[element[V]](&q.entries); err != nil {
			break
		}
		expired++
	}

	if expired > 0 {
		q.logger.WithFields(logrus.Fields{
			"expired": expired,
			"live":    len(q.entries),
			"max_age": q.maxAge,
		}).Debug("dropped expired values")
	}
}

// size reports the stored values, expired or not, without touching the clock.
func (q *TimedQueue[V]) size() int {
	return len(q.entries)
}
