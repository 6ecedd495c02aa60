package queue

import (
	"cmp"
	"time"
)

var (
	_ Queue[int] = (*TimedQueue[int])(nil)
	_ Queue[int] = (*StatsQueue[int])(nil)
)

// StatsQueue is a TimedQueue over ordered, addable values that can also
// report min, max and sum of what is currently live.
type StatsQueue[V Summable] struct {
	*TimedQueue[V]
}

func NewStatsQueue[V Summable](maxAge time.Duration, opts ...Option) *StatsQueue[V] {
	return &StatsQueue[V]{TimedQueue: NewTimedQueue[V](maxAge, opts...)}
}

func NewStatsQueueWithCapacity[V Summable](maxAge time.Duration, capacity int, opts ...Option) *StatsQueue[V] {
	return &StatsQueue[V]{TimedQueue: NewTimedQueueWithCapacity[V](maxAge, capacity, opts...)}
}

// Stats drops expired values and computes the aggregates over the rest.
// The result is never cached: values may expire between two calls.
func (q *StatsQueue[V]) Stats() QueueStats[V] {
	q.purge(q.now())
	return q.scan()
}

// PushAndStats pushes value and returns the stats that include it, with a
// single expiry pass and a single scan.
func (q *StatsQueue[V]) PushAndStats(value V) QueueStats[V] {
	q.Push(value)
	return q.scan()
}

func (q *StatsQueue[V]) scan() QueueStats[V] {
	stats := QueueStats[V]{Len: len(q.entries)}
	if stats.Len == 0 {
		return stats
	}

	minimum, maximum, sum := q.entries[0].value, q.entries[0].value, q.entries[0].value
	for _, item := range q.entries[1:] {
		if cmp.Less(item.value, minimum) {
			minimum = item.value
		}
		if cmp.Less(maximum, item.value) {
			maximum = item.value
		}
		sum += item.value
	}

	stats.Min, stats.Max, stats.Sum = &minimum, &maximum, &sum
	return stats
}
