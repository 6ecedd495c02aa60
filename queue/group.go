package queue

import (
	"context"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

type member[V any] struct {
	lock  sync.Mutex
	queue *TimedQueue[V]
	// removed is set, under lock, once the member left the group. Callers
	// that fetched it before that must look it up again.
	removed bool
}

// Group owns named TimedQueues that may be used from several goroutines.
// Each queue has its own lock. Sweep and Run reclaim expired values from
// queues nobody reads, and drop queues that end up empty.
type Group[V any] struct {
	maxAge    time.Duration
	queues    cmap.ConcurrentMap[string, *member[V]]
	queueOpts []Option

	limiter *rate.Limiter
	clock   clock.WithTicker
	logger  logrus.FieldLogger
}

type groupConfig struct {
	queueOpts []Option
	limit     rate.Limit
	burst     int
	clock     clock.WithTicker
	logger    logrus.FieldLogger
}

type GroupOption func(*groupConfig)

// WithGroupQueueOptions sets the options every queue of the group is built with.
func WithGroupQueueOptions(opts ...Option) GroupOption {
	return func(cfg *groupConfig) {
		cfg.queueOpts = append(cfg.queueOpts, opts...)
	}
}

// WithSweepRate bounds how many queues a sweep probes per second. A burst
// below 1 is raised to 1.
func WithSweepRate(limit rate.Limit, burst int) GroupOption {
	return func(cfg *groupConfig) {
		if burst < 1 {
			burst = 1
		}
		cfg.limit = limit
		cfg.burst = burst
	}
}

// WithGroupClock sets the clock used by Run and by every queue of the group.
func WithGroupClock(c clock.WithTicker) GroupOption {
	return func(cfg *groupConfig) {
		cfg.clock = c
	}
}

func WithGroupLogger(logger logrus.FieldLogger) GroupOption {
	return func(cfg *groupConfig) {
		cfg.logger = logger
	}
}

func NewGroup[V any](maxAge time.Duration, opts ...GroupOption) *Group[V] {
	cfg := &groupConfig{
		limit:  rate.Inf,
		burst:  1,
		clock:  clock.RealClock{},
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	queueOpts := append([]Option{WithClock(cfg.clock), WithLogger(cfg.logger)}, cfg.queueOpts...)
	return &Group[V]{
		maxAge:    maxAge,
		queues:    cmap.New[*member[V]](),
		queueOpts: queueOpts,
		limiter:   rate.NewLimiter(cfg.limit, cfg.burst),
		clock:     cfg.clock,
		logger:    cfg.logger,
	}
}

func (g *Group[V]) getOrCreate(name string) *member[V] {
	if m, ok := g.queues.Get(name); ok {
		return m
	}
	return g.queues.Upsert(name, nil, func(exist bool, inMap, _ *member[V]) *member[V] {
		if exist {
			return inMap
		}
		return &member[V]{queue: NewTimedQueue[V](g.maxAge, g.queueOpts...)}
	})
}

// Push adds value to the named queue, creating the queue if needed, and
// returns its live count.
func (g *Group[V]) Push(name string, value V) int {
	for {
		m := g.getOrCreate(name)
		m.lock.Lock()
		if m.removed {
			m.lock.Unlock()
			continue
		}
		n := m.queue.Push(value)
		m.lock.Unlock()
		return n
	}
}

// Do runs fn with exclusive access to the named queue. It reports false
// without calling fn if the queue does not exist.
func (g *Group[V]) Do(name string, fn func(q *TimedQueue[V])) bool {
	m, ok := g.queues.Get(name)
	if !ok {
		return false
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.removed {
		return false
	}
	fn(m.queue)
	return true
}

func (g *Group[V]) Pop(name string) (value V, ok bool) {
	g.Do(name, func(q *TimedQueue[V]) {
		value, ok = q.Pop()
	})
	return value, ok
}

func (g *Group[V]) Peek(name string) (value V, ok bool) {
	g.Do(name, func(q *TimedQueue[V]) {
		value, ok = q.Peek()
	})
	return value, ok
}

// Len returns the live count of the named queue, or 0 if it does not exist.
func (g *Group[V]) Len(name string) (n int) {
	g.Do(name, func(q *TimedQueue[V]) {
		n = q.Len()
	})
	return n
}

// Remove drops the named queue and everything in it.
func (g *Group[V]) Remove(name string) bool {
	m, ok := g.queues.Pop(name)
	if !ok {
		return false
	}
	m.lock.Lock()
	m.removed = true
	m.queue.Clear()
	m.lock.Unlock()
	return true
}

func (g *Group[V]) Names() []string {
	return g.queues.Keys()
}

// Count returns the number of queues, empty or not.
func (g *Group[V]) Count() int {
	return g.queues.Count()
}

// Sweep probes every queue with Len, which drops its expired values, and
// removes the queues left empty. It returns the number of live values across
// the group. Probes are paced by the sweep rate limit; if ctx is done while
// waiting, Sweep stops and returns ctx's error.
func (g *Group[V]) Sweep(ctx context.Context) (int, error) {
	var live, probed, removed int
	for name, m := range g.queues.Items() {
		if err := g.limiter.Wait(ctx); err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"probed": probed,
				"queues": g.queues.Count(),
			}).Warn("sweep interrupted")
			return live, err
		}

		m.lock.Lock()
		if !m.removed {
			n := m.queue.Len()
			live += n
			if n == 0 {
				g.queues.RemoveCb(name, func(_ string, v *member[V], exists bool) bool {
					return exists && v == m
				})
				m.removed = true
				removed++
			}
		}
		m.lock.Unlock()
		probed++
	}

	g.logger.WithFields(logrus.Fields{
		"probed":  probed,
		"removed": removed,
		"live":    live,
	}).Debug("swept timed queues")
	return live, nil
}

// Run sweeps the group every interval until ctx is done, then returns ctx's
// error.
func (g *Group[V]) Run(ctx context.Context, interval time.Duration) error {
	ticker := g.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if _, err := g.Sweep(ctx); err != nil {
				return err
			}
		}
	}
}
