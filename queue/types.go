package queue

import (
	"cmp"
	"iter"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Queue is the age-bounded container surface shared by TimedQueue and
// StatsQueue. Every method except Clear, Capacity and MaxAge drops expired
// elements before doing its own work.
type Queue[V any] interface {
	Push(value V) int
	Pop() (V, bool)
	Peek() (V, bool)
	Len() int
	IsEmpty() bool
	Clear()
	Iter() iter.Seq[V]
	List() []V
	Capacity() int
	MaxAge() time.Duration
}

// Summable is the capability set Stats needs: a total order, + and cheap copies.
type Summable interface {
	cmp.Ordered
}

// QueueStats is a snapshot of the live elements at the time it was taken.
// Min, Max and Sum are nil iff Len is zero.
type QueueStats[V Summable] struct {
	Min *V
	Max *V
	Sum *V
	Len int
}

type config struct {
	clock  clock.PassiveClock
	logger logrus.FieldLogger
}

func defaultConfig() *config {
	return &config{
		clock:  clock.RealClock{},
		logger: logrus.StandardLogger(),
	}
}

type Option func(*config)

// WithClock replaces the time source. It must not run backwards.
func WithClock(c clock.PassiveClock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}
