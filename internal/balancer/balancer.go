// Package balancer implements a round-robin backend picker with
// retry-on-failure, used by the local relay to spread connections across a
// pool of configured backend servers.
package balancer

import (
	"errors"
	"sync/atomic"
)

// ErrNoBackends is returned when the pool has nothing to pick from.
var ErrNoBackends = errors.New("balancer: no backends configured")

// ErrAllBackendsFailed is returned by PickWithRetry when every backend in
// the pool has been tried and rejected by the caller's probe.
var ErrAllBackendsFailed = errors.New("balancer: all backends failed")

// RoundRobin cycles through a fixed pool of backends, handing out the next
// one in sequence on every Pick call. The cursor is an atomic counter so
// concurrent relay sessions can share one balancer without a mutex.
type RoundRobin[T any] struct {
	backends []T
	cursor   atomic.Uint64
}

// New builds a RoundRobin over the given backends. The slice is kept by
// reference; callers should not mutate it afterward.
func New[T any](backends []T) *RoundRobin[T] {
	return &RoundRobin[T]{backends: backends}
}

// Total returns the number of backends in the pool.
func (r *RoundRobin[T]) Total() int {
	return len(r.backends)
}

// Pick returns the next backend in round-robin order.
func (r *RoundRobin[T]) Pick() (T, error) {
	var zero T
	if len(r.backends) == 0 {
		return zero, ErrNoBackends
	}
	i := r.cursor.Add(1) - 1
	return r.backends[i%uint64(len(r.backends))], nil
}

// PickWithRetry calls Pick and hands each candidate to try, advancing to the
// next backend whenever try returns false, until a backend is accepted or
// every backend in the pool has been offered once.
func (r *RoundRobin[T]) PickWithRetry(try func(T) bool) (T, error) {
	var zero T
	total := r.Total()
	if total == 0 {
		return zero, ErrNoBackends
	}
	for attempt := 0; attempt < total; attempt++ {
		backend, err := r.Pick()
		if err != nil {
			return zero, err
		}
		if try(backend) {
			return backend, nil
		}
	}
	return zero, ErrAllBackendsFailed
}
