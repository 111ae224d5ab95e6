package driver

import (
	"math"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/workqueue"
)

// jitteredExponentialRateLimiter delays the n-th retry of an item by
// min(maxDelay, baseDelay*2^n + U[0, jitter*baseDelay*2^n)). With jitter in
// [0, 1] the delays of an item never decrease until it is forgotten.
type jitteredExponentialRateLimiter[T comparable] struct {
	failuresLock sync.Mutex
	failures     map[T]int

	baseDelay time.Duration
	maxDelay  time.Duration
	jitter    float64
}

var _ workqueue.TypedRateLimiter[string] = &jitteredExponentialRateLimiter[string]{}

func newJitteredExponentialRateLimiter[T comparable](baseDelay, maxDelay time.Duration, jitter float64) *jitteredExponentialRateLimiter[T] {
	return &jitteredExponentialRateLimiter[T]{
		failures:  map[T]int{},
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		jitter:    math.Min(math.Max(jitter, 0), 1),
	}
}

func (r *jitteredExponentialRateLimiter[T]) When(item T) time.Duration {
	r.failuresLock.Lock()
	defer r.failuresLock.Unlock()

	exp := r.failures[item]
	r.failures[item]++

	backoff := float64(r.baseDelay.Nanoseconds()) * math.Pow(2, float64(exp))
	if backoff > float64(r.maxDelay.Nanoseconds()) {
		return r.maxDelay
	}

	delay := time.Duration(backoff)
	// wait.Jitter treats a zero factor as 1.
	if r.jitter > 0 {
		delay = wait.Jitter(delay, r.jitter)
	}
	if delay > r.maxDelay {
		return r.maxDelay
	}
	return delay
}

func (r *jitteredExponentialRateLimiter[T]) NumRequeues(item T) int {
	r.failuresLock.Lock()
	defer r.failuresLock.Unlock()

	return r.failures[item]
}

func (r *jitteredExponentialRateLimiter[T]) Forget(item T) {
	r.failuresLock.Lock()
	defer r.failuresLock.Unlock()

	delete(r.failures, item)
}
