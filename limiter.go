package pummel

import (
	"sync"
	"sync/atomic"
)

// DefaultConcurrency is the number of sends allowed in flight when the
// caller does not choose one.
const DefaultConcurrency = 10

// Limiter is a channel-based semaphore capping in-flight sends.
// Tokens are pre-filled up to capacity, which is fixed for its lifetime.
type Limiter struct {
	capacity int
	tokens   chan struct{}
	inUse    int64
}

// NewLimiter returns a Limiter with capacity slots. Capacities below one
// are coerced to one.
func NewLimiter(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	l := &Limiter{capacity: capacity, tokens: make(chan struct{}, capacity)}
	for i := 0; i < capacity; i++ {
		l.tokens <- struct{}{}
	}
	return l
}

// Acquire blocks until a slot is free.
func (l *Limiter) Acquire() *Permit {
	<-l.tokens
	atomic.AddInt64(&l.inUse, 1)
	return &Permit{l: l}
}

// Capacity returns the number of slots.
func (l *Limiter) Capacity() int { return l.capacity }

// InUse returns the number of slots currently held.
func (l *Limiter) InUse() int { return int(atomic.LoadInt64(&l.inUse)) }

func (l *Limiter) release() {
	atomic.AddInt64(&l.inUse, -1)
	l.tokens <- struct{}{}
}

// Permit is one acquired slot.
type Permit struct {
	l    *Limiter
	once sync.Once
}

// Release returns the slot. Only the first call has an effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.l.release)
}
