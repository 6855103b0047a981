package stimulus

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueFull rejects pushes once the queue reaches capacity.
var ErrQueueFull = errors.New("stimulus: queue full")

// Queue decouples inbound stimuli from the tick loop. Writers push from
// any goroutine; the tick loop drains at tick start. Interrupt-flagged
// envelopes additionally signal the wake channel so an in-flight inter-tick
// wait can be cut short.
type Queue struct {
	mu      sync.Mutex
	pending []Envelope
	limit   int
	wake    chan struct{}
}

// NewQueue creates a queue holding at most limit envelopes. A non-positive
// limit defaults to 1024.
func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = 1024
	}
	return &Queue{
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

// Push validates and enqueues one envelope.
func (q *Queue) Push(e Envelope) error {
	if err := e.Normalize(time.Now()); err != nil {
		return err
	}

	q.mu.Lock()
	if len(q.pending) >= q.limit {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	if e.Interrupt {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Drain removes and returns up to n pending envelopes in arrival order.
// n <= 0 drains everything.
func (q *Queue) Drain(n int) []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.pending) {
		n = len(q.pending)
	}
	if n == 0 {
		return nil
	}
	out := make([]Envelope, n)
	copy(out, q.pending[:n])
	q.pending = append(q.pending[:0], q.pending[n:]...)
	return out
}

// Len returns the number of pending envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Wake returns the channel signalled when an interrupt-flagged envelope
// arrives. The channel has a one-slot buffer so signals coalesce.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
