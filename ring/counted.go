package ring

import "sync/atomic"

// Queue is the common surface implemented by SPSC, MPSC, SPMC, and
// MPMC. Counted wraps any of them without caring which flavor backs it.
type Queue[T any] interface {
	Cap() int
	Len() int
	IsEmpty() bool
	IsFull() bool
	Push(value T) error
	Pop() (T, error)
	PushBatch(items []T) error
	PopBatch(out []T) (int, error)
}

// Stats is a point-in-time snapshot of a Counted ring buffer's
// cumulative push/pop traffic, recovering the bookkeeping the original
// implementation's QueueStats/QueueManagerStats layer kept on top of its
// bare queues, without forcing every ring buffer to pay for atomic
// counter updates on the hot path.
type Stats struct {
	Pushed      uint64
	Popped      uint64
	PushDropped uint64
	PopEmpty    uint64
}

// Counted decorates a Queue with atomic traffic counters. It satisfies
// Queue itself, so it can be composed transparently wherever the
// underlying queue type would be used directly.
type Counted[T any] struct {
	q Queue[T]

	pushed      atomic.Uint64
	popped      atomic.Uint64
	pushDropped atomic.Uint64
	popEmpty    atomic.Uint64
}

// NewCounted wraps an existing ring buffer with traffic counters.
func NewCounted[T any](q Queue[T]) *Counted[T] {
	return &Counted[T]{q: q}
}

func (c *Counted[T]) Cap() int      { return c.q.Cap() }
func (c *Counted[T]) Len() int      { return c.q.Len() }
func (c *Counted[T]) IsEmpty() bool { return c.q.IsEmpty() }
func (c *Counted[T]) IsFull() bool  { return c.q.IsFull() }

func (c *Counted[T]) Push(value T) error {
	if err := c.q.Push(value); err != nil {
		c.pushDropped.Add(1)
		return err
	}
	c.pushed.Add(1)
	return nil
}

func (c *Counted[T]) Pop() (T, error) {
	v, err := c.q.Pop()
	if err != nil {
		c.popEmpty.Add(1)
		return v, err
	}
	c.popped.Add(1)
	return v, nil
}

func (c *Counted[T]) PushBatch(items []T) error {
	if err := c.q.PushBatch(items); err != nil {
		c.pushDropped.Add(1)
		return err
	}
	c.pushed.Add(uint64(len(items)))
	return nil
}

func (c *Counted[T]) PopBatch(out []T) (int, error) {
	n, err := c.q.PopBatch(out)
	if err != nil {
		c.popEmpty.Add(1)
		return n, err
	}
	c.popped.Add(uint64(n))
	return n, nil
}

// Stats returns a snapshot of the cumulative counters.
func (c *Counted[T]) Stats() Stats {
	return Stats{
		Pushed:      c.pushed.Load(),
		Popped:      c.popped.Load(),
		PushDropped: c.pushDropped.Load(),
		PopEmpty:    c.popEmpty.Load(),
	}
}
