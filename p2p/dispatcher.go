package p2p

import "sync"

// Dispatcher runs handlers on a shared Threadpool while guaranteeing that
// handlers scheduled through the same Dispatcher execute one at a time in
// the order they were scheduled. Other dispatchers on the same pool run in
// parallel. State touched only from ordered handlers needs no lock.
type Dispatcher struct {
	pool *Threadpool

	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewDispatcher returns a dispatcher executing on pool.
func NewDispatcher(pool *Threadpool) *Dispatcher {
	return &Dispatcher{pool: pool}
}

// Ordered schedules fn after every handler previously scheduled through d
// and returns immediately.
func (d *Dispatcher) Ordered(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()
	d.pool.Post(d.drain)
}

// Concurrent posts fn to the pool without ordering.
func (d *Dispatcher) Concurrent(fn func()) {
	d.pool.Post(fn)
}

// drain runs the handlers queued when it starts, then yields the worker
// back to the pool if more arrived meanwhile.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, fn := range batch {
		fn()
	}

	d.mu.Lock()
	if len(d.queue) == 0 {
		d.running = false
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.pool.Post(d.drain)
}

// OrderedDelegate wraps handler so each invocation is scheduled through d.
// The result is suitable as a completion callback for other components.
func OrderedDelegate[T any](d *Dispatcher, handler func(T)) func(T) {
	return func(v T) {
		d.Ordered(func() { handler(v) })
	}
}

// OrderedDelegate2 is OrderedDelegate for two-argument handlers such as
// accept and connect completions.
func OrderedDelegate2[A, B any](d *Dispatcher, handler func(A, B)) func(A, B) {
	return func(a A, b B) {
		d.Ordered(func() { handler(a, b) })
	}
}
