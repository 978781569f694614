package p2p

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Threadpool runs posted work on a fixed set of worker goroutines. It is
// the single executor behind every dispatcher and completion handler.
type Threadpool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	busy    int
	closing bool
	done    bool

	size  int
	group errgroup.Group
}

// NewThreadpool starts a pool of n workers (at least one).
func NewThreadpool(n int) *Threadpool {
	if n < 1 {
		n = 1
	}
	p := &Threadpool{size: n}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.group.Go(p.worker)
	}
	return p
}

// Size returns the number of workers.
func (p *Threadpool) Size() int { return p.size }

// Post queues fn for execution on a worker. Work posted after the pool has
// fully drained runs on its own goroutine so completions are never lost.
func (p *Threadpool) Post(fn func()) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		go fn()
		return
	}
	p.queue = append(p.queue, fn)
	p.mu.Unlock()
	p.cond.Signal()
}

// Shutdown lets the workers exit once the queue is empty and no work is
// running. Work posted by running handlers is still executed.
func (p *Threadpool) Shutdown() {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Join blocks until every worker has exited. Call Shutdown first.
func (p *Threadpool) Join() error {
	return p.group.Wait()
}

func (p *Threadpool) worker() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		for len(p.queue) == 0 {
			if p.closing && p.busy == 0 {
				p.done = true
				p.cond.Broadcast()
				return nil
			}
			p.cond.Wait()
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.busy++
		p.mu.Unlock()

		fn()

		p.mu.Lock()
		p.busy--
	}
}
