package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Pool executes named tasks in deadline order on a fixed number of
// goroutines. A task function returns the deadline of its next run; a zero
// deadline removes the task from the pool. Adding or triggering a task while
// workers wait for the next deadline wakes them immediately.
type Pool struct {
	mu    sync.Mutex
	queue []*task
	reg   map[string]*task
	wait  chan struct{}
}

type task struct {
	name     string
	fn       func(context.Context) time.Time
	deadline time.Time
	rerun    bool
}

func New(workers int) *Pool {
	pool := Pool{reg: make(map[string]*task)}

	for range workers {
		go pool.work()
	}

	return &pool
}

// Add schedules the named task to run immediately.
func (p *Pool) Add(name string, fn func(context.Context) time.Time) {
	p.enqueue(&task{name: name, fn: fn, deadline: time.Now()})
}

func (p *Pool) work() {
	for {
		t := p.dequeue()
		p.finish(t, t.fn(context.Background()))
	}
}

// finish requeues a completed task under its next deadline. A trigger that
// arrived while the task ran overrides the deadline to now. A zero deadline
// removes the task, unless a replacement has since registered under the same
// name.
func (p *Pool) finish(t *task, deadline time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t.deadline = deadline
	if t.rerun {
		t.rerun = false
		t.deadline = time.Now()
	}

	if t.deadline.IsZero() {
		if p.reg[t.name] == t {
			delete(p.reg, t.name)
		}
		return
	}

	p.queue = append(p.queue, t)
	p.sortAndWake()
}

// Trigger runs the named task NOW. If it is queued, it moves to the front of
// the queue regardless of its previous deadline. If it is not queued it must
// be running; in that case its next deadline overrides to NOW, causing an
// immediate re-run after the current one finishes.
func (p *Pool) Trigger(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.IndexFunc(p.queue, func(t *task) bool { return t.name == name }); i != -1 {
		p.queue[i].deadline = time.Now()
		p.sortAndWake()
		return nil
	}

	if t, ok := p.reg[name]; ok {
		t.rerun = true
		return nil
	}

	return fmt.Errorf("no task with name %s", name)
}

// sortAndWake must run under p.mu.
func (p *Pool) sortAndWake() {
	slices.SortFunc(p.queue, func(a, b *task) int {
		return a.deadline.Compare(b.deadline)
	})

	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}

func (p *Pool) enqueue(t *task) {
	p.mu.Lock()
	p.reg[t.name] = t
	p.queue = append(p.queue, t)
	p.sortAndWake()
	p.mu.Unlock()
}

func (p *Pool) dequeue() *task {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		var next time.Time
		if len(p.queue) == 0 {
			next = time.Now().Add(24 * 365 * time.Hour) // idle; wait for Add to wake us
		} else {
			next = p.queue[0].deadline
		}

		if !next.After(time.Now()) {
			break
		}

		// Not ready yet: wait for the deadline or for an earlier task to arrive.
		if p.wait == nil {
			p.wait = make(chan struct{})
		}
		wait := p.wait

		p.mu.Unlock()
		select {
		case <-time.After(time.Until(next)):
		case <-wait:
		}
		p.mu.Lock()
	}

	var t *task
	t, p.queue = p.queue[0], p.queue[1:]
	return t
}
