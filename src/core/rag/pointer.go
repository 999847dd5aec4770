package rag

import (
	"context"
	"sync"
)

// ActivePointer names the collection currently served to queries. Readers
// take a Lease on the collection they use so that a retired collection is
// only dropped once nobody reads it.
type ActivePointer struct {
	mu      sync.Mutex
	current string
	leases  map[string]int
	idle    map[string]chan struct{}
}

func NewActivePointer() *ActivePointer {
	return &ActivePointer{
		leases: make(map[string]int),
		idle:   make(map[string]chan struct{}),
	}
}

// Current returns the active collection name, false if none has been set.
func (p *ActivePointer) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != ""
}

// Swap points at name and returns the previously active collection.
func (p *ActivePointer) Swap(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.current
	p.current = name
	return prev
}

// Acquire leases the active collection. The lease must be released.
func (p *ActivePointer) Acquire() (*Lease, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return nil, false
	}
	p.leases[p.current]++
	return &Lease{p: p, name: p.current}, true
}

// Leases returns the number of outstanding leases on name.
func (p *ActivePointer) Leases(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leases[name]
}

// WaitIdle blocks until name has no outstanding leases or ctx is done.
func (p *ActivePointer) WaitIdle(ctx context.Context, name string) error {
	p.mu.Lock()
	if p.leases[name] == 0 {
		p.mu.Unlock()
		return nil
	}
	ch, ok := p.idle[name]
	if !ok {
		ch = make(chan struct{})
		p.idle[name] = ch
	}
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ActivePointer) release(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leases[name]--
	if p.leases[name] > 0 {
		return
	}
	delete(p.leases, name)
	if ch, ok := p.idle[name]; ok {
		close(ch)
		delete(p.idle, name)
	}
}

// Lease pins one collection for the duration of a query.
type Lease struct {
	p    *ActivePointer
	name string
	once sync.Once
}

func (l *Lease) Collection() Collection {
	return Collection{Name: l.name}
}

// Release is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.p.release(l.name)
	})
}
