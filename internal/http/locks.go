package http

import "sync"

// projectLocks serializes runs per project. Working copies are keyed by
// project ID, so two runs for one project must never overlap.
type projectLocks struct {
	mu    sync.Mutex
	locks map[int64]*projectLock
}

type projectLock struct {
	sync.Mutex
	refs int
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[int64]*projectLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (p *projectLocks) lock(id int64) func() {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &projectLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}

func (p *projectLocks) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
