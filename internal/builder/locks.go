package builder

import (
	"slices"
	"sync"
)

// formLocks serializes work on one form within the process. The database
// lock taken inside the transaction covers other processes.
type formLocks struct {
	mu    sync.Mutex
	locks map[int64]*formLock
}

type formLock struct {
	mu   sync.Mutex
	refs int
}

func newFormLocks() *formLocks {
	return &formLocks{locks: make(map[int64]*formLock)}
}

// lock acquires the locks of ids in ascending order and returns a function
// releasing them. Id 0 (an unsaved form) needs no lock.
func (l *formLocks) lock(ids ...int64) (unlock func()) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		l.acquire(id)
		held = append(held, id)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}
}

func (l *formLocks) acquire(id int64) {
	l.mu.Lock()
	fl, ok := l.locks[id]
	if !ok {
		fl = &formLock{}
		l.locks[id] = fl
	}
	fl.refs++
	l.mu.Unlock()

	fl.mu.Lock()
}

func (l *formLocks) release(id int64) {
	l.mu.Lock()
	fl := l.locks[id]
	fl.refs--
	if fl.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	fl.mu.Unlock()
}
