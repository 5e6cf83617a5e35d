package dialogue

import (
	"context"
	"sync"

	"github.com/m3rciful/godialogue/core/dialogue/storage"
	"golang.org/x/sync/semaphore"
)

// chatLocks hands out one FIFO mutex per chat. Entries are reference counted
// and dropped once no cycle holds or waits for them.
type chatLocks struct {
	mu    sync.Mutex
	locks map[storage.ChatID]*chatLock
}

type chatLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[storage.ChatID]*chatLock)}
}

// acquire blocks until the caller owns id or ctx is done.
func (l *chatLocks) acquire(ctx context.Context, id storage.ChatID) (func(), error) {
	l.mu.Lock()
	cl, ok := l.locks[id]
	if !ok {
		cl = &chatLock{sem: semaphore.NewWeighted(1)}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	if err := cl.sem.Acquire(ctx, 1); err != nil {
		l.drop(id, cl)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			cl.sem.Release(1)
			l.drop(id, cl)
		})
	}, nil
}

func (l *chatLocks) drop(id storage.ChatID, cl *chatLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl.refs--
	if cl.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *chatLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
