package device

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// KeyedMutex provides one mutual exclusion lock per key. Waiting for a lock
// can be aborted through the context.
type KeyedMutex struct {
	mutex sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	slot chan struct{}
	refs int
}

// Lock blocks until the lock for key is held or ctx is done. The returned
// function releases the lock and may be called more than once.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mutex.Lock()

	lock, exists := m.locks[key]
	if !exists {
		lock = &keyLock{slot: make(chan struct{}, 1)}
		m.locks[key] = lock
	}

	lock.refs++

	m.mutex.Unlock()

	select {
	case lock.slot <- struct{}{}:
		var once sync.Once

		return func() {
			once.Do(func() {
				<-lock.slot
				m.unref(key, lock)
			})
		}, nil

	case <-ctx.Done():
		m.unref(key, lock)
		return nil, errors.WithStack(ctx.Err())
	}
}

func (m *KeyedMutex) unref(key string, lock *keyLock) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	lock.refs--

	if lock.refs == 0 {
		delete(m.locks, key)
	}
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: map[string]*keyLock{},
	}
}
