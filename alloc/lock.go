package alloc

import (
	"sync"
	"sync/atomic"
)

// Lock is the allocation lock: a plain mutex that also remembers whether it
// is held, so internal consistency checks can assert ownership.
// The zero value is an unlocked, unnamed lock.
//
// Lock is not reentrant. Code that runs arbitrary callbacks (finalizers) must
// release it first.
type Lock struct {
	name string
	mu   sync.Mutex
	held atomic.Bool
}

// NewLock returns a lock with a name used in assertion messages.
func NewLock(name string) *Lock { return &Lock{name: name} }

// Lock acquires the lock.
func (l *Lock) Lock() {
	l.mu.Lock()
	l.held.Store(true)
}

// Unlock releases the lock.
func (l *Lock) Unlock() {
	l.held.Store(false)
	l.mu.Unlock()
}

// Held reports whether some goroutine currently holds the lock.
func (l *Lock) Held() bool { return l.held.Load() }

// AssertHeld panics if the lock is not held.
func (l *Lock) AssertHeld() {
	if !l.held.Load() {
		name := l.name
		if name == "" {
			name = "alloc"
		}
		panic("alloc: lock " + name + " not held")
	}
}

// Name returns the lock name.
func (l *Lock) Name() string { return l.name }

var _ sync.Locker = (*Lock)(nil)
