// Package keylock serializes writes per independent key. Verdict overrides
// lock (student, lesson); notification upserts lock (student, title). Keys
// are independent so no global lock is needed.
package keylock

import "sync"

// KeyMutex is an in-process advisory lock per key.
type KeyMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New creates a KeyMutex.
func New() *KeyMutex {
	return &KeyMutex{held: make(map[string]struct{})}
}

// TryLock attempts to take the key without blocking.
func (k *KeyMutex) TryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, taken := k.held[key]; taken {
		return false
	}
	k.held[key] = struct{}{}
	return true
}

// Unlock releases the key. Unlocking a key that is not held is a no-op.
func (k *KeyMutex) Unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}
