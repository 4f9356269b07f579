package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// LocalLock is an in-process domain.LockManager for deployments without
// Redis. It only excludes holders within the same process.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLock creates an empty LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]time.Time)}
}

// Acquire takes key for at most ttl. It returns domain.ErrLockHeld when
// another holder has it.
func (l *LocalLock) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, domain.ErrLockHeld
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == exp {
				delete(l.held, key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LocalLock)(nil)
