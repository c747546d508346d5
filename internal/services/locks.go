package points

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Блокировки по счетам: один семафор на пользователя, создается при первом обращении
// и больше не заменяется.
type accountLocks struct {
	mu    sync.Mutex
	locks map[int64]*semaphore.Weighted
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[int64]*semaphore.Weighted)}
}

func (l *accountLocks) get(userID int64) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[userID]
	if !ok {
		lock = semaphore.NewWeighted(1)
		l.locks[userID] = lock
		accountLocksGauge.Inc()
	}
	return lock
}
