package accumulation

import (
	"sync"

	"github.com/warp/crew-engine/generic"
)

// keyedMutex serializes work per leaderboard id. Entries are dropped once
// nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[generic.LeaderboardID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[generic.LeaderboardID]*keyedEntry)}
}

// Lock blocks until id is free and returns its unlock func.
func (k *keyedMutex) Lock(id generic.LeaderboardID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
