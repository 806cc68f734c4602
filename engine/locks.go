package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/types"
)

type ledgerKey struct {
	round types.RoundID
	ratee common.Address
}

// keyedMutex serializes access to the ledger of one (round, ratee) pair.
// Entries are reference counted and dropped once nobody holds them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[ledgerKey]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[ledgerKey]*refMutex)}
}

// lock acquires the lock of (round, ratee) and returns its release func.
func (k *keyedMutex) lock(round types.RoundID, ratee common.Address) func() {
	key := ledgerKey{round: round, ratee: ratee}
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
