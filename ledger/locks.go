package ledger

import (
	"sync"

	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// lockTable holds one reader/writer lock per account ever touched.
type lockTable struct {
	mu    sync.Mutex
	locks map[interfaces.Pubkey]*sync.RWMutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[interfaces.Pubkey]*sync.RWMutex)}
}

func (t *lockTable) lockFor(key interfaces.Pubkey) *sync.RWMutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[key] = l
	}
	return l
}

// acquire locks every account of metas, which must be sorted and deduplicated.
// Writable accounts are locked exclusively, read-only accounts shared.
// The returned function releases all of them.
func (t *lockTable) acquire(metas []AccountMeta) func() {
	held := make([]func(), 0, len(metas))
	for _, meta := range metas {
		l := t.lockFor(meta.Pubkey)
		if meta.IsWritable {
			l.Lock()
			held = append(held, l.Unlock)
		} else {
			l.RLock()
			held = append(held, l.RUnlock)
		}
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
}
