package bank

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// lockTable serializes balance mutations per account. Accounts hash onto a
// fixed set of stripes, so operations on distinct accounts almost always run
// in parallel while two operations on the same account never interleave.
type lockTable struct {
	stripes [lockStripes]sync.Mutex
}

func (t *lockTable) stripe(accountNumber string) int {
	h := fnv.New32a()
	h.Write([]byte(accountNumber))
	return int(h.Sum32() % lockStripes)
}

// lock acquires the account's stripe and returns the release func.
func (t *lockTable) lock(accountNumber string) func() {
	i := t.stripe(accountNumber)
	t.stripes[i].Lock()
	return t.stripes[i].Unlock
}

// lockPair acquires the stripes of both accounts in ascending stripe order,
// so opposing concurrent transfers between the same two accounts cannot
// deadlock. When both accounts share a stripe only one lock is taken.
func (t *lockTable) lockPair(a, b string) func() {
	i, j := t.stripe(a), t.stripe(b)
	if i == j {
		t.stripes[i].Lock()
		return t.stripes[i].Unlock
	}
	if i > j {
		i, j = j, i
	}
	t.stripes[i].Lock()
	t.stripes[j].Lock()
	return func() {
		t.stripes[j].Unlock()
		t.stripes[i].Unlock()
	}
}
