// Package lock provides per-account critical sections for two-account
// operations. Both implementations acquire the pair in lexicographic id
// order regardless of argument order, so opposite-direction transfers
// between the same accounts cannot deadlock.
package lock

import (
	"context"
	"sync"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/semaphore"
)

// PairLocker grants exclusive access to two accounts at once.
// The returned release must be called exactly once on every exit path;
// calling it again is a no-op.
type PairLocker interface {
	AcquirePair(ctx context.Context, a, b string) (release func(), err error)
}

// ordered returns the distinct ids of a pair in acquisition order.
func ordered(a, b string) []string {
	switch {
	case a == b:
		return []string{a}
	case a < b:
		return []string{a, b}
	default:
		return []string{b, a}
	}
}

// Table is an in-process PairLocker. Lock entries are created on first use
// and never removed.
type Table struct {
	mu    deadlock.Mutex
	locks map[string]*semaphore.Weighted
}

func NewTable() *Table {
	return &Table{locks: make(map[string]*semaphore.Weighted)}
}

func (t *Table) entry(id string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[id]
	if !ok {
		l = semaphore.NewWeighted(1)
		t.locks[id] = l
	}
	return l
}

// Len reports how many accounts have a lock entry.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

// AcquirePair blocks until both accounts are held or ctx is done.
// On error nothing is held.
func (t *Table) AcquirePair(ctx context.Context, a, b string) (func(), error) {
	ids := ordered(a, b)
	held := make([]*semaphore.Weighted, 0, len(ids))

	for _, id := range ids {
		l := t.entry(id)
		if err := l.Acquire(ctx, 1); err != nil {
			releaseAll(held)
			return nil, err
		}
		held = append(held, l)
	}

	var once sync.Once
	return func() { once.Do(func() { releaseAll(held) }) }, nil
}

// releaseAll releases in reverse acquisition order.
func releaseAll(held []*semaphore.Weighted) {
	for i := len(held) - 1; i >= 0; i-- {
		held[i].Release(1)
	}
}
