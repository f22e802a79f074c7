package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/lock"
	"bank-ledger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	accS = "GB32123456789"
	accD = "GB81987654321"
	accX = "GB98MIDL07009312345678"
	accY = "GB82WEST12345698765432"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T, s *store.Memory, balances map[string]string) {
	t.Helper()
	for id, bal := range balances {
		require.NoError(t, s.CreateAccount(context.Background(), id, dec(bal)))
	}
}

func balanceOf(t *testing.T, s *store.Memory, id string) string {
	t.Helper()
	b, err := s.Balance(context.Background(), id)
	require.NoError(t, err)
	return b.StringFixed(2)
}

// spyLocker wraps a lock.Table and records which accounts are held.
type spyLocker struct {
	inner    *lock.Table
	acquired atomic.Int64
	released atomic.Int64

	mu   sync.Mutex
	held map[string]int
}

func newSpyLocker() *spyLocker {
	return &spyLocker{inner: lock.NewTable(), held: make(map[string]int)}
}

func (l *spyLocker) AcquirePair(ctx context.Context, a, b string) (func(), error) {
	release, err := l.inner.AcquirePair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	l.acquired.Add(1)
	l.mu.Lock()
	l.held[a]++
	if b != a {
		l.held[b]++
	}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.held[a]--
			if b != a {
				l.held[b]--
			}
			l.mu.Unlock()
			l.released.Add(1)
			release()
		})
	}, nil
}

func (l *spyLocker) isHeld(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[id] > 0
}

// spyStore wraps a Memory store, counts calls, checks that balance reads and
// writes happen under the pair lock, and can inject failures.
type spyStore struct {
	*store.Memory
	locker *spyLocker

	calls         atomic.Int64
	unlockedReads atomic.Int64
	applyErr      error
	createErrs    []error

	mu sync.Mutex
}

func newSpyStore(locker *spyLocker) *spyStore {
	return &spyStore{Memory: store.NewMemory(), locker: locker}
}

func (s *spyStore) CreateAccount(ctx context.Context, id string, initialDeposit decimal.Decimal) error {
	s.calls.Add(1)
	s.mu.Lock()
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.Memory.CreateAccount(ctx, id, initialDeposit)
}

func (s *spyStore) HasAccount(ctx context.Context, id string) (bool, error) {
	s.calls.Add(1)
	return s.Memory.HasAccount(ctx, id)
}

func (s *spyStore) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	s.calls.Add(1)
	if s.locker != nil && !s.locker.isHeld(id) {
		s.unlockedReads.Add(1)
	}
	return s.Memory.Balance(ctx, id)
}

func (s *spyStore) ApplyTransfer(ctx context.Context, src, dst string, amount decimal.Decimal) (uuid.UUID, error) {
	s.calls.Add(1)
	if s.locker != nil && (!s.locker.isHeld(src) || !s.locker.isHeld(dst)) {
		s.unlockedReads.Add(1)
	}
	if s.applyErr != nil {
		return uuid.Nil, s.applyErr
	}
	return s.Memory.ApplyTransfer(ctx, src, dst, amount)
}

var errBoom = errors.New("boom: connection reset")

func argField(t *testing.T, err error) string {
	t.Helper()
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	var argErr *domain.ArgumentError
	require.ErrorAs(t, err, &argErr)
	return argErr.Field
}
