package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"bank-ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newMemoryAt(now time.Time) *Memory {
	m := NewMemory()
	m.now = func() time.Time { return now }
	return m
}

func TestMemory_CreateAccount(t *testing.T) {
	opened := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newMemoryAt(opened)
	ctx := context.Background()

	require.NoError(t, m.CreateAccount(ctx, "GB98MIDL07009312345678", dec("100.00")))

	ok, err := m.HasAccount(ctx, "GB98MIDL07009312345678")
	require.NoError(t, err)
	assert.True(t, ok)

	acc, err := m.Account(ctx, "GB98MIDL07009312345678")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("100")))
	assert.Equal(t, opened, acc.DateOpened)
}

func TestMemory_CreateAccountRejectsNegativeDeposit(t *testing.T) {
	m := NewMemory()

	err := m.CreateAccount(context.Background(), "GB98MIDL07009312345678", dec("-0.01"))
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	var argErr *domain.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "initialDeposit", argErr.Field)
}

func TestMemory_CreateAccountDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateAccount(ctx, "GB98MIDL07009312345678", dec("1")))
	err := m.CreateAccount(ctx, "GB98MIDL07009312345678", dec("5"))
	require.ErrorIs(t, err, domain.ErrConflict)

	bal, err := m.Balance(ctx, "GB98MIDL07009312345678")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("1")), "duplicate insert must not overwrite")
}

func TestMemory_BalanceNotFound(t *testing.T) {
	m := NewMemory()

	_, err := m.Balance(context.Background(), "GB98MIDL07009312345678")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	ok, err := m.HasAccount(context.Background(), "GB98MIDL07009312345678")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_ApplyTransfer(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, "S", dec("100.00")))
	require.NoError(t, m.CreateAccount(ctx, "D", dec("0.00")))

	id, err := m.ApplyTransfer(ctx, "S", "D", dec("40.50"))
	require.NoError(t, err)

	src, _ := m.Balance(ctx, "S")
	dst, _ := m.Balance(ctx, "D")
	assert.Equal(t, "59.50", src.StringFixed(2))
	assert.Equal(t, "40.50", dst.StringFixed(2))

	out, err := m.Transfers(ctx, "S")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, id, out[0].ID)
	assert.Equal(t, "S", out[0].Source)
	assert.Equal(t, "D", out[0].Destination)
	assert.True(t, out[0].Amount.Equal(dec("40.5")))

	incoming, err := m.Transfers(ctx, "D")
	require.NoError(t, err)
	assert.Empty(t, incoming, "only outgoing transfers are listed")
}

func TestMemory_ApplyTransferToSelfNetsToZero(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, "S", dec("100.00")))

	id, err := m.ApplyTransfer(ctx, "S", "S", dec("10.00"))
	require.NoError(t, err)

	bal, _ := m.Balance(ctx, "S")
	assert.Equal(t, "100.00", bal.StringFixed(2))

	out, err := m.Transfers(ctx, "S")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, id, out[0].ID)
}

func TestMemory_AmountLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.CreateAccount(ctx, "BIG", domain.AmountLimit)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	require.NoError(t, m.CreateAccount(ctx, "S", dec("1.00")))
	require.NoError(t, m.CreateAccount(ctx, "D", dec("999999999999999999.99")))

	_, err = m.ApplyTransfer(ctx, "S", "D", dec("0.01"))
	var argErr *domain.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "amount", argErr.Field)

	bal, _ := m.Balance(ctx, "S")
	assert.Equal(t, "1.00", bal.StringFixed(2))
}

func TestMemory_ApplyTransferIsAllOrNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, "S", dec("10")))

	_, err := m.ApplyTransfer(ctx, "S", "MISSING", dec("1"))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = m.ApplyTransfer(ctx, "S", "S", dec("11"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = m.ApplyTransfer(ctx, "S", "MISSING", dec("0"))
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	bal, _ := m.Balance(ctx, "S")
	assert.True(t, bal.Equal(dec("10")))
	out, _ := m.Transfers(ctx, "S")
	assert.Empty(t, out)

	events, _ := m.Events(ctx)
	assert.Len(t, events, 1, "only the account opening is logged")
}

func TestMemory_AuditEvents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, "S", dec("100")))
	require.NoError(t, m.CreateAccount(ctx, "D", dec("0")))
	id, err := m.ApplyTransfer(ctx, "S", "D", dec("1"))
	require.NoError(t, err)

	events, err := m.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, EventAccountOpened, events[0].Type)
	assert.Equal(t, `{"account_number":"S","initial_deposit":"100.00"}`, events[0].PayloadCanonical)
	assert.Equal(t, EventTransferPosted, events[2].Type)
	assert.Equal(t, id.String(), events[2].AggregateID)
	assert.Equal(t,
		`{"amount":"1.00","destination":"D","source":"S","transfer_id":"`+id.String()+`"}`,
		events[2].PayloadCanonical)

	for _, ev := range events {
		assert.True(t, VerifyEvent(ev), "event %s", ev.ID)
	}
}

func TestMemory_ConcurrentTransfersConserveTotal(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, "A", dec("500")))
	require.NoError(t, m.CreateAccount(ctx, "B", dec("500")))

	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		src, dst := "A", "B"
		if i%2 == 0 {
			src, dst = dst, src
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.ApplyTransfer(ctx, src, dst, dec("1"))
		}()
	}
	wg.Wait()

	a, _ := m.Balance(ctx, "A")
	b, _ := m.Balance(ctx, "B")
	assert.True(t, a.Add(b).Equal(dec("1000")))
}
