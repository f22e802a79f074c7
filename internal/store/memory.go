package store

import (
	"context"
	"fmt"
	"time"

	"bank-ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/shopspring/decimal"
)

// Memory is an in-process store. A single RWMutex makes every write,
// including the three-part transfer, atomic.
type Memory struct {
	mu        deadlock.RWMutex
	accounts  map[string]*domain.Account
	transfers map[string][]domain.Transfer
	events    []Event
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]*domain.Account),
		transfers: make(map[string][]domain.Transfer),
		now:       time.Now,
	}
}

func (m *Memory) CreateAccount(_ context.Context, id string, initialDeposit decimal.Decimal) error {
	if id == "" {
		return domain.InvalidArgument("accountNumber")
	}
	if initialDeposit.IsNegative() || !initialDeposit.LessThan(domain.AmountLimit) {
		return domain.InvalidArgument("initialDeposit")
	}
	ev, err := accountOpenedEvent(id, initialDeposit.StringFixed(2))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; ok {
		return fmt.Errorf("%w: account %s already exists", domain.ErrConflict, id)
	}
	now := m.now()
	m.accounts[id] = &domain.Account{ID: id, Balance: initialDeposit, DateOpened: now}
	ev.CreatedAt = now
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) HasAccount(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[id]
	return ok, nil
}

func (m *Memory) Account(_ context.Context, id string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *acc, nil
}

func (m *Memory) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	acc, err := m.Account(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return acc.Balance, nil
}

func (m *Memory) ApplyTransfer(_ context.Context, src, dst string, amount decimal.Decimal) (uuid.UUID, error) {
	if !amount.IsPositive() {
		return uuid.Nil, domain.InvalidArgument("amount")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from, ok := m.accounts[src]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, src)
	}
	to, ok := m.accounts[dst]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, dst)
	}
	// Same backstop as the Postgres balance CHECK constraint.
	if from.Balance.Sub(amount).IsNegative() {
		return uuid.Nil, domain.ErrInsufficientFunds
	}
	// Same limit as the NUMERIC(20,2) balance column.
	if src != dst && !to.Balance.Add(amount).LessThan(domain.AmountLimit) {
		return uuid.Nil, domain.InvalidArgument("amount")
	}

	t := domain.Transfer{ID: uuid.New(), Source: src, Destination: dst, Amount: amount, CreatedAt: m.now()}
	ev, err := transferPostedEvent(t)
	if err != nil {
		return uuid.Nil, err
	}
	ev.CreatedAt = t.CreatedAt

	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)
	m.transfers[src] = append(m.transfers[src], t)
	m.events = append(m.events, ev)
	return t.ID, nil
}

func (m *Memory) Transfers(_ context.Context, id string) ([]domain.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Transfer, len(m.transfers[id]))
	copy(out, m.transfers[id])
	return out, nil
}

func (m *Memory) Events(_ context.Context) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out, nil
}
