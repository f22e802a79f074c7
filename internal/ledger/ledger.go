// Package ledger is the transfer engine: it validates requests, takes the
// pair lock for the two accounts, and performs the balance check and the
// atomic store update inside that critical section.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/iban"
	"bank-ledger/internal/lock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxCreateAttempts bounds id regeneration after a collision.
const maxCreateAttempts = 8

// amountScale is the number of decimal places balances are kept to.
const amountScale = 2

// Store is the persistence the engine needs. ApplyTransfer must be atomic
// and is only called with the pair lock held and sufficiency checked.
type Store interface {
	CreateAccount(ctx context.Context, id string, initialDeposit decimal.Decimal) error
	HasAccount(ctx context.Context, id string) (bool, error)
	Account(ctx context.Context, id string) (domain.Account, error)
	Balance(ctx context.Context, id string) (decimal.Decimal, error)
	ApplyTransfer(ctx context.Context, src, dst string, amount decimal.Decimal) (uuid.UUID, error)
	Transfers(ctx context.Context, id string) ([]domain.Transfer, error)
}

type Engine struct {
	store  Store
	locks  lock.PairLocker
	logger *slog.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

type Option func(*Engine)

// WithLocker replaces the default in-process lock table.
func WithLocker(l lock.PairLocker) Option {
	return func(e *Engine) { e.locks = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRand makes account number generation deterministic.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rnd = r }
}

func New(store Store, opts ...Option) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.locks == nil {
		e.locks = lock.NewTable()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// CreateAccount opens an account with a freshly generated number.
func (e *Engine) CreateAccount(ctx context.Context, countryCode string, initialDeposit decimal.Decimal) (iban.Number, error) {
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	if !iban.ValidCountryCode(countryCode) {
		return iban.Number{}, domain.InvalidArgument("countryCode")
	}
	if initialDeposit.IsNegative() || !fitsScale(initialDeposit) {
		return iban.Number{}, domain.InvalidArgument("initialDeposit")
	}

	for attempt := 1; ; attempt++ {
		n, err := e.generate(countryCode)
		if err != nil {
			return iban.Number{}, err
		}

		err = e.store.CreateAccount(ctx, n.String(), initialDeposit)
		switch {
		case err == nil:
			e.logger.InfoContext(ctx, "account created",
				slog.String("account", n.String()),
				slog.String("initial_deposit", initialDeposit.StringFixed(amountScale)))
			return n, nil
		case errors.Is(err, domain.ErrConflict) && attempt < maxCreateAttempts:
			e.logger.DebugContext(ctx, "account number collision, regenerating",
				slog.String("account", n.String()), slog.Int("attempt", attempt))
		default:
			return iban.Number{}, fmt.Errorf("create account: %w", err)
		}
	}
}

func (e *Engine) generate(countryCode string) (iban.Number, error) {
	if e.rnd == nil {
		return iban.Generate(countryCode, iban.BBANDigits, nil)
	}
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return iban.Generate(countryCode, iban.BBANDigits, e.rnd)
}

// Account returns the current balance of id.
func (e *Engine) Account(ctx context.Context, id string) (domain.Account, error) {
	n, err := iban.Parse(id)
	if err != nil {
		return domain.Account{}, err
	}
	acc, err := e.store.Account(ctx, n.String())
	if err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

// Transfer moves amount from src to dst and returns the transfer id.
//
// Input is validated before any lock is taken. Existence, sufficiency and
// the write all happen while both account locks are held.
func (e *Engine) Transfer(ctx context.Context, src, dst string, amount decimal.Decimal) (uuid.UUID, error) {
	from, err := parseValid(src, "srcAccount")
	if err != nil {
		return uuid.Nil, err
	}
	to, err := parseValid(dst, "dstAccount")
	if err != nil {
		return uuid.Nil, err
	}
	if !amount.IsPositive() || !fitsScale(amount) {
		return uuid.Nil, domain.InvalidArgument("amount")
	}

	release, err := e.locks.AcquirePair(ctx, from.String(), to.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("acquire account locks: %w", err)
	}
	defer release()

	id, err := e.transferLocked(ctx, from.String(), to.String(), amount)
	if err != nil {
		e.logger.DebugContext(ctx, "transfer rejected",
			slog.String("source", from.String()),
			slog.String("destination", to.String()),
			slog.String("amount", amount.StringFixed(amountScale)),
			slog.Any("error", err))
		return uuid.Nil, err
	}

	e.logger.InfoContext(ctx, "transfer posted",
		slog.String("transfer_id", id.String()),
		slog.String("source", from.String()),
		slog.String("destination", to.String()),
		slog.String("amount", amount.StringFixed(amountScale)))
	return id, nil
}

// transferLocked must only be called with the pair lock held.
func (e *Engine) transferLocked(ctx context.Context, src, dst string, amount decimal.Decimal) (uuid.UUID, error) {
	ok, err := e.store.HasAccount(ctx, src)
	if err != nil {
		return uuid.Nil, fmt.Errorf("look up source account: %w", err)
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: source account does not exist", domain.ErrAccountNotFound)
	}
	ok, err = e.store.HasAccount(ctx, dst)
	if err != nil {
		return uuid.Nil, fmt.Errorf("look up destination account: %w", err)
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: destination account does not exist", domain.ErrAccountNotFound)
	}

	balance, err := e.store.Balance(ctx, src)
	if err != nil {
		return uuid.Nil, fmt.Errorf("read source balance: %w", err)
	}
	if balance.Sub(amount).IsNegative() {
		return uuid.Nil, domain.ErrInsufficientFunds
	}

	id, err := e.store.ApplyTransfer(ctx, src, dst, amount)
	if err != nil {
		return uuid.Nil, fmt.Errorf("apply transfer: %w", err)
	}
	return id, nil
}

// Transfers lists the outgoing transfers of id.
func (e *Engine) Transfers(ctx context.Context, id string) ([]domain.Transfer, error) {
	n, err := parseValid(id, "accountNumber")
	if err != nil {
		return nil, err
	}
	ok, err := e.store.HasAccount(ctx, n.String())
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return e.store.Transfers(ctx, n.String())
}

// parseValid parses s and checks its checksum, reporting failures against field.
func parseValid(s, field string) (iban.Number, error) {
	n, err := iban.Parse(s)
	if err != nil || !n.IsValid() {
		return iban.Number{}, domain.InvalidArgument(field)
	}
	return n, nil
}

// fitsScale reports whether d is representable as a stored balance:
// at most two decimal places and below domain.AmountLimit.
func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(amountScale)) && d.Abs().LessThan(domain.AmountLimit)
}
