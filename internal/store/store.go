// Package store persists accounts, transfers and the audit event log.
// Store is the Postgres implementation; Memory keeps the same contract
// in process.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bank-ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgNumericOverflow = "22003"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{db: db} }

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (s *Store) begin(ctx context.Context) (pgx.Tx, error) {
	return s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
}

// insertEvent is the single entry point for event_log inserts.
func insertEvent(ctx context.Context, tx pgx.Tx, ev Event) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO event_log(
			event_id, event_type, aggregate_id, payload_json, payload_canonical, payload_hash
		) VALUES($1,$2,$3,$4::jsonb,$5,$6)`,
		ev.ID, ev.Type, ev.AggregateID, string(ev.PayloadJSON), ev.PayloadCanonical, ev.PayloadHash,
	)
	return err
}

func (s *Store) CreateAccount(ctx context.Context, id string, initialDeposit decimal.Decimal) error {
	if id == "" {
		return domain.InvalidArgument("accountNumber")
	}
	if initialDeposit.IsNegative() {
		return domain.InvalidArgument("initialDeposit")
	}

	ev, err := accountOpenedEvent(id, initialDeposit.StringFixed(2))
	if err != nil {
		return err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts(account_number, balance) VALUES($1, $2::numeric)`,
		id, initialDeposit.String(),
	)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("%w: account %s already exists", domain.ErrConflict, id)
		}
		if isPgCode(err, pgNumericOverflow) {
			return domain.InvalidArgument("initialDeposit")
		}
		return fmt.Errorf("insert account: %w", err)
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) HasAccount(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number=$1)`, id,
	).Scan(&ok)
	return ok, err
}

func (s *Store) Account(ctx context.Context, id string) (domain.Account, error) {
	var (
		balance string
		opened  time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT balance::text, date_opened FROM accounts WHERE account_number=$1`, id,
	).Scan(&balance, &opened)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, err
	}

	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return domain.Account{}, fmt.Errorf("parse balance of %s: %w", id, err)
	}
	return domain.Account{ID: id, Balance: bal, DateOpened: opened}, nil
}

func (s *Store) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	acc, err := s.Account(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return acc.Balance, nil
}

// ApplyTransfer debits src, credits dst and records the transfer in one
// transaction. Sufficiency is the caller's job; the balance CHECK constraint
// is only a backstop.
func (s *Store) ApplyTransfer(ctx context.Context, src, dst string, amount decimal.Decimal) (uuid.UUID, error) {
	if !amount.IsPositive() {
		return uuid.Nil, domain.InvalidArgument("amount")
	}

	t := domain.Transfer{ID: uuid.New(), Source: src, Destination: dst, Amount: amount}
	ev, err := transferPostedEvent(t)
	if err != nil {
		return uuid.Nil, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	// Row locks follow the same canonical order as the account locks.
	for _, p := range postings(src, dst, amount) {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance + $2::numeric WHERE account_number=$1`,
			p.account, p.delta.String(),
		)
		if err != nil {
			if isPgCode(err, pgCheckViolation) {
				return uuid.Nil, domain.ErrInsufficientFunds
			}
			// Credit would push the destination past the column's precision.
			if isPgCode(err, pgNumericOverflow) {
				return uuid.Nil, domain.InvalidArgument("amount")
			}
			return uuid.Nil, fmt.Errorf("update balance of %s: %w", p.account, err)
		}
		if tag.RowsAffected() == 0 {
			return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, p.account)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transfers(id, source, destination, amount) VALUES($1,$2,$3,$4::numeric)`,
		t.ID, src, dst, amount.String(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert transfer: %w", err)
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return uuid.Nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return t.ID, nil
}

func (s *Store) Transfers(ctx context.Context, id string) ([]domain.Transfer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source, destination, amount::text, created_at
		   FROM transfers
		  WHERE source=$1
		  ORDER BY created_at, id`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Transfer{}
	for rows.Next() {
		var (
			t      domain.Transfer
			amount string
		)
		if err := rows.Scan(&t.ID, &t.Source, &t.Destination, &amount, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of transfer %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Events(ctx context.Context) ([]Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT event_id, event_type, aggregate_id, payload_json::text, payload_canonical, payload_hash, created_at
		   FROM event_log
		  ORDER BY seq`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			payload string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.AggregateID, &payload, &ev.PayloadCanonical, &ev.PayloadHash, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.PayloadJSON = []byte(payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}

type posting struct {
	account string
	delta   decimal.Decimal
}

// postings returns the debit and credit of a transfer ordered by account id.
func postings(src, dst string, amount decimal.Decimal) []posting {
	debit := posting{account: src, delta: amount.Neg()}
	credit := posting{account: dst, delta: amount}
	if dst < src {
		return []posting{credit, debit}
	}
	return []posting{debit, credit}
}
