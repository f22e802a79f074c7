package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountLimit bounds amounts and balances; it matches the NUMERIC(20,2)
// columns, which hold at most 18 integer digits.
var AmountLimit = decimal.New(1, 18)

// Account is a ledger account. Balance never goes below zero.
type Account struct {
	ID         string
	Balance    decimal.Decimal
	DateOpened time.Time
}

// Transfer is the immutable audit record of one completed transfer.
type Transfer struct {
	ID          uuid.UUID
	Source      string
	Destination string
	Amount      decimal.Decimal
	CreatedAt   time.Time
}

type CreateAccountRequest struct {
	CountryCode    string          `json:"countryCode" validate:"required,len=2,alpha"`
	InitialDeposit decimal.Decimal `json:"initialDeposit"`
}

type CreateAccountResponse struct {
	AccountNumber string `json:"accountNumber"`
}

type AccountResponse struct {
	AccountNumber string    `json:"accountNumber"`
	Balance       string    `json:"balance"`
	DateOpened    time.Time `json:"dateOpened"`
}

type PostTransferRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type PostTransferResponse struct {
	TransferID uuid.UUID `json:"transferId"`
}

type TransferResponse struct {
	ID          uuid.UUID `json:"id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Amount      string    `json:"amount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type TransfersResponse struct {
	Transfers []TransferResponse `json:"transfers"`
}
