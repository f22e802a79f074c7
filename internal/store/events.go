package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"bank-ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

const (
	EventAccountOpened  = "ACCOUNT_OPENED"
	EventTransferPosted = "TRANSFER_POSTED"
)

// Event is one append-only audit log entry. PayloadHash is the hex SHA-256
// of PayloadCanonical, which is the RFC 8785 (JCS) form of PayloadJSON.
type Event struct {
	ID               uuid.UUID
	Type             string
	AggregateID      string
	PayloadJSON      json.RawMessage
	PayloadCanonical string
	PayloadHash      string
	CreatedAt        time.Time
}

type accountOpenedPayload struct {
	AccountNumber  string `json:"account_number"`
	InitialDeposit string `json:"initial_deposit"`
}

type transferPostedPayload struct {
	TransferID  string `json:"transfer_id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

// jcsPayload returns both representations stored for every event:
// regular JSON bytes and the RFC 8785 canonical string.
func jcsPayload(v any) (payloadJSON json.RawMessage, payloadCanonical string, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, "", err
	}
	return json.RawMessage(raw), string(canon), nil
}

// PayloadHash is the hash recorded next to a canonical payload.
func PayloadHash(canonical string) string {
	h := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(h[:])
}

func newEvent(eventType, aggregateID string, payload any) (Event, error) {
	if strings.TrimSpace(eventType) == "" || strings.TrimSpace(aggregateID) == "" {
		return Event{}, domain.InvalidArgument("event")
	}
	payloadJSON, canonical, err := jcsPayload(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:               uuid.New(),
		Type:             eventType,
		AggregateID:      aggregateID,
		PayloadJSON:      payloadJSON,
		PayloadCanonical: canonical,
		PayloadHash:      PayloadHash(canonical),
	}, nil
}

func accountOpenedEvent(id, initialDeposit string) (Event, error) {
	return newEvent(EventAccountOpened, id, accountOpenedPayload{
		AccountNumber:  id,
		InitialDeposit: initialDeposit,
	})
}

func transferPostedEvent(t domain.Transfer) (Event, error) {
	return newEvent(EventTransferPosted, t.ID.String(), transferPostedPayload{
		TransferID:  t.ID.String(),
		Source:      t.Source,
		Destination: t.Destination,
		Amount:      t.Amount.StringFixed(2),
	})
}

// VerifyEvent recomputes the canonical form and hash of e.
func VerifyEvent(e Event) bool {
	canon, err := jcs.Transform(e.PayloadJSON)
	if err != nil {
		return false
	}
	return string(canon) == e.PayloadCanonical && PayloadHash(e.PayloadCanonical) == e.PayloadHash
}
