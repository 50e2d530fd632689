// Package events carries committed ledger changes to downstream consumers.
// Event rows are built by the engine inside its atomic unit (outbox pattern);
// the dispatcher drains them out-of-band, so delivery can never fail or stall
// a committed transaction.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"banking-core/internal/domain"
)

type AccountCreatedPayload struct {
	AccountID string `json:"account_id"`
	OwnerID   string `json:"owner_id"`
	Number    string `json:"account_number"`
	Type      string `json:"account_type"`
	Currency  string `json:"currency"`
}

type AccountStatusChangedPayload struct {
	AccountID string `json:"account_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

type TransactionCompletedPayload struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"transaction_type"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	AccountID     string `json:"account_id"`
	DestinationID string `json:"destination_account_id,omitempty"`
	Reference     string `json:"reference_number"`
}

// New builds a PENDING outbox event. The payload is stored both as plain JSON
// and in RFC 8785 (JCS) canonical form so that downstream hashing and replay
// comparisons are stable across producers.
func New(typ domain.EventType, aggregateID uuid.UUID, correlationID string, payload any, now time.Time) (domain.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:            uuid.New(),
		Type:          typ,
		AggregateID:   aggregateID,
		CorrelationID: correlationID,
		Payload:       raw,
		Canonical:     string(canon),
		Status:        domain.EventPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

func AccountCreated(a domain.Account, correlationID string, now time.Time) (domain.Event, error) {
	return New(domain.EventAccountCreated, a.ID, correlationID, AccountCreatedPayload{
		AccountID: a.ID.String(),
		OwnerID:   a.OwnerID.String(),
		Number:    a.Number,
		Type:      string(a.Type),
		Currency:  a.Currency,
	}, now)
}

func AccountStatusChanged(a domain.Account, old domain.AccountStatus, correlationID string, now time.Time) (domain.Event, error) {
	return New(domain.EventAccountStatusChanged, a.ID, correlationID, AccountStatusChangedPayload{
		AccountID: a.ID.String(),
		OldStatus: string(old),
		NewStatus: string(a.Status),
	}, now)
}

func TransactionCompleted(tr domain.Transaction, currency, correlationID string, now time.Time) (domain.Event, error) {
	p := TransactionCompletedPayload{
		TransactionID: tr.ID.String(),
		Type:          string(tr.Type),
		Amount:        tr.Amount.StringFixed(2),
		Currency:      currency,
		AccountID:     tr.AccountID.String(),
		Reference:     tr.Reference,
	}
	if tr.DestinationAccountID != nil {
		p.DestinationID = tr.DestinationAccountID.String()
	}
	return New(domain.EventTransactionCompleted, tr.ID, correlationID, p, now)
}
