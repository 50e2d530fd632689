package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeTransfer   TransactionType = "TRANSFER"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
	TxReversed  TransactionStatus = "REVERSED"
)

// Transaction is an immutable audit record once COMPLETED, except for the
// compensating COMPLETED -> REVERSED transition. DestinationAccountID is
// non-nil iff Type == TRANSFER.
type Transaction struct {
	ID                   uuid.UUID
	Type                 TransactionType
	Status               TransactionStatus
	Amount               decimal.Decimal
	AccountID            uuid.UUID
	DestinationAccountID *uuid.UUID
	Reference            string
	Description          string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

var referenceRe = regexp.MustCompile(`^TRX-[A-Z0-9]{8}$`)

// ValidReference reports whether ref matches the client-facing format.
func ValidReference(ref string) bool { return referenceRe.MatchString(ref) }

var accountNumberRe = regexp.MustCompile(`^[0-9]{12}$`)

// ValidAccountNumber reports whether n is exactly 12 ASCII digits.
func ValidAccountNumber(n string) bool { return accountNumberRe.MatchString(n) }

// ValidAmount reports whether amt is a positive decimal with at most two
// fractional digits. Amounts cross the API as decimal strings and anything
// finer than cents is rejected rather than rounded.
func ValidAmount(amt decimal.Decimal) bool {
	return amt.IsPositive() && amt.Exponent() >= -2
}
