package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountSavings AccountType = "SAVINGS"
	AccountDebit   AccountType = "DEBIT"
)

func (t AccountType) Valid() bool {
	return t == AccountSavings || t == AccountDebit
}

type AccountStatus string

const (
	AccountActive   AccountStatus = "ACTIVE"
	AccountInactive AccountStatus = "INACTIVE"
	AccountBlocked  AccountStatus = "BLOCKED"
	AccountClosed   AccountStatus = "CLOSED"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountBlocked, AccountClosed:
		return true
	}
	return false
}

// Account is a ledger account. Number is 12 ASCII digits and immutable once
// assigned; Currency is immutable. Balance is scale-2 decimal and must never
// go negative (the engine checks before every debit).
type Account struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	Number            string
	Type              AccountType
	Status            AccountStatus
	Balance           decimal.Decimal
	Currency          string
	CreatedAt         time.Time
	LastTransactionAt *time.Time
}

// CanTransitionTo reports whether the status machine allows current -> next.
// CLOSED is terminal; setting the same status twice is rejected so that a
// duplicate admin action surfaces instead of silently succeeding.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	if !next.Valid() || s == next {
		return false
	}
	if s == AccountClosed {
		return false
	}
	return true
}
