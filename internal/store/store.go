// Package store defines the ledger store contract: durable keyed storage for
// accounts, transaction records, and outbox events, with a single
// transactional entry point. All shared mutable state lives behind this
// interface; the engine itself is stateless between calls.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-core/internal/domain"
)

// Tx is the unit-of-work handle passed into Atomic. Every mutation performed
// through it is applied entirely or not at all; no intermediate state is
// observable to concurrent readers.
type Tx interface {
	// LockAccount reads the account with exclusive access held until the unit
	// ends. Callers locking more than one account must do so in ascending id
	// order to stay deadlock-free.
	LockAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)

	// AdjustBalance applies delta to the locked account's balance and stamps
	// its last-transaction time. It does not enforce non-negativity; the
	// engine validates funds under the lock before debiting.
	AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal, at time.Time) error

	InsertAccount(ctx context.Context, a domain.Account) error
	SetAccountStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error

	// InsertTransaction fails with domain.ErrConflict when the reference
	// number is already taken.
	InsertTransaction(ctx context.Context, t domain.Transaction) error
	SetTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error

	AppendEvent(ctx context.Context, e domain.Event) error
}

// Store is the ledger store. Reads outside Atomic see only committed state.
type Store interface {
	// Atomic runs fn as one transactional unit. A non-nil error from fn (or
	// from commit) rolls every mutation back.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (domain.Account, error)
	ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error)

	// ListTransactions returns records where the account is source or
	// destination, newest first. limit <= 0 means no limit.
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error)

	// ClaimPendingEvents returns due PENDING events, oldest first, marking
	// them in-flight so concurrent dispatchers do not double-deliver.
	ClaimPendingEvents(ctx context.Context, now time.Time, limit int) ([]domain.Event, error)
	MarkEventDelivered(ctx context.Context, id uuid.UUID) error
	// MarkEventFailed reschedules the event, or parks it as FAILED when
	// terminal is set.
	MarkEventFailed(ctx context.Context, id uuid.UUID, nextAttempt time.Time, terminal bool) error
}
