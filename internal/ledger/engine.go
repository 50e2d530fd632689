package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-core/internal/domain"
	"banking-core/internal/events"
	"banking-core/internal/store"
)

// Engine validates operation preconditions and applies balance mutations, the
// transaction record, and the outbox event as one atomic unit. A concurrent
// reader can never observe a COMPLETED record whose balance move is still in
// flight, nor a moved balance behind a PENDING record.
type Engine struct {
	st store.Store
}

func NewEngine(st store.Store) *Engine { return &Engine{st: st} }

// withFreshReference runs fn with a generated reference number, retrying with
// a new sample when the store rejects it as taken. Retrying is safe here:
// the conflicting unit rolled back, so nothing was committed.
func (e *Engine) withFreshReference(ctx context.Context, fn func(ref string) error) error {
	for attempt := 1; ; attempt++ {
		ref, err := newReference()
		if err != nil {
			return err
		}
		err = fn(ref)
		if err == nil || !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if attempt >= maxGenerateAttempts {
			return fmt.Errorf("%w: exhausted %d attempts", domain.ErrDuplicateReference, attempt)
		}
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
}

func requireActive(a domain.Account) error {
	if a.Status != domain.AccountActive {
		return fmt.Errorf("%w: account %s is %s", domain.ErrAccountNotActive, a.Number, a.Status)
	}
	return nil
}

func requireFunds(a domain.Account, amount decimal.Decimal) error {
	if a.Balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Deposit credits amount to an ACTIVE account.
func (e *Engine) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (domain.Transaction, error) {
	if !domain.ValidAmount(amount) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}

	corr := correlationID(ctx)

	var out domain.Transaction
	err := e.withFreshReference(ctx, func(ref string) error {
		return e.st.Atomic(ctx, func(tx store.Tx) error {
			acct, err := tx.LockAccount(ctx, accountID)
			if err != nil {
				return err
			}
			if err := requireActive(acct); err != nil {
				return err
			}

			now := time.Now().UTC()
			tr := domain.Transaction{
				ID:          uuid.New(),
				Type:        domain.TypeDeposit,
				Status:      domain.TxPending,
				Amount:      amount,
				AccountID:   accountID,
				Reference:   ref,
				Description: description,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.InsertTransaction(ctx, tr); err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, accountID, amount, now); err != nil {
				return err
			}
			if err := tx.SetTransactionStatus(ctx, tr.ID, domain.TxCompleted); err != nil {
				return err
			}
			tr.Status = domain.TxCompleted

			ev, err := events.TransactionCompleted(tr, acct.Currency, corr, now)
			if err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
			out = tr
			return nil
		})
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return out, nil
}

// Withdraw debits amount from an ACTIVE account holding sufficient funds.
func (e *Engine) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (domain.Transaction, error) {
	if !domain.ValidAmount(amount) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}

	corr := correlationID(ctx)

	var out domain.Transaction
	err := e.withFreshReference(ctx, func(ref string) error {
		return e.st.Atomic(ctx, func(tx store.Tx) error {
			acct, err := tx.LockAccount(ctx, accountID)
			if err != nil {
				return err
			}
			if err := requireActive(acct); err != nil {
				return err
			}
			// Funds are checked under the lock: two concurrent withdrawals
			// cannot both pass against the same balance.
			if err := requireFunds(acct, amount); err != nil {
				return err
			}

			now := time.Now().UTC()
			tr := domain.Transaction{
				ID:          uuid.New(),
				Type:        domain.TypeWithdrawal,
				Status:      domain.TxPending,
				Amount:      amount,
				AccountID:   accountID,
				Reference:   ref,
				Description: description,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.InsertTransaction(ctx, tr); err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, accountID, amount.Neg(), now); err != nil {
				return err
			}
			if err := tx.SetTransactionStatus(ctx, tr.ID, domain.TxCompleted); err != nil {
				return err
			}
			tr.Status = domain.TxCompleted

			ev, err := events.TransactionCompleted(tr, acct.Currency, corr, now)
			if err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
			out = tr
			return nil
		})
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return out, nil
}

// Transfer moves amount from the source account to the account holding
// destinationNumber. Exactly one record is written, referencing both sides;
// the two balance deltas sum to zero or nothing commits.
func (e *Engine) Transfer(ctx context.Context, sourceID uuid.UUID, destinationNumber string, amount decimal.Decimal, description string) (domain.Transaction, error) {
	if !domain.ValidAmount(amount) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}

	// Number -> id resolution is immutable, so it can happen outside the
	// unit; status, currency and funds are revalidated under the locks.
	dest, err := e.st.GetAccountByNumber(ctx, destinationNumber)
	if err != nil {
		return domain.Transaction{}, err
	}
	if dest.ID == sourceID {
		return domain.Transaction{}, domain.ErrSameAccount
	}

	corr := correlationID(ctx)

	var out domain.Transaction
	err = e.withFreshReference(ctx, func(ref string) error {
		return e.st.Atomic(ctx, func(tx store.Tx) error {
			source, destination, err := lockPair(ctx, tx, sourceID, dest.ID)
			if err != nil {
				return err
			}
			if err := requireActive(source); err != nil {
				return err
			}
			if err := requireActive(destination); err != nil {
				return err
			}
			if source.Currency != destination.Currency {
				return fmt.Errorf("%w: %s vs %s", domain.ErrCurrencyMismatch,
					source.Currency, destination.Currency)
			}
			if err := requireFunds(source, amount); err != nil {
				return err
			}

			now := time.Now().UTC()
			destID := destination.ID
			tr := domain.Transaction{
				ID:                   uuid.New(),
				Type:                 domain.TypeTransfer,
				Status:               domain.TxPending,
				Amount:               amount,
				AccountID:            sourceID,
				DestinationAccountID: &destID,
				Reference:            ref,
				Description:          description,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if err := tx.InsertTransaction(ctx, tr); err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, sourceID, amount.Neg(), now); err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, destID, amount, now); err != nil {
				return err
			}
			if err := tx.SetTransactionStatus(ctx, tr.ID, domain.TxCompleted); err != nil {
				return err
			}
			tr.Status = domain.TxCompleted

			ev, err := events.TransactionCompleted(tr, source.Currency, corr, now)
			if err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
			out = tr
			return nil
		})
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return out, nil
}

// lockPair acquires both accounts in ascending id order so that two transfers
// moving money in opposite directions between the same pair cannot deadlock.
func lockPair(ctx context.Context, tx store.Tx, a, b uuid.UUID) (domain.Account, domain.Account, error) {
	first, second := a, b
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = b, a
	}
	acct1, err := tx.LockAccount(ctx, first)
	if err != nil {
		return domain.Account{}, domain.Account{}, err
	}
	acct2, err := tx.LockAccount(ctx, second)
	if err != nil {
		return domain.Account{}, domain.Account{}, err
	}
	if acct1.ID == a {
		return acct1, acct2, nil
	}
	return acct2, acct1, nil
}
