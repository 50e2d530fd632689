// Package ledger is the transaction core: the account registry and the
// double-entry engine that moves money between accounts. All mutations run
// through the store's single transactional entry point; the package itself
// holds no state between calls.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-core/internal/domain"
	"banking-core/internal/events"
	"banking-core/internal/store"
)

// Registry creates accounts and tracks their lifecycle.
type Registry struct {
	st store.Store
}

func NewRegistry(st store.Store) *Registry { return &Registry{st: st} }

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

const defaultCurrency = "MXN"

func normalizeCurrency(cur string) (string, error) {
	cur = strings.ToUpper(strings.TrimSpace(cur))
	if cur == "" {
		return defaultCurrency, nil
	}
	if !currencyRe.MatchString(cur) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, cur)
	}
	return cur, nil
}

// CreateAccount opens an ACTIVE zero-balance account with a unique 12-digit
// number. Uniqueness is enforced by the store, not an in-memory cache: the
// insert retries with a fresh sample on conflict so creation stays correct
// under concurrent callers and across instances sharing one ledger.
func (r *Registry) CreateAccount(ctx context.Context, ownerID uuid.UUID, typ domain.AccountType, currency string) (domain.Account, error) {
	if ownerID == uuid.Nil {
		return domain.Account{}, fmt.Errorf("%w: owner id required", domain.ErrInvalidState)
	}
	if !typ.Valid() {
		return domain.Account{}, fmt.Errorf("%w: unknown account type %q", domain.ErrInvalidState, typ)
	}
	cur, err := normalizeCurrency(currency)
	if err != nil {
		return domain.Account{}, err
	}

	corr := correlationID(ctx)

	for attempt := 1; ; attempt++ {
		number, err := newAccountNumber()
		if err != nil {
			return domain.Account{}, err
		}

		now := time.Now().UTC()
		acct := domain.Account{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			Number:    number,
			Type:      typ,
			Status:    domain.AccountActive,
			Balance:   decimal.Zero,
			Currency:  cur,
			CreatedAt: now,
		}

		err = r.st.Atomic(ctx, func(tx store.Tx) error {
			if err := tx.InsertAccount(ctx, acct); err != nil {
				return err
			}
			ev, err := events.AccountCreated(acct, corr, now)
			if err != nil {
				return err
			}
			return tx.AppendEvent(ctx, ev)
		})
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.Account{}, err
		}
		if attempt >= maxGenerateAttempts {
			return domain.Account{}, fmt.Errorf("%w: account number generation exhausted %d attempts",
				domain.ErrStoreUnavailable, attempt)
		}
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
}

// GetAccount returns the account when the requester owns it.
func (r *Registry) GetAccount(ctx context.Context, id, requesterID uuid.UUID) (domain.Account, error) {
	acct, err := r.st.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if acct.OwnerID != requesterID {
		return domain.Account{}, domain.ErrForbidden
	}
	return acct, nil
}

func (r *Registry) GetByNumber(ctx context.Context, number string) (domain.Account, error) {
	if !domain.ValidAccountNumber(number) {
		return domain.Account{}, fmt.Errorf("%w: malformed account number", domain.ErrNotFound)
	}
	return r.st.GetAccountByNumber(ctx, number)
}

func (r *Registry) ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	return r.st.ListAccountsByOwner(ctx, ownerID)
}

// SetStatus transitions the account's lifecycle status. Re-setting the
// current status and any transition out of CLOSED are rejected.
func (r *Registry) SetStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) (domain.Account, error) {
	if !status.Valid() {
		return domain.Account{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidState, status)
	}

	corr := correlationID(ctx)

	var out domain.Account
	err := r.st.Atomic(ctx, func(tx store.Tx) error {
		acct, err := tx.LockAccount(ctx, id)
		if err != nil {
			return err
		}
		if !acct.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidState, acct.Status, status)
		}
		if err := tx.SetAccountStatus(ctx, id, status); err != nil {
			return err
		}
		old := acct.Status
		acct.Status = status
		ev, err := events.AccountStatusChanged(acct, old, corr, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return out, nil
}
