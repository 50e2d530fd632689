// Package memory is an in-memory ledger store. A single mutex serializes
// every atomic unit, so all operations are trivially linearizable; mutations
// run against a staged copy of the state and are swapped in only on success.
// It backs the engine's unit tests and small single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-core/internal/domain"
	"banking-core/internal/store"
)

// claimLease is how long a claimed event stays invisible to other
// dispatchers before it becomes due again.
const claimLease = 30 * time.Second

type state struct {
	accounts map[uuid.UUID]domain.Account
	byNumber map[string]uuid.UUID
	txs      map[uuid.UUID]domain.Transaction
	txOrder  []uuid.UUID
	refs     map[string]struct{}
	events   map[uuid.UUID]domain.Event
	evOrder  []uuid.UUID
}

func (s *state) clone() *state {
	cp := &state{
		accounts: make(map[uuid.UUID]domain.Account, len(s.accounts)),
		byNumber: make(map[string]uuid.UUID, len(s.byNumber)),
		txs:      make(map[uuid.UUID]domain.Transaction, len(s.txs)),
		txOrder:  append([]uuid.UUID(nil), s.txOrder...),
		refs:     make(map[string]struct{}, len(s.refs)),
		events:   make(map[uuid.UUID]domain.Event, len(s.events)),
		evOrder:  append([]uuid.UUID(nil), s.evOrder...),
	}
	for k, v := range s.accounts {
		cp.accounts[k] = v
	}
	for k, v := range s.byNumber {
		cp.byNumber[k] = v
	}
	for k, v := range s.txs {
		cp.txs[k] = v
	}
	for k := range s.refs {
		cp.refs[k] = struct{}{}
	}
	for k, v := range s.events {
		cp.events[k] = v
	}
	return cp
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		accounts: make(map[uuid.UUID]domain.Account),
		byNumber: make(map[string]uuid.UUID),
		txs:      make(map[uuid.UUID]domain.Transaction),
		refs:     make(map[string]struct{}),
		events:   make(map[uuid.UUID]domain.Event),
	}}
}

var _ store.Store = (*Store)(nil)

type memTx struct {
	st *state
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(&memTx{st: staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

func (t *memTx) LockAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (t *memTx) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal, at time.Time) error {
	a, ok := t.st.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Balance = a.Balance.Add(delta)
	ts := at
	a.LastTransactionAt = &ts
	t.st.accounts[id] = a
	return nil
}

func (t *memTx) InsertAccount(ctx context.Context, a domain.Account) error {
	if _, taken := t.st.byNumber[a.Number]; taken {
		return domain.ErrConflict
	}
	if _, dup := t.st.accounts[a.ID]; dup {
		return domain.ErrConflict
	}
	t.st.accounts[a.ID] = a
	t.st.byNumber[a.Number] = a.ID
	return nil
}

func (t *memTx) SetAccountStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	a, ok := t.st.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	t.st.accounts[id] = a
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr domain.Transaction) error {
	if _, taken := t.st.refs[tr.Reference]; taken {
		return domain.ErrConflict
	}
	if _, dup := t.st.txs[tr.ID]; dup {
		return domain.ErrConflict
	}
	t.st.txs[tr.ID] = tr
	t.st.txOrder = append(t.st.txOrder, tr.ID)
	t.st.refs[tr.Reference] = struct{}{}
	return nil
}

func (t *memTx) SetTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	tr, ok := t.st.txs[id]
	if !ok {
		return domain.ErrNotFound
	}
	tr.Status = status
	tr.UpdatedAt = time.Now().UTC()
	t.st.txs[id] = tr
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, e domain.Event) error {
	if _, dup := t.st.events[e.ID]; dup {
		return domain.ErrConflict
	}
	t.st.events[e.ID] = e
	t.st.evOrder = append(t.st.evOrder, e.ID)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.byNumber[number]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return s.st.accounts[id], nil
}

func (s *Store) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Account
	for _, a := range s.st.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	// txOrder is insertion order; walk backwards for newest first.
	for i := len(s.st.txOrder) - 1; i >= 0; i-- {
		tr := s.st.txs[s.st.txOrder[i]]
		if tr.AccountID != accountID &&
			(tr.DestinationAccountID == nil || *tr.DestinationAccountID != accountID) {
			continue
		}
		out = append(out, tr)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ClaimPendingEvents(ctx context.Context, now time.Time, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, id := range s.st.evOrder {
		e := s.st.events[id]
		if e.Status != domain.EventPending || e.NextAttemptAt.After(now) {
			continue
		}
		e.NextAttemptAt = now.Add(claimLease)
		s.st.events[id] = e
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkEventDelivered(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = domain.EventDelivered
	s.st.events[id] = e
	return nil
}

func (s *Store) MarkEventFailed(ctx context.Context, id uuid.UUID, nextAttempt time.Time, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Attempts++
	if terminal {
		e.Status = domain.EventFailed
	} else {
		e.NextAttemptAt = nextAttempt
	}
	s.st.events[id] = e
	return nil
}
