// Package postgres is the durable ledger store. One pgx transaction backs
// each atomic unit; row locks (`FOR UPDATE`) give the engine exclusive access
// to the accounts it mutates, and unique constraints on account and reference
// numbers back the retry-on-conflict generation loops.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"banking-core/internal/domain"
	"banking-core/internal/store"
)

const claimLease = 30 * time.Second

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{db: db} }

var _ store.Store = (*Store)(nil)

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrConflict
	}
	return err
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

const accountCols = `account_id, owner_id, account_number, account_type, status,
	balance::text, currency, created_at, last_transaction_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a       domain.Account
		balance string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Number, &a.Type, &a.Status,
		&balance, &a.Currency, &a.CreatedAt, &a.LastTransactionAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return domain.Account{}, fmt.Errorf("corrupt balance for %s: %w", a.ID, err)
	}
	return a, nil
}

func (t *pgTx) LockAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE account_id=$1 FOR UPDATE`, id))
}

func (t *pgTx) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts
		    SET balance = balance + $2::numeric, last_transaction_at = $3
		  WHERE account_id = $1`,
		id, delta.StringFixed(2), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a domain.Account) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO accounts(
			account_id, owner_id, account_number, account_type, status,
			balance, currency, created_at
		) VALUES($1,$2,$3,$4,$5,$6::numeric,$7,$8)`,
		a.ID, a.OwnerID, a.Number, a.Type, a.Status,
		a.Balance.StringFixed(2), a.Currency, a.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) SetAccountStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET status=$2 WHERE account_id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr domain.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions(
			transaction_id, transaction_type, status, amount, account_id,
			destination_account_id, reference_number, description, created_at, updated_at
		) VALUES($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10)`,
		tr.ID, tr.Type, tr.Status, tr.Amount.StringFixed(2), tr.AccountID,
		tr.DestinationAccountID, tr.Reference, tr.Description, tr.CreatedAt, tr.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) SetTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE transactions SET status=$2, updated_at=now() WHERE transaction_id=$1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e domain.Event) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO events(
			event_id, event_type, aggregate_id, correlation_id,
			payload_json, payload_canonical, status, attempts, next_attempt_at, created_at
		) VALUES($1,$2,$3,$4,$5::jsonb,$6,$7,$8,$9,$10)`,
		e.ID, e.Type, e.AggregateID, e.CorrelationID,
		e.Payload, e.Canonical, e.Status, e.Attempts, e.NextAttemptAt, e.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE account_id=$1`, id))
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (domain.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE account_number=$1`, number))
}

func (s *Store) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE owner_id=$1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	q := `SELECT transaction_id, transaction_type, status, amount::text, account_id,
	             destination_account_id, reference_number, COALESCE(description,''),
	             created_at, updated_at
	        FROM transactions
	       WHERE account_id=$1 OR destination_account_id=$1
	       ORDER BY created_at DESC, transaction_id`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			tr     domain.Transaction
			amount string
		)
		err := rows.Scan(&tr.ID, &tr.Type, &tr.Status, &amount, &tr.AccountID,
			&tr.DestinationAccountID, &tr.Reference, &tr.Description,
			&tr.CreatedAt, &tr.UpdatedAt)
		if err != nil {
			return nil, err
		}
		tr.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for %s: %w", tr.ID, err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ClaimPendingEvents leases due events so concurrent dispatchers skip each
// other's work instead of double-delivering.
func (s *Store) ClaimPendingEvents(ctx context.Context, now time.Time, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx,
		`WITH due AS (
			SELECT event_id FROM events
			 WHERE status='PENDING' AND next_attempt_at <= $1
			 ORDER BY created_at
			 LIMIT $2
			 FOR UPDATE SKIP LOCKED
		)
		UPDATE events e SET next_attempt_at = $3
		  FROM due
		 WHERE e.event_id = due.event_id
		 RETURNING e.event_id, e.event_type, e.aggregate_id, e.correlation_id,
		           e.payload_json, e.payload_canonical, e.status, e.attempts,
		           e.next_attempt_at, e.created_at`,
		now, limit, now.Add(claimLease))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		err := rows.Scan(&e.ID, &e.Type, &e.AggregateID, &e.CorrelationID,
			&e.Payload, &e.Canonical, &e.Status, &e.Attempts,
			&e.NextAttemptAt, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkEventDelivered(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE events SET status='DELIVERED' WHERE event_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) MarkEventFailed(ctx context.Context, id uuid.UUID, nextAttempt time.Time, terminal bool) error {
	var err error
	if terminal {
		_, err = s.db.Exec(ctx,
			`UPDATE events SET status='FAILED', attempts=attempts+1 WHERE event_id=$1`, id)
	} else {
		_, err = s.db.Exec(ctx,
			`UPDATE events SET attempts=attempts+1, next_attempt_at=$2 WHERE event_id=$1`,
			id, nextAttempt)
	}
	return err
}
