package ledger

import (
	"context"

	"github.com/google/uuid"

	"banking-core/internal/domain"
)

type historyStore interface {
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error)
	GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
}

// History is the read-only projection over transaction records.
type History struct {
	st historyStore
}

func NewHistory(st historyStore) *History { return &History{st: st} }

// ForAccount returns the account's transactions newest first, including
// records where it is the destination of a transfer. limit <= 0 returns all.
func (h *History) ForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if _, err := h.st.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return h.st.ListTransactions(ctx, accountID, limit)
}
