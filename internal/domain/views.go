package domain

import (
	"time"

	"github.com/google/uuid"
)

type CreateAccountRequest struct {
	Type     string `json:"account_type"`
	Currency string `json:"currency"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type AccountView struct {
	AccountID         uuid.UUID  `json:"account_id"`
	Number            string     `json:"account_number"`
	Type              string     `json:"account_type"`
	Status            string     `json:"status"`
	Balance           string     `json:"balance"`
	Currency          string     `json:"currency"`
	CreatedAt         time.Time  `json:"created_at"`
	LastTransactionAt *time.Time `json:"last_transaction_date,omitempty"`
}

type DepositRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type WithdrawRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type TransferRequest struct {
	DestinationAccountNumber string `json:"destination_account_number"`
	Amount                   string `json:"amount"`
	Description              string `json:"description"`
}

type TransactionView struct {
	TransactionID        uuid.UUID  `json:"transaction_id"`
	Type                 string     `json:"transaction_type"`
	Status               string     `json:"status"`
	Amount               string     `json:"amount"`
	AccountID            uuid.UUID  `json:"account_id"`
	DestinationAccountID *uuid.UUID `json:"destination_account_id,omitempty"`
	Reference            string     `json:"reference_number"`
	Description          string     `json:"description,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// NewAccountView renders balances as decimal strings; binary floats never
// appear on the wire.
func NewAccountView(a Account) AccountView {
	return AccountView{
		AccountID:         a.ID,
		Number:            a.Number,
		Type:              string(a.Type),
		Status:            string(a.Status),
		Balance:           a.Balance.StringFixed(2),
		Currency:          a.Currency,
		CreatedAt:         a.CreatedAt,
		LastTransactionAt: a.LastTransactionAt,
	}
}

func NewTransactionView(tx Transaction) TransactionView {
	return TransactionView{
		TransactionID:        tx.ID,
		Type:                 string(tx.Type),
		Status:               string(tx.Status),
		Amount:               tx.Amount.StringFixed(2),
		AccountID:            tx.AccountID,
		DestinationAccountID: tx.DestinationAccountID,
		Reference:            tx.Reference,
		Description:          tx.Description,
		CreatedAt:            tx.CreatedAt,
	}
}
