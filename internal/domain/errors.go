package domain

import "errors"

// Validation errors are detected before the atomic unit begins; infrastructure
// errors roll the whole unit back. The HTTP layer maps these to status codes
// in one place.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrAccountNotActive   = errors.New("account not active")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrSameAccount        = errors.New("transfer to same account")
	ErrCurrencyMismatch   = errors.New("currency mismatch")
	ErrDuplicateReference = errors.New("duplicate reference number")
	ErrConflict           = errors.New("unique constraint conflict")
	ErrStoreUnavailable   = errors.New("store unavailable")
)
