package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-core/internal/domain"
	"banking-core/internal/ledger"
)

type Handlers struct {
	registry *ledger.Registry
	engine   *ledger.Engine
	history  *ledger.History
}

func NewHandlers(registry *ledger.Registry, engine *ledger.Engine, history *ledger.History) *Handlers {
	return &Handlers{registry: registry, engine: engine, history: history}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	// Validation: rejected before any mutation began.
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrAccountNotActive),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict

	// Degraded store: retryable, not a client fault.
	case errors.Is(err, domain.ErrDuplicateReference),
		errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	// Don't leak internals on 5xx.
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

func fail(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	writeErr(w, code, publicErrMessage(code, err))
}

// requesterID reads the verified caller identity supplied by the auth layer
// in front of this service. The core never inspects tokens itself.
func requesterID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get("X-Requester-Id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.ErrForbidden
	}
	return id, nil
}

// opContext attaches the request deadline and correlation id. The deadline
// fires before lock acquisition, never after partial mutation: inside the
// atomic unit a cancellation rolls the whole unit back.
func opContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := r.Context()
	if corr := r.Header.Get("X-Correlation-Id"); corr != "" {
		ctx = ledger.WithCorrelationID(ctx, corr)
	}
	return context.WithTimeout(ctx, timeout)
}

func parseAmount(s string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, domain.ErrInvalidAmount
	}
	return amt, nil
}

// POST /v1/accounts | GET /v1/accounts
func (h *Handlers) Accounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAccount(w, r)
	case http.MethodGet:
		h.listAccounts(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := requesterID(r)
	if err != nil {
		fail(w, err)
		return
	}

	var req domain.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := opContext(r, 3*time.Second)
	defer cancel()

	acct, err := h.registry.CreateAccount(ctx, owner, domain.AccountType(strings.ToUpper(req.Type)), req.Currency)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewAccountView(acct))
}

func (h *Handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	owner, err := requesterID(r)
	if err != nil {
		fail(w, err)
		return
	}

	ctx, cancel := opContext(r, 3*time.Second)
	defer cancel()

	accts, err := h.registry.ListAccounts(ctx, owner)
	if err != nil {
		fail(w, err)
		return
	}
	views := make([]domain.AccountView, 0, len(accts))
	for _, a := range accts {
		views = append(views, domain.NewAccountView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

// AccountSubtree routes /v1/accounts/{uuid}[/...]:
//
//	GET  /v1/accounts/{id}
//	PUT  /v1/accounts/{id}/status
//	POST /v1/accounts/{id}/deposit
//	POST /v1/accounts/{id}/withdraw
//	POST /v1/accounts/{id}/transfer
//	GET  /v1/accounts/{id}/transactions
func (h *Handlers) AccountSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	parts := strings.Split(path, "/")

	accID, err := uuid.Parse(parts[0])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid account id")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.getAccount(w, r, accID)
		return
	}
	if len(parts) != 2 {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case parts[1] == "status" && r.Method == http.MethodPut:
		h.setStatus(w, r, accID)
	case parts[1] == "deposit" && r.Method == http.MethodPost:
		h.deposit(w, r, accID)
	case parts[1] == "withdraw" && r.Method == http.MethodPost:
		h.withdraw(w, r, accID)
	case parts[1] == "transfer" && r.Method == http.MethodPost:
		h.transfer(w, r, accID)
	case parts[1] == "transactions" && r.Method == http.MethodGet:
		h.transactions(w, r, accID)
	default:
		writeErr(w, http.StatusNotFound, "not found")
	}
}

func (h *Handlers) getAccount(w http.ResponseWriter, r *http.Request, accID uuid.UUID) {
	requester, err := requesterID(r)
	if err != nil {
		fail(w, err)
		return
	}

	ctx, cancel := opContext(r, 3*time.Second)
	defer cancel()

	acct, err := h.registry.GetAccount(ctx, accID, requester)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewAccountView(acct))
}

func (h *Handlers) setStatus(w http.ResponseWriter, r *http.Request, accID uuid.UUID) {
	var req domain.SetStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := opContext(r, 3*time.Second)
	defer cancel()

	acct, err := h.registry.SetStatus(ctx, accID, domain.AccountStatus(strings.ToUpper(req.Status)))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewAccountView(acct))
}

func (h *Handlers) deposit(w http.ResponseWriter, r *http.Request, accID uuid.UUID) {
	var req domain.DepositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		fail(w, err)
		return
	}

	ctx, cancel := opContext(r, 5*time.Second)
	defer cancel()

	tr, err := h.engine.Deposit(ctx, accID, amount, req.Description)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewTransactionView(tr))
}

func (h *Handlers) withdraw(w http.ResponseWriter, r *http.Request, accID uuid.UUID) {
	var req domain.WithdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		fail(w, err)
		return
	}

	ctx, cancel := opContext(r, 5*time.Second)
	defer cancel()

	tr, err := h.engine.Withdraw(ctx, accID, amount, req.Description)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewTransactionView(tr))
}

func (h *Handlers) transfer(w http.ResponseWriter, r *http.Request, accID uuid.UUID) {
	var req domain.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		fail(w, err)
		return
	}

	ctx, cancel := opContext(r, 5*time.Second)
	defer cancel()

	tr, err := h.engine.Transfer(ctx, accID, req.DestinationAccountNumber, amount, req.Description)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewTransactionView(tr))
}

func (h *Handlers) transactions(w http.ResponseWriter, r *http.Request, accID uuid.UUID) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErr(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	ctx, cancel := opContext(r, 3*time.Second)
	defer cancel()

	txs, err := h.history.ForAccount(ctx, accID, limit)
	if err != nil {
		fail(w, err)
		return
	}
	views := make([]domain.TransactionView, 0, len(txs))
	for _, tr := range txs {
		views = append(views, domain.NewTransactionView(tr))
	}
	writeJSON(w, http.StatusOK, views)
}
