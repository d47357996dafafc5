/*
handlers.go - HTTP API handlers for the ledger balance system

PURPOSE:
  Exposes the ledger and balance engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts               List accounts for a user (?user_id=)
    POST   /api/accounts               Create account
    GET    /api/accounts/{id}          Get account with running balance
    GET    /api/accounts/{id}/balance  Calculator-derived current balance
    GET    /api/accounts/{id}/periods  Closed period rows (?from=YYYY-MM-DD)
    GET    /api/accounts/{id}/entries  List entries for the account

  Entries:
    POST   /api/entries                Create entry (drives the engine)
    GET    /api/entries/{id}           Get entry
    PUT    /api/entries/{id}           Update entry
    DELETE /api/entries/{id}           Delete entry
    POST   /api/entries/{id}/pay       Mark paid (body: payment_date)
    POST   /api/entries/{id}/unpay     Clear payment date

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (repository, calculator)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/finbook/ledger-engine/balance"
	"github.com/finbook/ledger-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo       *ledger.Repository
	Calculator *balance.Calculator
	Store      ledger.TxStore
}

// NewHandler creates a new handler around the repository and read side.
func NewHandler(repo *ledger.Repository, calc *balance.Calculator, store ledger.TxStore) *Handler {
	return &Handler{Repo: repo, Calculator: calc, Store: store}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the accounts belonging to a user.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required", nil)
		return
	}

	accounts, err := h.Repo.Accounts(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates an account with zero balances.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "user_id and name are required", nil)
		return
	}

	account := &ledger.Account{UserID: req.UserID, Name: req.Name}
	if err := h.Repo.CreateAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount returns a single account with its running balance.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	account, err := h.Repo.Account(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// GetBalance returns the calculator-derived current balance: latest
// closed period row plus the open month's live activity.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := h.Repo.Account(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}

	pair, err := h.Calculator.CurrentBalance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		AccountID: id,
		Effective: pair.Effective.String(),
		Real:      pair.Real.String(),
		AsOf:      time.Now().UTC().Format(time.RFC3339),
	})
}

// ListPeriodBalances returns the closed period rows for an account,
// optionally starting from a date (?from=YYYY-MM-DD).
func (h *Handler) ListPeriodBalances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	from := balance.NewDate(1, time.January, 1)
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD", err)
			return
		}
		from = d
	}

	rows, err := h.Store.PeriodRowsFrom(r.Context(), id, from)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list period balances", err)
		return
	}

	dtos := make([]PeriodBalanceDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toPeriodBalanceDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListEntries returns an account's entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.Repo.EntriesByAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// CreateEntry creates an entry and applies its balance effects.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := entryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry", err)
		return
	}

	if err := h.Repo.CreateEntry(r.Context(), entry); err != nil {
		writeDomainError(w, err, "Failed to create entry")
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// GetEntry returns a single entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := h.Repo.Entry(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to load entry")
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// UpdateEntry saves changes to an entry. Balance-relevant changes are
// pushed through the engine; cosmetic ones are plain writes.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := entryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry", err)
		return
	}
	entry.ID = id

	if err := h.Repo.UpdateEntry(r.Context(), entry); err != nil {
		writeDomainError(w, err, "Failed to update entry")
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// DeleteEntry removes an entry and reverses its balance contribution.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Repo.DeleteEntry(r.Context(), id); err != nil {
		writeDomainError(w, err, "Failed to delete entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PayEntry marks an entry as paid on the given date (default today).
func (h *Handler) PayEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req PayRequest
	if r.Body != nil {
		// Empty body is fine; it means pay today.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	on := balance.Today()
	if req.PaymentDate != "" {
		d, err := parseDate(req.PaymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid payment_date, expected YYYY-MM-DD", err)
			return
		}
		on = d
	}

	if err := h.Repo.PayEntry(r.Context(), id, on); err != nil {
		writeDomainError(w, err, "Failed to pay entry")
		return
	}

	entry, err := h.Repo.Entry(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to load entry")
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// UnpayEntry clears an entry's payment date.
func (h *Handler) UnpayEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Repo.UnpayEntry(r.Context(), id); err != nil {
		writeDomainError(w, err, "Failed to unpay entry")
		return
	}

	entry, err := h.Repo.Entry(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to load entry")
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// =============================================================================
// HELPERS
// =============================================================================

func entryFromRequest(req EntryRequest) (*ledger.Entry, error) {
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		return nil, err
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		return nil, err
	}

	entry := &ledger.Entry{
		AccountID:    req.AccountID,
		CategoryID:   req.CategoryID,
		Kind:         ledger.EntryKind(req.Kind),
		Value:        value,
		DueDate:      due,
		Description:  req.Description,
		BoundEntryID: req.BoundEntryID,
	}
	if req.PaymentDate != nil && *req.PaymentDate != "" {
		d, err := parseDate(*req.PaymentDate)
		if err != nil {
			return nil, err
		}
		entry.PaymentDate = &d
	}
	return entry, nil
}

func parseDate(s string) (balance.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return balance.Date{}, err
	}
	return balance.DateOf(t), nil
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error, message string) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err) || balance.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
