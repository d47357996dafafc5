/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Decimal values cross the wire as strings ("123.45") to avoid float
  precision loss in clients. Dates use ISO format "2006-01-02".

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/finbook/ledger-engine/balance"
	"github.com/finbook/ledger-engine/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	Name             string `json:"name"`
	CurrentEffective string `json:"current_effective"`
	CurrentReal      string `json:"current_real"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// CreateAccountRequest is the request to create an account.
type CreateAccountRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"`
	CategoryID   string  `json:"category_id,omitempty"`
	Kind         string  `json:"kind"`
	Value        string  `json:"value"`
	DueDate      string  `json:"due_date"`
	PaymentDate  *string `json:"payment_date,omitempty"`
	Description  string  `json:"description,omitempty"`
	BoundEntryID string  `json:"bound_entry_id,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

// EntryRequest is the request body for creating or updating an entry.
type EntryRequest struct {
	AccountID    string  `json:"account_id"`
	CategoryID   string  `json:"category_id,omitempty"`
	Kind         string  `json:"kind"`
	Value        string  `json:"value"`
	DueDate      string  `json:"due_date"`
	PaymentDate  *string `json:"payment_date,omitempty"`
	Description  string  `json:"description,omitempty"`
	BoundEntryID string  `json:"bound_entry_id,omitempty"`
}

// PayRequest sets the payment date when marking an entry paid.
// An empty date means "today".
type PayRequest struct {
	PaymentDate string `json:"payment_date,omitempty"`
}

// BalanceDTO is the account's current balance.
type BalanceDTO struct {
	AccountID string `json:"account_id"`
	Effective string `json:"effective"`
	Real      string `json:"real"`
	AsOf      string `json:"as_of"`
}

// PeriodBalanceDTO represents one closed month's cumulative totals.
type PeriodBalanceDTO struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Effective   string `json:"effective"`
	Real        string `json:"real"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAccountDTO(a *ledger.Account) AccountDTO {
	return AccountDTO{
		ID:               a.ID,
		UserID:           a.UserID,
		Name:             a.Name,
		CurrentEffective: a.CurrentEffective.String(),
		CurrentReal:      a.CurrentReal.String(),
		CreatedAt:        a.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e *ledger.Entry) EntryDTO {
	dto := EntryDTO{
		ID:           e.ID,
		AccountID:    e.AccountID,
		CategoryID:   e.CategoryID,
		Kind:         string(e.Kind),
		Value:        e.Value.String(),
		DueDate:      e.DueDate.String(),
		Description:  e.Description,
		BoundEntryID: e.BoundEntryID,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    e.UpdatedAt.Format(time.RFC3339),
	}
	if e.PaymentDate != nil {
		s := e.PaymentDate.String()
		dto.PaymentDate = &s
	}
	return dto
}

func toEntryDTOs(entries []*ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toPeriodBalanceDTO(row balance.PeriodBalance) PeriodBalanceDTO {
	return PeriodBalanceDTO{
		Start:       row.Period.Start.String(),
		End:         row.Period.End.String(),
		Effective:   row.Closed.Effective.String(),
		Real:        row.Closed.Real.String(),
		LastUpdated: row.LastUpdated.Format(time.RFC3339),
	}
}
