package ledger

import "errors"

// Sentinel errors for entry/account validation and lookups.
// Use with errors.Is().
var (
	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSignMismatch is returned when an entry's value sign contradicts
	// its kind (negative income or positive expense).
	ErrSignMismatch = errors.New("value sign does not match entry kind")

	// ErrNoAccount is returned for an entry without an account.
	ErrNoAccount = errors.New("entry requires an account")

	// ErrNoDueDate is returned for an entry without a due date.
	ErrNoDueDate = errors.New("entry requires a due date")

	// ErrUnknownKind is returned for an entry kind other than income/expense.
	ErrUnknownKind = errors.New("unknown entry kind")
)

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound) || errors.Is(err, ErrAccountNotFound)
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSignMismatch) ||
		errors.Is(err, ErrNoAccount) ||
		errors.Is(err, ErrNoDueDate) ||
		errors.Is(err, ErrUnknownKind)
}
