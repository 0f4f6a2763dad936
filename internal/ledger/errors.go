package ledger

import "errors"

// Every failure rolls back the whole unit of work: no balance change, no
// log entry. Callers match with errors.Is and decide whether to retry,
// surface, or treat AlreadyApplied as success already achieved.
var (
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyApplied      = errors.New("top-up request already applied")
	ErrSellerNotFound      = errors.New("seller not found")
	ErrTopUpNotFound       = errors.New("top-up request not found")
)
