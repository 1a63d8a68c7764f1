package usage

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
)

var (
	ErrLedgerNotFound = errors.New("usage.errors.ledger_not_found")
	ErrLimitExceeded  = errors.New("usage.errors.limit_exceeded")
	ErrInvalidCount   = errors.New("usage.errors.invalid_count")
	ErrInvalidField   = entitlement.ErrInvalidField
	ErrInvalidLedger  = errors.New("usage.errors.invalid_ledger")
)

// LimitExceededError carries what an upgrade prompt needs to render.
// Limit is the remaining balance at the time of the attempt.
type LimitExceededError struct {
	Field    Field `json:"field"`
	Limit    Quota `json:"limit"`
	Required int64 `json:"required"`
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: %s requires %d, %s remaining", ErrLimitExceeded, e.Field, e.Required, e.Limit)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}
