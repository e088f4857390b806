package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InsufficientFundsError reports a transfer whose source balance cannot
// cover the requested amount. It is a logical failure, not a serialization
// conflict, so the retry executor propagates it without retrying.
type InsufficientFundsError struct {
	AccountID uuid.UUID
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s: have %d, need %d", e.AccountID, e.Available, e.Requested)
}
