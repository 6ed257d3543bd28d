package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates an unknown account, student, transfer or sale id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount indicates a non-positive or unparseable amount.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// PendingProfitSharingError blocks debt-settlement expenses while any sale's
// profit split is still undetermined. Reasons name the blocking sales so the
// operator knows what to resolve first.
type PendingProfitSharingError struct {
	Reasons []string
}

func (e *PendingProfitSharingError) Error() string {
	if len(e.Reasons) == 0 {
		return "profit sharing pending"
	}
	return fmt.Sprintf("profit sharing pending: %s", strings.Join(e.Reasons, "; "))
}
