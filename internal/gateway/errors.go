package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Precondition and submission failures surfaced to callers. Raw provider
// errors never leave this package undecoded.
var (
	ErrNotOwner          = errors.New("caller does not own this token")
	ErrAlreadyLocked     = errors.New("token is already locked")
	ErrAlreadyProcessed  = errors.New("transfer id already processed")
	ErrApprovalRejected  = errors.New("approval rejected")
	ErrSignatureRejected = errors.New("transaction rejected by user")
)

// Category buckets a decoded chain-call failure.
type Category string

const (
	CategoryUserRejected      Category = "user-rejected"
	CategoryInsufficientFunds Category = "insufficient-funds"
	CategoryNonce             Category = "nonce"
	CategoryRevert            Category = "contract-revert"
	CategoryUnknown           Category = "unknown"
)

// ChainCallError wraps a failed contract interaction with the decoded
// category and, for reverts, the revert reason.
type ChainCallError struct {
	Op       string
	Category Category
	Reason   string
	Err      error
}

func (e *ChainCallError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s failed (%s): %s", e.Op, e.Category, e.Reason)
	}
	return fmt.Sprintf("%s failed (%s)", e.Op, e.Category)
}

func (e *ChainCallError) Unwrap() error { return e.Err }

// Decode maps a raw provider error onto the small human-readable taxonomy.
func Decode(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user denied") || strings.Contains(msg, "user rejected"):
		return ErrSignatureRejected
	case strings.Contains(msg, "insufficient funds"):
		return errors.New("insufficient funds for gas")
	case strings.Contains(msg, "nonce too low") || strings.Contains(msg, "replacement transaction"):
		return errors.New("transaction ordering issue, retry the attempt")
	case strings.Contains(msg, "execution reverted"):
		if reason := revertReason(err.Error()); reason != "" {
			return fmt.Errorf("contract reverted: %s", reason)
		}
		return errors.New("contract reverted")
	default:
		return errors.New("unknown error occurred")
	}
}

func wrapCall(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	cce := &ChainCallError{Op: op, Category: CategoryUnknown, Err: err}
	switch {
	case strings.Contains(msg, "user denied") || strings.Contains(msg, "user rejected"):
		cce.Category = CategoryUserRejected
	case strings.Contains(msg, "insufficient funds"):
		cce.Category = CategoryInsufficientFunds
	case strings.Contains(msg, "nonce too low") || strings.Contains(msg, "replacement transaction"):
		cce.Category = CategoryNonce
	case strings.Contains(msg, "revert"):
		cce.Category = CategoryRevert
		cce.Reason = revertReason(err.Error())
	}
	return cce
}

func revertReason(msg string) string {
	const marker = "execution reverted"
	idx := strings.Index(strings.ToLower(msg), marker)
	if idx < 0 {
		return ""
	}
	reason := strings.TrimLeft(msg[idx+len(marker):], ": ")
	return strings.TrimSpace(reason)
}

// IsRevert reports whether err carries a contract revert, regardless of the
// wrapping depth.
func IsRevert(err error) bool {
	var cce *ChainCallError
	if errors.As(err, &cce) {
		return cce.Category == CategoryRevert
	}
	return false
}
