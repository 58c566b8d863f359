package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrTransferInFlight rejects a second attempt for the same asset while
	// one is outstanding, so duplicate attempts do not waste gas on
	// guaranteed contract-level rejections.
	ErrTransferInFlight = errors.New("a transfer for this asset is already in flight")

	// ErrNoActiveTransfer means the ledger projection found no active wrap to
	// reverse. The backward path fails gracefully with it.
	ErrNoActiveTransfer = errors.New("no active transfer found for this asset")
)

// StrandedError is the severe, non-retryable failure class: an irreversible
// step succeeded and its counterpart could not be completed, so chain state
// and the protocol invariant have diverged. Manual intervention is required.
type StrandedError struct {
	TransferId TransferId
	State      State
	Cause      error // the step failure that triggered compensation
	Compensate error // the compensating call's own failure, nil on the return path
}

func (e *StrandedError) Error() string {
	if e.Compensate != nil {
		return fmt.Sprintf("transfer %s stranded in %s: mint failed (%v) and the compensating unlock failed too (%v); "+
			"the asset remains locked with no wrapped copy, manual intervention required",
			e.TransferId.Hex(), e.State, e.Cause, e.Compensate)
	}
	return fmt.Sprintf("transfer %s stranded in %s: the wrapped copy was burned but the unlock failed (%v); "+
		"the original remains locked, manual intervention required, do not retry",
		e.TransferId.Hex(), e.State, e.Cause)
}

func (e *StrandedError) Unwrap() error { return e.Cause }
