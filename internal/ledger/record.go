package ledger

import (
	"fmt"
)

// Status of one bridge attempt. Monotonic: a terminal status never regresses.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition enforces the only two permitted moves,
// Pending→Completed and Pending→Failed.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	return s == StatusPending && to.Terminal()
}

type TransferType string

const (
	TypeLockAndMint   TransferType = "LOCK_AND_MINT"
	TypeBurnAndUnlock TransferType = "BURN_AND_UNLOCK"
)

func (t TransferType) Valid() bool {
	return t == TypeLockAndMint || t == TypeBurnAndUnlock
}

// TransferRecord is the durable ledger entity of one bridge attempt. Records
// are created Pending immediately before the first irreversible chain call,
// updated in place as receipt hashes become known, and never deleted.
type TransferRecord struct {
	Id             string       `json:"id,omitempty"`
	TransferId     string       `json:"transferId"`
	Type           TransferType `json:"type"`
	TokenId        string       `json:"tokenId"`
	Standard       string       `json:"standard,omitempty"`
	SourceChain    string       `json:"sourceChain"`
	TargetChain    string       `json:"targetChain"`
	SourceContract string       `json:"sourceContract,omitempty"`
	TargetContract string       `json:"targetContract,omitempty"`
	LockHash       string       `json:"lockHash,omitempty"`
	MintHash       string       `json:"mintHash,omitempty"`
	BurnHash       string       `json:"burnHash,omitempty"`
	UnlockHash     string       `json:"unlockHash,omitempty"`
	Status         Status       `json:"status"`
	IsActive       bool         `json:"isActive"`
	Sender         string       `json:"sender,omitempty"`
	Receiver       string       `json:"receiver,omitempty"`
	Timestamp      int64        `json:"timestamp"`
}

// Validate runs the boundary checks before a record leaves for the store.
func (r *TransferRecord) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid transfer type %q", r.Type)
	}
	if r.TokenId == "" {
		return fmt.Errorf("record missing tokenId")
	}
	if r.TransferId == "" {
		return fmt.Errorf("record missing transferId")
	}
	return nil
}

// Patch carries a partial update; zero fields are left untouched by the store.
type Patch struct {
	LockHash   string `json:"lockHash,omitempty"`
	MintHash   string `json:"mintHash,omitempty"`
	BurnHash   string `json:"burnHash,omitempty"`
	UnlockHash string `json:"unlockHash,omitempty"`
	Status     Status `json:"status,omitempty"`
	IsActive   *bool  `json:"isActive,omitempty"`
}

// WrappedInfo is the read-side projection answering "is this asset currently a
// wrapped copy, and if so what is its origin". Derived, never persisted.
type WrappedInfo struct {
	IsWrapped        bool            `json:"isWrapped"`
	OriginalChain    string          `json:"originalChain,omitempty"`
	OriginalContract string          `json:"originalContract,omitempty"`
	TransferId       string          `json:"transferId,omitempty"`
	Record           *TransferRecord `json:"transaction,omitempty"`
}

// BoolPtr is a convenience for Patch.IsActive.
func BoolPtr(b bool) *bool { return &b }
