package bridge

import (
	"encoding/binary"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// TransferId is the 32-byte idempotency key correlating a lock/mint (or
// burn/unlock) pair across two independent chains. Derived exactly once per
// logical attempt and resubmitted identically to every contract call of that
// attempt.
type TransferId [32]byte

func (t TransferId) Hex() string {
	return common.Hash(t).Hex()
}

func (t TransferId) IsZero() bool {
	return t == TransferId{}
}

// ParseTransferId reads a previously recorded id back from its hex form.
func ParseTransferId(s string) TransferId {
	return TransferId(common.HexToHash(s))
}

// NewTransferId derives the key as Keccak-256 over the initiator, both
// contracts, the token id and the attempt time. The contract addresses widen
// the input so that two collections sharing a token id bridged by the same
// principal at the same instant cannot collide. Two attempts with fully
// identical input inside one nanosecond would still collide; callers never
// produce that, since a retry after any chain call derives a fresh id.
func NewTransferId(initiator, sourceContract, destContract common.Address, tokenId *big.Int, at time.Time) TransferId {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))

	h := sha3.NewLegacyKeccak256()
	h.Write(initiator.Bytes())
	h.Write(sourceContract.Bytes())
	h.Write(destContract.Bytes())
	h.Write([]byte(tokenId.String()))
	h.Write(ts[:])

	var id TransferId
	copy(id[:], h.Sum(nil))
	return id
}
