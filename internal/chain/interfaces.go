package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/wrapgate/bridge/internal/config"
)

// Connection is a signing handle bound to one network. It is only valid while
// that network is the wallet's active one.
type Connection interface {
	ChainId() *big.Int
	From() common.Address
	// CallContract executes a read-only call against the connected network.
	CallContract(ctx context.Context, to common.Address, input []byte) ([]byte, error)
	// SubmitAndWait signs and submits a state-mutating call, then blocks until
	// the inclusion receipt is observed. A receipt with failed status is
	// returned as an error. Mempool acceptance alone never counts as committed.
	SubmitAndWait(ctx context.Context, to common.Address, input []byte, gasLimit *big.Int) (common.Hash, error)
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	Close()
}

// Wallet is the process-wide holder of network connections, mirroring the
// switch/add semantics of an injected browser wallet. SwitchChain fails with
// an *UnrecognizedChainError until the chain has been registered via AddChain.
type Wallet interface {
	SwitchChain(ctx context.Context, hexChainId string) (Connection, error)
	AddChain(ctx context.Context, endpoint *config.ChainEndpoint) error
	Close()
}
