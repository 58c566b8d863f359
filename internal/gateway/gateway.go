package gateway

import (
	"context"
	"math/big"
	"strings"

	"github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/wrapgate/bridge/internal/chain"
	"github.com/wrapgate/bridge/internal/config"
)

var (
	Asset, _       = abi.JSON(strings.NewReader(config.AssetAbiJson))
	LockGateway, _ = abi.JSON(strings.NewReader(config.LockGatewayAbiJson))
	MintGateway, _ = abi.JSON(strings.NewReader(config.MintGatewayAbiJson))
	Verifier, _    = abi.JSON(strings.NewReader(config.VerifierAbiJson))
)

// ConnProvider hands out the signing handle of the currently active network.
// The session satisfies it; callers are expected to have switched to the
// right chain before any gateway call.
type ConnProvider interface {
	Conn() (chain.Connection, error)
	Active() *config.ChainEndpoint
}

// Gateway is the typed call surface over the asset contract and the two
// bridge contracts of whatever chain is currently active.
type Gateway struct {
	session ConnProvider
	log     log15.Logger
}

func New(session ConnProvider, log log15.Logger) *Gateway {
	return &Gateway{session: session, log: log}
}

func PackInput(commonAbi abi.ABI, abiMethod string, params ...interface{}) ([]byte, error) {
	input, err := commonAbi.Pack(abiMethod, params...)
	if err != nil {
		return nil, err
	}
	return input, nil
}

// OwnerOf resolves the current owner of tokenId on the active chain.
func (g *Gateway) OwnerOf(ctx context.Context, assetContract common.Address, tokenId *big.Int) (common.Address, error) {
	input, err := PackInput(Asset, config.MethodOwnerOf, tokenId)
	if err != nil {
		return common.Address{}, err
	}
	output, err := g.call(ctx, assetContract, input)
	if err != nil {
		return common.Address{}, wrapCall(config.MethodOwnerOf, err)
	}

	var owner common.Address
	if err = unpackSingle(Asset, config.MethodOwnerOf, output, &owner); err != nil {
		return common.Address{}, err
	}
	return owner, nil
}

// Approve authorizes operator to move tokenId and waits for inclusion.
func (g *Gateway) Approve(ctx context.Context, assetContract, operator common.Address, tokenId *big.Int) (common.Hash, error) {
	input, err := PackInput(Asset, config.MethodApprove, operator, tokenId)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := g.submit(ctx, assetContract, input)
	if err != nil {
		return hash, errors.Wrap(ErrApprovalRejected, Decode(err).Error())
	}
	g.log.Info("Approved transfer operator", "operator", operator, "token", tokenId, "hash", hash)
	return hash, nil
}

// IsLocked reports whether tokenId is already custodied by the lock gateway.
func (g *Gateway) IsLocked(ctx context.Context, lockContract common.Address, tokenId *big.Int) (bool, error) {
	input, err := PackInput(LockGateway, config.MethodLockedTokens, tokenId)
	if err != nil {
		return false, err
	}
	output, err := g.call(ctx, lockContract, input)
	if err != nil {
		return false, wrapCall(config.MethodLockedTokens, err)
	}

	var locked bool
	if err = unpackSingle(LockGateway, config.MethodLockedTokens, output, &locked); err != nil {
		return false, err
	}
	return locked, nil
}

// Lock custodies tokenId under transferId. Callers must have verified
// ownership and the not-locked predicate first.
func (g *Gateway) Lock(ctx context.Context, lockContract, assetContract common.Address, tokenId *big.Int, transferId [32]byte) (common.Hash, error) {
	input, err := PackInput(LockGateway, config.MethodLockNFT, assetContract, tokenId, transferId)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := g.submit(ctx, lockContract, input)
	if err != nil {
		return hash, wrapCall(config.MethodLockNFT, err)
	}
	g.log.Info("Locked asset", "contract", assetContract, "token", tokenId, "hash", hash)
	return hash, nil
}

// Unlock releases the asset custodied under transferId. The id must be the
// one used for the original lock, never a freshly generated one.
func (g *Gateway) Unlock(ctx context.Context, lockContract common.Address, transferId [32]byte) (common.Hash, error) {
	input, err := PackInput(LockGateway, config.MethodUnlockNFT, transferId)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := g.submit(ctx, lockContract, input)
	if err != nil {
		return hash, wrapCall(config.MethodUnlockNFT, err)
	}
	g.log.Info("Unlocked asset", "transferId", common.Hash(transferId), "hash", hash)
	return hash, nil
}

// MintWrapped creates the wrapped copy on the active chain.
func (g *Gateway) MintWrapped(ctx context.Context, mintContract, to, originalContract common.Address, tokenId *big.Int, transferId [32]byte, metadataUri string) (common.Hash, error) {
	input, err := PackInput(MintGateway, config.MethodMintWrappedNFT, to, originalContract, tokenId, transferId, metadataUri)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := g.submit(ctx, mintContract, input)
	if err != nil {
		return hash, wrapCall(config.MethodMintWrappedNFT, err)
	}
	g.log.Info("Minted wrapped copy", "token", tokenId, "to", to, "hash", hash)
	return hash, nil
}

// BurnWrapped destroys the wrapped copy, the precondition for unlocking the
// original.
func (g *Gateway) BurnWrapped(ctx context.Context, mintContract common.Address, tokenId *big.Int, transferId [32]byte) (common.Hash, error) {
	input, err := PackInput(MintGateway, config.MethodBurnWrappedNFT, tokenId, transferId)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := g.submit(ctx, mintContract, input)
	if err != nil {
		return hash, wrapCall(config.MethodBurnWrappedNFT, err)
	}
	g.log.Info("Burned wrapped copy", "token", tokenId, "hash", hash)
	return hash, nil
}

// Processed reports whether the gateway at contract has already consumed
// transferId. Lock and mint gateways expose the same predicate.
func (g *Gateway) Processed(ctx context.Context, contract common.Address, transferId [32]byte) (bool, error) {
	input, err := PackInput(LockGateway, config.MethodProcessedTransfers, transferId)
	if err != nil {
		return false, err
	}
	output, err := g.call(ctx, contract, input)
	if err != nil {
		return false, wrapCall(config.MethodProcessedTransfers, err)
	}

	var processed bool
	if err = unpackSingle(LockGateway, config.MethodProcessedTransfers, output, &processed); err != nil {
		return false, err
	}
	return processed, nil
}

// VerifyProof executes the allow-list membership check on-chain.
func (g *Gateway) VerifyProof(ctx context.Context, verifierContract common.Address, proof [][32]byte, leaf [32]byte) (bool, error) {
	input, err := PackInput(Verifier, config.MethodVerifyProof, proof, leaf)
	if err != nil {
		return false, err
	}
	output, err := g.call(ctx, verifierContract, input)
	if err != nil {
		return false, wrapCall(config.MethodVerifyProof, err)
	}

	var ok bool
	if err = unpackSingle(Verifier, config.MethodVerifyProof, output, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (g *Gateway) call(ctx context.Context, to common.Address, input []byte) ([]byte, error) {
	conn, err := g.session.Conn()
	if err != nil {
		return nil, err
	}
	return conn.CallContract(ctx, to, input)
}

func (g *Gateway) submit(ctx context.Context, to common.Address, input []byte) (common.Hash, error) {
	conn, err := g.session.Conn()
	if err != nil {
		return common.Hash{}, err
	}
	return conn.SubmitAndWait(ctx, to, input, g.session.Active().GasLimit)
}

func unpackSingle(commonAbi abi.ABI, abiMethod string, output []byte, ret interface{}) error {
	outputs := commonAbi.Methods[abiMethod].Outputs
	unpacked, err := outputs.Unpack(output)
	if err != nil {
		return errors.Wrapf(err, "unpack %s output failed", abiMethod)
	}
	if err = outputs.Copy(ret, unpacked); err != nil {
		return errors.Wrapf(err, "copy %s output failed", abiMethod)
	}
	return nil
}
