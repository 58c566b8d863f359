package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ChainSafe/chainbridge-utils/crypto/secp256k1"
	"github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/wrapgate/bridge/internal/config"
)

// RpcWallet keeps one dialed rpc connection per registered chain and signs
// with a single keypair, reproducing the switch/add behaviour of an injected
// wallet for headless use.
type RpcWallet struct {
	mu    sync.Mutex
	kp    *secp256k1.Keypair
	conns map[string]*evmConnection
	log   log15.Logger
}

func NewRpcWallet(kp *secp256k1.Keypair, log log15.Logger) *RpcWallet {
	return &RpcWallet{
		kp:    kp,
		conns: make(map[string]*evmConnection),
		log:   log,
	}
}

func (w *RpcWallet) SwitchChain(ctx context.Context, hexChainId string) (Connection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	conn, ok := w.conns[hexChainId]
	if !ok {
		return nil, &UnrecognizedChainError{HexChainId: hexChainId}
	}
	return conn, nil
}

func (w *RpcWallet) AddChain(ctx context.Context, endpoint *config.ChainEndpoint) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.conns[endpoint.HexChainId()]; ok {
		return nil
	}

	var client *ethclient.Client
	var err error
	for _, url := range endpoint.RpcUrls {
		client, err = ethclient.DialContext(ctx, url)
		if err == nil {
			break
		}
		w.log.Warn("Dial rpc endpoint failed", "chain", endpoint.Name, "url", url, "err", err)
	}
	if client == nil {
		return errors.Wrapf(err, "no reachable rpc endpoint for chain %s", endpoint.Name)
	}

	chainId, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return errors.Wrapf(err, "query chain id of %s failed", endpoint.Name)
	}
	if chainId.Uint64() != uint64(endpoint.Id) {
		client.Close()
		return fmt.Errorf("chain %s reports id %d, config says %d", endpoint.Name, chainId.Uint64(), endpoint.Id)
	}

	w.conns[endpoint.HexChainId()] = &evmConnection{
		client:  client,
		kp:      w.kp,
		chainId: chainId,
		log:     w.log.New("chain", endpoint.Name),
	}
	return nil
}

func (w *RpcWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, conn := range w.conns {
		conn.Close()
	}
	w.conns = make(map[string]*evmConnection)
}

type evmConnection struct {
	client  *ethclient.Client
	kp      *secp256k1.Keypair
	chainId *big.Int
	log     log15.Logger
}

func (c *evmConnection) ChainId() *big.Int { return new(big.Int).Set(c.chainId) }

func (c *evmConnection) From() common.Address { return c.kp.CommonAddress() }

func (c *evmConnection) CallContract(ctx context.Context, to common.Address, input []byte) ([]byte, error) {
	return c.client.CallContract(ctx, callMsg(c.From(), to, input), nil)
}

func (c *evmConnection) SubmitAndWait(ctx context.Context, to common.Address, input []byte, gasLimit *big.Int) (common.Hash, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.From())
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "fetch pending nonce failed")
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "suggest gas price failed")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit.Uint64(),
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainId), c.kp.PrivateKey())
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign transaction failed")
	}

	if err = c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	c.log.Debug("Submitted transaction", "hash", signed.Hash(), "to", to, "nonce", nonce)

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return signed.Hash(), errors.Wrap(err, "wait for inclusion receipt failed")
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return signed.Hash(), fmt.Errorf("transaction %s reverted", signed.Hash())
	}
	return signed.Hash(), nil
}

func (c *evmConnection) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.client.BalanceAt(ctx, addr, nil)
}

func (c *evmConnection) Close() {
	c.client.Close()
}
