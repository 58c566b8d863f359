package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ChainSafe/chainbridge-utils/crypto/secp256k1"
	"github.com/ChainSafe/chainbridge-utils/keystore"
	log "github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"github.com/wrapgate/bridge/internal/bridge"
	"github.com/wrapgate/bridge/internal/chain"
	"github.com/wrapgate/bridge/internal/config"
	"github.com/wrapgate/bridge/internal/eligibility"
	"github.com/wrapgate/bridge/internal/gateway"
	"github.com/wrapgate/bridge/internal/ledger"
	"github.com/wrapgate/bridge/pkg/notify"
)

var transferFlags = []cli.Flag{
	config.FileFlag,
	config.KeystorePathFlag,
	config.InsecureFlag,
	config.TokenIdFlag,
	config.ContractFlag,
	config.SourceChainFlag,
	config.DestChainFlag,
	config.MetadataUriFlag,
	config.TimeoutFlag,
}

var forwardCommand = cli.Command{
	Name:        "forward",
	Usage:       "lock an asset on its source chain and mint a wrapped copy on the destination chain",
	Description: "Runs the full forward transfer protocol and records the attempt in the ledger",
	Action:      runForward,
	Flags:       append(app.Flags, transferFlags...),
}

var backwardCommand = cli.Command{
	Name:        "backward",
	Usage:       "burn a wrapped copy and unlock the original on its origin chain",
	Description: "Resolves the active wrap for the asset and reverses it",
	Action:      runBackward,
	Flags:       append(app.Flags, transferFlags...),
}

var reconcileCommand = cli.Command{
	Name:        "reconcile",
	Usage:       "compare pending ledger records against on-chain truth",
	Action:      runReconcile,
	Flags:       append(app.Flags, config.FileFlag, config.KeystorePathFlag, config.InsecureFlag, config.TimeoutFlag),
}

func startLogger(ctx *cli.Context) error {
	logger := log.Root()
	handler := logger.GetHandler()
	var lvl log.Lvl

	if lvlToInt, err := strconv.Atoi(ctx.String(config.VerbosityFlag.Name)); err == nil {
		lvl = log.Lvl(lvlToInt)
	} else if lvl, err = log.LvlFromString(ctx.String(config.VerbosityFlag.Name)); err != nil {
		return err
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, handler))

	return nil
}

func setup(ctx *cli.Context) (*bridge.Orchestrator, error) {
	if err := startLogger(ctx); err != nil {
		return nil, err
	}

	cfg, err := config.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	kpI, err := keystore.KeypairFromAddress(cfg.From, keystore.EthChain, cfg.KeystorePath, ctx.Bool(config.InsecureFlag.Name))
	if err != nil {
		return nil, err
	}
	kp, _ := kpI.(*secp256k1.Keypair)

	endpoints := make([]*config.ChainEndpoint, 0, len(cfg.Chains))
	for i := range cfg.Chains {
		ep, err := config.ParseChainEndpoint(&cfg.Chains[i])
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}

	logger := log.Root().New("system", "bridge")
	wallet := chain.NewRpcWallet(kp, logger)
	session := chain.NewSession(wallet, endpoints, logger)
	gw := gateway.New(session, logger)
	verifier := eligibility.New(cfg.Verifier.Endpoint, common.HexToAddress(cfg.Verifier.Contract), gw, logger)
	ledgerClient := ledger.NewClient(cfg.Ledger, logger.New("system", "ledger"))
	sink := &notify.WebhookSink{Log: logger}

	return bridge.New(kp.CommonAddress(), session, gw, verifier, ledgerClient, sink, logger), nil
}

func assetFromFlags(ctx *cli.Context) (bridge.AssetRef, error) {
	tokenId, ok := new(big.Int).SetString(ctx.String(config.TokenIdFlag.Name), 10)
	if !ok {
		return bridge.AssetRef{}, fmt.Errorf("token id not a number: %s", ctx.String(config.TokenIdFlag.Name))
	}
	contract := ctx.String(config.ContractFlag.Name)
	if contract == "" {
		return bridge.AssetRef{}, fmt.Errorf("missing --%s", config.ContractFlag.Name)
	}
	return bridge.AssetRef{
		Contract: common.HexToAddress(contract),
		TokenId:  tokenId,
		Standard: "ERC721",
	}, nil
}

func runForward(cliCtx *cli.Context) error {
	orch, err := setup(cliCtx)
	if err != nil {
		return err
	}
	asset, err := assetFromFlags(cliCtx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliCtx.Duration(config.TimeoutFlag.Name))
	defer cancel()

	res, err := orch.BridgeForward(ctx, asset,
		cliCtx.String(config.SourceChainFlag.Name),
		cliCtx.String(config.DestChainFlag.Name),
		cliCtx.String(config.MetadataUriFlag.Name))
	if err != nil {
		return err
	}
	log.Info("Forward bridge completed", "transferId", res.TransferId.Hex(), "lock", res.LockHash, "mint", res.MintHash)
	return nil
}

func runBackward(cliCtx *cli.Context) error {
	orch, err := setup(cliCtx)
	if err != nil {
		return err
	}
	asset, err := assetFromFlags(cliCtx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliCtx.Duration(config.TimeoutFlag.Name))
	defer cancel()

	info, err := orch.Wrapped(ctx, asset, cliCtx.String(config.SourceChainFlag.Name))
	if err != nil {
		return err
	}
	res, err := orch.BridgeBackward(ctx, asset, info)
	if err != nil {
		return err
	}
	log.Info("Backward bridge completed", "transferId", res.TransferId.Hex(), "burn", res.BurnHash, "unlock", res.UnlockHash)
	return nil
}

func runReconcile(cliCtx *cli.Context) error {
	orch, err := setup(cliCtx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliCtx.Duration(config.TimeoutFlag.Name))
	defer cancel()

	drifts, err := orch.Reconcile(ctx, orch.Initiator().Hex())
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		log.Info("Ledger agrees with on-chain state")
		return nil
	}
	for _, d := range drifts {
		log.Warn("Drift", "record", d.RecordId, "transferId", d.TransferId, "observation", d.Observation)
	}
	return nil
}
