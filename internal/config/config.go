package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

type Config struct {
	Chains       []RawChainConfig `json:"chains"`
	From         string           `json:"from"` // address of key to use
	KeystorePath string           `json:"keystorePath,omitempty"`
	Ledger       Api              `json:"ledger"`
	Verifier     Verifier         `json:"verifier"`
}

// Api describes an external http collaborator.
type Api struct {
	Key      string `json:"key"`
	Endpoint string `json:"endpoint"`
}

// Verifier points at the proof-distribution endpoint and the on-chain
// verifier contract deployed on the source chain.
type Verifier struct {
	Endpoint string `json:"endpoint"`
	Contract string `json:"contract"`
}

func (c *Config) validate() error {
	if len(c.Chains) < 2 {
		return fmt.Errorf("bridge needs at least two chains, got %d", len(c.Chains))
	}
	for _, chain := range c.Chains {
		if chain.Key == "" {
			return fmt.Errorf("required field chains.Key empty for chain %s", chain.Name)
		}
		if chain.Id == "" {
			return fmt.Errorf("required field chains.Id empty for chain %s", chain.Key)
		}
		if len(chain.RpcUrls) == 0 {
			return fmt.Errorf("required field chains.RpcUrls empty for chain %s", chain.Key)
		}
		if chain.Name == "" {
			return fmt.Errorf("required field chains.Name empty for chain %s", chain.Key)
		}
	}
	if c.From == "" {
		return fmt.Errorf("required field from empty")
	}
	if c.Ledger.Endpoint == "" {
		return fmt.Errorf("required field ledger.Endpoint empty")
	}

	return nil
}

func GetConfig(ctx *cli.Context) (*Config, error) {
	var fig Config
	path := DefaultConfigPath
	if file := ctx.String(FileFlag.Name); file != "" {
		path = file
	}
	err := loadConfig(path, &fig)
	if err != nil {
		log.Warn("err loading json file", "err", err.Error())
		return &fig, err
	}
	if ksPath := ctx.String(KeystorePathFlag.Name); ksPath != "" {
		fig.KeystorePath = ksPath
	}
	log.Debug("Loaded config", "path", path)
	err = fig.validate()
	if err != nil {
		return nil, err
	}
	return &fig, nil
}

func loadConfig(file string, config *Config) error {
	ext := filepath.Ext(file)
	fp, err := filepath.Abs(file)
	if err != nil {
		return err
	}

	log.Debug("Loading configuration", "path", filepath.Clean(fp))

	f, err := os.Open(filepath.Clean(fp))
	if err != nil {
		return err
	}

	if ext == ".json" {
		if err = json.NewDecoder(f).Decode(&config); err != nil {
			return err
		}
	} else {
		return fmt.Errorf("unrecognized extention: %s", ext)
	}

	return nil
}

// ChainEndpoint is the parsed, immutable description of one side of a bridge.
type ChainEndpoint struct {
	Name           string  // Human-readable chain name
	Key            string  // short key used by callers to select a chain
	Id             ChainId // numeric ChainID
	RpcUrls        []string
	ExplorerUrl    string
	LockContract   common.Address
	MintContract   common.Address
	NativeCurrency NativeCurrency
	GasLimit       *big.Int
	WaterLine      string // minimum native balance to start a transfer, in wei
}

// Chain specific options
var (
	WaterLine = "waterLine"
	GasLimit  = "gasLimit"
)

// ParseChainEndpoint uses a RawChainConfig to construct the corresponding ChainEndpoint.
func ParseChainEndpoint(raw *RawChainConfig) (*ChainEndpoint, error) {
	chainId, err := strconv.ParseUint(raw.Id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chain %s id not a number: %s", raw.Key, raw.Id)
	}

	ep := &ChainEndpoint{
		Name:           raw.Name,
		Key:            raw.Key,
		Id:             ChainId(chainId),
		RpcUrls:        raw.RpcUrls,
		ExplorerUrl:    raw.ExplorerUrl,
		LockContract:   common.HexToAddress(raw.LockContract),
		MintContract:   common.HexToAddress(raw.MintContract),
		NativeCurrency: raw.NativeCurrency,
		GasLimit:       big.NewInt(DefaultGasLimit),
		WaterLine:      "0",
	}

	if waterLine, ok := raw.Opts[WaterLine]; ok && waterLine != "" {
		ep.WaterLine = waterLine
	}

	if gasLimit, ok := raw.Opts[GasLimit]; ok && gasLimit != "" {
		limit, ok := new(big.Int).SetString(gasLimit, 10)
		if !ok {
			return nil, fmt.Errorf("chain %s gasLimit not a number: %s", raw.Key, gasLimit)
		}
		ep.GasLimit = limit
	}

	return ep, nil
}

// HexChainId renders the numeric chain id the way wallets expect it.
func (e *ChainEndpoint) HexChainId() string {
	return "0x" + strconv.FormatUint(uint64(e.Id), 16)
}
