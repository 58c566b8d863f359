package config

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var (
	FileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "JSON configuration file",
	}
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Supports levels crit (silent) to trce (trace)",
		Value: log.LvlInfo.String(),
	}
	KeystorePathFlag = &cli.StringFlag{
		Name:  "keystore",
		Usage: "Path to keystore directory",
		Value: DefaultKeystorePath,
	}
	InsecureFlag = &cli.BoolFlag{
		Name:  "insecure",
		Usage: "Use the insecure test keyring",
	}
)

var (
	TokenIdFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "Token id of the asset to bridge",
	}
	ContractFlag = &cli.StringFlag{
		Name:  "contract",
		Usage: "Address of the asset contract",
	}
	SourceChainFlag = &cli.StringFlag{
		Name:  "source",
		Usage: "Chain key of the asset's current chain",
	}
	DestChainFlag = &cli.StringFlag{
		Name:  "dest",
		Usage: "Chain key of the destination chain",
	}
	MetadataUriFlag = &cli.StringFlag{
		Name:  "metadata",
		Usage: "Metadata uri recorded on the wrapped copy",
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Upper bound for a single bridge attempt",
		Value: DefaultCallTimeout,
	}
)
