package config

import "time"

const (
	DefaultConfigPath   = "./config.json"
	DefaultKeystorePath = "./keys"
)

const (
	// ErrCodeUnrecognizedChain is reported by the wallet when asked to switch
	// to a network it has not registered yet.
	ErrCodeUnrecognizedChain = 4902

	DefaultGasLimit    = 500000
	DefaultCallTimeout = time.Minute * 5
)

const (
	LedgerRetryInterval = time.Second * 2
	NotifyMuteWindow    = time.Minute * 5
)

const (
	MethodOwnerOf            = "ownerOf"
	MethodApprove            = "approve"
	MethodLockNFT            = "lockNFT"
	MethodUnlockNFT          = "unlockNFT"
	MethodLockedTokens       = "lockedTokens"
	MethodMintWrappedNFT     = "mintWrappedNFT"
	MethodBurnWrappedNFT     = "burnWrappedNFT"
	MethodProcessedTransfers = "processedTransfers"
	MethodVerifyProof        = "verifyProof"
)

var (
	AssetAbiJson = `[
		{
			"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
			"name": "ownerOf",
			"outputs": [{"internalType": "address", "name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"internalType": "address", "name": "to", "type": "address"},
				{"internalType": "uint256", "name": "tokenId", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`
	LockGatewayAbiJson = `[
		{
			"inputs": [
				{"internalType": "address", "name": "nftContract", "type": "address"},
				{"internalType": "uint256", "name": "tokenId", "type": "uint256"},
				{"internalType": "bytes32", "name": "transferId", "type": "bytes32"}
			],
			"name": "lockNFT",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"internalType": "bytes32", "name": "transferId", "type": "bytes32"}],
			"name": "unlockNFT",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
			"name": "lockedTokens",
			"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
			"name": "processedTransfers",
			"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`
	MintGatewayAbiJson = `[
		{
			"inputs": [
				{"internalType": "address", "name": "to", "type": "address"},
				{"internalType": "address", "name": "originalContract", "type": "address"},
				{"internalType": "uint256", "name": "tokenId", "type": "uint256"},
				{"internalType": "bytes32", "name": "transferId", "type": "bytes32"},
				{"internalType": "string", "name": "metadataURI", "type": "string"}
			],
			"name": "mintWrappedNFT",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{"internalType": "uint256", "name": "tokenId", "type": "uint256"},
				{"internalType": "bytes32", "name": "transferId", "type": "bytes32"}
			],
			"name": "burnWrappedNFT",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
			"name": "processedTransfers",
			"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`
	VerifierAbiJson = `[
		{
			"inputs": [
				{"internalType": "bytes32[]", "name": "proof", "type": "bytes32[]"},
				{"internalType": "bytes32", "name": "leaf", "type": "bytes32"}
			],
			"name": "verifyProof",
			"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`
)

type ChainId uint64
