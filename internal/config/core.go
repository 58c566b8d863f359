package config

// NativeCurrency describes the gas token of a chain, passed verbatim to the
// wallet when the chain has to be registered.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// RawChainConfig is parsed directly from the config file and should be used to
// construct a ChainEndpoint.
type RawChainConfig struct {
	Name           string            `json:"name"`
	Key            string            `json:"key"`      // short chain key, e.g. "amoy"
	Id             string            `json:"id"`       // ChainID, decimal string
	RpcUrls        []string          `json:"rpcUrls"`  // urls for rpc endpoints
	ExplorerUrl    string            `json:"explorerUrl"`
	LockContract   string            `json:"lockContract"`
	MintContract   string            `json:"mintContract"`
	NativeCurrency NativeCurrency    `json:"nativeCurrency"`
	Opts           map[string]string `json:"opts"`
}
