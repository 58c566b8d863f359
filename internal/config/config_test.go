package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRequiredFields(t *testing.T) {
	good := func() *Config {
		return &Config{
			Chains: []RawChainConfig{
				{Name: "Polygon Amoy", Key: "amoy", Id: "80002", RpcUrls: []string{"https://rpc-amoy.example"}},
				{Name: "Base Sepolia", Key: "base", Id: "84532", RpcUrls: []string{"https://sepolia.base.example"}},
			},
			From:   "0x1111111111111111111111111111111111111111",
			Ledger: Api{Endpoint: "https://ledger.example"},
		}
	}

	if err := good().validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := good()
	c.Chains = c.Chains[:1]
	if err := c.validate(); err == nil {
		t.Error("single-chain config accepted")
	}

	c = good()
	c.Chains[0].Id = ""
	if err := c.validate(); err == nil {
		t.Error("missing chain id accepted")
	}

	c = good()
	c.Chains[1].RpcUrls = nil
	if err := c.validate(); err == nil {
		t.Error("missing rpc urls accepted")
	}

	c = good()
	c.From = ""
	if err := c.validate(); err == nil {
		t.Error("missing from accepted")
	}

	c = good()
	c.Ledger.Endpoint = ""
	if err := c.validate(); err == nil {
		t.Error("missing ledger endpoint accepted")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"chains": [
			{"name": "Polygon Amoy", "key": "amoy", "id": "80002",
			 "rpcUrls": ["https://rpc-amoy.example"],
			 "lockContract": "0x3333333333333333333333333333333333333333",
			 "opts": {"waterLine": "100000000000000000", "gasLimit": "600000"}}
		],
		"from": "0x1111111111111111111111111111111111111111",
		"ledger": {"endpoint": "https://ledger.example", "key": "k"}
	}`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatal(err)
	}

	var fig Config
	if err := loadConfig(path, &fig); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(fig.Chains) != 1 || fig.Chains[0].Key != "amoy" {
		t.Fatalf("unexpected chains %+v", fig.Chains)
	}
	if fig.Ledger.Key != "k" {
		t.Error("ledger key not read")
	}

	yaml := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(yaml, []byte("chains: []"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := loadConfig(yaml, &fig); err == nil {
		t.Error("non-json extension accepted")
	}
}

func TestParseChainEndpoint(t *testing.T) {
	raw := &RawChainConfig{
		Name:         "Polygon Amoy",
		Key:          "amoy",
		Id:           "80002",
		RpcUrls:      []string{"https://rpc-amoy.example"},
		LockContract: "0x3333333333333333333333333333333333333333",
		MintContract: "0x4444444444444444444444444444444444444444",
		Opts:         map[string]string{"waterLine": "100000000000000000", "gasLimit": "600000"},
	}

	ep, err := ParseChainEndpoint(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if ep.Id != 80002 {
		t.Errorf("id = %d, want 80002", ep.Id)
	}
	if ep.HexChainId() != "0x13882" {
		t.Errorf("hex id = %s, want 0x13882", ep.HexChainId())
	}
	if ep.WaterLine != "100000000000000000" {
		t.Errorf("water line = %s", ep.WaterLine)
	}
	if ep.GasLimit.Int64() != 600000 {
		t.Errorf("gas limit = %s", ep.GasLimit)
	}
}

func TestParseChainEndpointDefaults(t *testing.T) {
	ep, err := ParseChainEndpoint(&RawChainConfig{Name: "Base Sepolia", Key: "base", Id: "84532"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if ep.WaterLine != "0" {
		t.Errorf("water line default = %s, want 0", ep.WaterLine)
	}
	if ep.GasLimit.Int64() != DefaultGasLimit {
		t.Errorf("gas limit default = %s", ep.GasLimit)
	}

	if _, err = ParseChainEndpoint(&RawChainConfig{Key: "bad", Id: "eighty"}); err == nil {
		t.Error("non-numeric chain id accepted")
	}
}
