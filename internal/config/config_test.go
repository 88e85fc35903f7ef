package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LPNativeAddr = "native1lp"
	cfg.Role = RoleLP
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate, got: %v", err)
	}
}

func TestValidateRequiresNativeEndpointOrCLIPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NativeRPCEndpoint = ""
	cfg.NativeCLIOrDaemonPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when neither native_rpc_endpoint nor native_cli_or_daemon_path is set")
	}
}

func TestValidateRequiresEVMNetworks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EVMNetworks = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when evm_networks is empty")
	}
}

func TestValidateRequiresChainIDAndRPCURLPerNetwork(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EVMNetworks = []EVMNetwork{{Name: "polygon", RPCURL: "", ChainID: 137}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing rpc_url")
	}

	cfg.EVMNetworks = []EVMNetwork{{Name: "polygon", RPCURL: "https://rpc.example", ChainID: 0}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing chain_id")
	}
}

func TestValidateRequiresLPNativeAddrForLPRole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Role = RoleLP
	cfg.EVMNetworks = []EVMNetwork{{Name: "polygon", RPCURL: "https://rpc.example", ChainID: 137}}
	cfg.LPNativeAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when lp_native_addr is unset for role=lp")
	}
}

func TestLoadConfigCreatesDefaultOnFirstRun(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Role != RoleTaker {
		t.Fatalf("expected default role %q, got %q", RoleTaker, cfg.Role)
	}

	expectedPath := filepath.Join(dir, "state.db")
	if cfg.PersistencePath != expectedPath {
		t.Fatalf("expected persistence_path %q, got %q", expectedPath, cfg.PersistencePath)
	}

	// A second load should read back the file just written, not regenerate it.
	cfg2, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig (second read): %v", err)
	}
	if cfg2.Role != cfg.Role || cfg2.PersistencePath != cfg.PersistencePath {
		t.Fatalf("expected second load to match first: %+v vs %+v", cfg2, cfg)
	}
}

func TestPollIntervalAndRPCTimeoutDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.PollInterval(); got != 15*time.Second {
		t.Errorf("expected default poll interval 15s, got %v", got)
	}
	if got := cfg.RPCTimeout(); got != 30*time.Second {
		t.Errorf("expected default rpc timeout 30s, got %v", got)
	}

	cfg.PollIntervalSeconds = 5
	cfg.RPCTimeoutSeconds = 10
	if got := cfg.PollInterval(); got != 5*time.Second {
		t.Errorf("expected configured poll interval 5s, got %v", got)
	}
	if got := cfg.RPCTimeout(); got != 10*time.Second {
		t.Errorf("expected configured rpc timeout 10s, got %v", got)
	}
}

func TestIsTestnet(t *testing.T) {
	cfg := &Config{Network: Testnet}
	if !cfg.IsTestnet() {
		t.Errorf("expected IsTestnet() true for Testnet network")
	}
	cfg.Network = Mainnet
	if cfg.IsTestnet() {
		t.Errorf("expected IsTestnet() false for Mainnet network")
	}
}
