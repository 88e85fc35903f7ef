// Package config provides centralized configuration for the ntvswap settlement
// daemon. All exchange parameters (timelock policy, chain endpoints, signing keys,
// persistence location) are defined here, loaded from a single YAML file following
// the load-or-create-default pattern used throughout the teacher's node config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkType represents mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Role distinguishes which orchestrator the daemon runs.
type Role string

const (
	RoleLP    Role = "lp"
	RoleTaker Role = "taker"
)

// EVMNetwork is one entry of the evm_networks configuration list (spec §6).
type EVMNetwork struct {
	Name         string `yaml:"name"`
	RPCURL       string `yaml:"rpc_url"`
	ChainID      uint64 `yaml:"chain_id"`
	HTLCContract string `yaml:"htlc_contract"`
	QuoteToken   string `yaml:"quote_token"`
	ReorgDepth   uint64 `yaml:"reorg_depth"`
}

// TimelockPolicy holds the three tunables from spec §4.3.
type TimelockPolicy struct {
	// TNativeBlocks is the native-chain HTLC expiry, in blocks.
	TNativeBlocks uint32 `yaml:"t_native_blocks"`
	// TQuoteSeconds is the EVM-chain HTLC expiry, in seconds from lock time.
	TQuoteSeconds int64 `yaml:"t_quote_seconds"`
	// BufferSeconds is the minimum safety margin required by invariant I3.
	BufferSeconds int64 `yaml:"buffer_seconds"`
	// SecondsPerBlock is the native chain's assumed average block time, used to
	// translate TNativeBlocks into an expected wall-clock duration.
	SecondsPerBlock int64 `yaml:"seconds_per_block"`
}

// Config is the full ntvswap daemon configuration (spec §6 "Configuration").
type Config struct {
	Role    Role        `yaml:"role"`
	Network NetworkType `yaml:"native_network"`

	NativeRPCEndpoint   string `yaml:"native_rpc_endpoint"`
	NativeRPCUser        string `yaml:"native_rpc_user"`
	NativeRPCPassword    string `yaml:"native_rpc_password"`
	NativeCLIOrDaemonPath string `yaml:"native_cli_or_daemon_path"`

	EVMNetworks []EVMNetwork `yaml:"evm_networks"`

	LPNativeAddr       string            `yaml:"lp_native_addr"`
	LPQuoteAddrPerChain map[string]string `yaml:"lp_quote_addr_per_chain"`
	LPClaimSigningKey   string            `yaml:"lp_claim_signing_key"`
	LPRefundSigningKey  string            `yaml:"lp_refund_signing_key"`

	Timelock TimelockPolicy `yaml:"timelock"`

	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	RPCTimeoutSeconds   int    `yaml:"rpc_timeout_seconds"`
	PersistencePath     string `yaml:"persistence_path"`
	RegistryURL         string `yaml:"registry_url"`
	AutoClaimEnabled    bool   `yaml:"auto_claim_enabled"`

	// SnapshotPath is the file the LP orchestrator periodically exports its
	// in-memory swap state to (spec §4.8). Defaults to <persistence dir>/snapshot.json.
	SnapshotPath string `yaml:"snapshot_path"`
	// SnapshotIntervalSeconds is how often the orchestrator exports a fresh
	// snapshot and compacts the write-ahead log behind it.
	SnapshotIntervalSeconds int `yaml:"snapshot_interval_seconds"`

	// ChainUnreachableFailureBudget is the number of consecutive reorg-poll
	// failures a single chain tolerates before the daemon treats it as
	// connectivity lost beyond retry budget and exits (spec.md:177, exit
	// code 2).
	ChainUnreachableFailureBudget int `yaml:"chain_unreachable_failure_budget"`

	// AllowLoopbackEndpoints permits RPC/registry URLs that resolve to loopback,
	// link-local, or RFC1918 ranges. Development only (spec §4.1 SSRF note).
	AllowLoopbackEndpoints bool `yaml:"allow_loopback_endpoints"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors the teacher's node logging config shape.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// PollInterval returns the configured poll interval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// RPCTimeout returns the configured per-call RPC timeout.
func (c *Config) RPCTimeout() time.Duration {
	if c.RPCTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RPCTimeoutSeconds) * time.Second
}

// SnapshotInterval returns the configured snapshot export interval.
func (c *Config) SnapshotInterval() time.Duration {
	if c.SnapshotIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

// ChainFailureBudget returns the configured consecutive-failure budget before
// a chain is declared unreachable beyond retry budget.
func (c *Config) ChainFailureBudget() int {
	if c.ChainUnreachableFailureBudget <= 0 {
		return 10
	}
	return c.ChainUnreachableFailureBudget
}

// IsTestnet reports whether the configured network is testnet.
func (c *Config) IsTestnet() bool {
	return c.Network == Testnet
}

// DefaultConfig returns a Config with sensible defaults, following
// internal/node's DefaultConfig shape.
func DefaultConfig() *Config {
	testnet := false
	return &Config{
		Role:                RoleTaker,
		Network:             Mainnet,
		NativeRPCEndpoint:   "http://127.0.0.1:27170",
		NativeRPCUser:       "",
		NativeRPCPassword:   "",
		NativeCLIOrDaemonPath: "",
		EVMNetworks:         defaultEVMNetworkConfigs(testnet),
		LPQuoteAddrPerChain: map[string]string{},
		Timelock: TimelockPolicy{
			TNativeBlocks:   120,
			TQuoteSeconds:   14400,
			BufferSeconds:   1800,
			SecondsPerBlock: 60,
		},
		PollIntervalSeconds:           15,
		RPCTimeoutSeconds:             30,
		PersistencePath:               "~/.ntvswap/state.db",
		SnapshotIntervalSeconds:       300,
		ChainUnreachableFailureBudget: 10,
		RegistryURL:                   "https://registry.ntvswap.example/",
		AutoClaimEnabled:              true,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultEVMNetworkConfigs(testnet bool) []EVMNetwork {
	seeds := DefaultEVMNetworks(testnet)
	nets := make([]EVMNetwork, 0, len(seeds))
	for _, s := range seeds {
		nets = append(nets, EVMNetwork{
			Name:         s.Name,
			ChainID:      s.ChainID,
			HTLCContract: s.HTLCContract,
			QuoteToken:   s.QuoteToken,
			ReorgDepth:   s.ReorgDepth,
		})
	}
	return nets
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file in dataDir. If the file
// doesn't exist, it creates one with default values, exactly as
// internal/node.LoadConfig does for the P2P node config.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.PersistencePath = filepath.Join(dataDir, "state.db")
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# ntvswap settlement daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

// Validate checks the configuration for fatal misconfiguration (spec §6 exit
// code 1). It does not check the timelock invariant; callers should use
// internal/timelock.Validate for that, since the invariant depends on both the
// policy and the native chain's observed average block time.
func (c *Config) Validate() error {
	if c.NativeRPCEndpoint == "" && c.NativeCLIOrDaemonPath == "" {
		return fmt.Errorf("config: one of native_rpc_endpoint or native_cli_or_daemon_path is required")
	}
	if len(c.EVMNetworks) == 0 {
		return fmt.Errorf("config: at least one evm_networks entry is required")
	}
	for _, n := range c.EVMNetworks {
		if n.RPCURL == "" {
			return fmt.Errorf("config: evm network %q missing rpc_url", n.Name)
		}
		if n.ChainID == 0 {
			return fmt.Errorf("config: evm network %q missing chain_id", n.Name)
		}
	}
	if c.Role == RoleLP && c.LPNativeAddr == "" {
		return fmt.Errorf("config: lp_native_addr is required for role=lp")
	}
	if c.PersistencePath == "" {
		return fmt.Errorf("config: persistence_path is required")
	}
	return nil
}
