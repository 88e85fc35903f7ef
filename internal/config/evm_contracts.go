// Package config provides default EVM HTLC contract addresses for the chains named
// in spec: Polygon, Base, World Chain. These are seed defaults only; the
// authoritative per-deployment address always comes from the loaded Config's
// EVMNetworks list (spec §6 "Configuration"), never from this file at runtime.
//
// This is deliberately NOT a package-level mutable registry (the teacher's
// evmContractRegistry var + RegisterEVMContracts/SetHTLCContract mutators): per spec §9's
// "Global-ish state" note, nothing here is mutated at runtime. DefaultEVMNetworks
// returns a fresh owned slice the caller can copy into its own Config.
package config

// DefaultEVMNetwork is a seed entry for EVMNetworks, used only to populate a
// freshly generated default config file on first run.
type DefaultEVMNetwork struct {
	Name          string
	ChainID       uint64
	HTLCContract  string // 0x-prefixed, empty if not yet deployed for this environment
	QuoteToken    string // USDC contract address on this chain
	ReorgDepth    uint64
}

// DefaultEVMNetworks returns the seed EVM network list for mainnet or testnet.
func DefaultEVMNetworks(testnet bool) []DefaultEVMNetwork {
	if testnet {
		return []DefaultEVMNetwork{
			{Name: "polygon-amoy", ChainID: 80002, ReorgDepth: 12},
			{Name: "base-sepolia", ChainID: 84532, ReorgDepth: 12},
			{Name: "worldchain-sepolia", ChainID: 4801, ReorgDepth: 12},
		}
	}
	return []DefaultEVMNetwork{
		{Name: "polygon", ChainID: 137, QuoteToken: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", ReorgDepth: 12},
		{Name: "base", ChainID: 8453, QuoteToken: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", ReorgDepth: 12},
		{Name: "worldchain", ChainID: 480, ReorgDepth: 12},
	}
}
