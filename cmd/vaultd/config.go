package main

import "crossvault/native/vault"

// appConfig is the top-level vaultd configuration.
type appConfig struct {
	Channel     string      `toml:"Channel"`
	MetricsAddr string      `toml:"MetricsAddr"`
	Vaults      []vaultNode `toml:"Vaults"`
}

// vaultNode declares one vault endpoint: its relay name, the engine settings,
// and the vault's starting holdings per configured asset.
type vaultNode struct {
	Name            string       `toml:"Name"`
	InitialBalances []string     `toml:"InitialBalances"`
	Engine          vault.Config `toml:"Engine"`
}

// defaultConfig wires two three-asset vaults over one channel, sized so the
// demo flow moves visible value without bumping into the security limit.
func defaultConfig() appConfig {
	engine := vault.Config{
		Assets: []vault.AssetConfig{
			{ID: "USDQ", Weight: "1"},
			{ID: "EURQ", Weight: "1"},
			{ID: "GLDQ", Weight: "1"},
		},
		Amplification: "0.9",
		VaultFee:      "0.0005",
	}
	balances := []string{
		"1000000000000000000000000",
		"1000000000000000000000000",
		"1000000000000000000000000",
	}
	return appConfig{
		Channel: "loopback-0",
		Vaults: []vaultNode{
			{Name: "alpha", InitialBalances: balances, Engine: engine},
			{Name: "beta", InitialBalances: balances, Engine: engine},
		},
	}
}
