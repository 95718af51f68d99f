package vault

import (
	"fmt"
	"math/big"
	"strings"
)

// DefaultMinAdjustmentWindow is the shortest allowed amplification ramp.
const DefaultMinAdjustmentWindow int64 = 7 * 24 * 60 * 60

// MaxAdjustmentWindow is the longest allowed amplification ramp (one year).
const MaxAdjustmentWindow int64 = 365 * 24 * 60 * 60

// AssetConfig declares one vault asset as parsed from configuration.
type AssetConfig struct {
	ID     string `toml:"ID"`
	Weight string `toml:"Weight"`
}

// Config captures operator-defined vault settings parsed from configuration.
// Amplification and fee are decimal fractions ("0.5", "0.0001"); weights are
// positive integers (scientific notation accepted).
type Config struct {
	Assets                     []AssetConfig `toml:"Assets"`
	Amplification              string        `toml:"Amplification"`
	VaultFee                   string        `toml:"VaultFee"`
	DecayWindowSeconds         int64         `toml:"DecayWindowSeconds"`
	MinAdjustmentWindowSeconds int64         `toml:"MinAdjustmentWindowSeconds"`
}

// AssetParameters is the runtime-ready form of one asset declaration.
type AssetParameters struct {
	ID     string
	Weight *big.Int
}

// Parameters represents canonical, runtime-ready interpretations of the vault
// settings. OneMinusAmp is the curve exponent actually used by the pricing
// formulas: one WAD minus the configured amplification.
type Parameters struct {
	Assets              []AssetParameters
	OneMinusAmp         *big.Int
	VaultFee            *big.Int
	DecayWindow         int64
	MinAdjustmentWindow int64
}

// Normalise trims whitespace and applies canonical defaults to defensive copies.
func (c Config) Normalise() Config {
	cfg := Config{
		Amplification:              strings.TrimSpace(c.Amplification),
		VaultFee:                   strings.TrimSpace(c.VaultFee),
		DecayWindowSeconds:         c.DecayWindowSeconds,
		MinAdjustmentWindowSeconds: c.MinAdjustmentWindowSeconds,
	}
	for _, asset := range c.Assets {
		cfg.Assets = append(cfg.Assets, AssetConfig{
			ID:     strings.TrimSpace(asset.ID),
			Weight: strings.TrimSpace(asset.Weight),
		})
	}
	if cfg.DecayWindowSeconds < 0 {
		cfg.DecayWindowSeconds = 0
	}
	if cfg.MinAdjustmentWindowSeconds < 0 {
		cfg.MinAdjustmentWindowSeconds = 0
	}
	return cfg
}

// Parameters converts the textual configuration into runtime big integers and
// bounds.
func (c Config) Parameters() (Parameters, error) {
	normalized := c.Normalise()
	params := Parameters{
		DecayWindow:         normalized.DecayWindowSeconds,
		MinAdjustmentWindow: normalized.MinAdjustmentWindowSeconds,
	}
	if len(normalized.Assets) == 0 || len(normalized.Assets) > MaxAssets {
		return params, fmt.Errorf("vault: config must declare 1..%d assets", MaxAssets)
	}
	for _, asset := range normalized.Assets {
		if asset.ID == "" {
			return params, fmt.Errorf("vault: asset ID must not be empty")
		}
		weight, err := parseAmount(asset.Weight)
		if err != nil {
			return params, fmt.Errorf("vault: invalid weight for %s: %w", asset.ID, err)
		}
		if weight.Sign() <= 0 {
			return params, fmt.Errorf("vault: weight for %s must be positive", asset.ID)
		}
		params.Assets = append(params.Assets, AssetParameters{ID: asset.ID, Weight: weight})
	}
	amp := big.NewInt(0)
	if normalized.Amplification != "" {
		parsed, err := parseWadFraction(normalized.Amplification)
		if err != nil {
			return params, fmt.Errorf("vault: invalid Amplification: %w", err)
		}
		amp = parsed
	}
	if amp.Sign() < 0 || amp.Cmp(wad) >= 0 {
		return params, ErrAmplificationRange
	}
	params.OneMinusAmp = new(big.Int).Sub(wad, amp)
	params.VaultFee = big.NewInt(0)
	if normalized.VaultFee != "" {
		fee, err := parseWadFraction(normalized.VaultFee)
		if err != nil {
			return params, fmt.Errorf("vault: invalid VaultFee: %w", err)
		}
		if fee.Sign() < 0 || fee.Cmp(wad) >= 0 {
			return params, fmt.Errorf("vault: VaultFee must be in [0, 1)")
		}
		params.VaultFee = fee
	}
	return params, nil
}

// parseAmount converts a decimal or scientific-notation string into an
// integer amount, rejecting values with a fractional remainder.
func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("invalid amount format")
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	if !rat.IsInt() {
		return nil, fmt.Errorf("amount must be an integer")
	}
	return new(big.Int).Set(rat.Num()), nil
}

// parseWadFraction converts a decimal string such as "0.05" into its WAD
// (1e18) fixed-point representation, truncating excess precision.
func parseWadFraction(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("invalid fraction format")
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(wad))
	out := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return out, nil
}
