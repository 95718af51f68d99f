package vault

import (
	"errors"
	"math/big"
	"testing"
)

func TestConfigParameters(t *testing.T) {
	cfg := Config{
		Assets: []AssetConfig{
			{ID: " A ", Weight: "2"},
			{ID: "B", Weight: "1e3"},
		},
		Amplification:              "0.75",
		VaultFee:                   "0.0005",
		DecayWindowSeconds:         3600,
		MinAdjustmentWindowSeconds: 1000,
	}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	if len(params.Assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(params.Assets))
	}
	if params.Assets[0].ID != "A" {
		t.Fatalf("asset id = %q, want trimmed %q", params.Assets[0].ID, "A")
	}
	if params.Assets[1].Weight.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("weight = %s, want 1000", params.Assets[1].Weight)
	}
	wantExp := big.NewInt(250_000_000_000_000_000)
	if params.OneMinusAmp.Cmp(wantExp) != 0 {
		t.Fatalf("oneMinusAmp = %s, want %s", params.OneMinusAmp, wantExp)
	}
	wantFee := big.NewInt(500_000_000_000_000)
	if params.VaultFee.Cmp(wantFee) != 0 {
		t.Fatalf("fee = %s, want %s", params.VaultFee, wantFee)
	}
	if params.DecayWindow != 3600 || params.MinAdjustmentWindow != 1000 {
		t.Fatalf("windows = %d/%d, want 3600/1000", params.DecayWindow, params.MinAdjustmentWindow)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Assets: []AssetConfig{{ID: "A", Weight: "1"}}}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	if params.OneMinusAmp.Cmp(wad) != 0 {
		t.Fatalf("default exponent = %s, want WAD (flat curve)", params.OneMinusAmp)
	}
	if params.VaultFee.Sign() != 0 {
		t.Fatalf("default fee = %s, want 0", params.VaultFee)
	}
}

func TestConfigRejections(t *testing.T) {
	base := func() Config {
		return Config{
			Assets: []AssetConfig{
				{ID: "A", Weight: "1"},
				{ID: "B", Weight: "1"},
			},
			Amplification: "0.5",
		}
	}

	cfg := base()
	cfg.Assets = nil
	if _, err := cfg.Parameters(); err == nil {
		t.Fatalf("empty assets accepted")
	}

	cfg = base()
	cfg.Assets = append(cfg.Assets, AssetConfig{ID: "C", Weight: "1"}, AssetConfig{ID: "D", Weight: "1"})
	if _, err := cfg.Parameters(); err == nil {
		t.Fatalf("too many assets accepted")
	}

	cfg = base()
	cfg.Assets[0].Weight = "0.5"
	if _, err := cfg.Parameters(); err == nil {
		t.Fatalf("fractional weight accepted")
	}

	cfg = base()
	cfg.Assets[0].Weight = "0"
	if _, err := cfg.Parameters(); err == nil {
		t.Fatalf("zero weight accepted")
	}

	cfg = base()
	cfg.Amplification = "1"
	if _, err := cfg.Parameters(); !errors.Is(err, ErrAmplificationRange) {
		t.Fatalf("amp = 1: err = %v, want ErrAmplificationRange", err)
	}

	cfg = base()
	cfg.VaultFee = "1.5"
	if _, err := cfg.Parameters(); err == nil {
		t.Fatalf("fee above one accepted")
	}
}

func TestNewVaultValidation(t *testing.T) {
	cfg := Config{
		Assets:        []AssetConfig{{ID: "A", Weight: "1"}},
		Amplification: "0.5",
	}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	tokens := NewMemoryTokenLedger()
	shares := NewMemoryShareLedger()
	escrows := NewMemoryEscrowLedger()

	if _, err := New(params, nil, shares, escrows, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("nil tokens: err = %v, want ErrNotConfigured", err)
	}

	dup := params
	dup.Assets = []AssetParameters{
		{ID: "A", Weight: big.NewInt(1)},
		{ID: "A", Weight: big.NewInt(1)},
	}
	if _, err := New(dup, tokens, shares, escrows, nil); err == nil {
		t.Fatalf("duplicate assets accepted")
	}
}

func TestNewVaultSeedsCapacityFromHoldings(t *testing.T) {
	cfg := Config{
		Assets: []AssetConfig{
			{ID: "A", Weight: "2"},
			{ID: "B", Weight: "3"},
		},
		Amplification: "0.5",
	}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	tokens := NewMemoryTokenLedger()
	tokens.CreditVault("A", big.NewInt(100))
	tokens.CreditVault("B", big.NewInt(10))
	v, err := New(params, tokens, NewMemoryShareLedger(), NewMemoryEscrowLedger(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	max, used := v.Capacity()
	if max.Cmp(big.NewInt(230)) != 0 {
		t.Fatalf("seeded capacity = %s, want 230", max)
	}
	if used.Sign() != 0 {
		t.Fatalf("initial usage = %s, want 0", used)
	}
}
