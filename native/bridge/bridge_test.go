package bridge

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"crossvault/native/vault"
)

const channel = "chan-0"

var trader = addr(0x07)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}

type node struct {
	vault   *vault.Vault
	tokens  *vault.MemoryTokenLedger
	shares  *vault.MemoryShareLedger
	escrows *vault.MemoryEscrowLedger
}

func newNode(t *testing.T, relay *Loopback, name string) *node {
	t.Helper()
	cfg := vault.Config{
		Assets: []vault.AssetConfig{
			{ID: "A", Weight: "1"},
			{ID: "B", Weight: "1"},
		},
		Amplification: "0.5",
	}
	params, err := cfg.Parameters()
	require.NoError(t, err)

	n := &node{
		tokens:  vault.NewMemoryTokenLedger(),
		shares:  vault.NewMemoryShareLedger(),
		escrows: vault.NewMemoryEscrowLedger(),
	}
	for _, asset := range []string{"A", "B"} {
		n.tokens.CreditVault(asset, pow10(24))
		n.tokens.CreditAccount(asset, trader, pow10(24))
	}
	require.NoError(t, n.shares.Mint(trader, pow10(24)))

	v, err := vault.New(params, n.tokens, n.shares, n.escrows, relay.Endpoint(name))
	require.NoError(t, err)
	relay.Register(name, v)
	n.vault = v
	return n
}

func newPair(t *testing.T) (*Loopback, *node, *node) {
	t.Helper()
	relay := NewLoopback(nil)
	alpha := newNode(t, relay, "alpha")
	beta := newNode(t, relay, "beta")
	alpha.vault.SetConnection(channel, "beta", true)
	beta.vault.SetConnection(channel, "alpha", true)
	return relay, alpha, beta
}

func TestAssetSwapDelivered(t *testing.T) {
	relay, alpha, beta := newPair(t)
	amount := pow10(21)
	before := beta.tokens.AccountBalance("B", trader)

	_, units, err := alpha.vault.SendAsset(trader, vault.SendAssetParams{
		Channel:      channel,
		ToVault:      "beta",
		ToAccount:    trader,
		ToAssetIndex: 1,
		FromAsset:    "A",
		Amount:       amount,
		Fallback:     trader,
	})
	require.NoError(t, err)
	require.Equal(t, 1, relay.Pending())

	require.Equal(t, 1, relay.Flush())
	require.Equal(t, 0, relay.Pending())

	got := new(big.Int).Sub(beta.tokens.AccountBalance("B", trader), before)
	require.Positive(t, got.Sign(), "trader received nothing on beta")

	// The escrow settled exactly once and the trackers cancel globally.
	require.Equal(t, 0, alpha.escrows.Pending())
	sum := new(big.Int).Add(alpha.vault.UnitTracker(), beta.vault.UnitTracker())
	require.Zero(t, sum.Sign(), "unit trackers should cancel, got %s and %s", alpha.vault.UnitTracker(), beta.vault.UnitTracker())
	require.Equal(t, units, alpha.vault.UnitTracker())

	escrowed, err := alpha.vault.EscrowedBalance("A")
	require.NoError(t, err)
	require.Zero(t, escrowed.Sign())
}

func TestAssetSwapTimeoutRefunds(t *testing.T) {
	relay, alpha, _ := newPair(t)
	amount := pow10(21)
	before := alpha.tokens.AccountBalance("A", trader)

	relay.TimeoutNext()
	_, _, err := alpha.vault.SendAsset(trader, vault.SendAssetParams{
		Channel:      channel,
		ToVault:      "beta",
		ToAccount:    trader,
		ToAssetIndex: 1,
		FromAsset:    "A",
		Amount:       amount,
		Fallback:     trader,
	})
	require.NoError(t, err)
	relay.Flush()

	require.Equal(t, before, alpha.tokens.AccountBalance("A", trader), "timeout should fully refund a feeless send")
	require.Zero(t, alpha.vault.UnitTracker().Sign())
	require.Equal(t, 0, alpha.escrows.Pending())
}

func TestAssetSwapRejectedAtDestinationRefunds(t *testing.T) {
	relay, alpha, _ := newPair(t)
	amount := pow10(21)
	before := alpha.tokens.AccountBalance("A", trader)

	// An unmeetable minimum makes the destination reject the receive; the
	// relay routes the failure back as a timeout-style refund.
	_, _, err := alpha.vault.SendAsset(trader, vault.SendAssetParams{
		Channel:      channel,
		ToVault:      "beta",
		ToAccount:    trader,
		ToAssetIndex: 1,
		FromAsset:    "A",
		Amount:       amount,
		MinOut:       pow10(30),
		Fallback:     trader,
	})
	require.NoError(t, err)
	relay.Flush()

	require.Equal(t, before, alpha.tokens.AccountBalance("A", trader))
	require.Equal(t, 0, alpha.escrows.Pending())
	require.Zero(t, alpha.vault.UnitTracker().Sign())
}

func TestLiquiditySwapDelivered(t *testing.T) {
	relay, alpha, beta := newPair(t)
	move := pow10(22)
	supplyBefore := alpha.shares.TotalSupply()

	_, _, err := alpha.vault.SendLiquidity(trader, vault.SendLiquidityParams{
		Channel:   channel,
		ToVault:   "beta",
		ToAccount: trader,
		Shares:    move,
		Fallback:  trader,
	})
	require.NoError(t, err)
	relay.Flush()

	require.Equal(t, 0, alpha.escrows.Pending())
	require.Zero(t, alpha.vault.EscrowedShares().Sign())
	require.Equal(t, new(big.Int).Sub(supplyBefore, move), alpha.shares.TotalSupply())

	minted := new(big.Int).Sub(beta.shares.BalanceOf(trader), pow10(24))
	require.Positive(t, minted.Sign(), "no shares minted on beta")

	sum := new(big.Int).Add(alpha.vault.UnitTracker(), beta.vault.UnitTracker())
	require.Zero(t, sum.Sign())
}

func TestUnknownDestinationFailsBack(t *testing.T) {
	relay, alpha, _ := newPair(t)
	alpha.vault.SetConnection(channel, "ghost", true)
	amount := pow10(21)
	before := alpha.tokens.AccountBalance("A", trader)

	_, _, err := alpha.vault.SendAsset(trader, vault.SendAssetParams{
		Channel:      channel,
		ToVault:      "ghost",
		ToAccount:    trader,
		ToAssetIndex: 1,
		FromAsset:    "A",
		Amount:       amount,
		Fallback:     trader,
	})
	require.NoError(t, err)
	relay.Flush()

	require.Equal(t, before, alpha.tokens.AccountBalance("A", trader))
	require.Equal(t, 0, alpha.escrows.Pending())
}
