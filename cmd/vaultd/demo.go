package main

import (
	"fmt"
	"log/slog"
	"math/big"

	"crossvault/native/bridge"
	"crossvault/native/vault"
)

// runDemo drives one pass over every engine operation: a mixed deposit, a
// local swap, cross-chain asset and liquidity swaps with delivered and
// timed-out outcomes, and a final withdrawal.
func runDemo(logger *slog.Logger, cfg appConfig, relay *bridge.Loopback, vaults map[string]*vault.Vault, tokens map[string]*vault.MemoryTokenLedger, shares map[string]*vault.MemoryShareLedger) error {
	if len(cfg.Vaults) < 2 {
		return fmt.Errorf("demo needs at least two vaults, have %d", len(cfg.Vaults))
	}
	src := cfg.Vaults[0]
	dst := cfg.Vaults[1]
	alpha := vaults[src.Name]
	assets := alpha.Assets()

	amount := new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil) // 1000 WAD-scaled tokens

	deposits := make([]*big.Int, len(assets))
	for i := range deposits {
		deposits[i] = new(big.Int).Set(amount)
	}
	minted, err := alpha.DepositMixed(trader, deposits, nil)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	logger.Info("deposited", "vault", src.Name, "shares", minted.String())

	out, err := alpha.LocalSwap(trader, assets[0], assets[1], amount, nil)
	if err != nil {
		return fmt.Errorf("local swap: %w", err)
	}
	logger.Info("local swap", "vault", src.Name, "in", amount.String(), "out", out.String())

	escrowID, units, err := alpha.SendAsset(trader, vault.SendAssetParams{
		Channel:      cfg.Channel,
		ToVault:      dst.Name,
		ToAccount:    trader,
		ToAssetIndex: 1,
		FromAsset:    assets[0],
		Amount:       amount,
		Fallback:     trader,
	})
	if err != nil {
		return fmt.Errorf("send asset: %w", err)
	}
	logger.Info("asset swap dispatched", "escrowId", fmt.Sprintf("%x", escrowID), "units", units.String())
	relay.Flush()
	logger.Info("asset received", "vault", dst.Name, "balance", tokens[dst.Name].AccountBalance(assets[1], trader).String())

	// Timed-out send: the escrow refunds the fallback account.
	relay.TimeoutNext()
	before := tokens[src.Name].AccountBalance(assets[0], trader)
	if _, _, err := alpha.SendAsset(trader, vault.SendAssetParams{
		Channel:      cfg.Channel,
		ToVault:      dst.Name,
		ToAccount:    trader,
		ToAssetIndex: 1,
		FromAsset:    assets[0],
		Amount:       amount,
		Fallback:     trader,
	}); err != nil {
		return fmt.Errorf("send asset (timeout case): %w", err)
	}
	relay.Flush()
	after := tokens[src.Name].AccountBalance(assets[0], trader)
	logger.Info("timed-out swap refunded", "before", before.String(), "after", after.String())

	sharesToMove := new(big.Int).Quo(minted, big.NewInt(2))
	if _, _, err := alpha.SendLiquidity(trader, vault.SendLiquidityParams{
		Channel:   cfg.Channel,
		ToVault:   dst.Name,
		ToAccount: trader,
		Shares:    sharesToMove,
		Fallback:  trader,
	}); err != nil {
		return fmt.Errorf("send liquidity: %w", err)
	}
	relay.Flush()
	logger.Info("liquidity moved", "vault", dst.Name, "shares", shares[dst.Name].BalanceOf(trader).String())

	remaining := shares[src.Name].BalanceOf(trader)
	if remaining.Sign() > 0 {
		amounts, err := alpha.WithdrawAll(trader, remaining, nil)
		if err != nil {
			return fmt.Errorf("withdraw: %w", err)
		}
		for i, a := range amounts {
			logger.Info("withdrawn", "asset", assets[i], "amount", a.String())
		}
	}

	maxCap, usedCap := alpha.Capacity()
	logger.Info("engine state", "vault", src.Name,
		"unitTracker", alpha.UnitTracker().String(),
		"maxCapacity", maxCap.String(),
		"usedCapacity", usedCap.String())
	return nil
}
