package vault

import (
	"math/big"

	"crossvault/fixedpoint"
)

// DepositMixed deposits an arbitrary mix of the vault's assets and mints
// shares for the combined value. The mix is priced as an implicit swap into
// the vault: each amount is integrated on the curve against the pre-deposit
// balance, the summed units carry the vault fee, and the fee-adjusted units
// convert to shares against the pre-deposit reference balance. Fails without
// side effects when the minted shares would fall below minShares.
func (v *Vault) DepositMixed(depositor [20]byte, amounts []*big.Int, minShares *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(amounts) != len(v.assets) {
		return nil, ErrArgumentLength
	}
	v.updateAmplification(v.now())

	// Signed accumulator: the per-asset pre-value subtraction can transiently
	// dominate before the post-value lands.
	units := big.NewInt(0)
	weightedDeposit := big.NewInt(0)
	for i, amount := range amounts {
		if amount == nil || amount.Sign() < 0 {
			return nil, ErrAmountNegative
		}
		if amount.Sign() == 0 {
			continue
		}
		slot := v.assets[i]
		bal, err := v.effectiveBalance(slot, false)
		if err != nil {
			return nil, err
		}
		u, err := calcPriceCurveArea(amount, bal, slot.Weight, v.oneMinusAmp)
		if err != nil {
			return nil, err
		}
		units.Add(units, u)
		weightedDeposit.Add(weightedDeposit, new(big.Int).Mul(slot.Weight, amount))
	}
	if units.Sign() < 0 {
		return nil, ErrCurveDomain
	}
	// Pre-deposit reference balance; balances have not been pulled yet.
	amped, err := v.computeBalance0Ampped(false)
	if err != nil {
		return nil, err
	}
	fee := fixedpoint.MulWadDown(units, v.vaultFee)
	units.Sub(units, fee)
	shares, err := v.unitsToShares(units, amped)
	if err != nil {
		return nil, err
	}
	if minShares != nil && shares.Cmp(minShares) < 0 {
		return nil, ErrBelowMinimum
	}
	// A failing pull returns every already-pulled amount: the deposit either
	// lands whole or leaves the depositor untouched.
	for i, amount := range amounts {
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		if err := v.tokens.TransferFrom(v.assets[i].ID, depositor, amount); err != nil {
			v.refundDeposits(depositor, amounts[:i])
			return nil, err
		}
	}
	if err := v.shares.Mint(depositor, shares); err != nil {
		v.refundDeposits(depositor, amounts)
		return nil, err
	}
	v.growCapacity(weightedDeposit)
	v.emit(newDepositEvent(depositor, shares, amounts, v.assets))
	if v.metrics != nil {
		v.metrics.Deposits.Inc()
	}
	return shares, nil
}

// refundDeposits returns already-pulled deposit amounts to the depositor
// after an aborted deposit. Failure here cannot propagate; the original
// error does.
func (v *Vault) refundDeposits(depositor [20]byte, pulled []*big.Int) {
	for i, amount := range pulled {
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		if err := v.tokens.Transfer(v.assets[i].ID, depositor, amount); err != nil {
			v.logWarn("deposit refund failed", "asset", v.assets[i].ID, "err", err)
		}
	}
}

// WithdrawAll burns shares and pays out every asset proportionally. The
// share-weighted shrinkage of the reference balance is computed once, then
// inverted per asset against that asset's escrow-adjusted weighted balance.
// Assets whose amped weighted balance falls below the shrinkage pay out their
// entire free balance. Any per-asset minimum violation fails the whole call
// before the burn or any transfer.
func (v *Vault) WithdrawAll(withdrawer [20]byte, shareAmount *big.Int, minOut []*big.Int) ([]*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, ErrAmountNegative
	}
	if minOut != nil && len(minOut) != len(v.assets) {
		return nil, ErrArgumentLength
	}
	v.updateAmplification(v.now())

	innerdiff, err := v.withdrawInnerDiff(shareAmount)
	if err != nil {
		return nil, err
	}

	amounts := make([]*big.Int, len(v.assets))
	weightedWithdraw := big.NewInt(0)
	for i, slot := range v.assets {
		bal, err := v.effectiveBalance(slot, true)
		if err != nil {
			return nil, err
		}
		amount, err := calcWithdrawAmount(innerdiff, bal, slot.Weight, v.oneMinusAmp)
		if err != nil {
			return nil, err
		}
		if minOut != nil && minOut[i] != nil && amount.Cmp(minOut[i]) < 0 {
			return nil, ErrBelowMinimum
		}
		amounts[i] = amount
		weightedWithdraw.Add(weightedWithdraw, new(big.Int).Mul(slot.Weight, amount))
	}

	if err := v.shares.Burn(withdrawer, shareAmount); err != nil {
		return nil, err
	}
	for i, slot := range v.assets {
		if amounts[i].Sign() == 0 {
			continue
		}
		if err := v.tokens.Transfer(slot.ID, withdrawer, amounts[i]); err != nil {
			return nil, err
		}
	}
	v.shrinkCapacity(weightedWithdraw)
	v.emit(newWithdrawEvent(withdrawer, shareAmount, amounts, v.assets))
	if v.metrics != nil {
		v.metrics.Withdrawals.Inc()
	}
	return amounts, nil
}

// WithdrawMixed burns shares and allocates the withdrawn value across assets
// via cascading WAD ratios: asset 0 takes ratios[0] of the total units, asset
// 1 takes ratios[1] of the remainder, and so on. The cascade must consume the
// units exactly.
func (v *Vault) WithdrawMixed(withdrawer [20]byte, shareAmount *big.Int, ratios, minOut []*big.Int) ([]*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, ErrAmountNegative
	}
	if len(ratios) != len(v.assets) {
		return nil, ErrArgumentLength
	}
	if minOut != nil && len(minOut) != len(v.assets) {
		return nil, ErrArgumentLength
	}
	v.updateAmplification(v.now())

	innerdiff, err := v.withdrawInnerDiff(shareAmount)
	if err != nil {
		return nil, err
	}
	// Total outgoing units: the aggregate shrinkage across all assets.
	remaining := new(big.Int).Mul(innerdiff, big.NewInt(int64(len(v.assets))))

	amounts := make([]*big.Int, len(v.assets))
	weightedWithdraw := big.NewInt(0)
	for i, slot := range v.assets {
		ratio := ratios[i]
		if ratio == nil || ratio.Sign() < 0 || ratio.Cmp(wad) > 0 {
			return nil, ErrWithdrawRatio
		}
		if ratio.Sign() == 0 {
			amounts[i] = big.NewInt(0)
			continue
		}
		if remaining.Sign() == 0 {
			return nil, ErrWithdrawRatio
		}
		share := fixedpoint.MulWadDown(remaining, ratio)
		bal, err := v.effectiveBalance(slot, true)
		if err != nil {
			return nil, err
		}
		amount, err := calcPriceCurveLimit(share, bal, slot.Weight, v.oneMinusAmp)
		if err != nil {
			return nil, err
		}
		if minOut != nil && minOut[i] != nil && amount.Cmp(minOut[i]) < 0 {
			return nil, ErrBelowMinimum
		}
		amounts[i] = amount
		remaining.Sub(remaining, share)
		weightedWithdraw.Add(weightedWithdraw, new(big.Int).Mul(slot.Weight, amount))
	}
	if remaining.Sign() != 0 {
		return nil, ErrUnusedUnits
	}

	if err := v.shares.Burn(withdrawer, shareAmount); err != nil {
		return nil, err
	}
	for i, slot := range v.assets {
		if amounts[i].Sign() == 0 {
			continue
		}
		if err := v.tokens.Transfer(slot.ID, withdrawer, amounts[i]); err != nil {
			return nil, err
		}
	}
	v.shrinkCapacity(weightedWithdraw)
	v.emit(newWithdrawEvent(withdrawer, shareAmount, amounts, v.assets))
	if v.metrics != nil {
		v.metrics.Withdrawals.Inc()
	}
	return amounts, nil
}

// withdrawInnerDiff computes the per-asset shrinkage of the amped reference
// balance caused by burning shareAmount:
//
//	walpha_0^(1-amp) * (1 - ((ts - shares) / ts)^(1-amp))
//
// with ts the pre-burn effective supply and walpha_0 derived from
// escrow-adjusted balances. Callers hold the vault lock.
func (v *Vault) withdrawInnerDiff(shareAmount *big.Int) (*big.Int, error) {
	amped, err := v.computeBalance0Ampped(true)
	if err != nil {
		return nil, err
	}
	ts := v.effectiveShareSupply()
	if ts.Sign() <= 0 || shareAmount.Cmp(ts) > 0 {
		return nil, ErrAmountNegative
	}
	fraction, err := fixedpoint.DivWadDown(new(big.Int).Sub(ts, shareAmount), ts)
	if err != nil {
		return nil, err
	}
	var shrunk *big.Int
	if fraction.Sign() == 0 {
		shrunk = big.NewInt(0)
	} else {
		shrunk, err = fixedpoint.PowWad(fraction, v.oneMinusAmp)
		if err != nil {
			return nil, err
		}
	}
	diff := new(big.Int).Sub(wad, shrunk)
	if diff.Sign() < 0 {
		diff.SetInt64(0)
	}
	return fixedpoint.MulWadDown(amped, diff), nil
}

// calcWithdrawAmount inverts the curve for one asset's payout, degrading to
// the full free balance when the shrinkage exceeds the asset's own amped
// weighted balance.
func calcWithdrawAmount(innerdiff, b, w, oneMinusAmp *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return big.NewInt(0), nil
	}
	weighted := new(big.Int).Mul(w, b)
	weighted.Mul(weighted, wad)
	amped, err := fixedpoint.PowWad(weighted, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if amped.Cmp(innerdiff) <= 0 {
		return new(big.Int).Set(b), nil
	}
	return calcPriceCurveLimit(innerdiff, b, w, oneMinusAmp)
}
