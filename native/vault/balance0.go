package vault

import (
	"math/big"

	"crossvault/fixedpoint"
)

// computeBalance0Ampped derives the amped reference balance walpha_0^(1-amp):
// the weighted balance every asset would hold if the vault were exactly at its
// curve equilibrium, corrected by the unit tracker for value currently in
// flight to or from other chains:
//
//	(sum_i (W_i * A_i * WAD)^(1-amp) - unitTracker) / N
//
// Raw balances are the default; withdrawals pass escrowAdjusted to avoid
// overstating what is actually free. Constant across value-conserving
// operations. Callers hold the vault lock.
func (v *Vault) computeBalance0Ampped(escrowAdjusted bool) (*big.Int, error) {
	sum := big.NewInt(0)
	for _, slot := range v.assets {
		bal, err := v.effectiveBalance(slot, escrowAdjusted)
		if err != nil {
			return nil, err
		}
		if bal.Sign() == 0 {
			continue
		}
		weighted := new(big.Int).Mul(slot.Weight, bal)
		weighted.Mul(weighted, wad)
		amped, err := fixedpoint.PowWad(weighted, v.oneMinusAmp)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, amped)
	}
	sum.Sub(sum, v.unitTracker)
	if sum.Sign() <= 0 {
		return nil, ErrBalance0
	}
	return sum.Quo(sum, big.NewInt(int64(len(v.assets)))), nil
}

// ComputeBalance0 resolves the reference balance walpha_0 itself by inverting
// the curve exponent on the amped value.
func (v *Vault) ComputeBalance0() (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.computeBalance0()
}

func (v *Vault) computeBalance0() (*big.Int, error) {
	amped, err := v.computeBalance0Ampped(false)
	if err != nil {
		return nil, err
	}
	inverse := new(big.Int).Quo(wadWad, v.oneMinusAmp)
	out, err := fixedpoint.PowWad(amped, inverse)
	if err != nil {
		return nil, err
	}
	return out.Quo(out, wad), nil
}

// unitsToShares converts incoming liquidity units into vault shares using the
// aggregate reference capacity it = N * walpha_0^(1-amp). The share supply
// used as the growth base includes escrowed shares so concurrent in-flight
// liquidity swaps do not dilute each other.
func (v *Vault) unitsToShares(units, amped *big.Int) (*big.Int, error) {
	it := new(big.Int).Mul(amped, big.NewInt(int64(len(v.assets))))
	inverse := new(big.Int).Quo(wadWad, v.oneMinusAmp)
	return calcPriceCurveLimitShare(units, v.effectiveShareSupply(), it, inverse)
}
