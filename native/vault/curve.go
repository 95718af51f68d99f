package vault

import (
	"math/big"

	"crossvault/fixedpoint"
)

var (
	// smallSwapRatio: inputs below balance/ratio are priced with a discount to
	// counter rounding error that otherwise lets tiny swaps extract value.
	smallSwapRatio = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)
	// smallSwapDiscount is the 0.95 multiplier applied to such outputs.
	smallSwapDiscount = big.NewInt(95e16)
)

// calcPriceCurveArea prices an input amount into units by integrating the
// curve between the current weighted balance and the post-input one:
//
//	(W*(A+input))^(1-amp) - (W*A)^(1-amp)
//
// evaluated in WAD unit space. A zero starting balance contributes nothing
// rather than routing zero through the exponential path.
func calcPriceCurveArea(input, a, w, oneMinusAmp *big.Int) (*big.Int, error) {
	if w.Sign() == 0 {
		return nil, ErrZeroWeight
	}
	post := new(big.Int).Add(a, input)
	if post.Sign() == 0 {
		return nil, ErrCurveDomain
	}
	weighted := new(big.Int).Mul(w, post)
	weighted.Mul(weighted, wad)
	out, err := fixedpoint.PowWad(weighted, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if a.Sign() != 0 {
		pre := new(big.Int).Mul(w, a)
		pre.Mul(pre, wad)
		preAmped, err := fixedpoint.PowWad(pre, oneMinusAmp)
		if err != nil {
			return nil, err
		}
		out.Sub(out, preAmped)
	}
	return out, nil
}

// calcPriceCurveLimit solves the inverse integral: the output amount whose
// removal from balance B consumes exactly U units:
//
//	B * (1 - (((W*B)^(1-amp) - U) / (W*B)^(1-amp))^(1/(1-amp)))
//
// Units at or beyond the full curve capacity (W*B)^(1-amp) have no real
// solution and fail closed.
func calcPriceCurveLimit(u, b, w, oneMinusAmp *big.Int) (*big.Int, error) {
	if w.Sign() == 0 {
		return nil, ErrZeroWeight
	}
	weighted := new(big.Int).Mul(w, b)
	weighted.Mul(weighted, wad)
	intermediate, err := fixedpoint.PowWad(weighted, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if u.Cmp(intermediate) >= 0 {
		return nil, ErrExceedsSecurityLimit
	}
	frac, err := fixedpoint.DivWadUp(new(big.Int).Sub(intermediate, u), intermediate)
	if err != nil {
		return nil, err
	}
	inverse := new(big.Int).Quo(wadWad, oneMinusAmp)
	powed, err := fixedpoint.PowWad(frac, inverse)
	if err != nil {
		return nil, err
	}
	share := new(big.Int).Sub(wad, powed)
	if share.Sign() < 0 {
		share.SetInt64(0)
	}
	out := share.Mul(share, b)
	return out.Quo(out, wad), nil
}

// calcCombinedPriceCurves composes the forward and inverse integrals for a
// local asset-to-asset swap.
func calcCombinedPriceCurves(input, a, b, wA, wB, oneMinusAmp *big.Int) (*big.Int, error) {
	u, err := calcPriceCurveArea(input, a, wA, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	return calcPriceCurveLimit(u, b, wB, oneMinusAmp)
}

// calcPriceCurveLimitShare converts incoming units into vault shares against
// the aggregate reference capacity it = N*walpha_0^(1-amp):
//
//	totalShares * (((it + U) / it)^(1/(1-amp)) - 1)
func calcPriceCurveLimitShare(u, totalShares, it, oneMinusAmpInverse *big.Int) (*big.Int, error) {
	if it.Sign() <= 0 {
		return nil, ErrBalance0
	}
	frac, err := fixedpoint.DivWadDown(new(big.Int).Add(it, u), it)
	if err != nil {
		return nil, err
	}
	powed, err := fixedpoint.PowWad(frac, oneMinusAmpInverse)
	if err != nil {
		return nil, err
	}
	growth := new(big.Int).Sub(powed, wad)
	if growth.Sign() < 0 {
		growth.SetInt64(0)
	}
	out := growth.Mul(growth, totalShares)
	return out.Quo(out, wad), nil
}

// isSmallSwap reports whether the input is below the configured fraction of
// the source balance.
func isSmallSwap(input, sourceBalance *big.Int) bool {
	if sourceBalance.Sign() <= 0 {
		return false
	}
	scaled := new(big.Int).Mul(input, smallSwapRatio)
	return scaled.Cmp(sourceBalance) < 0
}

// calcSendAsset prices a sold amount into units against the asset's raw
// balance. The small-swap discount applies to sell pricing only. Callers
// hold the vault lock.
func (v *Vault) calcSendAsset(slot *AssetSlot, amount *big.Int) (*big.Int, error) {
	bal, err := v.effectiveBalance(slot, false)
	if err != nil {
		return nil, err
	}
	u, err := calcPriceCurveArea(amount, bal, slot.Weight, v.oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if isSmallSwap(amount, bal) {
		u = fixedpoint.MulWadDown(u, smallSwapDiscount)
	}
	return u, nil
}

// calcReceiveAsset prices incoming units into output tokens against the
// asset's escrow-adjusted balance. Buy pricing is never discounted.
func (v *Vault) calcReceiveAsset(slot *AssetSlot, units *big.Int) (*big.Int, error) {
	bal, err := v.effectiveBalance(slot, true)
	if err != nil {
		return nil, err
	}
	return calcPriceCurveLimit(units, bal, slot.Weight, v.oneMinusAmp)
}

// calcLocalSwap prices a same-chain swap: raw balance on the sell side,
// escrow-adjusted on the buy side, small-swap discount on the final output.
func (v *Vault) calcLocalSwap(from, to *AssetSlot, amount *big.Int) (*big.Int, error) {
	fromBal, err := v.effectiveBalance(from, false)
	if err != nil {
		return nil, err
	}
	toBal, err := v.effectiveBalance(to, true)
	if err != nil {
		return nil, err
	}
	out, err := calcCombinedPriceCurves(amount, fromBal, toBal, from.Weight, to.Weight, v.oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if isSmallSwap(amount, fromBal) {
		out = fixedpoint.MulWadDown(out, smallSwapDiscount)
	}
	return out, nil
}
