package vault

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crossvault/fixedpoint"
)

// LocalSwap exchanges one vault asset for another on the same chain. The fee
// applies to the input, and the output must meet the caller's minimum before
// any token moves.
func (v *Vault) LocalSwap(account [20]byte, fromAsset, toAsset string, amount, minOut *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmountNegative
	}
	from, err := v.slot(fromAsset)
	if err != nil {
		return nil, err
	}
	to, err := v.slot(toAsset)
	if err != nil {
		return nil, err
	}
	v.updateAmplification(v.now())

	net := v.netOfFee(amount)
	out, err := v.calcLocalSwap(from, to, net)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, ErrBelowMinimum
	}
	if err := v.tokens.TransferFrom(fromAsset, account, amount); err != nil {
		return nil, err
	}
	if err := v.tokens.Transfer(toAsset, account, out); err != nil {
		return nil, err
	}
	v.emit(newLocalSwapEvent(account, fromAsset, toAsset, amount, out))
	if v.metrics != nil {
		v.metrics.LocalSwaps.Inc()
	}
	return out, nil
}

// SendAssetParams describes an outbound cross-chain asset swap.
type SendAssetParams struct {
	Channel      string
	ToVault      string
	ToAccount    [20]byte
	ToAssetIndex uint8
	FromAsset    string
	Amount       *big.Int
	MinOut       *big.Int
	Fallback     [20]byte
	Incentive    *big.Int
	CallData     []byte
}

// SendAsset sells an asset for units and dispatches them to a connected
// remote vault. The net input is escrowed until the transport reports the
// outcome; the security-limit credit is deferred to that completion so a
// misbehaving relay cannot manufacture capacity by timing swaps out.
func (v *Vault) SendAsset(sender [20]byte, params SendAssetParams) ([32]byte, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero [32]byte
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return zero, nil, ErrAmountNegative
	}
	if v.transport == nil {
		return zero, nil, ErrNotConfigured
	}
	if !v.connectionActive(params.Channel, params.ToVault) {
		return zero, nil, ErrNotConnected
	}
	slot, err := v.slot(params.FromAsset)
	if err != nil {
		return zero, nil, err
	}
	v.updateAmplification(v.now())

	net := v.netOfFee(params.Amount)
	units, err := v.calcSendAsset(slot, net)
	if err != nil {
		return zero, nil, err
	}
	tracked := new(big.Int).Add(v.unitTracker, units)
	if tracked.Cmp(maxInt256) > 0 {
		return zero, nil, ErrUnitsOverflow
	}

	sequence := uint32(v.sendSequence)
	escrowID := AssetEscrowID(params.ToAccount, units, net, params.FromAsset, sequence)
	record := &EscrowRecord{
		ID:        escrowID,
		Fallback:  params.Fallback,
		Kind:      EscrowAsset,
		Asset:     params.FromAsset,
		Amount:    new(big.Int).Set(net),
		Units:     new(big.Int).Set(units),
		CreatedAt: v.now(),
	}
	// Pull first: an escrow record must never outlive a failed call, or a
	// later completion would pay the fallback out of funds the vault never
	// received.
	if err := v.tokens.TransferFrom(params.FromAsset, sender, params.Amount); err != nil {
		return zero, nil, err
	}
	if err := v.escrows.Create(record); err != nil {
		v.returnPulledTokens(params.FromAsset, sender, params.Amount)
		return zero, nil, err
	}
	err = v.transport.SendAsset(AssetMessage{
		Channel:      params.Channel,
		ToVault:      params.ToVault,
		ToAccount:    params.ToAccount,
		ToAssetIndex: params.ToAssetIndex,
		Units:        new(big.Int).Set(units),
		MinOut:       cloneOrZero(params.MinOut),
		FromAmount:   new(big.Int).Set(net),
		FromAsset:    params.FromAsset,
		Sequence:     sequence,
		Incentive:    cloneOrZero(params.Incentive),
		CallData:     params.CallData,
	})
	if err != nil {
		if _, derr := v.escrows.Refund(escrowID); derr != nil {
			v.logWarn("discard escrow after transport failure", "err", derr)
		}
		v.returnPulledTokens(params.FromAsset, sender, params.Amount)
		return zero, nil, err
	}
	v.unitTracker = tracked
	slot.Escrowed.Add(slot.Escrowed, net)
	v.sendSequence++
	v.emit(newSendAssetEvent(escrowID, params.Channel, params.ToVault, params.FromAsset, net, units, sequence))
	if v.metrics != nil {
		v.metrics.AssetSends.Inc()
	}
	return escrowID, units, nil
}

// ReceiveAsset redeems inbound units for the asset at the given slot index
// and pays the recipient. The weighted output is charged against the security
// limit before anything moves; a failing recipient callback aborts the whole
// receive, leaving the source escrow to time out.
func (v *Vault) ReceiveAsset(channel, fromVault string, toAssetIndex uint8, toAccount [20]byte, units, minOut *big.Int, receiver Receiver, callData []byte) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if units == nil || units.Sign() < 0 {
		return nil, ErrAmountNegative
	}
	if !v.connectionActive(channel, fromVault) {
		return nil, ErrNotConnected
	}
	if int(toAssetIndex) >= len(v.assets) {
		return nil, ErrAssetUnknown
	}
	slot := v.assets[toAssetIndex]
	v.updateAmplification(v.now())

	out, err := v.calcReceiveAsset(slot, units)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, ErrBelowMinimum
	}
	// Charge the security limit before the recipient callback runs: a receive
	// the cap rejects must have no external side effects at all.
	weighted := new(big.Int).Mul(slot.Weight, out)
	v.refreshCapacity()
	usedBefore := new(big.Int).Set(v.usedUnitCapacity)
	maxBefore := new(big.Int).Set(v.maxUnitCapacity)
	if err := v.consumeInboundCapacity(weighted); err != nil {
		return nil, err
	}
	if receiver != nil {
		if err := receiver.OnReceive(out, callData); err != nil {
			v.usedUnitCapacity = usedBefore
			v.maxUnitCapacity = maxBefore
			return nil, err
		}
	}
	v.unitTracker.Sub(v.unitTracker, units)
	if err := v.tokens.Transfer(slot.ID, toAccount, out); err != nil {
		return nil, err
	}
	v.emit(newReceiveAssetEvent(channel, fromVault, slot.ID, toAccount, units, out))
	if v.metrics != nil {
		v.metrics.AssetReceives.Inc()
	}
	return out, nil
}

// SendLiquidityParams describes an outbound cross-chain liquidity swap.
type SendLiquidityParams struct {
	Channel     string
	ToVault     string
	ToAccount   [20]byte
	Shares      *big.Int
	MinShares   *big.Int
	MinRefAsset *big.Int
	Fallback    [20]byte
	Incentive   *big.Int
	CallData    []byte
}

// SendLiquidity burns shares and dispatches their unit value to a connected
// remote vault, skipping the explicit withdraw round trip. The burned shares
// stay escrow-tracked until completion so the reference supply is undiluted.
func (v *Vault) SendLiquidity(sender [20]byte, params SendLiquidityParams) ([32]byte, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero [32]byte
	if params.Shares == nil || params.Shares.Sign() <= 0 {
		return zero, nil, ErrAmountNegative
	}
	if v.transport == nil {
		return zero, nil, ErrNotConfigured
	}
	if !v.connectionActive(params.Channel, params.ToVault) {
		return zero, nil, ErrNotConnected
	}
	v.updateAmplification(v.now())

	amped, err := v.computeBalance0Ampped(false)
	if err != nil {
		return zero, nil, err
	}
	ts := v.effectiveShareSupply()
	if ts.Sign() <= 0 || params.Shares.Cmp(ts) >= 0 {
		return zero, nil, ErrAmountNegative
	}
	// U = N * walpha_0^(1-amp) * ((ts/(ts-shares))^(1-amp) - 1), the exact
	// inverse of the receiving side's unit-to-share conversion.
	fraction, err := fixedpoint.DivWadDown(ts, new(big.Int).Sub(ts, params.Shares))
	if err != nil {
		return zero, nil, err
	}
	grown, err := fixedpoint.PowWad(fraction, v.oneMinusAmp)
	if err != nil {
		return zero, nil, err
	}
	units := new(big.Int).Sub(grown, wad)
	if units.Sign() < 0 {
		units.SetInt64(0)
	}
	units = fixedpoint.MulWadDown(amped, units)
	units.Mul(units, big.NewInt(int64(len(v.assets))))

	tracked := new(big.Int).Add(v.unitTracker, units)
	if tracked.Cmp(maxInt256) > 0 {
		return zero, nil, ErrUnitsOverflow
	}

	sequence := uint32(v.sendSequence)
	escrowID := LiquidityEscrowID(params.ToAccount, units, params.Shares, sequence)
	record := &EscrowRecord{
		ID:        escrowID,
		Fallback:  params.Fallback,
		Kind:      EscrowLiquidity,
		Amount:    new(big.Int).Set(params.Shares),
		Units:     new(big.Int).Set(units),
		CreatedAt: v.now(),
	}
	// Burn first, mirroring the asset path: no escrow record without the
	// shares it claims to hold.
	if err := v.shares.Burn(sender, params.Shares); err != nil {
		return zero, nil, err
	}
	if err := v.escrows.Create(record); err != nil {
		v.remintBurnedShares(sender, params.Shares)
		return zero, nil, err
	}
	err = v.transport.SendLiquidity(LiquidityMessage{
		Channel:     params.Channel,
		ToVault:     params.ToVault,
		ToAccount:   params.ToAccount,
		Units:       new(big.Int).Set(units),
		MinShares:   cloneOrZero(params.MinShares),
		MinRefAsset: cloneOrZero(params.MinRefAsset),
		FromAmount:  new(big.Int).Set(params.Shares),
		Sequence:    sequence,
		Incentive:   cloneOrZero(params.Incentive),
		CallData:    params.CallData,
	})
	if err != nil {
		if _, derr := v.escrows.Refund(escrowID); derr != nil {
			v.logWarn("discard escrow after transport failure", "err", derr)
		}
		v.remintBurnedShares(sender, params.Shares)
		return zero, nil, err
	}
	v.unitTracker = tracked
	v.escrowedShares.Add(v.escrowedShares, params.Shares)
	v.sendSequence++
	v.emit(newSendLiquidityEvent(escrowID, params.Channel, params.ToVault, params.Shares, units, sequence))
	if v.metrics != nil {
		v.metrics.LiquiditySends.Inc()
	}
	return escrowID, units, nil
}

// ReceiveLiquidity redeems inbound units for freshly minted shares. Enforces
// the minimum-shares bound and, when requested, a minimum reference-asset
// value derived from the post-mint share fraction of walpha_0. The security
// limit is charged twice the approximated share-equivalent value: liquidity
// flow is harder to bound than asset flow.
func (v *Vault) ReceiveLiquidity(channel, fromVault string, toAccount [20]byte, units, minShares, minRefAsset *big.Int, receiver Receiver, callData []byte) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if units == nil || units.Sign() < 0 {
		return nil, ErrAmountNegative
	}
	if !v.connectionActive(channel, fromVault) {
		return nil, ErrNotConnected
	}
	v.updateAmplification(v.now())

	amped, err := v.computeBalance0Ampped(false)
	if err != nil {
		return nil, err
	}
	it := new(big.Int).Mul(amped, big.NewInt(int64(len(v.assets))))
	if units.Cmp(it) >= 0 {
		return nil, ErrExceedsSecurityLimit
	}
	shares, err := v.unitsToShares(units, amped)
	if err != nil {
		return nil, err
	}
	if minShares != nil && shares.Cmp(minShares) < 0 {
		return nil, ErrBelowMinimum
	}
	ts := v.effectiveShareSupply()
	postMint := new(big.Int).Add(ts, shares)
	walpha0, err := v.computeBalance0()
	if err != nil {
		return nil, err
	}
	if minRefAsset != nil && minRefAsset.Sign() > 0 {
		refValue := new(big.Int).Mul(walpha0, big.NewInt(int64(len(v.assets))))
		refValue.Mul(refValue, shares)
		refValue.Quo(refValue, postMint)
		if refValue.Cmp(minRefAsset) < 0 {
			return nil, ErrBelowMinimum
		}
	}
	approx := new(big.Int).Mul(walpha0, big.NewInt(int64(2*len(v.assets))))
	approx.Mul(approx, shares)
	approx.Quo(approx, postMint)
	if err := v.consumeCapacity(approx); err != nil {
		return nil, err
	}
	if receiver != nil {
		if err := receiver.OnReceive(shares, callData); err != nil {
			v.releaseCapacity(approx)
			return nil, err
		}
	}
	v.unitTracker.Sub(v.unitTracker, units)
	if err := v.shares.Mint(toAccount, shares); err != nil {
		return nil, err
	}
	v.emit(newReceiveLiquidityEvent(channel, fromVault, toAccount, units, shares))
	if v.metrics != nil {
		v.metrics.LiquidityReceives.Inc()
	}
	return shares, nil
}

// returnPulledTokens hands already-pulled input back to the sender on an
// aborted send. Failure here cannot propagate; the original error does.
func (v *Vault) returnPulledTokens(asset string, sender [20]byte, amount *big.Int) {
	if err := v.tokens.Transfer(asset, sender, amount); err != nil {
		v.logWarn("return pulled tokens failed", "asset", asset, "err", err)
	}
}

// remintBurnedShares restores shares burned by an aborted liquidity send.
func (v *Vault) remintBurnedShares(sender [20]byte, shares *big.Int) {
	if err := v.shares.Mint(sender, shares); err != nil {
		v.logWarn("remint burned shares failed", "err", err)
	}
}

// netOfFee deducts the vault fee from an input amount.
func (v *Vault) netOfFee(amount *big.Int) *big.Int {
	if v.vaultFee.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	fee := fixedpoint.MulWadDown(amount, v.vaultFee)
	return new(big.Int).Sub(amount, fee)
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// AssetEscrowID derives the escrow identifier for an outbound asset swap. The
// completion callbacks echo the same fields, so both sides of the protocol
// reconstruct the identical hash.
func AssetEscrowID(toAccount [20]byte, units, amount *big.Int, asset string, sequence uint32) [32]byte {
	buf := make([]byte, 0, 20+32+32+1+len(asset)+4)
	buf = append(buf, toAccount[:]...)
	buf = append(buf, padBig(units)...)
	buf = append(buf, padBig(amount)...)
	buf = append(buf, 0x00)
	buf = append(buf, asset...)
	buf = binary.BigEndian.AppendUint32(buf, sequence)
	return ethcrypto.Keccak256Hash(buf)
}

// LiquidityEscrowID derives the escrow identifier for an outbound liquidity
// swap.
func LiquidityEscrowID(toAccount [20]byte, units, shares *big.Int, sequence uint32) [32]byte {
	buf := make([]byte, 0, 20+32+32+1+4)
	buf = append(buf, toAccount[:]...)
	buf = append(buf, padBig(units)...)
	buf = append(buf, padBig(shares)...)
	buf = append(buf, 0x01)
	buf = binary.BigEndian.AppendUint32(buf, sequence)
	return ethcrypto.Keccak256Hash(buf)
}

func padBig(v *big.Int) []byte {
	out := make([]byte, 32)
	if v != nil && v.Sign() > 0 {
		v.FillBytes(out)
	}
	return out
}
