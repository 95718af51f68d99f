package vault

import "math/big"

// Completion handlers. The transport invokes exactly one of the two outcomes
// per escrow; the ledger rejects duplicates with ErrEscrowNotFound. Beyond
// that lookup, the accounting here is deliberately saturating rather than
// failing: a bridge relay must always be able to deliver a result.

// OnSendAssetSuccess settles an outbound asset escrow whose units arrived.
// The escrowed tokens stay in the vault, the deferred security-limit credit
// lands: usage drops and the ceiling rises by the escrowed weighted value.
func (v *Vault) OnSendAssetSuccess(escrowID [32]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, err := v.escrows.Release(escrowID)
	if err != nil {
		return err
	}
	v.settleAssetEscrow(record)
	weighted := v.escrowWeighted(record)
	v.releaseCapacity(weighted)
	v.growCapacity(weighted)
	v.emit(newEscrowAckEvent(escrowID, EscrowAsset, record.Units))
	if v.metrics != nil {
		v.metrics.EscrowAcks.Inc()
	}
	return nil
}

// OnSendAssetFailure unwinds an outbound asset escrow that timed out: the
// escrowed tokens return to the fallback account and the units leave the
// tracker, since the value they represented never purchased anything.
func (v *Vault) OnSendAssetFailure(escrowID [32]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, err := v.escrows.Refund(escrowID)
	if err != nil {
		return err
	}
	v.settleAssetEscrow(record)
	if record.Amount != nil && record.Amount.Sign() > 0 {
		if err := v.tokens.Transfer(record.Asset, record.Fallback, record.Amount); err != nil {
			v.logWarn("escrow refund transfer failed", "asset", record.Asset, "err", err)
		}
	}
	v.subtractTrackedUnits(record.Units)
	v.emit(newEscrowTimeoutEvent(escrowID, EscrowAsset, record.Units, record.Amount))
	if v.metrics != nil {
		v.metrics.EscrowTimeouts.Inc()
	}
	return nil
}

// OnSendLiquiditySuccess settles an outbound liquidity escrow. The burned
// shares are simply released from escrow tracking; the security limit is
// intentionally left untouched, recomputing the correct increase costs more
// than it protects.
func (v *Vault) OnSendLiquiditySuccess(escrowID [32]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, err := v.escrows.Release(escrowID)
	if err != nil {
		return err
	}
	v.settleShareEscrow(record)
	v.emit(newEscrowAckEvent(escrowID, EscrowLiquidity, record.Units))
	if v.metrics != nil {
		v.metrics.EscrowAcks.Inc()
	}
	return nil
}

// OnSendLiquidityFailure unwinds a timed-out liquidity escrow by re-minting
// the burned shares to the fallback account and backing the units out of the
// tracker.
func (v *Vault) OnSendLiquidityFailure(escrowID [32]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, err := v.escrows.Refund(escrowID)
	if err != nil {
		return err
	}
	v.settleShareEscrow(record)
	if record.Amount != nil && record.Amount.Sign() > 0 {
		if err := v.shares.Mint(record.Fallback, record.Amount); err != nil {
			v.logWarn("escrow refund mint failed", "err", err)
		}
	}
	v.subtractTrackedUnits(record.Units)
	v.emit(newEscrowTimeoutEvent(escrowID, EscrowLiquidity, record.Units, record.Amount))
	if v.metrics != nil {
		v.metrics.EscrowTimeouts.Inc()
	}
	return nil
}

// settleAssetEscrow removes the record's amount from the asset's escrow
// tracking, clamped at zero.
func (v *Vault) settleAssetEscrow(record *EscrowRecord) {
	slot, err := v.slot(record.Asset)
	if err != nil {
		v.logWarn("escrow references unknown asset", "asset", record.Asset)
		return
	}
	if record.Amount == nil {
		return
	}
	slot.Escrowed.Sub(slot.Escrowed, record.Amount)
	if slot.Escrowed.Sign() < 0 {
		slot.Escrowed.SetInt64(0)
	}
}

// settleShareEscrow removes the record's amount from share escrow tracking,
// clamped at zero.
func (v *Vault) settleShareEscrow(record *EscrowRecord) {
	if record.Amount == nil {
		return
	}
	v.escrowedShares.Sub(v.escrowedShares, record.Amount)
	if v.escrowedShares.Sign() < 0 {
		v.escrowedShares.SetInt64(0)
	}
}

func (v *Vault) escrowWeighted(record *EscrowRecord) *big.Int {
	slot, err := v.slot(record.Asset)
	if err != nil || record.Amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(slot.Weight, record.Amount)
}

func (v *Vault) subtractTrackedUnits(units *big.Int) {
	if units == nil {
		return
	}
	v.unitTracker.Sub(v.unitTracker, units)
}
