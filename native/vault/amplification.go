package vault

import "math/big"

// SetAmplification schedules a gradual change of the curve exponent, ramping
// linearly from the current value to the target by the deadline. Refused once
// the vault has ever been connected cross-chain: the unit tracker's
// reference-balance correction assumes a fixed exponent.
func (v *Vault) SetAmplification(targetAmp *big.Int, deadline int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.everConnected {
		return ErrAmplificationLocked
	}
	if targetAmp == nil || targetAmp.Sign() < 0 || targetAmp.Cmp(wad) >= 0 {
		return ErrAmplificationRange
	}
	now := v.now()
	if deadline < now+v.minAdjustmentWindow || deadline > now+MaxAdjustmentWindow {
		return ErrAdjustmentWindow
	}
	v.updateAmplification(now)
	target := new(big.Int).Sub(wad, targetAmp)
	// Ratio guard: the exponent may at most double or halve per adjustment.
	doubled := new(big.Int).Lsh(v.oneMinusAmp, 1)
	targetDoubled := new(big.Int).Lsh(target, 1)
	if target.Cmp(doubled) > 0 || v.oneMinusAmp.Cmp(targetDoubled) > 0 {
		return ErrAdjustmentTooLarge
	}
	v.targetOneMinusAmp = target
	v.adjustmentDeadline = deadline
	v.lastAdjustmentTime = now
	v.emit(newAmplificationScheduledEvent(v.oneMinusAmp, target, deadline))
	return nil
}

// updateAmplification advances the lazy linear ramp to the given time.
// Callers hold the vault lock. No-op when no adjustment is pending.
func (v *Vault) updateAmplification(now int64) {
	if v.targetOneMinusAmp == nil || now <= v.lastAdjustmentTime {
		return
	}
	if now >= v.adjustmentDeadline {
		v.oneMinusAmp = v.targetOneMinusAmp
		v.targetOneMinusAmp = nil
		v.adjustmentDeadline = 0
		v.lastAdjustmentTime = now
		return
	}
	diff := new(big.Int).Sub(v.targetOneMinusAmp, v.oneMinusAmp)
	diff.Mul(diff, big.NewInt(now-v.lastAdjustmentTime))
	diff.Quo(diff, big.NewInt(v.adjustmentDeadline-v.lastAdjustmentTime))
	v.oneMinusAmp = new(big.Int).Add(v.oneMinusAmp, diff)
	v.lastAdjustmentTime = now
}
