package vault

import "math/big"

// DefaultDecayWindow is the time over which consumed security-limit capacity
// fully regenerates.
const DefaultDecayWindow int64 = 24 * 60 * 60

// CapacityUpdater computes the decayed security-limit consumption at a point
// in time. Implementations must be pure: same inputs, same output.
type CapacityUpdater interface {
	// Decayed returns the remaining consumed capacity after elapsed seconds,
	// given the ceiling the consumption regenerates toward.
	Decayed(used, max *big.Int, elapsed int64) *big.Int
}

// LinearDecayUpdater regenerates consumed capacity linearly: the full ceiling
// worth of capacity returns over one Window.
type LinearDecayUpdater struct {
	Window int64
}

// Decayed implements CapacityUpdater.
func (u LinearDecayUpdater) Decayed(used, max *big.Int, elapsed int64) *big.Int {
	if used.Sign() <= 0 {
		return big.NewInt(0)
	}
	if elapsed <= 0 {
		return new(big.Int).Set(used)
	}
	window := u.Window
	if window <= 0 {
		window = DefaultDecayWindow
	}
	if elapsed >= window {
		return big.NewInt(0)
	}
	regen := new(big.Int).Mul(max, big.NewInt(elapsed))
	regen.Quo(regen, big.NewInt(window))
	out := new(big.Int).Sub(used, regen)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// refreshCapacity applies the decay policy to the stored consumption. Callers
// hold the vault lock.
func (v *Vault) refreshCapacity() {
	now := v.now()
	elapsed := now - v.capacityUpdatedAt
	if elapsed > 0 {
		v.usedUnitCapacity = v.capacity.Decayed(v.usedUnitCapacity, v.maxUnitCapacity, elapsed)
	}
	v.capacityUpdatedAt = now
}

// consumeCapacity charges an inbound weighted-token value against the
// security limit, rejecting the charge when it would exceed the ceiling.
// Callers hold the vault lock and must call this before any state mutation.
func (v *Vault) consumeCapacity(weighted *big.Int) error {
	v.refreshCapacity()
	next := new(big.Int).Add(v.usedUnitCapacity, weighted)
	if next.Cmp(v.maxUnitCapacity) > 0 {
		return ErrExceedsSecurityLimit
	}
	v.usedUnitCapacity = next
	return nil
}

// consumeInboundCapacity is the asset-receive variant: the weighted output
// both counts against the decayed usage and permanently lowers the ceiling,
// since the paying tokens leave the vault. The matching raise happens when an
// outbound escrow acks.
func (v *Vault) consumeInboundCapacity(weighted *big.Int) error {
	if err := v.consumeCapacity(weighted); err != nil {
		return err
	}
	v.maxUnitCapacity.Sub(v.maxUnitCapacity, weighted)
	if v.maxUnitCapacity.Sign() < 0 {
		v.maxUnitCapacity.SetInt64(0)
	}
	// usedUnitCapacity <= maxUnitCapacity must hold after the decrement too;
	// clamping fails closed until the usage decays.
	if v.usedUnitCapacity.Cmp(v.maxUnitCapacity) > 0 {
		v.usedUnitCapacity.Set(v.maxUnitCapacity)
	}
	return nil
}

// releaseCapacity credits back consumed capacity, flooring at zero. Outbound
// flow frees headroom for subsequent inbound flow.
func (v *Vault) releaseCapacity(weighted *big.Int) {
	v.refreshCapacity()
	v.usedUnitCapacity.Sub(v.usedUnitCapacity, weighted)
	if v.usedUnitCapacity.Sign() < 0 {
		v.usedUnitCapacity.SetInt64(0)
	}
}

// growCapacity raises the security-limit ceiling, saturating at the unsigned
// 256-bit maximum so completion accounting can never fail.
func (v *Vault) growCapacity(weighted *big.Int) {
	v.maxUnitCapacity.Add(v.maxUnitCapacity, weighted)
	if v.maxUnitCapacity.Cmp(maxUint256) > 0 {
		v.maxUnitCapacity.Set(maxUint256)
	}
}

// shrinkCapacity lowers both the ceiling and the current usage by a withdrawn
// weighted amount, flooring each at zero. Withdrawal-driven shrink never
// fails.
func (v *Vault) shrinkCapacity(weighted *big.Int) {
	v.refreshCapacity()
	v.maxUnitCapacity.Sub(v.maxUnitCapacity, weighted)
	if v.maxUnitCapacity.Sign() < 0 {
		v.maxUnitCapacity.SetInt64(0)
	}
	v.usedUnitCapacity.Sub(v.usedUnitCapacity, weighted)
	if v.usedUnitCapacity.Sign() < 0 {
		v.usedUnitCapacity.SetInt64(0)
	}
}
