package vault

import "errors"

var (
	// ErrNotConfigured indicates the engine is missing a required collaborator.
	ErrNotConfigured = errors.New("vault: engine not configured")
	// ErrAssetUnknown indicates the referenced asset is not held by the vault.
	ErrAssetUnknown = errors.New("vault: unknown asset")
	// ErrArgumentLength indicates a per-asset argument slice does not match the asset count.
	ErrArgumentLength = errors.New("vault: argument length mismatch")
	// ErrAmountNegative indicates a negative amount where only non-negative values are valid.
	ErrAmountNegative = errors.New("vault: amount must not be negative")

	// ErrZeroWeight indicates a pricing call against an asset with no weight.
	ErrZeroWeight = errors.New("vault: zero weight")
	// ErrCurveDomain indicates the pricing curve was evaluated outside its domain.
	ErrCurveDomain = errors.New("vault: curve argument outside domain")
	// ErrBalance0 indicates the reference balance computation produced a
	// non-positive value, i.e. the unit tracker claims more value than the
	// vault holds.
	ErrBalance0 = errors.New("vault: reference balance not positive")

	// ErrBelowMinimum indicates an output fell below the caller-provided minimum.
	ErrBelowMinimum = errors.New("vault: output below minimum")
	// ErrExceedsSecurityLimit indicates an inbound value exceeds the bridge risk cap
	// or the curve capacity backing it.
	ErrExceedsSecurityLimit = errors.New("vault: exceeds security limit")
	// ErrUnitsOverflow indicates a unit value too large for the signed accounting domain.
	ErrUnitsOverflow = errors.New("vault: units overflow accounting domain")
	// ErrWithdrawRatio indicates a malformed withdraw ratio vector.
	ErrWithdrawRatio = errors.New("vault: invalid withdraw ratio")
	// ErrUnusedUnits indicates a mixed withdrawal left units unallocated.
	ErrUnusedUnits = errors.New("vault: units not fully consumed")

	// ErrNotConnected indicates the channel/vault pair is not whitelisted for cross-chain traffic.
	ErrNotConnected = errors.New("vault: not connected to remote vault")
	// ErrAmplificationLocked indicates amplification changes are disabled because
	// the vault participates in cross-chain swaps.
	ErrAmplificationLocked = errors.New("vault: amplification locked while connected")
	// ErrAdjustmentWindow indicates an amplification deadline outside the allowed window.
	ErrAdjustmentWindow = errors.New("vault: adjustment deadline outside allowed window")
	// ErrAdjustmentTooLarge indicates an amplification target beyond the 2x ratio guard.
	ErrAdjustmentTooLarge = errors.New("vault: amplification change exceeds ratio bound")
	// ErrAmplificationRange indicates an amplification value outside [0, 1).
	ErrAmplificationRange = errors.New("vault: amplification outside valid range")

	// ErrEscrowExists indicates an escrow identifier collision.
	ErrEscrowExists = errors.New("vault: escrow already exists")
	// ErrEscrowNotFound indicates a completion callback referenced an unknown or
	// already-resolved escrow.
	ErrEscrowNotFound = errors.New("vault: escrow not found")
)
