package vault

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"crossvault/core/events"
	"crossvault/fixedpoint"
)

var (
	wad    = fixedpoint.WAD()
	wadWad = fixedpoint.WADWAD()

	// maxInt256 bounds the signed unit-accounting domain.
	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	// maxUint256 is the saturation ceiling for the security-limit capacity.
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// AssetSlot is one of the vault's configured assets: its external identifier,
// its fixed weight, and the amount currently escrowed pending cross-chain
// resolution.
type AssetSlot struct {
	ID       string
	Weight   *big.Int
	Escrowed *big.Int
}

// Vault is the pricing and cross-chain accounting engine for a single
// amplified multi-asset vault. Every public operation takes the vault lock
// for its full duration; no operation suspends mid-execution.
type Vault struct {
	mu sync.Mutex

	assets     []*AssetSlot
	assetIndex map[string]int

	tokens    TokenLedger
	shares    ShareLedger
	escrows   EscrowLedger
	transport Transport
	capacity  CapacityUpdater

	vaultFee *big.Int

	// Curve exponent and its adjustment schedule. oneMinusAmp is the value
	// every pricing formula uses; the target/deadline pair drives the lazy
	// linear interpolation.
	oneMinusAmp         *big.Int
	targetOneMinusAmp   *big.Int
	adjustmentDeadline  int64
	lastAdjustmentTime  int64
	minAdjustmentWindow int64

	// Cumulative net units issued to other chains. Signed: inbound receives
	// subtract. Corrects the reference-balance computation while cross-chain
	// value is in flight.
	unitTracker *big.Int

	// Bridge risk cap, in weighted-token space.
	maxUnitCapacity   *big.Int
	usedUnitCapacity  *big.Int
	capacityUpdatedAt int64

	escrowedShares *big.Int
	sendSequence   uint64

	connections   map[string]map[string]bool
	everConnected bool

	emitter events.Emitter
	logger  *slog.Logger
	metrics *Metrics
	nowFn   func() int64
}

// New constructs a vault engine from the supplied parameters and
// collaborators. The initial security-limit capacity is seeded from the
// vault's current weighted holdings.
func New(params Parameters, tokens TokenLedger, shares ShareLedger, escrows EscrowLedger, transport Transport) (*Vault, error) {
	if tokens == nil || shares == nil || escrows == nil {
		return nil, ErrNotConfigured
	}
	if len(params.Assets) == 0 || len(params.Assets) > MaxAssets {
		return nil, fmt.Errorf("vault: asset count must be 1..%d", MaxAssets)
	}
	if params.OneMinusAmp == nil || params.OneMinusAmp.Sign() <= 0 || params.OneMinusAmp.Cmp(wad) > 0 {
		return nil, ErrAmplificationRange
	}
	fee := params.VaultFee
	if fee == nil {
		fee = big.NewInt(0)
	}
	if fee.Sign() < 0 || fee.Cmp(wad) >= 0 {
		return nil, fmt.Errorf("vault: fee must be in [0, 1)")
	}
	v := &Vault{
		assetIndex:          make(map[string]int, len(params.Assets)),
		tokens:              tokens,
		shares:              shares,
		escrows:             escrows,
		transport:           transport,
		capacity:            LinearDecayUpdater{Window: params.DecayWindow},
		vaultFee:            new(big.Int).Set(fee),
		oneMinusAmp:         new(big.Int).Set(params.OneMinusAmp),
		minAdjustmentWindow: params.MinAdjustmentWindow,
		unitTracker:         big.NewInt(0),
		maxUnitCapacity:     big.NewInt(0),
		usedUnitCapacity:    big.NewInt(0),
		escrowedShares:      big.NewInt(0),
		connections:         make(map[string]map[string]bool),
		emitter:             events.NoopEmitter{},
		nowFn:               func() int64 { return time.Now().Unix() },
	}
	if v.minAdjustmentWindow <= 0 {
		v.minAdjustmentWindow = DefaultMinAdjustmentWindow
	}
	for _, asset := range params.Assets {
		if asset.Weight == nil || asset.Weight.Sign() <= 0 {
			return nil, ErrZeroWeight
		}
		if _, dup := v.assetIndex[asset.ID]; dup {
			return nil, fmt.Errorf("vault: duplicate asset %s", asset.ID)
		}
		v.assetIndex[asset.ID] = len(v.assets)
		v.assets = append(v.assets, &AssetSlot{
			ID:       asset.ID,
			Weight:   new(big.Int).Set(asset.Weight),
			Escrowed: big.NewInt(0),
		})
	}
	// Seed the risk cap with the weighted sum of the initial holdings.
	for _, slot := range v.assets {
		bal, err := tokens.Balance(slot.ID)
		if err != nil {
			return nil, fmt.Errorf("vault: read initial balance of %s: %w", slot.ID, err)
		}
		v.maxUnitCapacity.Add(v.maxUnitCapacity, new(big.Int).Mul(slot.Weight, bal))
	}
	v.capacityUpdatedAt = v.nowFn()
	return v, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if emitter == nil {
		v.emitter = events.NoopEmitter{}
		return
	}
	v.emitter = emitter
}

// SetLogger configures structured logging for best-effort paths.
func (v *Vault) SetLogger(logger *slog.Logger) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logger = logger
}

// SetMetrics attaches engine metrics. Passing nil disables instrumentation.
func (v *Vault) SetMetrics(m *Metrics) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.metrics = m
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (v *Vault) SetNowFunc(now func() int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if now == nil {
		v.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	v.nowFn = now
}

// SetCapacityUpdater overrides the decaying security-limit usage policy.
func (v *Vault) SetCapacityUpdater(updater CapacityUpdater) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if updater == nil {
		v.capacity = LinearDecayUpdater{}
		return
	}
	v.capacity = updater
}

// SetConnection whitelists (or revokes) a channel/remote-vault pair for
// cross-chain traffic. Whitelisting permanently disables amplification
// adjustments: the reference-balance correction is incompatible with the
// exponent changing while cross-chain units are outstanding.
func (v *Vault) SetConnection(channel, remoteVault string, active bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	peers, ok := v.connections[channel]
	if !ok {
		peers = make(map[string]bool)
		v.connections[channel] = peers
	}
	peers[remoteVault] = active
	if active {
		v.everConnected = true
	}
}

func (v *Vault) connectionActive(channel, remoteVault string) bool {
	peers, ok := v.connections[channel]
	if !ok {
		return false
	}
	return peers[remoteVault]
}

// Assets returns the configured asset identifiers in slot order.
func (v *Vault) Assets() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.assets))
	for i, slot := range v.assets {
		out[i] = slot.ID
	}
	return out
}

// OneMinusAmp returns the current curve exponent.
func (v *Vault) OneMinusAmp() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.oneMinusAmp)
}

// UnitTracker returns the cumulative net units issued to other chains.
func (v *Vault) UnitTracker() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.unitTracker)
}

// Capacity returns the security-limit ceiling and its current consumption.
func (v *Vault) Capacity() (max, used *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.maxUnitCapacity), new(big.Int).Set(v.usedUnitCapacity)
}

// EscrowedShares returns the share amount pending cross-chain resolution.
func (v *Vault) EscrowedShares() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.escrowedShares)
}

// EscrowedBalance returns the escrowed amount for one asset.
func (v *Vault) EscrowedBalance(asset string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx, ok := v.assetIndex[asset]
	if !ok {
		return nil, ErrAssetUnknown
	}
	return new(big.Int).Set(v.assets[idx].Escrowed), nil
}

func (v *Vault) now() int64 {
	if v.nowFn == nil {
		return time.Now().Unix()
	}
	return v.nowFn()
}

func (v *Vault) emit(evt events.Event) {
	if v.emitter == nil {
		return
	}
	v.emitter.Emit(evt)
}

func (v *Vault) logWarn(msg string, args ...any) {
	if v.logger == nil {
		return
	}
	v.logger.Warn(msg, args...)
}

func (v *Vault) slot(asset string) (*AssetSlot, error) {
	idx, ok := v.assetIndex[asset]
	if !ok {
		return nil, ErrAssetUnknown
	}
	return v.assets[idx], nil
}

// effectiveBalance returns the vault's holdings of the slot's asset, less the
// escrowed portion when requested. Escrowed funds never exceed holdings, so
// the subtraction cannot go negative under the collaborator contracts; a
// breach is clamped to zero rather than propagated.
func (v *Vault) effectiveBalance(slot *AssetSlot, escrowAdjusted bool) (*big.Int, error) {
	bal, err := v.tokens.Balance(slot.ID)
	if err != nil {
		return nil, fmt.Errorf("vault: read balance of %s: %w", slot.ID, err)
	}
	out := new(big.Int).Set(bal)
	if escrowAdjusted {
		out.Sub(out, slot.Escrowed)
		if out.Sign() < 0 {
			out.SetInt64(0)
		}
	}
	return out, nil
}

// effectiveShareSupply is the supply used whenever an undiluted reference is
// required: live supply plus shares escrowed for in-flight liquidity swaps.
func (v *Vault) effectiveShareSupply() *big.Int {
	return new(big.Int).Add(v.shares.TotalSupply(), v.escrowedShares)
}
