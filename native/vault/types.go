package vault

import "math/big"

// MaxAssets bounds the number of assets a single vault can hold. The pricing
// math sums per-asset powers into one accumulator; a small fixed bound keeps
// the documented overflow analysis valid.
const MaxAssets = 3

// TokenLedger exposes the token primitives the engine consumes. The vault is
// the implicit holder: Balance reports the vault's own holdings and Transfer
// moves funds out of the vault.
type TokenLedger interface {
	// Balance returns the vault's current holdings of the asset.
	Balance(asset string) (*big.Int, error)
	// Transfer moves amount from the vault to the recipient. Fails on
	// insufficient balance.
	Transfer(asset string, to [20]byte, amount *big.Int) error
	// TransferFrom pulls amount from the owner into the vault. Fails without
	// prior authorization.
	TransferFrom(asset string, from [20]byte, amount *big.Int) error
}

// ShareLedger manages the vault's fungible share tokens. Supply bookkeeping
// lives here; the engine tracks escrowed shares itself.
type ShareLedger interface {
	Mint(to [20]byte, amount *big.Int) error
	Burn(from [20]byte, amount *big.Int) error
	TotalSupply() *big.Int
}

// EscrowKind distinguishes asset escrows from liquidity (share) escrows.
type EscrowKind uint8

const (
	// EscrowAsset marks tokens held pending an outbound asset swap.
	EscrowAsset EscrowKind = iota
	// EscrowLiquidity marks burned shares pending an outbound liquidity swap.
	EscrowLiquidity
)

// EscrowRecord is the unit of pending cross-chain state: created when an
// outbound operation is sent, destroyed by exactly one completion callback.
type EscrowRecord struct {
	ID        [32]byte
	Fallback  [20]byte
	Kind      EscrowKind
	Asset     string // empty for liquidity escrows
	Amount    *big.Int
	Units     *big.Int
	CreatedAt int64
}

// Clone returns a deep copy of the record.
func (r *EscrowRecord) Clone() *EscrowRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	if r.Units != nil {
		clone.Units = new(big.Int).Set(r.Units)
	}
	return &clone
}

// EscrowLedger stores pending escrow records. Release and Refund are the base
// success/failure hooks: both remove the record exactly once and return it so
// the engine can reconcile funds. A callback for an unknown or
// already-resolved record fails with ErrEscrowNotFound.
type EscrowLedger interface {
	Create(record *EscrowRecord) error
	Release(id [32]byte) (*EscrowRecord, error)
	Refund(id [32]byte) (*EscrowRecord, error)
}

// AssetMessage is the outbound payload handed to the transport for an asset
// swap. Fire-and-forget from the engine's perspective; the transport echoes
// the identifying fields back through the completion callbacks.
type AssetMessage struct {
	Channel      string
	ToVault      string
	ToAccount    [20]byte
	ToAssetIndex uint8
	Units        *big.Int
	MinOut       *big.Int
	FromAmount   *big.Int
	FromAsset    string
	Sequence     uint32
	Incentive    *big.Int
	CallData     []byte
}

// LiquidityMessage is the outbound payload for a liquidity swap.
type LiquidityMessage struct {
	Channel     string
	ToVault     string
	ToAccount   [20]byte
	Units       *big.Int
	MinShares   *big.Int
	MinRefAsset *big.Int
	FromAmount  *big.Int
	Sequence    uint32
	Incentive   *big.Int
	CallData    []byte
}

// Transport moves cross-chain messages. Implementations decide delivery and
// timeout policy; the engine only guarantees that exactly one completion
// callback per escrow reconciles its accounting.
type Transport interface {
	SendAsset(msg AssetMessage) error
	SendLiquidity(msg LiquidityMessage) error
}

// Receiver is the optional callback notified of an inbound swap before the
// payout lands. A failing callback aborts the enclosing receive.
type Receiver interface {
	OnReceive(amount *big.Int, data []byte) error
}
