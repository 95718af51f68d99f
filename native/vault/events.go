package vault

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"crossvault/core/events"
)

const (
	// EventTypeDeposit is emitted when liquidity is deposited for shares.
	EventTypeDeposit = "vault.deposit"
	// EventTypeWithdraw is emitted when shares are burned for assets.
	EventTypeWithdraw = "vault.withdraw"
	// EventTypeLocalSwap is emitted for same-chain asset swaps.
	EventTypeLocalSwap = "vault.swap.local"
	// EventTypeSendAsset is emitted when an asset swap leaves the chain.
	EventTypeSendAsset = "vault.swap.send"
	// EventTypeReceiveAsset is emitted when an asset swap arrives.
	EventTypeReceiveAsset = "vault.swap.receive"
	// EventTypeSendLiquidity is emitted when a liquidity swap leaves the chain.
	EventTypeSendLiquidity = "vault.liquidity.send"
	// EventTypeReceiveLiquidity is emitted when a liquidity swap arrives.
	EventTypeReceiveLiquidity = "vault.liquidity.receive"
	// EventTypeEscrowAck is emitted when an outbound swap is confirmed delivered.
	EventTypeEscrowAck = "vault.escrow.ack"
	// EventTypeEscrowTimeout is emitted when an outbound swap times out and refunds.
	EventTypeEscrowTimeout = "vault.escrow.timeout"
	// EventTypeAmplificationScheduled is emitted when an exponent ramp is scheduled.
	EventTypeAmplificationScheduled = "vault.amplification.scheduled"
)

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addrAttr(a [20]byte) string {
	return "0x" + hex.EncodeToString(a[:])
}

func idAttr(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func newDepositEvent(depositor [20]byte, shares *big.Int, amounts []*big.Int, assets []*AssetSlot) events.Event {
	attrs := map[string]string{
		"depositor": addrAttr(depositor),
		"shares":    bigAttr(shares),
	}
	for i, amount := range amounts {
		attrs["amount."+assets[i].ID] = bigAttr(amount)
	}
	return events.Event{Type: EventTypeDeposit, Attributes: attrs}
}

func newWithdrawEvent(withdrawer [20]byte, shares *big.Int, amounts []*big.Int, assets []*AssetSlot) events.Event {
	attrs := map[string]string{
		"withdrawer": addrAttr(withdrawer),
		"shares":     bigAttr(shares),
	}
	for i, amount := range amounts {
		attrs["amount."+assets[i].ID] = bigAttr(amount)
	}
	return events.Event{Type: EventTypeWithdraw, Attributes: attrs}
}

func newLocalSwapEvent(account [20]byte, fromAsset, toAsset string, amountIn, amountOut *big.Int) events.Event {
	return events.Event{Type: EventTypeLocalSwap, Attributes: map[string]string{
		"account":   addrAttr(account),
		"fromAsset": fromAsset,
		"toAsset":   toAsset,
		"amountIn":  bigAttr(amountIn),
		"amountOut": bigAttr(amountOut),
	}}
}

func newSendAssetEvent(escrowID [32]byte, channel, toVault, fromAsset string, amount, units *big.Int, sequence uint32) events.Event {
	return events.Event{Type: EventTypeSendAsset, Attributes: map[string]string{
		"escrowId":  idAttr(escrowID),
		"channel":   channel,
		"toVault":   toVault,
		"fromAsset": fromAsset,
		"amount":    bigAttr(amount),
		"units":     bigAttr(units),
		"sequence":  strconv.FormatUint(uint64(sequence), 10),
	}}
}

func newReceiveAssetEvent(channel, fromVault, toAsset string, toAccount [20]byte, units, amountOut *big.Int) events.Event {
	return events.Event{Type: EventTypeReceiveAsset, Attributes: map[string]string{
		"channel":   channel,
		"fromVault": fromVault,
		"toAsset":   toAsset,
		"toAccount": addrAttr(toAccount),
		"units":     bigAttr(units),
		"amountOut": bigAttr(amountOut),
	}}
}

func newSendLiquidityEvent(escrowID [32]byte, channel, toVault string, shares, units *big.Int, sequence uint32) events.Event {
	return events.Event{Type: EventTypeSendLiquidity, Attributes: map[string]string{
		"escrowId": idAttr(escrowID),
		"channel":  channel,
		"toVault":  toVault,
		"shares":   bigAttr(shares),
		"units":    bigAttr(units),
		"sequence": strconv.FormatUint(uint64(sequence), 10),
	}}
}

func newReceiveLiquidityEvent(channel, fromVault string, toAccount [20]byte, units, sharesOut *big.Int) events.Event {
	return events.Event{Type: EventTypeReceiveLiquidity, Attributes: map[string]string{
		"channel":   channel,
		"fromVault": fromVault,
		"toAccount": addrAttr(toAccount),
		"units":     bigAttr(units),
		"sharesOut": bigAttr(sharesOut),
	}}
}

func newEscrowAckEvent(escrowID [32]byte, kind EscrowKind, units *big.Int) events.Event {
	return events.Event{Type: EventTypeEscrowAck, Attributes: map[string]string{
		"escrowId": idAttr(escrowID),
		"kind":     escrowKindAttr(kind),
		"units":    bigAttr(units),
	}}
}

func newEscrowTimeoutEvent(escrowID [32]byte, kind EscrowKind, units, refunded *big.Int) events.Event {
	return events.Event{Type: EventTypeEscrowTimeout, Attributes: map[string]string{
		"escrowId": idAttr(escrowID),
		"kind":     escrowKindAttr(kind),
		"units":    bigAttr(units),
		"refunded": bigAttr(refunded),
	}}
}

func newAmplificationScheduledEvent(current, target *big.Int, deadline int64) events.Event {
	return events.Event{Type: EventTypeAmplificationScheduled, Attributes: map[string]string{
		"currentOneMinusAmp": bigAttr(current),
		"targetOneMinusAmp":  bigAttr(target),
		"deadline":           strconv.FormatInt(deadline, 10),
	}}
}

func escrowKindAttr(kind EscrowKind) string {
	if kind == EscrowLiquidity {
		return "liquidity"
	}
	return "asset"
}
