// Package bridge provides an in-process message relay connecting vault
// engines the way an external cross-chain transport would: sends are queued,
// delivered out of band, and resolved back to the sender through exactly one
// completion callback per escrow.
package bridge

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"crossvault/native/vault"
)

// ErrUnknownVault indicates a message addressed to an unregistered endpoint.
var ErrUnknownVault = errors.New("bridge: unknown destination vault")

// Loopback relays messages between registered vaults. Delivery is deferred:
// sends enqueue, Flush drains. This mirrors the asynchrony of a real bridge
// and keeps completion callbacks outside the sender's operation.
type Loopback struct {
	mu       sync.Mutex
	vaults   map[string]*vault.Vault
	queue    []*envelope
	logger   *slog.Logger
	failNext bool
}

type envelope struct {
	id        uuid.UUID
	from      string
	asset     *vault.AssetMessage
	liquidity *vault.LiquidityMessage
}

// NewLoopback returns an empty relay. A nil logger disables logging.
func NewLoopback(logger *slog.Logger) *Loopback {
	return &Loopback{vaults: make(map[string]*vault.Vault), logger: logger}
}

// Register attaches a vault under its endpoint name. Messages address vaults
// by this name, and it is the identity remote vaults must whitelist.
func (b *Loopback) Register(name string, v *vault.Vault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vaults[name] = v
}

// Endpoint returns the transport handle a vault sends through. The name binds
// outbound messages to their source so completions can be routed back.
func (b *Loopback) Endpoint(name string) vault.Transport {
	return endpoint{relay: b, name: name}
}

// Pending reports the number of undelivered messages.
func (b *Loopback) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// TimeoutNext marks the next queued message to time out instead of being
// delivered, exercising the refund path.
func (b *Loopback) TimeoutNext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = true
}

// Flush delivers every queued message, including messages enqueued by the
// deliveries themselves, and returns the number processed. Each delivery
// resolves the source escrow with exactly one completion callback.
func (b *Loopback) Flush() int {
	processed := 0
	for {
		env, timeout := b.dequeue()
		if env == nil {
			return processed
		}
		processed++
		if timeout {
			b.timeout(env)
			continue
		}
		b.deliver(env)
	}
}

func (b *Loopback) dequeue() (*envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, false
	}
	env := b.queue[0]
	b.queue = b.queue[1:]
	timeout := b.failNext
	b.failNext = false
	return env, timeout
}

func (b *Loopback) deliver(env *envelope) {
	source := b.vault(env.from)
	if env.asset != nil {
		msg := env.asset
		escrowID := vault.AssetEscrowID(msg.ToAccount, msg.Units, msg.FromAmount, msg.FromAsset, msg.Sequence)
		dest := b.vault(msg.ToVault)
		if dest == nil {
			b.logWarn("asset message undeliverable", env.id, "toVault", msg.ToVault)
			b.complete(source, escrowID, false, env)
			return
		}
		out, err := dest.ReceiveAsset(msg.Channel, env.from, msg.ToAssetIndex, msg.ToAccount, msg.Units, msg.MinOut, nil, msg.CallData)
		if err != nil {
			b.logWarn("asset receive rejected", env.id, "err", err)
			b.complete(source, escrowID, false, env)
			return
		}
		b.logInfo("asset message delivered", env.id, "amountOut", out.String())
		b.complete(source, escrowID, true, env)
		return
	}
	msg := env.liquidity
	escrowID := vault.LiquidityEscrowID(msg.ToAccount, msg.Units, msg.FromAmount, msg.Sequence)
	dest := b.vault(msg.ToVault)
	if dest == nil {
		b.logWarn("liquidity message undeliverable", env.id, "toVault", msg.ToVault)
		b.complete(source, escrowID, false, env)
		return
	}
	shares, err := dest.ReceiveLiquidity(msg.Channel, env.from, msg.ToAccount, msg.Units, msg.MinShares, msg.MinRefAsset, nil, msg.CallData)
	if err != nil {
		b.logWarn("liquidity receive rejected", env.id, "err", err)
		b.complete(source, escrowID, false, env)
		return
	}
	b.logInfo("liquidity message delivered", env.id, "sharesOut", shares.String())
	b.complete(source, escrowID, true, env)
}

func (b *Loopback) timeout(env *envelope) {
	source := b.vault(env.from)
	if env.asset != nil {
		msg := env.asset
		escrowID := vault.AssetEscrowID(msg.ToAccount, msg.Units, msg.FromAmount, msg.FromAsset, msg.Sequence)
		b.logWarn("asset message timed out", env.id)
		b.complete(source, escrowID, false, env)
		return
	}
	msg := env.liquidity
	escrowID := vault.LiquidityEscrowID(msg.ToAccount, msg.Units, msg.FromAmount, msg.Sequence)
	b.logWarn("liquidity message timed out", env.id)
	b.complete(source, escrowID, false, env)
}

func (b *Loopback) complete(source *vault.Vault, escrowID [32]byte, success bool, env *envelope) {
	if source == nil {
		b.logWarn("completion has no source vault", env.id, "from", env.from)
		return
	}
	var err error
	switch {
	case env.asset != nil && success:
		err = source.OnSendAssetSuccess(escrowID)
	case env.asset != nil:
		err = source.OnSendAssetFailure(escrowID)
	case success:
		err = source.OnSendLiquiditySuccess(escrowID)
	default:
		err = source.OnSendLiquidityFailure(escrowID)
	}
	if err != nil {
		b.logWarn("completion rejected", env.id, "err", err)
	}
}

func (b *Loopback) vault(name string) *vault.Vault {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vaults[name]
}

func (b *Loopback) logInfo(msg string, id uuid.UUID, args ...any) {
	if b.logger == nil {
		return
	}
	b.logger.Info(msg, append([]any{"msgId", id.String()}, args...)...)
}

func (b *Loopback) logWarn(msg string, id uuid.UUID, args ...any) {
	if b.logger == nil {
		return
	}
	b.logger.Warn(msg, append([]any{"msgId", id.String()}, args...)...)
}

type endpoint struct {
	relay *Loopback
	name  string
}

// SendAsset implements vault.Transport.
func (e endpoint) SendAsset(msg vault.AssetMessage) error {
	e.relay.enqueue(&envelope{id: uuid.New(), from: e.name, asset: &msg})
	return nil
}

// SendLiquidity implements vault.Transport.
func (e endpoint) SendLiquidity(msg vault.LiquidityMessage) error {
	e.relay.enqueue(&envelope{id: uuid.New(), from: e.name, liquidity: &msg})
	return nil
}

func (b *Loopback) enqueue(env *envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, env)
}
