package vault

import (
	"errors"
	"math/big"
	"testing"
)

const (
	testChannel = "chan-0"
	remoteVault = "remote"
)

func connect(env *testEnv) {
	env.vault.SetConnection(testChannel, remoteVault, true)
}

func sendParams(amount *big.Int) SendAssetParams {
	return SendAssetParams{
		Channel:      testChannel,
		ToVault:      remoteVault,
		ToAccount:    trader,
		ToAssetIndex: 1,
		FromAsset:    "A",
		Amount:       amount,
		Fallback:     trader,
	}
}

func TestSendAssetEscrowsNetInput(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	amount := bigPow10(21)

	escrowID, units, err := env.vault.SendAsset(trader, sendParams(amount))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if units.Sign() <= 0 {
		t.Fatalf("units = %s, want positive", units)
	}
	if env.escrows.Pending() != 1 {
		t.Fatalf("pending escrows = %d, want 1", env.escrows.Pending())
	}
	if got := env.vault.UnitTracker(); got.Cmp(units) != 0 {
		t.Fatalf("unit tracker = %s, want %s", got, units)
	}
	escrowed, err := env.vault.EscrowedBalance("A")
	if err != nil {
		t.Fatalf("escrowed balance: %v", err)
	}
	if escrowed.Cmp(amount) != 0 {
		t.Fatalf("escrowed = %s, want %s", escrowed, amount)
	}
	if len(env.transport.assets) != 1 {
		t.Fatalf("transport messages = %d, want 1", len(env.transport.assets))
	}
	msg := env.transport.assets[0]
	if msg.Units.Cmp(units) != 0 || msg.ToVault != remoteVault {
		t.Fatalf("message fields do not match: units %s, toVault %s", msg.Units, msg.ToVault)
	}
	if got := AssetEscrowID(msg.ToAccount, msg.Units, msg.FromAmount, msg.FromAsset, msg.Sequence); got != escrowID {
		t.Fatalf("escrow id not reconstructible from message fields")
	}
}

type erroringTransport struct{}

func (erroringTransport) SendAsset(AssetMessage) error {
	return errors.New("transport down")
}

func (erroringTransport) SendLiquidity(LiquidityMessage) error {
	return errors.New("transport down")
}

func TestSendAssetPullFailureLeavesNoEscrow(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	vaultBefore, _ := env.tokens.Balance("A")

	// More than the trader holds: the pull fails before any record exists.
	if _, _, err := env.vault.SendAsset(trader, sendParams(bigPow10(25))); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if env.escrows.Pending() != 0 {
		t.Fatalf("pending escrows = %d, want 0 after failed pull", env.escrows.Pending())
	}
	if got := env.vault.UnitTracker(); got.Sign() != 0 {
		t.Fatalf("unit tracker = %s, want 0", got)
	}
	escrowed, _ := env.vault.EscrowedBalance("A")
	if escrowed.Sign() != 0 {
		t.Fatalf("escrowed = %s, want 0", escrowed)
	}
	if got, _ := env.tokens.Balance("A"); got.Cmp(vaultBefore) != 0 {
		t.Fatalf("vault balance changed on failed send: %s -> %s", vaultBefore, got)
	}
}

func TestSendAssetTransportFailureUnwinds(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	env.vault.mu.Lock()
	env.vault.transport = erroringTransport{}
	env.vault.mu.Unlock()
	traderBefore := env.tokens.AccountBalance("A", trader)
	vaultBefore, _ := env.tokens.Balance("A")

	if _, _, err := env.vault.SendAsset(trader, sendParams(bigPow10(21))); err == nil {
		t.Fatalf("expected transport failure to surface")
	}
	if env.escrows.Pending() != 0 {
		t.Fatalf("pending escrows = %d, want 0 after transport failure", env.escrows.Pending())
	}
	if got := env.tokens.AccountBalance("A", trader); got.Cmp(traderBefore) != 0 {
		t.Fatalf("trader balance = %s, want %s returned", got, traderBefore)
	}
	if got, _ := env.tokens.Balance("A"); got.Cmp(vaultBefore) != 0 {
		t.Fatalf("vault kept pulled tokens after transport failure")
	}
	if got := env.vault.UnitTracker(); got.Sign() != 0 {
		t.Fatalf("unit tracker = %s, want 0", got)
	}
	escrowed, _ := env.vault.EscrowedBalance("A")
	if escrowed.Sign() != 0 {
		t.Fatalf("escrowed = %s, want 0", escrowed)
	}
}

func TestSendLiquidityTransportFailureUnwinds(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	env.vault.mu.Lock()
	env.vault.transport = erroringTransport{}
	env.vault.mu.Unlock()
	supplyBefore := env.shares.TotalSupply()

	_, _, err := env.vault.SendLiquidity(founder, SendLiquidityParams{
		Channel:   testChannel,
		ToVault:   remoteVault,
		ToAccount: trader,
		Shares:    bigPow10(22),
		Fallback:  founder,
	})
	if err == nil {
		t.Fatalf("expected transport failure to surface")
	}
	if env.escrows.Pending() != 0 {
		t.Fatalf("pending escrows = %d, want 0 after transport failure", env.escrows.Pending())
	}
	if got := env.shares.BalanceOf(founder); got.Cmp(supplyBefore) != 0 {
		t.Fatalf("founder shares = %s, want %s restored", got, supplyBefore)
	}
	if got := env.shares.TotalSupply(); got.Cmp(supplyBefore) != 0 {
		t.Fatalf("supply = %s, want %s restored", got, supplyBefore)
	}
	if got := env.vault.EscrowedShares(); got.Sign() != 0 {
		t.Fatalf("escrowed shares = %s, want 0", got)
	}
	if got := env.vault.UnitTracker(); got.Sign() != 0 {
		t.Fatalf("unit tracker = %s, want 0", got)
	}
}

func TestSendAssetRequiresConnection(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	if _, _, err := env.vault.SendAsset(trader, sendParams(bigPow10(21))); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestSendAssetSequenceDistinguishesEscrows(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	amount := bigPow10(21)

	first, _, err := env.vault.SendAsset(trader, sendParams(amount))
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	second, _, err := env.vault.SendAsset(trader, sendParams(amount))
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if first == second {
		t.Fatalf("identical sends produced the same escrow id")
	}
	if env.escrows.Pending() != 2 {
		t.Fatalf("pending escrows = %d, want 2", env.escrows.Pending())
	}
}

func TestEscrowSuccessExactlyOnce(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	amount := bigPow10(21)
	escrowID, units, err := env.vault.SendAsset(trader, sendParams(amount))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	maxBefore, _ := env.vault.Capacity()

	if err := env.vault.OnSendAssetSuccess(escrowID); err != nil {
		t.Fatalf("success: %v", err)
	}
	if err := env.vault.OnSendAssetSuccess(escrowID); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("duplicate completion err = %v, want ErrEscrowNotFound", err)
	}

	// Units stay tracked on success; the capacity ceiling grows once by the
	// escrowed weighted value.
	if got := env.vault.UnitTracker(); got.Cmp(units) != 0 {
		t.Fatalf("unit tracker = %s, want %s", got, units)
	}
	maxAfter, _ := env.vault.Capacity()
	wantGrowth := new(big.Int).Set(amount) // weight 1
	if got := new(big.Int).Sub(maxAfter, maxBefore); got.Cmp(wantGrowth) != 0 {
		t.Fatalf("capacity growth = %s, want %s", got, wantGrowth)
	}
	escrowed, _ := env.vault.EscrowedBalance("A")
	if escrowed.Sign() != 0 {
		t.Fatalf("escrowed after success = %s, want 0", escrowed)
	}
}

func TestEscrowTimeoutRefunds(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	amount := bigPow10(21)
	before := env.tokens.AccountBalance("A", trader)

	escrowID, _, err := env.vault.SendAsset(trader, sendParams(amount))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := env.vault.OnSendAssetFailure(escrowID); err != nil {
		t.Fatalf("failure: %v", err)
	}
	if got := env.tokens.AccountBalance("A", trader); got.Cmp(before) != 0 {
		t.Fatalf("fallback balance = %s, want %s after refund", got, before)
	}
	if got := env.vault.UnitTracker(); got.Sign() != 0 {
		t.Fatalf("unit tracker = %s, want 0 after timeout", got)
	}
	escrowed, _ := env.vault.EscrowedBalance("A")
	if escrowed.Sign() != 0 {
		t.Fatalf("escrowed after timeout = %s, want 0", escrowed)
	}
}

func TestReceiveAssetPaysOut(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	units := bigPow10(26)

	out, err := env.vault.ReceiveAsset(testChannel, remoteVault, 0, trader, units, nil, nil, nil)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if out.Sign() <= 0 {
		t.Fatalf("output = %s, want positive", out)
	}
	wantTracker := new(big.Int).Neg(units)
	if got := env.vault.UnitTracker(); got.Cmp(wantTracker) != 0 {
		t.Fatalf("unit tracker = %s, want %s", got, wantTracker)
	}
	_, used := env.vault.Capacity()
	if used.Cmp(out) != 0 { // weight 1: weighted output == output
		t.Fatalf("used capacity = %s, want %s", used, out)
	}
}

func TestReceiveAssetRequiresConnection(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	if _, err := env.vault.ReceiveAsset(testChannel, remoteVault, 0, trader, bigPow10(20), nil, nil, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestReceiveAssetSecurityLimitRejectsWithoutStateChange(t *testing.T) {
	// Seed the vault small so the capacity ceiling is tiny, then grow the
	// balances afterwards: pricing succeeds while the limit rejects.
	cfg := Config{
		Assets: []AssetConfig{
			{ID: "A", Weight: "1"},
			{ID: "B", Weight: "1"},
			{ID: "C", Weight: "1"},
		},
		Amplification: "0.5",
	}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	tokens := NewMemoryTokenLedger()
	shares := NewMemoryShareLedger()
	escrows := NewMemoryEscrowLedger()
	for _, asset := range []string{"A", "B", "C"} {
		tokens.CreditVault(asset, bigPow10(20))
	}
	if err := shares.Mint(founder, bigPow10(24)); err != nil {
		t.Fatalf("genesis mint: %v", err)
	}
	v, err := New(params, tokens, shares, escrows, &captureTransport{})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	v.SetConnection(testChannel, remoteVault, true)
	for _, asset := range []string{"A", "B", "C"} {
		tokens.CreditVault(asset, bigPow10(24))
	}

	trackerBefore := v.UnitTracker()
	maxBefore, usedBefore := v.Capacity()
	balBefore := tokens.AccountBalance("A", trader)

	units := bigPow10(29)
	_, err = v.ReceiveAsset(testChannel, remoteVault, 0, trader, units, nil, nil, nil)
	if !errors.Is(err, ErrExceedsSecurityLimit) {
		t.Fatalf("err = %v, want ErrExceedsSecurityLimit", err)
	}

	if got := v.UnitTracker(); got.Cmp(trackerBefore) != 0 {
		t.Fatalf("unit tracker changed on rejected receive")
	}
	maxAfter, usedAfter := v.Capacity()
	if maxAfter.Cmp(maxBefore) != 0 || usedAfter.Cmp(usedBefore) != 0 {
		t.Fatalf("capacity changed on rejected receive")
	}
	if got := tokens.AccountBalance("A", trader); got.Cmp(balBefore) != 0 {
		t.Fatalf("tokens paid out on rejected receive")
	}
}

func TestReceiveAssetBelowMinimum(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	if _, err := env.vault.ReceiveAsset(testChannel, remoteVault, 0, trader, bigPow10(26), maxUint256, nil, nil); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("err = %v, want ErrBelowMinimum", err)
	}
}

type failingReceiver struct{}

func (failingReceiver) OnReceive(*big.Int, []byte) error {
	return errors.New("callback rejected")
}

func TestReceiveAssetCallbackFailureAborts(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	trackerBefore := env.vault.UnitTracker()
	maxBefore, usedBefore := env.vault.Capacity()

	_, err := env.vault.ReceiveAsset(testChannel, remoteVault, 0, trader, bigPow10(26), nil, failingReceiver{}, []byte("x"))
	if err == nil {
		t.Fatalf("expected callback failure to abort the receive")
	}
	if got := env.vault.UnitTracker(); got.Cmp(trackerBefore) != 0 {
		t.Fatalf("unit tracker changed on aborted receive")
	}
	maxAfter, usedAfter := env.vault.Capacity()
	if maxAfter.Cmp(maxBefore) != 0 || usedAfter.Cmp(usedBefore) != 0 {
		t.Fatalf("capacity changed on aborted receive: max %s -> %s, used %s -> %s",
			maxBefore, maxAfter, usedBefore, usedAfter)
	}
}

type recordingReceiver struct {
	calls int
}

func (r *recordingReceiver) OnReceive(*big.Int, []byte) error {
	r.calls++
	return nil
}

func TestReceiveAssetCapRejectionSkipsCallback(t *testing.T) {
	// Seed small, grow afterwards: pricing succeeds while the limit rejects.
	cfg := Config{
		Assets: []AssetConfig{
			{ID: "A", Weight: "1"},
			{ID: "B", Weight: "1"},
			{ID: "C", Weight: "1"},
		},
		Amplification: "0.5",
	}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	tokens := NewMemoryTokenLedger()
	for _, asset := range []string{"A", "B", "C"} {
		tokens.CreditVault(asset, bigPow10(20))
	}
	v, err := New(params, tokens, NewMemoryShareLedger(), NewMemoryEscrowLedger(), &captureTransport{})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	v.SetConnection(testChannel, remoteVault, true)
	for _, asset := range []string{"A", "B", "C"} {
		tokens.CreditVault(asset, bigPow10(24))
	}

	rec := &recordingReceiver{}
	_, err = v.ReceiveAsset(testChannel, remoteVault, 0, trader, bigPow10(29), nil, rec, nil)
	if !errors.Is(err, ErrExceedsSecurityLimit) {
		t.Fatalf("err = %v, want ErrExceedsSecurityLimit", err)
	}
	if rec.calls != 0 {
		t.Fatalf("callback invoked %d times on a cap-rejected receive, want 0", rec.calls)
	}
}

func TestSendLiquidityEscrowsShares(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	move := bigPow10(22)

	escrowID, units, err := env.vault.SendLiquidity(founder, SendLiquidityParams{
		Channel:   testChannel,
		ToVault:   remoteVault,
		ToAccount: trader,
		Shares:    move,
		Fallback:  founder,
	})
	if err != nil {
		t.Fatalf("send liquidity: %v", err)
	}
	if units.Sign() <= 0 {
		t.Fatalf("units = %s, want positive", units)
	}
	if got := env.vault.EscrowedShares(); got.Cmp(move) != 0 {
		t.Fatalf("escrowed shares = %s, want %s", got, move)
	}
	wantSupply := new(big.Int).Sub(bigPow10(24), move)
	if got := env.shares.TotalSupply(); got.Cmp(wantSupply) != 0 {
		t.Fatalf("supply = %s, want %s", got, wantSupply)
	}

	// Timeout re-mints the burned shares to the fallback account.
	if err := env.vault.OnSendLiquidityFailure(escrowID); err != nil {
		t.Fatalf("failure: %v", err)
	}
	if got := env.shares.BalanceOf(founder); got.Cmp(bigPow10(24)) != 0 {
		t.Fatalf("founder shares = %s, want full restore", got)
	}
	if got := env.vault.UnitTracker(); got.Sign() != 0 {
		t.Fatalf("unit tracker = %s, want 0", got)
	}
	if got := env.vault.EscrowedShares(); got.Sign() != 0 {
		t.Fatalf("escrowed shares = %s, want 0", got)
	}
}

func TestReceiveLiquidityMintsShares(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	units := bigPow10(27)

	shares, err := env.vault.ReceiveLiquidity(testChannel, remoteVault, trader, units, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("receive liquidity: %v", err)
	}
	if shares.Sign() <= 0 {
		t.Fatalf("shares = %s, want positive", shares)
	}
	if got := env.shares.BalanceOf(trader); got.Cmp(shares) != 0 {
		t.Fatalf("trader shares = %s, want %s", got, shares)
	}
	wantTracker := new(big.Int).Neg(units)
	if got := env.vault.UnitTracker(); got.Cmp(wantTracker) != 0 {
		t.Fatalf("unit tracker = %s, want %s", got, wantTracker)
	}
}

func TestReceiveLiquidityRejectsBeyondCapacity(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	// The reference capacity it = N * walpha_0^(1-amp) is about 3e30 for this
	// setup; units at that scale have no real share solution.
	units := bigPow10(31)
	if _, err := env.vault.ReceiveLiquidity(testChannel, remoteVault, trader, units, nil, nil, nil, nil); !errors.Is(err, ErrExceedsSecurityLimit) {
		t.Fatalf("err = %v, want ErrExceedsSecurityLimit", err)
	}
}

func TestLiquidityRoundTripAcrossVaults(t *testing.T) {
	src := newTestEnv(t, "0.5", "0")
	dst := newTestEnv(t, "0.5", "0")
	src.vault.SetConnection(testChannel, "dst", true)
	dst.vault.SetConnection(testChannel, "src", true)
	move := bigPow10(22)

	escrowID, units, err := src.vault.SendLiquidity(founder, SendLiquidityParams{
		Channel:   testChannel,
		ToVault:   "dst",
		ToAccount: trader,
		Shares:    move,
		Fallback:  founder,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	minted, err := dst.vault.ReceiveLiquidity(testChannel, "src", trader, units, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := src.vault.OnSendLiquiditySuccess(escrowID); err != nil {
		t.Fatalf("success: %v", err)
	}

	// Identical vaults: the destination mints pt*ts/(ts-pt) shares for a
	// pt-share burn, the share-count image of the same vault fraction.
	supply := bigPow10(24)
	want := new(big.Int).Mul(move, supply)
	want.Quo(want, new(big.Int).Sub(supply, move))
	within(t, minted, want, 1000, "cross-vault share transfer")
	sum := new(big.Int).Add(src.vault.UnitTracker(), dst.vault.UnitTracker())
	if sum.Sign() != 0 {
		t.Fatalf("unit trackers do not cancel: sum = %s", sum)
	}
}

func TestUnitsOverflowRejected(t *testing.T) {
	env := newTestEnv(t, "0.5", "0")
	connect(env)
	// Force the tracker near the signed ceiling, then any positive send must
	// fail before side effects.
	env.vault.mu.Lock()
	env.vault.unitTracker = new(big.Int).Sub(maxInt256, big.NewInt(1))
	env.vault.mu.Unlock()

	if _, _, err := env.vault.SendAsset(trader, sendParams(bigPow10(21))); !errors.Is(err, ErrUnitsOverflow) {
		t.Fatalf("err = %v, want ErrUnitsOverflow", err)
	}
	if env.escrows.Pending() != 0 {
		t.Fatalf("escrow created despite overflow rejection")
	}
}
