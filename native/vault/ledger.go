package vault

import (
	"errors"
	"math/big"
	"sync"
)

// ErrInsufficientBalance indicates a transfer exceeding the payer's holdings.
var ErrInsufficientBalance = errors.New("vault: insufficient balance")

// MemoryTokenLedger is an in-process TokenLedger keyed by asset identifier.
// The vault's own holdings are tracked separately from account balances.
type MemoryTokenLedger struct {
	mu       sync.Mutex
	vault    map[string]*big.Int
	accounts map[string]map[[20]byte]*big.Int
}

// NewMemoryTokenLedger returns an empty ledger.
func NewMemoryTokenLedger() *MemoryTokenLedger {
	return &MemoryTokenLedger{
		vault:    make(map[string]*big.Int),
		accounts: make(map[string]map[[20]byte]*big.Int),
	}
}

// CreditVault seeds the vault's holdings of an asset.
func (l *MemoryTokenLedger) CreditVault(asset string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vaultBalance(asset).Add(l.vaultBalance(asset), amount)
}

// CreditAccount seeds an account's holdings of an asset.
func (l *MemoryTokenLedger) CreditAccount(asset string, account [20]byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accountBalance(asset, account).Add(l.accountBalance(asset, account), amount)
}

// Balance implements TokenLedger.
func (l *MemoryTokenLedger) Balance(asset string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.vaultBalance(asset)), nil
}

// AccountBalance reports an account's holdings of an asset.
func (l *MemoryTokenLedger) AccountBalance(asset string, account [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.accountBalance(asset, account))
}

// Transfer implements TokenLedger.
func (l *MemoryTokenLedger) Transfer(asset string, to [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return ErrAmountNegative
	}
	from := l.vaultBalance(asset)
	if from.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	from.Sub(from, amount)
	l.accountBalance(asset, to).Add(l.accountBalance(asset, to), amount)
	return nil
}

// TransferFrom implements TokenLedger.
func (l *MemoryTokenLedger) TransferFrom(asset string, from [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return ErrAmountNegative
	}
	bal := l.accountBalance(asset, from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	l.vaultBalance(asset).Add(l.vaultBalance(asset), amount)
	return nil
}

func (l *MemoryTokenLedger) vaultBalance(asset string) *big.Int {
	bal, ok := l.vault[asset]
	if !ok {
		bal = big.NewInt(0)
		l.vault[asset] = bal
	}
	return bal
}

func (l *MemoryTokenLedger) accountBalance(asset string, account [20]byte) *big.Int {
	holders, ok := l.accounts[asset]
	if !ok {
		holders = make(map[[20]byte]*big.Int)
		l.accounts[asset] = holders
	}
	bal, ok := holders[account]
	if !ok {
		bal = big.NewInt(0)
		holders[account] = bal
	}
	return bal
}

// MemoryShareLedger is an in-process ShareLedger.
type MemoryShareLedger struct {
	mu       sync.Mutex
	balances map[[20]byte]*big.Int
	supply   *big.Int
}

// NewMemoryShareLedger returns a ledger with zero supply.
func NewMemoryShareLedger() *MemoryShareLedger {
	return &MemoryShareLedger{
		balances: make(map[[20]byte]*big.Int),
		supply:   big.NewInt(0),
	}
}

// Mint implements ShareLedger.
func (l *MemoryShareLedger) Mint(to [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return ErrAmountNegative
	}
	l.balance(to).Add(l.balance(to), amount)
	l.supply.Add(l.supply, amount)
	return nil
}

// Burn implements ShareLedger.
func (l *MemoryShareLedger) Burn(from [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return ErrAmountNegative
	}
	bal := l.balance(from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	l.supply.Sub(l.supply, amount)
	return nil
}

// TotalSupply implements ShareLedger.
func (l *MemoryShareLedger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.supply)
}

// BalanceOf reports an account's share balance.
func (l *MemoryShareLedger) BalanceOf(account [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(account))
}

func (l *MemoryShareLedger) balance(account [20]byte) *big.Int {
	bal, ok := l.balances[account]
	if !ok {
		bal = big.NewInt(0)
		l.balances[account] = bal
	}
	return bal
}

// MemoryEscrowLedger is an in-process EscrowLedger. Records are stored by
// identifier and removed by exactly one completion: a second callback for the
// same identifier fails with ErrEscrowNotFound.
type MemoryEscrowLedger struct {
	mu      sync.Mutex
	records map[[32]byte]*EscrowRecord
}

// NewMemoryEscrowLedger returns an empty ledger.
func NewMemoryEscrowLedger() *MemoryEscrowLedger {
	return &MemoryEscrowLedger{records: make(map[[32]byte]*EscrowRecord)}
}

// Create implements EscrowLedger.
func (l *MemoryEscrowLedger) Create(record *EscrowRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[record.ID]; exists {
		return ErrEscrowExists
	}
	l.records[record.ID] = record.Clone()
	return nil
}

// Release implements EscrowLedger.
func (l *MemoryEscrowLedger) Release(id [32]byte) (*EscrowRecord, error) {
	return l.take(id)
}

// Refund implements EscrowLedger.
func (l *MemoryEscrowLedger) Refund(id [32]byte) (*EscrowRecord, error) {
	return l.take(id)
}

// Pending reports the number of unresolved escrows.
func (l *MemoryEscrowLedger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *MemoryEscrowLedger) take(id [32]byte) (*EscrowRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	delete(l.records, id)
	return record.Clone(), nil
}
