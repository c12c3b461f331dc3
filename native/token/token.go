package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/native/pool"
)

var (
	ErrZeroAddress         = errors.New("token: zero address")
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrDuplicateToken      = errors.New("token: token already exists")
	ErrUnknownToken        = errors.New("token: token not found")
)

// Token is an in-process fungible ledger. Transfers run in the operator
// model: the pool engine moves balances directly, no allowance layer.
type Token struct {
	mu       sync.RWMutex
	address  common.Address
	symbol   string
	decimals uint8
	balances map[common.Address]*big.Int
	supply   *big.Int
}

// NewToken constructs an empty ledger for one asset.
func NewToken(address common.Address, symbol string, decimals uint8) (*Token, error) {
	if address == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	return &Token{
		address:  address,
		symbol:   symbol,
		decimals: decimals,
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}, nil
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

// BalanceOf returns a copy of the holder's balance.
func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	balance, ok := t.balances[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}

// TotalSupply returns the outstanding supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.supply)
}

// Mint credits newly issued units to the recipient.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(to, amount)
	t.supply.Add(t.supply, amount)
	return nil
}

// Burn retires units from the holder.
func (t *Token) Burn(from common.Address, amount *big.Int) error {
	if from == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.supply.Sub(t.supply, amount)
	return nil
}

// Transfer moves units between holders.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

func (t *Token) credit(addr common.Address, amount *big.Int) {
	balance, ok := t.balances[addr]
	if !ok {
		balance = new(big.Int)
		t.balances[addr] = balance
	}
	balance.Add(balance, amount)
}

func (t *Token) debit(addr common.Address, amount *big.Int) error {
	balance, ok := t.balances[addr]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s needs %s", ErrInsufficientBalance, addr.Hex(), amount.String())
	}
	balance.Sub(balance, amount)
	return nil
}

// Bank holds the token ledgers one daemon instance runs against and resolves
// persisted collateral addresses back to live handles on restore.
type Bank struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Token
}

func NewBank() *Bank {
	return &Bank{tokens: make(map[common.Address]*Token)}
}

// Create registers a new token ledger in the bank.
func (b *Bank) Create(address common.Address, symbol string, decimals uint8) (*Token, error) {
	tok, err := NewToken(address, symbol, decimals)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tokens[address]; exists {
		return nil, ErrDuplicateToken
	}
	b.tokens[address] = tok
	return tok, nil
}

// Token looks a ledger up by address.
func (b *Bank) Token(address common.Address) (*Token, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tok, ok := b.tokens[address]
	return tok, ok
}

// ResolveCollateral implements pool.TokenResolver.
func (b *Bank) ResolveCollateral(address common.Address) (pool.CollateralToken, bool) {
	tok, ok := b.Token(address)
	if !ok {
		return nil, false
	}
	return tok, true
}
