package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/native/pool"
)

// Vault is a minimal amo minter: it holds borrowed collateral at its own
// address and reports the par-valued dollar worth back to the pool.
type Vault struct {
	address    common.Address
	collateral *Token
	index      uint64
}

// NewVault binds a vault to its collateral ledger and registry index.
func NewVault(address common.Address, collateral *Token, index uint64) (*Vault, error) {
	if address == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if collateral == nil {
		return nil, ErrUnknownToken
	}
	return &Vault{address: address, collateral: collateral, index: index}, nil
}

// Address implements pool.AmoMinter.
func (v *Vault) Address() common.Address { return v.address }

// CollateralIndex implements pool.AmoMinter.
func (v *Vault) CollateralIndex() (uint64, error) { return v.index, nil }

// CollateralDollarBalance reports the vault's holdings rescaled to the
// dollar's eighteen decimals at par.
func (v *Vault) CollateralDollarBalance() (*big.Int, error) {
	held := v.collateral.BalanceOf(v.address)
	missing := 18 - v.collateral.Decimals()
	if missing == 0 {
		return held, nil
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(missing)), nil)
	return held.Mul(held, scale), nil
}

var _ pool.AmoMinter = (*Vault)(nil)
