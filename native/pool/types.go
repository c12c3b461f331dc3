package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// USD figures carry six implied decimals; fees are parts-per-million.
const (
	PriceScale uint64 = 1_000_000
	ParPrice   uint64 = PriceScale
	FeeScale   uint64 = 1_000_000
)

var ppmDivisor = new(big.Int).SetUint64(FeeScale)

// CollateralInformation is the registry view of a listed collateral token.
// Entries are created at registration, mutated by administrator operations,
// and never destroyed — only disabled.
type CollateralInformation struct {
	Index           uint64
	Token           common.Address
	Symbol          string
	MissingDecimals uint8
	Price           uint64
	PoolCeiling     *big.Int
	Enabled         bool
	MintingFee      uint64
	RedemptionFee   uint64
	MintPaused      bool
	RedeemPaused    bool
	BorrowPaused    bool
}

func (c CollateralInformation) clone() CollateralInformation {
	out := c
	if c.PoolCeiling != nil {
		out.PoolCeiling = new(big.Int).Set(c.PoolCeiling)
	}
	return out
}

// PendingRedemption is the booking produced by a redeem call. Repeated
// redemptions before collection accumulate into the same entry and reset
// Block, restarting the delay for the combined amount.
type PendingRedemption struct {
	Collateral *big.Int
	Block      uint64
}

// ToggleSelector picks one of the three independent pause gates.
type ToggleSelector uint8

const (
	ToggleMint ToggleSelector = iota
	ToggleRedeem
	ToggleBorrow
)

// StableToken is the pegged asset the pool issues and retires.
type StableToken interface {
	Mint(to common.Address, amount *big.Int) error
	Burn(from common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
}

// CollateralToken is a listed reserve asset. Balances are in the token's
// native smallest units.
type CollateralToken interface {
	Address() common.Address
	Symbol() string
	Decimals() uint8
	BalanceOf(addr common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
}

// PriceOracle supplies the stable asset's USD price at six implied decimals.
type PriceOracle interface {
	DollarPriceUSD() (uint64, error)
}

// AmoMinter is the capability surface a borrower module must expose. The
// engine probes both query methods once at registration and rejects
// candidates that cannot answer.
type AmoMinter interface {
	Address() common.Address
	CollateralDollarBalance() (*big.Int, error)
	CollateralIndex() (uint64, error)
}

// TokenResolver maps a collateral token address back to its live handle when
// the registry is restored from storage.
type TokenResolver interface {
	ResolveCollateral(addr common.Address) (CollateralToken, bool)
}

type collateralEntry struct {
	info     CollateralInformation
	token    CollateralToken
	borrowed *big.Int
}
