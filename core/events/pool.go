package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const (
	TypePoolCollateralAdded    = "pool.collateral.added"
	TypePoolCollateralToggled  = "pool.collateral.toggled"
	TypePoolFeesSet            = "pool.fees.set"
	TypePoolCollateralPriceSet = "pool.collateral.price_set"
	TypePoolCeilingSet         = "pool.ceiling.set"
	TypePoolMRBToggled         = "pool.mrb.toggled"
	TypePoolThresholdsSet      = "pool.thresholds.set"
	TypePoolDelaySet           = "pool.delay.set"
	TypePoolMinterAdded        = "pool.amo_minter.added"
	TypePoolMinterRemoved      = "pool.amo_minter.removed"
	TypePoolDollarMinted       = "pool.dollar.minted"
	TypePoolDollarRedeemed     = "pool.dollar.redeemed"
	TypePoolRedemptionPaid     = "pool.redemption.collected"
	TypePoolCollateralBorrowed = "pool.collateral.borrowed"
)

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

type CollateralAdded struct {
	Index   uint64
	Token   common.Address
	Symbol  string
	Ceiling *big.Int
}

func (CollateralAdded) EventType() string { return TypePoolCollateralAdded }

func (e CollateralAdded) Attributes() map[string]string {
	return map[string]string{
		"index":   u64(e.Index),
		"token":   e.Token.Hex(),
		"symbol":  e.Symbol,
		"ceiling": bigString(e.Ceiling),
	}
}

type CollateralToggled struct {
	Index   uint64
	Token   common.Address
	Enabled bool
}

func (CollateralToggled) EventType() string { return TypePoolCollateralToggled }

func (e CollateralToggled) Attributes() map[string]string {
	return map[string]string{
		"index":   u64(e.Index),
		"token":   e.Token.Hex(),
		"enabled": strconv.FormatBool(e.Enabled),
	}
}

type FeesSet struct {
	Index         uint64
	MintingFee    uint64
	RedemptionFee uint64
}

func (FeesSet) EventType() string { return TypePoolFeesSet }

func (e FeesSet) Attributes() map[string]string {
	return map[string]string{
		"index":         u64(e.Index),
		"mintingFee":    u64(e.MintingFee),
		"redemptionFee": u64(e.RedemptionFee),
	}
}

type CollateralPriceSet struct {
	Index uint64
	Price uint64
}

func (CollateralPriceSet) EventType() string { return TypePoolCollateralPriceSet }

func (e CollateralPriceSet) Attributes() map[string]string {
	return map[string]string{
		"index": u64(e.Index),
		"price": u64(e.Price),
	}
}

type PoolCeilingSet struct {
	Index   uint64
	Ceiling *big.Int
}

func (PoolCeilingSet) EventType() string { return TypePoolCeilingSet }

func (e PoolCeilingSet) Attributes() map[string]string {
	return map[string]string{
		"index":   u64(e.Index),
		"ceiling": bigString(e.Ceiling),
	}
}

type MRBToggled struct {
	Index  uint64
	Gate   string
	Paused bool
}

func (MRBToggled) EventType() string { return TypePoolMRBToggled }

func (e MRBToggled) Attributes() map[string]string {
	return map[string]string{
		"index":  u64(e.Index),
		"gate":   e.Gate,
		"paused": strconv.FormatBool(e.Paused),
	}
}

type PriceThresholdsSet struct {
	MintThreshold   uint64
	RedeemThreshold uint64
}

func (PriceThresholdsSet) EventType() string { return TypePoolThresholdsSet }

func (e PriceThresholdsSet) Attributes() map[string]string {
	return map[string]string{
		"mintThreshold":   u64(e.MintThreshold),
		"redeemThreshold": u64(e.RedeemThreshold),
	}
}

type RedemptionDelaySet struct {
	Blocks uint64
}

func (RedemptionDelaySet) EventType() string { return TypePoolDelaySet }

func (e RedemptionDelaySet) Attributes() map[string]string {
	return map[string]string{"blocks": u64(e.Blocks)}
}

type AmoMinterAdded struct {
	Minter common.Address
}

func (AmoMinterAdded) EventType() string { return TypePoolMinterAdded }

func (e AmoMinterAdded) Attributes() map[string]string {
	return map[string]string{"minter": e.Minter.Hex()}
}

type AmoMinterRemoved struct {
	Minter common.Address
}

func (AmoMinterRemoved) EventType() string { return TypePoolMinterRemoved }

func (e AmoMinterRemoved) Attributes() map[string]string {
	return map[string]string{"minter": e.Minter.Hex()}
}

type DollarMinted struct {
	Account    common.Address
	Index      uint64
	Token      common.Address
	Minted     *big.Int
	Collateral *big.Int
	Block      uint64
}

func (DollarMinted) EventType() string { return TypePoolDollarMinted }

func (e DollarMinted) Attributes() map[string]string {
	return map[string]string{
		"account":    e.Account.Hex(),
		"index":      u64(e.Index),
		"token":      e.Token.Hex(),
		"minted":     bigString(e.Minted),
		"collateral": bigString(e.Collateral),
		"block":      u64(e.Block),
	}
}

type DollarRedeemed struct {
	Account  common.Address
	Index    uint64
	Token    common.Address
	Burned   *big.Int
	Booked   *big.Int
	Eligible uint64
	Block    uint64
}

func (DollarRedeemed) EventType() string { return TypePoolDollarRedeemed }

func (e DollarRedeemed) Attributes() map[string]string {
	return map[string]string{
		"account":  e.Account.Hex(),
		"index":    u64(e.Index),
		"token":    e.Token.Hex(),
		"burned":   bigString(e.Burned),
		"booked":   bigString(e.Booked),
		"eligible": u64(e.Eligible),
		"block":    u64(e.Block),
	}
}

type RedemptionCollected struct {
	Account common.Address
	Index   uint64
	Token   common.Address
	Paid    *big.Int
	Block   uint64
}

func (RedemptionCollected) EventType() string { return TypePoolRedemptionPaid }

func (e RedemptionCollected) Attributes() map[string]string {
	return map[string]string{
		"account": e.Account.Hex(),
		"index":   u64(e.Index),
		"token":   e.Token.Hex(),
		"paid":    bigString(e.Paid),
		"block":   u64(e.Block),
	}
}

type CollateralBorrowed struct {
	Minter common.Address
	Index  uint64
	Token  common.Address
	Amount *big.Int
	Block  uint64
}

func (CollateralBorrowed) EventType() string { return TypePoolCollateralBorrowed }

func (e CollateralBorrowed) Attributes() map[string]string {
	return map[string]string{
		"minter": e.Minter.Hex(),
		"index":  u64(e.Index),
		"token":  e.Token.Hex(),
		"amount": bigString(e.Amount),
		"block":  u64(e.Block),
	}
}
