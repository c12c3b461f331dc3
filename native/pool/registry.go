package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/events"
)

// AddCollateral registers a new collateral token. Indices are dense,
// append-only, and never reused. New entries start disabled with zero fees,
// all gates open, and a par price; the administrator toggles them live.
func (e *Engine) AddCollateral(caller common.Address, token CollateralToken, poolCeiling *big.Int) (uint64, error) {
	if e == nil {
		return 0, ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return 0, err
	}
	if token == nil {
		return 0, ErrZeroAddress
	}
	addr := token.Address()
	if addr == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byToken[addr]; exists {
		return 0, ErrDuplicateCollateral
	}
	decimals := token.Decimals()
	if decimals > 18 {
		return 0, fmt.Errorf("pool: collateral %s has unsupported decimals %d", addr.Hex(), decimals)
	}
	index := uint64(len(e.collaterals))
	entry := &collateralEntry{
		info: CollateralInformation{
			Index:           index,
			Token:           addr,
			Symbol:          token.Symbol(),
			MissingDecimals: 18 - decimals,
			Price:           ParPrice,
			PoolCeiling:     cloneBig(poolCeiling),
		},
		token:    token,
		borrowed: new(big.Int),
	}
	e.collaterals = append(e.collaterals, entry)
	e.byToken[addr] = index
	if err := e.persistCollateral(entry); err != nil {
		e.collaterals = e.collaterals[:index]
		delete(e.byToken, addr)
		return 0, fmt.Errorf("pool: persist collateral: %w", err)
	}
	if e.store != nil {
		if err := e.store.putCollateralCount(index + 1); err != nil {
			e.collaterals = e.collaterals[:index]
			delete(e.byToken, addr)
			return 0, fmt.Errorf("pool: persist collateral count: %w", err)
		}
	}
	e.emitter.Emit(events.CollateralAdded{Index: index, Token: addr, Symbol: entry.info.Symbol, Ceiling: cloneBig(poolCeiling)})
	return index, nil
}

// ToggleCollateral flips the enabled gate for a collateral.
func (e *Engine) ToggleCollateral(caller common.Address, index uint64) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return err
	}
	entry.info.Enabled = !entry.info.Enabled
	if err := e.persistCollateral(entry); err != nil {
		entry.info.Enabled = !entry.info.Enabled
		return fmt.Errorf("pool: persist collateral: %w", err)
	}
	e.emitter.Emit(events.CollateralToggled{Index: index, Token: entry.info.Token, Enabled: entry.info.Enabled})
	return nil
}

// SetFees updates the mint and redemption fee rates, in parts-per-million.
// Rates are accepted unbounded; anything at or above FeeScale consumes the
// full amount.
func (e *Engine) SetFees(caller common.Address, index, mintingFee, redemptionFee uint64) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return err
	}
	prevMint, prevRedeem := entry.info.MintingFee, entry.info.RedemptionFee
	entry.info.MintingFee = mintingFee
	entry.info.RedemptionFee = redemptionFee
	if err := e.persistCollateral(entry); err != nil {
		entry.info.MintingFee, entry.info.RedemptionFee = prevMint, prevRedeem
		return fmt.Errorf("pool: persist collateral: %w", err)
	}
	e.emitter.Emit(events.FeesSet{Index: index, MintingFee: mintingFee, RedemptionFee: redemptionFee})
	return nil
}

// SetCollateralPrice overrides a collateral's USD price (six implied
// decimals; par is 1_000_000).
func (e *Engine) SetCollateralPrice(caller common.Address, index, price uint64) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return err
	}
	prev := entry.info.Price
	entry.info.Price = price
	if err := e.persistCollateral(entry); err != nil {
		entry.info.Price = prev
		return fmt.Errorf("pool: persist collateral: %w", err)
	}
	e.emitter.Emit(events.CollateralPriceSet{Index: index, Price: price})
	return nil
}

// SetPoolCeiling updates the maximum collateral balance the pool accepts for
// one collateral, in the token's native smallest units.
func (e *Engine) SetPoolCeiling(caller common.Address, index uint64, ceiling *big.Int) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return err
	}
	prev := entry.info.PoolCeiling
	entry.info.PoolCeiling = cloneBig(ceiling)
	if err := e.persistCollateral(entry); err != nil {
		entry.info.PoolCeiling = prev
		return fmt.Errorf("pool: persist collateral: %w", err)
	}
	e.emitter.Emit(events.PoolCeilingSet{Index: index, Ceiling: cloneBig(ceiling)})
	return nil
}

// ToggleMRB flips exactly one of the three independent pause gates.
func (e *Engine) ToggleMRB(caller common.Address, index uint64, selector ToggleSelector) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return err
	}
	var flag *bool
	var gate string
	switch selector {
	case ToggleMint:
		flag, gate = &entry.info.MintPaused, "mint"
	case ToggleRedeem:
		flag, gate = &entry.info.RedeemPaused, "redeem"
	case ToggleBorrow:
		flag, gate = &entry.info.BorrowPaused, "borrow"
	default:
		return fmt.Errorf("pool: unknown toggle selector %d", selector)
	}
	*flag = !*flag
	if err := e.persistCollateral(entry); err != nil {
		*flag = !*flag
		return fmt.Errorf("pool: persist collateral: %w", err)
	}
	e.emitter.Emit(events.MRBToggled{Index: index, Gate: gate, Paused: *flag})
	return nil
}

// SetPriceThresholds configures the floor gating mints and the ceiling gating
// redemptions, both at six implied decimals.
func (e *Engine) SetPriceThresholds(caller common.Address, mintThreshold, redeemThreshold uint64) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prevMint, prevRedeem := e.mintPriceThreshold, e.redeemPriceThreshold
	e.mintPriceThreshold = mintThreshold
	e.redeemPriceThreshold = redeemThreshold
	if err := e.persistParams(); err != nil {
		e.mintPriceThreshold, e.redeemPriceThreshold = prevMint, prevRedeem
		return fmt.Errorf("pool: persist params: %w", err)
	}
	e.emitter.Emit(events.PriceThresholdsSet{MintThreshold: mintThreshold, RedeemThreshold: redeemThreshold})
	return nil
}

// SetRedemptionDelay configures how many blocks a booking waits before it
// becomes collectible.
func (e *Engine) SetRedemptionDelay(caller common.Address, blocks uint64) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.redemptionDelay
	e.redemptionDelay = blocks
	if err := e.persistParams(); err != nil {
		e.redemptionDelay = prev
		return fmt.Errorf("pool: persist params: %w", err)
	}
	e.emitter.Emit(events.RedemptionDelaySet{Blocks: blocks})
	return nil
}

// CollateralInformation looks a collateral up by token address. Lookups fail
// for unregistered and for disabled collateral alike; the underlying record
// and any bookings against it survive disablement.
func (e *Engine) CollateralInformation(token common.Address) (CollateralInformation, error) {
	if e == nil {
		return CollateralInformation{}, ErrNotConfigured
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	index, ok := e.byToken[token]
	if !ok {
		return CollateralInformation{}, ErrInvalidCollateral
	}
	entry := e.collaterals[index]
	if !entry.info.Enabled {
		return CollateralInformation{}, ErrInvalidCollateral
	}
	return entry.info.clone(), nil
}

// AllCollaterals lists the addresses of enabled collateral, in registration
// order.
func (e *Engine) AllCollaterals() []common.Address {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]common.Address, 0, len(e.collaterals))
	for _, entry := range e.collaterals {
		if entry.info.Enabled {
			out = append(out, entry.info.Token)
		}
	}
	return out
}

// CollateralSymbol reports the listed symbol for an index, enabled or not.
func (e *Engine) CollateralSymbol(index uint64) (string, error) {
	if e == nil {
		return "", ErrNotConfigured
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return "", err
	}
	return entry.info.Symbol, nil
}

// CollateralCount reports how many collateral entries exist, enabled or not.
func (e *Engine) CollateralCount() uint64 {
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.collaterals))
}

// PriceThresholds returns the configured mint floor and redeem ceiling.
func (e *Engine) PriceThresholds() (uint64, uint64) {
	if e == nil {
		return 0, 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mintPriceThreshold, e.redeemPriceThreshold
}

// RedemptionDelay returns the configured delay in blocks.
func (e *Engine) RedemptionDelay() uint64 {
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.redemptionDelay
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
