package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/events"
	nativecommon "dollarpool/native/common"
)

// AddAmoMinter registers a borrower module. The candidate's capability
// surface is probed once here; a candidate that cannot answer either query is
// rejected and never called again.
func (e *Engine) AddAmoMinter(caller common.Address, minter AmoMinter) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if minter == nil {
		return ErrZeroAddress
	}
	addr := minter.Address()
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, err := minter.CollateralDollarBalance(); err != nil {
		return fmt.Errorf("%w: collateral dollar balance: %v", ErrMinterConformance, err)
	}
	if _, err := minter.CollateralIndex(); err != nil {
		return fmt.Errorf("%w: collateral index: %v", ErrMinterConformance, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.minters[addr]; exists {
		return ErrDuplicateAmoMinter
	}
	e.minters[addr] = minter
	e.minterOrder = append(e.minterOrder, addr)
	if err := e.persistMinters(); err != nil {
		delete(e.minters, addr)
		e.minterOrder = e.minterOrder[:len(e.minterOrder)-1]
		return fmt.Errorf("pool: persist minters: %w", err)
	}
	e.emitter.Emit(events.AmoMinterAdded{Minter: addr})
	return nil
}

// RemoveAmoMinter deregisters a borrower module. Its borrowed tally remains
// on the books until the collateral comes back through the token layer.
func (e *Engine) RemoveAmoMinter(caller, addr common.Address) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	minter, exists := e.minters[addr]
	if !exists {
		return ErrUnknownAmoMinter
	}
	position := -1
	for i, candidate := range e.minterOrder {
		if candidate == addr {
			position = i
			break
		}
	}
	delete(e.minters, addr)
	if position >= 0 {
		e.minterOrder = append(e.minterOrder[:position], e.minterOrder[position+1:]...)
	}
	if err := e.persistMinters(); err != nil {
		e.minters[addr] = minter
		if position >= 0 {
			e.minterOrder = append(e.minterOrder, common.Address{})
			copy(e.minterOrder[position+1:], e.minterOrder[position:])
			e.minterOrder[position] = addr
		}
		return fmt.Errorf("pool: persist minters: %w", err)
	}
	e.emitter.Emit(events.AmoMinterRemoved{Minter: addr})
	return nil
}

// AmoMinterBorrow moves free collateral out to the calling minter and raises
// the collateral's borrowed tally. The borrow is capped at the free balance
// so the failure mode is a policy error, not a transfer failure.
func (e *Engine) AmoMinterBorrow(caller common.Address, amount *big.Int) error {
	if e == nil {
		return ErrNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	minter, ok := e.minters[caller]
	if !ok {
		return ErrNotAnAmoMinter
	}
	index, err := minter.CollateralIndex()
	if err != nil {
		return fmt.Errorf("%w: collateral index: %v", ErrMinterConformance, err)
	}
	entry, err := e.entryByIndex(index)
	if err != nil {
		return err
	}
	if !entry.info.Enabled {
		return ErrCollateralDisabled
	}
	if entry.info.BorrowPaused {
		return ErrBorrowingPaused
	}
	if e.freeBalanceLocked(entry).Cmp(amount) < 0 {
		return ErrInsufficientPoolCollateral
	}
	if err := entry.token.Transfer(e.poolAddress, caller, amount); err != nil {
		return fmt.Errorf("pool: lend collateral: %w", err)
	}
	entry.borrowed.Add(entry.borrowed, amount)
	if err := e.persistCollateral(entry); err != nil {
		entry.borrowed.Sub(entry.borrowed, amount)
		if revertErr := entry.token.Transfer(caller, e.poolAddress, amount); revertErr != nil {
			return fmt.Errorf("pool: record borrow: %w (collateral return also failed: %v)", err, revertErr)
		}
		return fmt.Errorf("pool: record borrow: %w", err)
	}
	e.emitter.Emit(events.CollateralBorrowed{
		Minter: caller,
		Index:  index,
		Token:  entry.info.Token,
		Amount: new(big.Int).Set(amount),
		Block:  e.blockHeight,
	})
	return nil
}

// AmoMinters lists registered minter addresses in registration order.
func (e *Engine) AmoMinters() []common.Address {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]common.Address, len(e.minterOrder))
	copy(out, e.minterOrder)
	return out
}

// BorrowedBalance reports the outstanding borrowed tally for a collateral.
func (e *Engine) BorrowedBalance(index uint64) (*big.Int, error) {
	if e == nil {
		return nil, ErrNotConfigured
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(entry.borrowed), nil
}
